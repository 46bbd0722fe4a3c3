package execution

import (
	"fmt"
	"testing"
	"time"

	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

func newTestStore() *Store {
	return NewStore(DefaultStoreConfig(), nil)
}

func initContext(s *Store, id string) {
	s.Initialize(id, strategy.Strategy{Analysis: "test"}, model.UserContext{Email: "u@corp.com"})
}

func meetingResult(step int, ids ...string) strategy.StepResult {
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{
			"id":        id,
			"title":     "Standup",
			"startTime": "2026-08-24T09:00:00Z",
		}
	}
	return strategy.StepResult{
		StepNumber: step,
		QueryType:  strategy.QueryFindMeetings,
		Success:    true,
		Results:    strategy.ResultSet{Results: rows},
		Timestamp:  time.Now(),
	}
}

func TestUpdateStepResultCachesEntities(t *testing.T) {
	s := newTestStore()
	initContext(s, "exec-1")

	s.UpdateStepResult("exec-1", 1, meetingResult(1, "m1", "m2"))

	meetings := s.CachedEntities("exec-1", EntityMeetings)
	if len(meetings) != 2 {
		t.Errorf("expected 2 cached meetings, got %d", len(meetings))
	}

	ids, ok := s.GetIntermediateData("exec-1", "meeting_ids")
	if !ok {
		t.Fatal("expected meeting_ids intermediate data")
	}
	if len(ids.([]string)) != 2 {
		t.Errorf("expected 2 meeting ids, got %v", ids)
	}
	if _, ok := s.GetIntermediateData("exec-1", "step_1"); !ok {
		t.Error("expected step_1 intermediate data")
	}
}

func TestUpdateStepResultIdempotentMerge(t *testing.T) {
	s := newTestStore()
	initContext(s, "exec-1")

	result := meetingResult(1, "m1", "m2")
	s.UpdateStepResult("exec-1", 1, result)
	s.UpdateStepResult("exec-1", 1, result)
	s.UpdateStepResult("exec-1", 1, result)

	if got := len(s.CachedEntities("exec-1", EntityMeetings)); got != 2 {
		t.Errorf("re-delivery grew the entity cache: got %d meetings", got)
	}
	if got := len(s.StepResults("exec-1")); got != 1 {
		t.Errorf("expected 1 step result, got %d", got)
	}
}

func TestFailedResultLeavesNoTrace(t *testing.T) {
	s := newTestStore()
	initContext(s, "exec-1")

	s.UpdateStepResult("exec-1", 1, strategy.StepResult{
		StepNumber: 1,
		Success:    false,
		Error:      "timeout",
	})

	if got := len(s.CachedEntities("exec-1", EntityMeetings)); got != 0 {
		t.Errorf("failed step must not populate the entity cache, got %d", got)
	}
	if _, ok := s.GetIntermediateData("exec-1", "step_1"); ok {
		t.Error("failed step must not populate intermediate data")
	}
	// The result itself is still recorded for analysis.
	if _, ok := s.GetStepResult("exec-1", 1); !ok {
		t.Error("expected the failed result to be recorded")
	}
}

func TestUnknownExecutionIDIsNoOp(t *testing.T) {
	s := newTestStore()

	// None of these may panic or create state.
	s.UpdateStepResult("ghost", 1, meetingResult(1, "m1"))
	s.AddConversationContext("ghost", model.ConversationTurn{Query: "q"})
	s.FinalizeExecution("ghost")

	if _, ok := s.GetStepResult("ghost", 1); ok {
		t.Error("unknown execution must not hold results")
	}
	if stats := s.GetStatistics(); stats.Total != 0 {
		t.Errorf("expected empty store, got %d contexts", stats.Total)
	}
}

func TestConversationHistoryBounded(t *testing.T) {
	s := newTestStore()
	initContext(s, "exec-1")

	for i := 0; i < 15; i++ {
		s.AddConversationContext("exec-1", model.ConversationTurn{
			Query: fmt.Sprintf("q%d", i),
		})
	}

	history := s.ConversationHistory("exec-1")
	if len(history) != maxConversationHistory {
		t.Fatalf("expected history capped at %d, got %d", maxConversationHistory, len(history))
	}
	if history[0].Query != "q5" {
		t.Errorf("expected oldest surviving turn q5, got %q", history[0].Query)
	}
	if history[len(history)-1].Query != "q14" {
		t.Errorf("expected newest turn q14, got %q", history[len(history)-1].Query)
	}
}

func TestCleanupOldContexts(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	initContext(s, "old-finalized")
	s.FinalizeExecution("old-finalized")
	initContext(s, "fresh")
	s.FinalizeExecution("fresh")
	initContext(s, "abandoned")

	// Move the clock past the max age, keeping "fresh" fresh.
	s.now = func() time.Time { return now.Add(s.config.MaxContextAge + time.Minute) }
	s.FinalizeExecution("fresh")

	removed := s.CleanupOldContexts()
	if removed != 2 {
		t.Errorf("expected 2 removals (finalized + abandoned), got %d", removed)
	}
	if stats := s.GetStatistics(); stats.Total != 1 {
		t.Errorf("expected 1 surviving context, got %d", stats.Total)
	}
}

func TestStatisticsCoverFinalizedOnly(t *testing.T) {
	s := newTestStore()

	initContext(s, "done")
	s.UpdateStepResult("done", 1, meetingResult(1, "m1"))
	s.UpdateStepResult("done", 2, meetingResult(2, "m2"))
	s.FinalizeExecution("done")

	initContext(s, "running")
	s.UpdateStepResult("running", 1, meetingResult(1, "m9"))

	stats := s.GetStatistics()
	if stats.Total != 2 || stats.Finalized != 1 || stats.Active != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.AvgStepsPerRun != 2 {
		t.Errorf("expected avg 2 steps per finalized run, got %v", stats.AvgStepsPerRun)
	}
}
