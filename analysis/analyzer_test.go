package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prepwise/glance/llm"
	"github.com/prepwise/glance/strategy"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.response}, nil
}

func serviceWith(response string, err error) (*Service, *fakeProvider) {
	provider := &fakeProvider{response: response, err: err}
	return NewService(llm.NewClient(provider), DefaultConfig(), nil), provider
}

func successResult(step int, qt strategy.QueryType, rows ...map[string]any) strategy.StepResult {
	return strategy.StepResult{
		StepNumber: step,
		QueryType:  qt,
		Success:    true,
		Results:    strategy.ResultSet{Results: rows},
		Parameters: map[string]any{"timeframe": "week"},
		Timestamp:  time.Now(),
	}
}

func TestAnalyzeShortCircuitsWithoutSuccessfulResults(t *testing.T) {
	svc, provider := serviceWith(`{"completeness": 1, "confidence": 1}`, nil)

	results := []strategy.StepResult{
		{StepNumber: 1, Success: false, Error: "timeout"},
		{StepNumber: 2, Success: false, Error: "timeout"},
	}

	got := svc.Analyze(context.Background(), results, strategy.Strategy{})

	if provider.calls != 0 {
		t.Errorf("short circuit must not call the LLM, got %d calls", provider.calls)
	}
	if got.NeedsFollowUp {
		t.Error("short circuit must not request follow-up")
	}
	if got.Reason != "Insufficient successful results for analysis" {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
}

func TestAnalyzeCompleteResults(t *testing.T) {
	svc, _ := serviceWith(`{"completeness": 0.95, "confidence": 0.9, "insights": ["weekly sync cadence"]}`, nil)

	got := svc.Analyze(context.Background(),
		[]strategy.StepResult{successResult(1, strategy.QueryFindMeetings,
			map[string]any{"id": "m1", "title": "Sync", "startTime": "2026-08-24T10:00:00Z"})},
		strategy.Strategy{Complexity: strategy.ComplexityLow},
	)

	if got.NeedsFollowUp {
		t.Errorf("expected no follow-up, reason: %q", got.Reason)
	}
	if got.Completeness != 0.95 {
		t.Errorf("expected completeness 0.95, got %v", got.Completeness)
	}
	if len(got.Insights) != 1 {
		t.Errorf("expected insights to pass through, got %v", got.Insights)
	}
}

func TestAnalyzeBelowThresholdNeedsFollowUp(t *testing.T) {
	svc, _ := serviceWith(`{"completeness": 0.4, "confidence": 0.9, "gaps": ["missing participants"]}`, nil)

	got := svc.Analyze(context.Background(),
		[]strategy.StepResult{successResult(1, strategy.QueryFindMeetings)},
		strategy.Strategy{Complexity: strategy.ComplexityLow},
	)

	if !got.NeedsFollowUp {
		t.Fatal("expected follow-up")
	}
	if !strings.Contains(got.Reason, "completeness") {
		t.Errorf("expected completeness in reason, got %q", got.Reason)
	}
	if !strings.Contains(got.Reason, "gaps") {
		t.Errorf("expected gap count in reason, got %q", got.Reason)
	}
}

func TestAnalyzeHighComplexityRaisesBar(t *testing.T) {
	// 0.85 passes the normal threshold but not the high-complexity bar.
	svc, _ := serviceWith(`{"completeness": 0.85, "confidence": 0.9}`, nil)

	got := svc.Analyze(context.Background(),
		[]strategy.StepResult{successResult(1, strategy.QueryAnalyzeTopics)},
		strategy.Strategy{Complexity: strategy.ComplexityHigh},
	)

	if !got.NeedsFollowUp {
		t.Error("expected high-complexity strategy at 0.85 to need follow-up")
	}
}

func TestAnalyzeDegradesToNeutralOnParseFailure(t *testing.T) {
	svc, _ := serviceWith("The results look pretty good to me!", nil)

	got := svc.Analyze(context.Background(),
		[]strategy.StepResult{successResult(1, strategy.QueryFindMeetings)},
		strategy.Strategy{Complexity: strategy.ComplexityLow},
	)

	if got.Completeness != 0.5 || got.Confidence != 0.5 {
		t.Errorf("expected neutral 0.5/0.5, got %v/%v", got.Completeness, got.Confidence)
	}
	// Neutral scores sit below both thresholds, so the loop continues.
	if !got.NeedsFollowUp {
		t.Error("neutral analysis should request follow-up")
	}
}

func TestGenerateFollowUpStepsTruncatesToBound(t *testing.T) {
	svc, _ := serviceWith(`{"steps": [
		{"description": "a", "queryType": "find_meetings", "parameters": {}, "dependencies": []},
		{"description": "b", "queryType": "get_participants", "parameters": {}, "dependencies": []},
		{"description": "c", "queryType": "find_documents", "parameters": {}, "dependencies": []},
		{"description": "d", "queryType": "find_people", "parameters": {}, "dependencies": []},
		{"description": "e", "queryType": "analyze_topics", "parameters": {}, "dependencies": []}
	]}`, nil)

	steps := svc.GenerateFollowUpSteps(context.Background(),
		strategy.AnalysisResult{NeedsFollowUp: true, Reason: "gaps"},
		strategy.Strategy{}, 4)

	if len(steps) != 3 {
		t.Fatalf("expected truncation to 3 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s.StepNumber != 4+i {
			t.Errorf("expected step number %d, got %d", 4+i, s.StepNumber)
		}
	}
}

func TestGenerateFollowUpStepsFiltersDependencies(t *testing.T) {
	svc, _ := serviceWith(`{"steps": [
		{"description": "a", "queryType": "get_participants", "parameters": {}, "dependencies": [1, 4, 7]}
	]}`, nil)

	steps := svc.GenerateFollowUpSteps(context.Background(),
		strategy.AnalysisResult{}, strategy.Strategy{}, 4)

	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	// Only references to already-executed steps (< 4) survive.
	if len(steps[0].Dependencies) != 1 || steps[0].Dependencies[0] != 1 {
		t.Errorf("expected dependencies [1], got %v", steps[0].Dependencies)
	}
}

func TestGenerateFollowUpStepsParseFailureReturnsEmpty(t *testing.T) {
	svc, _ := serviceWith("Let me think about what to do next...", nil)

	steps := svc.GenerateFollowUpSteps(context.Background(),
		strategy.AnalysisResult{}, strategy.Strategy{}, 2)
	if len(steps) != 0 {
		t.Errorf("expected no steps on parse failure, got %d", len(steps))
	}
}

func TestGenerateFollowUpStepsLLMErrorReturnsEmpty(t *testing.T) {
	svc, _ := serviceWith("", errors.New("unreachable"))

	steps := svc.GenerateFollowUpSteps(context.Background(),
		strategy.AnalysisResult{}, strategy.Strategy{}, 2)
	if len(steps) != 0 {
		t.Errorf("expected no steps on LLM error, got %d", len(steps))
	}
}

func TestGenerateFollowUpStepsCoercesUnknownType(t *testing.T) {
	svc, _ := serviceWith(`{"steps": [
		{"description": "a", "queryType": "time_travel", "parameters": {}, "dependencies": []}
	]}`, nil)

	steps := svc.GenerateFollowUpSteps(context.Background(),
		strategy.AnalysisResult{}, strategy.Strategy{}, 2)
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].QueryType != strategy.QueryGeneralSearch {
		t.Errorf("expected coercion to general_search, got %v", steps[0].QueryType)
	}
}
