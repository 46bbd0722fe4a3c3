package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prepwise/glance/llm"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// fakeProvider returns a canned response (or error) and counts calls.
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

func plannerWith(response string, err error) (*Planner, *fakeProvider) {
	provider := &fakeProvider{response: response, err: err}
	return New(llm.NewClient(provider), nil), provider
}

func TestCreateStrategyFromLLM(t *testing.T) {
	p, _ := plannerWith(`{
		"analysis": "find this week's meetings, then their participants",
		"complexity": "medium",
		"expectedOutcome": "a meeting list with attendees",
		"steps": [
			{"stepNumber": 1, "description": "find meetings", "queryType": "find_meetings",
			 "parameters": {"timeframe": "week"}, "dependencies": [], "estimatedTime": "fast"},
			{"stepNumber": 2, "description": "get participants", "queryType": "get_participants",
			 "parameters": {}, "dependencies": [1], "estimatedTime": "fast"}
		]
	}`, nil)

	s, err := p.CreateStrategy(context.Background(), "who am I meeting this week?", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}

	if s.Metadata.Source != "llm" {
		t.Errorf("expected source llm, got %q", s.Metadata.Source)
	}
	if len(s.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(s.Steps))
	}
	if s.Steps[1].Dependencies[0] != 1 {
		t.Errorf("expected step 2 to depend on step 1, got %v", s.Steps[1].Dependencies)
	}
	// Two fast steps: the planner's own estimate, not the LLM's claim.
	if s.Complexity != strategy.ComplexityLow {
		t.Errorf("expected recomputed complexity low, got %v", s.Complexity)
	}
	if s.Metadata.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestProseResponseFallsBackToKeywordStrategy(t *testing.T) {
	p, provider := plannerWith("I found a few meetings on your calendar for this week!", nil)

	s, err := p.CreateStrategy(context.Background(), "what meetings do I have this week?", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}

	if provider.calls != 1 {
		t.Errorf("expected exactly one LLM call, got %d", provider.calls)
	}
	if s.Metadata.Source != "fallback" {
		t.Errorf("expected fallback strategy, got source %q", s.Metadata.Source)
	}
	if len(s.Steps) != 1 {
		t.Fatalf("expected a single fallback step, got %d", len(s.Steps))
	}
	if s.Steps[0].QueryType != strategy.QueryFindMeetings {
		t.Errorf("expected find_meetings, got %v", s.Steps[0].QueryType)
	}
	if s.Steps[0].Parameters["timeframe"] != "week" {
		t.Errorf("expected week timeframe, got %v", s.Steps[0].Parameters["timeframe"])
	}
}

func TestLLMErrorFallsBackToKeywordStrategy(t *testing.T) {
	p, _ := plannerWith("", errors.New("rate limited"))

	s, err := p.CreateStrategy(context.Background(), "who did I collaborate with?", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}
	if s.Metadata.Source != "fallback" {
		t.Errorf("expected fallback strategy, got source %q", s.Metadata.Source)
	}
	if s.Steps[0].QueryType != strategy.QueryAnalyzeCollaboration {
		t.Errorf("expected analyze_collaboration, got %v", s.Steps[0].QueryType)
	}
}

func TestPlanningExhausted(t *testing.T) {
	p, _ := plannerWith("", errors.New("unreachable"))

	_, err := p.CreateStrategy(context.Background(), "   ", Context{})
	if !errors.Is(err, ErrPlanningExhausted) {
		t.Errorf("expected ErrPlanningExhausted, got %v", err)
	}
}

func TestUnknownQueryTypeCoerced(t *testing.T) {
	p, _ := plannerWith(`{
		"analysis": "do something novel",
		"complexity": "low",
		"expectedOutcome": "something",
		"steps": [
			{"stepNumber": 1, "description": "novel query", "queryType": "summarize_universe",
			 "parameters": {}, "dependencies": [], "estimatedTime": "fast"}
		]
	}`, nil)

	s, err := p.CreateStrategy(context.Background(), "do the thing", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}
	if s.Metadata.Source != "llm" {
		t.Errorf("coercion should keep the LLM strategy, got source %q", s.Metadata.Source)
	}
	if s.Steps[0].QueryType != strategy.QueryGeneralSearch {
		t.Errorf("expected coercion to general_search, got %v", s.Steps[0].QueryType)
	}
}

func TestNormalizeRenumbersAndDropsBadDependencies(t *testing.T) {
	p, _ := plannerWith(`{
		"analysis": "sparse numbering",
		"complexity": "low",
		"expectedOutcome": "whatever",
		"steps": [
			{"stepNumber": 5, "description": "first", "queryType": "find_meetings",
			 "parameters": {}, "dependencies": [], "estimatedTime": "fast"},
			{"stepNumber": 9, "description": "second", "queryType": "get_participants",
			 "parameters": {}, "dependencies": [5, 42], "estimatedTime": "fast"}
		]
	}`, nil)

	s, err := p.CreateStrategy(context.Background(), "anything", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}

	if s.Steps[0].StepNumber != 1 || s.Steps[1].StepNumber != 2 {
		t.Errorf("expected contiguous numbering, got %d and %d",
			s.Steps[0].StepNumber, s.Steps[1].StepNumber)
	}
	// 5 maps to the renumbered step 1; 42 resolves to nothing and is dropped.
	if len(s.Steps[1].Dependencies) != 1 || s.Steps[1].Dependencies[0] != 1 {
		t.Errorf("expected dependencies [1], got %v", s.Steps[1].Dependencies)
	}
}

func TestMissingStepFieldsDefaulted(t *testing.T) {
	p, _ := plannerWith(`{
		"analysis": "bare step",
		"complexity": "low",
		"expectedOutcome": "whatever",
		"steps": [
			{"stepNumber": 1, "description": "find meetings", "queryType": "find_meetings"}
		]
	}`, nil)

	s, err := p.CreateStrategy(context.Background(), "anything", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}

	step := s.Steps[0]
	if step.Parameters == nil {
		t.Error("expected parameters to default to an empty map")
	}
	if step.Dependencies == nil {
		t.Error("expected dependencies to default to an empty slice")
	}
	if step.EstimatedTime != strategy.EstimateMedium {
		t.Errorf("expected estimatedTime to default to medium, got %v", step.EstimatedTime)
	}

	// An omitted dependencies field must serialize as [], not null.
	encoded, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("marshal step: %v", err)
	}
	if !strings.Contains(string(encoded), `"dependencies":[]`) {
		t.Errorf("expected empty dependencies list, got %s", encoded)
	}
}

func TestEmptyStepsViolatesContract(t *testing.T) {
	p, _ := plannerWith(`{"analysis": "nothing to do", "complexity": "low", "expectedOutcome": "n/a", "steps": []}`, nil)

	s, err := p.CreateStrategy(context.Background(), "find my meetings", Context{})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}
	if s.Metadata.Source != "fallback" {
		t.Errorf("empty step list should trigger fallback, got source %q", s.Metadata.Source)
	}
}

func TestHistoryFeedsPrompt(t *testing.T) {
	// Smoke test: history formatting must not panic and must truncate.
	turns := []model.ConversationTurn{
		{Query: "q1", Response: "r1"},
		{Query: "q2", Response: "r2"},
		{Query: "q3", Response: "r3"},
		{Query: "q4", Response: "r4"},
	}
	formatted := formatHistory(turns)
	if formatted == "" {
		t.Fatal("expected formatted history")
	}
	// Only the last 3 turns are embedded.
	if strings.Contains(formatted, "q1") {
		t.Errorf("expected oldest turn to be dropped, got %q", formatted)
	}
	if !strings.Contains(formatted, "q4") {
		t.Errorf("expected newest turn to be kept, got %q", formatted)
	}
}
