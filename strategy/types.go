// Package strategy defines query strategies and their validation.
//
// A Strategy is an ordered plan of typed query steps produced by the planner
// to answer one natural-language question. The Validator checks a strategy
// for structural and performance problems before the pipeline executes it.
package strategy

import "time"

// Complexity buckets a strategy by expected effort. The planner recomputes
// this from the step list; the LLM's own claim is never trusted downstream.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// EstimatedTime buckets a step's expected execution time.
type EstimatedTime string

const (
	EstimateFast   EstimatedTime = "fast"
	EstimateMedium EstimatedTime = "medium"
	EstimateSlow   EstimatedTime = "slow"
)

// Step is one typed, parameterized query operation within a strategy.
// Dependencies reference earlier steps by stepNumber; a step never runs
// before every listed dependency has completed successfully.
type Step struct {
	StepNumber    int            `json:"stepNumber"`
	Description   string         `json:"description"`
	QueryType     QueryType      `json:"queryType"`
	Parameters    map[string]any `json:"parameters"`
	Dependencies  []int          `json:"dependencies"`
	EstimatedTime EstimatedTime  `json:"estimatedTime"`
}

// HasTimeframe reports whether the step carries any timeframe-bearing parameter.
func (s Step) HasTimeframe() bool {
	for _, key := range []string{"timeframe", "startDate", "endDate", "dateRange"} {
		if _, ok := s.Parameters[key]; ok {
			return true
		}
	}
	return false
}

// Metadata records how a strategy was produced and transformed.
type Metadata struct {
	Source    string    `json:"source,omitempty"` // "llm" or "fallback"
	Optimized bool      `json:"optimized,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Strategy is a validated, ordered plan of query steps.
type Strategy struct {
	Analysis          string           `json:"analysis"`
	Complexity        Complexity       `json:"complexity"`
	Steps             []Step           `json:"steps"`
	ExpectedOutcome   string           `json:"expectedOutcome"`
	FollowUpQuestions []string         `json:"followUpQuestions,omitempty"`
	Metadata          Metadata         `json:"metadata,omitempty"`
	PerformanceHints  *PerformanceHint `json:"performanceHints,omitempty"`
}

// Clone returns a deep copy of the strategy. The optimizer mutates the copy
// so validation results computed against the original stay meaningful.
func (s Strategy) Clone() Strategy {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		cp := step
		if step.Parameters != nil {
			cp.Parameters = make(map[string]any, len(step.Parameters))
			for k, v := range step.Parameters {
				cp.Parameters[k] = v
			}
		}
		if step.Dependencies != nil {
			cp.Dependencies = append([]int(nil), step.Dependencies...)
		}
		out.Steps[i] = cp
	}
	out.FollowUpQuestions = append([]string(nil), s.FollowUpQuestions...)
	if s.PerformanceHints != nil {
		hint := *s.PerformanceHints
		hint.Bottlenecks = append([]Bottleneck(nil), s.PerformanceHints.Bottlenecks...)
		out.PerformanceHints = &hint
	}
	return out
}

// ResultSet is the raw payload a single graph query returns.
type ResultSet struct {
	Results []map[string]any `json:"results"`
}

// StepResult records the outcome of executing one step.
type StepResult struct {
	StepNumber int            `json:"stepNumber"`
	QueryType  QueryType      `json:"queryType"`
	Success    bool           `json:"success"`
	Results    ResultSet      `json:"results"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AnalysisResult is the outcome of one intermediate-analysis pass.
// It is derived per pass and never persisted beyond the execution context.
type AnalysisResult struct {
	NeedsFollowUp bool     `json:"needsFollowUp"`
	Reason        string   `json:"reason"`
	FollowUpSteps []Step   `json:"followUpSteps,omitempty"`
	Confidence    float64  `json:"confidence"`
	Completeness  float64  `json:"completeness"`
	Insights      []string `json:"insights,omitempty"`
	Gaps          []string `json:"gaps,omitempty"`
}
