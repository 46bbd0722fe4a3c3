// Strategy validation and optimization.
//
// The validator is deliberately strict where the planner is lenient: the
// planner coerces unknown query types so an imperfect LLM plan stays usable,
// while the validator gates execution and rejects anything it could not run
// as-is. Do not unify the two behaviors.

package strategy

import (
	"fmt"
	"log/slog"
	"time"
)

// Per-bucket base estimates for a single step.
const (
	baseFast   = 100 * time.Millisecond
	baseMedium = 1000 * time.Millisecond
	baseSlow   = 5000 * time.Millisecond

	// bottleneckThreshold flags any step estimated above it.
	bottleneckThreshold = 5000 * time.Millisecond
)

// ValidatorConfig carries the performance limits the validator warns on.
type ValidatorConfig struct {
	// MaxSteps is the step count above which a strategy draws a warning.
	MaxSteps int
	// MaxSlowQueries is the number of estimatedTime=slow steps tolerated
	// before a warning.
	MaxSlowQueries int
	// MaxResourceIntensive is the number of resource-intensive steps
	// tolerated before an advisory suggestion.
	MaxResourceIntensive int
}

// DefaultValidatorConfig returns the standard limits.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxSteps:             10,
		MaxSlowQueries:       3,
		MaxResourceIntensive: 2,
	}
}

// Optimization is a proposed transformation of a strategy. Only proposals
// with AutoApply=true are ever applied automatically; the rest are surfaced
// as suggestions for a human or the planner to act on.
type Optimization struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Steps       []int  `json:"steps,omitempty"`
	AutoApply   bool   `json:"autoApply"`
}

// Optimization type tags.
const (
	OptParallelization   = "parallelization"
	OptDefaultTimeframe  = "default_timeframe"
	OptReorderSuggestion = "reorder"
	OptResourceAdvisory  = "resource_advisory"
)

// Bottleneck names a step whose estimated time exceeds the threshold.
type Bottleneck struct {
	StepNumber int    `json:"stepNumber"`
	Estimated  int64  `json:"estimatedMs"`
	Reason     string `json:"reason"`
}

// PerformanceHint summarizes the validator's timing estimates.
type PerformanceHint struct {
	TotalEstimatedMs int64        `json:"totalEstimatedMs"`
	Bottlenecks      []Bottleneck `json:"bottlenecks,omitempty"`
}

// ValidationResult is the full outcome of validating one strategy.
// Errors block execution; warnings and suggestions do not.
type ValidationResult struct {
	IsValid              bool             `json:"isValid"`
	Errors               []string         `json:"errors"`
	Warnings             []string         `json:"warnings"`
	Suggestions          []string         `json:"suggestions"`
	Optimizations        []Optimization   `json:"optimizations"`
	EstimatedPerformance *PerformanceHint `json:"estimatedPerformance,omitempty"`
}

// Validator statically checks strategies before execution.
type Validator struct {
	config ValidatorConfig
	logger *slog.Logger
}

// NewValidator creates a validator with the given limits.
func NewValidator(config ValidatorConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{config: config, logger: logger}
}

// Validate runs every rule against the strategy and concatenates the results.
// It never fails hard: a nil strategy yields IsValid=false with a generic
// error rather than a panic or returned error.
func (v *Validator) Validate(s *Strategy) ValidationResult {
	result := ValidationResult{
		Errors:        []string{},
		Warnings:      []string{},
		Suggestions:   []string{},
		Optimizations: []Optimization{},
	}

	if s == nil {
		result.Errors = append(result.Errors, "strategy is missing or not an object")
		return result
	}

	v.checkRequiredFields(s, &result)
	v.checkStructure(s, &result)
	v.checkPerformance(s, &result)
	v.collectOptimizations(s, &result)

	perf := v.estimatePerformance(s)
	result.EstimatedPerformance = &perf

	result.IsValid = len(result.Errors) == 0
	if !result.IsValid {
		v.logger.Warn("strategy failed validation",
			"errors", len(result.Errors), "steps", len(s.Steps))
	}
	return result
}

func (v *Validator) checkRequiredFields(s *Strategy, result *ValidationResult) {
	if len(s.Steps) == 0 {
		result.Errors = append(result.Errors, "strategy has no steps")
	}
	if s.Analysis == "" {
		result.Warnings = append(result.Warnings, "strategy is missing an analysis summary")
	}
	if s.ExpectedOutcome == "" {
		result.Warnings = append(result.Warnings, "strategy is missing an expected outcome")
	}
}

func (v *Validator) checkStructure(s *Strategy, result *ValidationResult) {
	for _, step := range s.Steps {
		if step.QueryType.String() == "unknown" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("step %d has an unknown query type", step.StepNumber))
		}
		if step.Description == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("step %d has no description", step.StepNumber))
		}
		if step.Parameters == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("step %d has no parameters", step.StepNumber))
		}
		for _, dep := range step.Dependencies {
			if dep >= step.StepNumber {
				result.Errors = append(result.Errors,
					fmt.Sprintf("step %d has a circular or forward dependency on step %d",
						step.StepNumber, dep))
			}
		}
	}
}

func (v *Validator) checkPerformance(s *Strategy, result *ValidationResult) {
	if len(s.Steps) > v.config.MaxSteps {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("strategy has %d steps, above the recommended maximum of %d",
				len(s.Steps), v.config.MaxSteps))
	}

	slow := 0
	hasTimeframe := false
	for _, step := range s.Steps {
		if step.EstimatedTime == EstimateSlow {
			slow++
		}
		if step.HasTimeframe() {
			hasTimeframe = true
		}
	}
	if slow > v.config.MaxSlowQueries {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("strategy has %d slow queries, above the recommended maximum of %d",
				slow, v.config.MaxSlowQueries))
	}
	if !hasTimeframe {
		result.Suggestions = append(result.Suggestions,
			"no step carries a timeframe filter; consider constraining queries to a date range")
	}
}

func (v *Validator) collectOptimizations(s *Strategy, result *ValidationResult) {
	// Steps with no dependencies can be dispatched concurrently.
	var parallel []int
	for _, step := range s.Steps {
		if len(step.Dependencies) == 0 {
			parallel = append(parallel, step.StepNumber)
		}
	}
	if len(parallel) > 1 {
		result.Optimizations = append(result.Optimizations, Optimization{
			Type:        OptParallelization,
			Description: fmt.Sprintf("%d independent steps can run in parallel", len(parallel)),
			Steps:       parallel,
			AutoApply:   true,
		})
	}

	// Timeframe-capable steps without a timeframe get a default injected.
	var missing []int
	for _, step := range s.Steps {
		if step.QueryType.SupportsTimeframe() && !step.HasTimeframe() {
			missing = append(missing, step.StepNumber)
		}
	}
	if len(missing) > 0 {
		result.Optimizations = append(result.Optimizations, Optimization{
			Type:        OptDefaultTimeframe,
			Description: fmt.Sprintf("inject a default \"recent\" timeframe into %d steps", len(missing)),
			Steps:       missing,
			AutoApply:   true,
		})
	}

	// An expensive analysis immediately followed by a filtering query is
	// usually the wrong way round. Suggest the reorder; never do it.
	for i := 0; i+1 < len(s.Steps); i++ {
		if s.Steps[i].QueryType.IsExpensive() && s.Steps[i+1].QueryType.IsFiltering() {
			result.Optimizations = append(result.Optimizations, Optimization{
				Type: OptReorderSuggestion,
				Description: fmt.Sprintf(
					"step %d (%s) runs before filtering step %d (%s); filtering first would reduce its input",
					s.Steps[i].StepNumber, s.Steps[i].QueryType,
					s.Steps[i+1].StepNumber, s.Steps[i+1].QueryType),
				Steps:     []int{s.Steps[i].StepNumber, s.Steps[i+1].StepNumber},
				AutoApply: false,
			})
		}
	}

	intensive := 0
	for _, step := range s.Steps {
		if v.isResourceIntensive(step) {
			intensive++
		}
	}
	if intensive > v.config.MaxResourceIntensive {
		result.Optimizations = append(result.Optimizations, Optimization{
			Type: OptResourceAdvisory,
			Description: fmt.Sprintf(
				"%d resource-intensive steps; consider splitting the question or narrowing timeframes",
				intensive),
			AutoApply: false,
		})
	}
}

// isResourceIntensive matches the performance-estimation definition: an
// expensive query type, a slow estimate, or a missing time filter.
func (v *Validator) isResourceIntensive(step Step) bool {
	return step.QueryType.IsExpensive() ||
		step.EstimatedTime == EstimateSlow ||
		!step.HasTimeframe()
}

func (v *Validator) estimatePerformance(s *Strategy) PerformanceHint {
	hint := PerformanceHint{}
	for _, step := range s.Steps {
		estimate := v.estimateStep(step)
		hint.TotalEstimatedMs += estimate.Milliseconds()
		if estimate > bottleneckThreshold {
			reason := "slow query"
			switch {
			case step.QueryType.IsExpensive() && !step.HasTimeframe():
				reason = fmt.Sprintf("%s is resource-intensive and has no time filter", step.QueryType)
			case step.QueryType.IsExpensive():
				reason = fmt.Sprintf("%s is resource-intensive", step.QueryType)
			case !step.HasTimeframe():
				reason = "slow query with no time filter"
			}
			hint.Bottlenecks = append(hint.Bottlenecks, Bottleneck{
				StepNumber: step.StepNumber,
				Estimated:  estimate.Milliseconds(),
				Reason:     reason,
			})
		}
	}
	return hint
}

func (v *Validator) estimateStep(step Step) time.Duration {
	var base time.Duration
	switch step.EstimatedTime {
	case EstimateFast:
		base = baseFast
	case EstimateSlow:
		base = baseSlow
	default:
		base = baseMedium
	}
	if step.QueryType.IsExpensive() {
		base *= 2
	}
	if !step.HasTimeframe() {
		base = base * 3 / 2
	}
	return base
}

// Optimize deep-clones the strategy and applies only the auto-applicable
// optimizations from the validation result. The returned strategy carries
// Metadata.Optimized=true and the computed performance hints; the input is
// never mutated.
func (v *Validator) Optimize(s Strategy, result ValidationResult) Strategy {
	optimized := s.Clone()

	for _, opt := range result.Optimizations {
		if !opt.AutoApply {
			continue
		}
		switch opt.Type {
		case OptDefaultTimeframe:
			for _, n := range opt.Steps {
				for i := range optimized.Steps {
					if optimized.Steps[i].StepNumber != n {
						continue
					}
					if optimized.Steps[i].Parameters == nil {
						optimized.Steps[i].Parameters = map[string]any{}
					}
					optimized.Steps[i].Parameters["timeframe"] = "recent"
				}
			}
		case OptParallelization:
			// Scheduling concern: the execution engine already dispatches
			// dependency-free steps concurrently. Nothing to rewrite here.
		}
	}

	optimized.Metadata.Optimized = true
	if result.EstimatedPerformance != nil {
		hints := *result.EstimatedPerformance
		optimized.PerformanceHints = &hints
	}
	return optimized
}
