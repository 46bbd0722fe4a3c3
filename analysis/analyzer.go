// Package analysis judges whether executed steps answered the question and
// generates bounded follow-up steps when they did not.
//
// Every LLM interaction in this package degrades gracefully: a malformed
// analysis response becomes a neutral result, a malformed follow-up response
// becomes an empty step list. Nothing here may abort the pipeline.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	jsonutil "github.com/prepwise/glance/internal/json"
	"github.com/prepwise/glance/llm"
	"github.com/prepwise/glance/strategy"
)

// insufficientResultsReason is the short-circuit reason when too few steps
// succeeded to be worth an LLM call.
const insufficientResultsReason = "Insufficient successful results for analysis"

// Config holds the analysis decision thresholds.
type Config struct {
	// CompletenessThreshold is the completeness score below which follow-up
	// is needed.
	CompletenessThreshold float64
	// ConfidenceThreshold is the confidence score below which follow-up is
	// needed.
	ConfidenceThreshold float64
	// MaxFollowUpSteps hard-bounds the steps one analysis pass may add.
	MaxFollowUpSteps int
	// MinSuccessfulResults is the number of successful step results required
	// before an LLM analysis call is made at all.
	MinSuccessfulResults int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		CompletenessThreshold: 0.8,
		ConfidenceThreshold:   0.7,
		MaxFollowUpSteps:      3,
		MinSuccessfulResults:  1,
	}
}

// Service analyzes intermediate results and proposes follow-up steps.
type Service struct {
	client *llm.Client
	config Config
	logger *slog.Logger
}

// NewService creates an analysis service.
func NewService(client *llm.Client, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, config: config, logger: logger}
}

// Analyze aggregates the successful step results, asks the LLM to judge
// completeness and confidence, and decides whether follow-up steps are
// needed. Never returns an error for LLM or parse failures; those degrade
// to a neutral analysis.
func (s *Service) Analyze(ctx context.Context, results []strategy.StepResult, strat strategy.Strategy) strategy.AnalysisResult {
	successful := make([]strategy.StepResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			successful = append(successful, r)
		}
	}

	if len(successful) < s.config.MinSuccessfulResults {
		return strategy.AnalysisResult{
			NeedsFollowUp: false,
			Reason:        insufficientResultsReason,
			Completeness:  0,
			Confidence:    0,
		}
	}

	agg := s.aggregate(successful)
	judged := s.judge(ctx, agg, strat)

	var reasons []string
	if judged.Completeness < s.config.CompletenessThreshold {
		reasons = append(reasons, fmt.Sprintf("completeness %.2f below threshold %.2f",
			judged.Completeness, s.config.CompletenessThreshold))
	}
	if judged.Confidence < s.config.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below threshold %.2f",
			judged.Confidence, s.config.ConfidenceThreshold))
	}
	if len(judged.Gaps) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d gaps identified", len(judged.Gaps)))
	}
	if strat.Complexity == strategy.ComplexityHigh && judged.Completeness < 0.9 {
		reasons = append(reasons, "high-complexity strategy not fully answered")
	}

	result := strategy.AnalysisResult{
		NeedsFollowUp: len(reasons) > 0,
		Reason:        strings.Join(reasons, "; "),
		Confidence:    judged.Confidence,
		Completeness:  judged.Completeness,
		Insights:      judged.Insights,
		Gaps:          judged.Gaps,
	}
	if !result.NeedsFollowUp {
		result.Reason = "results are sufficiently complete"
	}
	return result
}

// aggregated summarizes one batch of successful results for the LLM.
type aggregated struct {
	entities     *Entities
	countsByType map[string]int
	timeframes   []string
	stepCount    int
}

func (s *Service) aggregate(successful []strategy.StepResult) aggregated {
	agg := aggregated{
		entities:     NewEntities(),
		countsByType: make(map[string]int),
		stepCount:    len(successful),
	}
	for _, r := range successful {
		agg.entities.MergeResult(r)
		agg.countsByType[r.QueryType.String()] += len(r.Results.Results)
		if tf, ok := r.Parameters["timeframe"].(string); ok && tf != "" {
			agg.timeframes = append(agg.timeframes, tf)
		}
	}
	return agg
}

// judgment mirrors the LLM's analysis JSON contract.
type judgment struct {
	Completeness float64  `json:"completeness"`
	Confidence   float64  `json:"confidence"`
	Insights     []string `json:"insights"`
	Gaps         []string `json:"gaps"`
}

// neutralJudgment is what a malformed analysis response degrades to.
func neutralJudgment() judgment {
	return judgment{Completeness: 0.5, Confidence: 0.5}
}

func (s *Service) judge(ctx context.Context, agg aggregated, strat strategy.Strategy) judgment {
	prompt := buildAnalysisPrompt(agg, strat)

	response, err := s.client.Generate(ctx, prompt, llm.Options{
		SystemPrompt: analysisSystemPrompt,
		JSONOnly:     true,
	})
	if err != nil {
		s.logger.Warn("analysis LLM call failed, using neutral analysis", "error", err)
		return neutralJudgment()
	}

	parsed, err := jsonutil.Unmarshal[judgment](response)
	if err != nil {
		s.logger.Warn("analysis response was not valid JSON, using neutral analysis", "error", err)
		return neutralJudgment()
	}

	parsed.Completeness = clamp01(parsed.Completeness)
	parsed.Confidence = clamp01(parsed.Confidence)
	return parsed
}

// GenerateFollowUpSteps asks the LLM for 1-3 additional steps that close the
// identified gaps. The returned steps are numbered from nextStep onward and
// hard-truncated to MaxFollowUpSteps. Parse failure returns an empty list.
func (s *Service) GenerateFollowUpSteps(ctx context.Context, result strategy.AnalysisResult, strat strategy.Strategy, nextStep int) []strategy.Step {
	prompt := buildFollowUpPrompt(result, strat)

	response, err := s.client.Generate(ctx, prompt, llm.Options{
		SystemPrompt: analysisSystemPrompt,
		JSONOnly:     true,
	})
	if err != nil {
		s.logger.Warn("follow-up LLM call failed, continuing without follow-up", "error", err)
		return nil
	}

	raw, err := jsonutil.Unmarshal[rawFollowUp](response)
	if err != nil {
		s.logger.Warn("follow-up response was not valid JSON, continuing without follow-up", "error", err)
		return nil
	}

	steps := raw.Steps
	if len(steps) > s.config.MaxFollowUpSteps {
		steps = steps[:s.config.MaxFollowUpSteps]
	}

	out := make([]strategy.Step, 0, len(steps))
	for i, rs := range steps {
		qt, ok := strategy.ParseQueryType(rs.QueryType)
		if !ok {
			s.logger.Warn("coercing unknown follow-up query type to general_search",
				"queryType", rs.QueryType)
			qt = strategy.QueryGeneralSearch
		}
		params := rs.Parameters
		if params == nil {
			params = map[string]any{}
		}

		// Follow-up steps may depend on already-executed steps only.
		deps := make([]int, 0, len(rs.Dependencies))
		for _, dep := range rs.Dependencies {
			if dep >= 1 && dep < nextStep {
				deps = append(deps, dep)
			}
		}

		out = append(out, strategy.Step{
			StepNumber:    nextStep + i,
			Description:   rs.Description,
			QueryType:     qt,
			Parameters:    params,
			Dependencies:  deps,
			EstimatedTime: strategy.EstimateMedium,
		})
	}
	return out
}

type rawFollowUp struct {
	Steps []rawFollowUpStep `json:"steps"`
}

type rawFollowUpStep struct {
	Description  string         `json:"description"`
	QueryType    string         `json:"queryType"`
	Parameters   map[string]any `json:"parameters"`
	Dependencies []int          `json:"dependencies"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
