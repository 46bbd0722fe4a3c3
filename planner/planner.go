// Package planner turns a natural-language question into an executable
// multi-step query strategy.
//
// The primary path asks an LLM for a strict-JSON strategy. Parse failure is
// the single trigger for falling back to the deterministic keyword strategy;
// the prose heuristic (LooksConversational) is recorded only as a diagnostic.
// The planner is deliberately lenient with imperfect LLM output (unknown
// query types are coerced, bad dependency references are dropped), while the
// strategy.Validator stays strict, because the validator gates execution.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsonutil "github.com/prepwise/glance/internal/json"
	"github.com/prepwise/glance/llm"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// ErrContractViolation indicates the LLM ignored the JSON-only instruction.
// Always recoverable: CreateStrategy falls back to the keyword strategy.
var ErrContractViolation = errors.New("planner: LLM response violates JSON contract")

// ErrPlanningExhausted indicates both the LLM and fallback paths failed to
// produce a usable strategy. This is the only planner error that propagates
// to the caller as a hard failure.
var ErrPlanningExhausted = errors.New("planner: no strategy could be produced")

// maxHistoryTurns is how many prior conversation turns feed the prompt.
const maxHistoryTurns = 3

// historyTruncateAt bounds each embedded turn to keep the prompt small.
const historyTruncateAt = 200

// Context carries the conversational surroundings of a planning request.
type Context struct {
	User                model.UserContext
	ConversationHistory []model.ConversationTurn
}

// Planner produces strategies from natural-language questions.
type Planner struct {
	client *llm.Client
	logger *slog.Logger
}

// New creates a planner backed by the given LLM client.
func New(client *llm.Client, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{client: client, logger: logger}
}

// CreateStrategy produces a normalized strategy for the query. The LLM path
// is tried first; any parse or contract failure falls back to the keyword
// strategy. Returns ErrPlanningExhausted only if both paths fail.
func (p *Planner) CreateStrategy(ctx context.Context, userQuery string, pctx Context) (strategy.Strategy, error) {
	s, err := p.planWithLLM(ctx, userQuery, pctx)
	if err != nil {
		p.logger.Warn("LLM planning failed, using fallback strategy",
			"error", err, "query", truncate(userQuery, 80))
		s, err = FallbackStrategy(userQuery)
		if err != nil {
			return strategy.Strategy{}, fmt.Errorf("%w: %v", ErrPlanningExhausted, err)
		}
	}

	p.normalize(&s)
	s.Complexity = estimateComplexity(s.Steps)
	s.Metadata.CreatedAt = time.Now()
	return s, nil
}

func (p *Planner) planWithLLM(ctx context.Context, userQuery string, pctx Context) (strategy.Strategy, error) {
	prompt := buildPlanningPrompt(userQuery, pctx)

	response, err := p.client.Generate(ctx, prompt, llm.Options{
		SystemPrompt: planningSystemPrompt,
		JSONOnly:     true,
	})
	if err != nil {
		return strategy.Strategy{}, fmt.Errorf("planner: LLM call failed: %w", err)
	}

	raw, err := jsonutil.Unmarshal[rawStrategy](response)
	if err != nil {
		// Parse failure is the fallback trigger. The prose check below is
		// a diagnostic for operators, not a decision input.
		if jsonutil.LooksConversational(response) {
			p.logger.Warn("LLM answered in prose instead of JSON",
				"preview", truncate(response, 120))
		}
		return strategy.Strategy{}, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}

	if len(raw.Steps) == 0 {
		return strategy.Strategy{}, fmt.Errorf("%w: strategy has no steps", ErrContractViolation)
	}
	if raw.Analysis == "" || raw.Complexity == "" {
		return strategy.Strategy{}, fmt.Errorf("%w: strategy is missing analysis or complexity", ErrContractViolation)
	}

	s := raw.toStrategy(p.logger)
	s.Metadata.Source = "llm"
	return s, nil
}

// rawStrategy mirrors the LLM's JSON contract with loose types, so coercion
// decisions stay in the planner instead of failing in strict unmarshalers.
type rawStrategy struct {
	Analysis          string    `json:"analysis"`
	Complexity        string    `json:"complexity"`
	Steps             []rawStep `json:"steps"`
	ExpectedOutcome   string    `json:"expectedOutcome"`
	FollowUpQuestions []string  `json:"followUpQuestions"`
}

type rawStep struct {
	StepNumber    int            `json:"stepNumber"`
	Description   string         `json:"description"`
	QueryType     string         `json:"queryType"`
	Parameters    map[string]any `json:"parameters"`
	Dependencies  []int          `json:"dependencies"`
	EstimatedTime string         `json:"estimatedTime"`
}

func (r rawStrategy) toStrategy(logger *slog.Logger) strategy.Strategy {
	steps := make([]strategy.Step, 0, len(r.Steps))
	for _, rs := range r.Steps {
		qt, ok := strategy.ParseQueryType(rs.QueryType)
		if !ok {
			logger.Warn("coercing unknown query type to general_search",
				"queryType", rs.QueryType, "step", rs.StepNumber)
			qt = strategy.QueryGeneralSearch
		}
		steps = append(steps, strategy.Step{
			StepNumber:    rs.StepNumber,
			Description:   rs.Description,
			QueryType:     qt,
			Parameters:    rs.Parameters,
			Dependencies:  rs.Dependencies,
			EstimatedTime: parseEstimatedTime(rs.EstimatedTime),
		})
	}

	return strategy.Strategy{
		Analysis:          r.Analysis,
		Complexity:        strategy.Complexity(r.Complexity),
		Steps:             steps,
		ExpectedOutcome:   r.ExpectedOutcome,
		FollowUpQuestions: r.FollowUpQuestions,
	}
}

func parseEstimatedTime(s string) strategy.EstimatedTime {
	switch strategy.EstimatedTime(s) {
	case strategy.EstimateFast, strategy.EstimateMedium, strategy.EstimateSlow:
		return strategy.EstimatedTime(s)
	default:
		return strategy.EstimateMedium
	}
}

// normalize makes any strategy executable: contiguous 1-based step numbers,
// defaulted fields, and dependency references restricted to earlier steps.
// Invalid references are dropped silently here; the validator independently
// treats them as hard errors on strategies it is asked to gate.
func (p *Planner) normalize(s *strategy.Strategy) {
	renumber := make(map[int]int, len(s.Steps))
	for i := range s.Steps {
		renumber[s.Steps[i].StepNumber] = i + 1
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		step.StepNumber = i + 1

		if step.Parameters == nil {
			step.Parameters = map[string]any{}
		}
		if step.EstimatedTime == "" {
			step.EstimatedTime = strategy.EstimateMedium
		}

		deps := make([]int, 0, len(step.Dependencies))
		for _, dep := range step.Dependencies {
			mapped, ok := renumber[dep]
			if !ok {
				mapped = dep
			}
			if mapped >= 1 && mapped < step.StepNumber {
				deps = append(deps, mapped)
			} else {
				p.logger.Warn("dropping invalid dependency reference",
					"step", step.StepNumber, "dependency", dep)
			}
		}
		step.Dependencies = deps
	}
}

// estimateComplexity recomputes strategy complexity from the step list.
// This value is authoritative downstream; the LLM's own claim is only
// sanity-checked during contract validation.
func estimateComplexity(steps []strategy.Step) strategy.Complexity {
	hasSlow := false
	hasExpensive := false
	for _, step := range steps {
		if step.EstimatedTime == strategy.EstimateSlow {
			hasSlow = true
		}
		if step.QueryType.IsExpensive() {
			hasExpensive = true
		}
	}

	switch {
	case len(steps) <= 2 && !hasSlow:
		return strategy.ComplexityLow
	case len(steps) <= 4 && !hasExpensive:
		return strategy.ComplexityMedium
	default:
		return strategy.ComplexityHigh
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatHistory(turns []model.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n",
			truncate(turn.Query, historyTruncateAt),
			truncate(turn.Response, historyTruncateAt))
	}
	return b.String()
}
