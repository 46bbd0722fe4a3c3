package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/planner"
	"github.com/prepwise/glance/strategy"
)

// QueryExecutor runs one query step against the knowledge graph. Satisfied
// by graph.Neo4jStore and graph.CachedQueryService.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, queryType strategy.QueryType, parameters map[string]any, user model.UserContext) (strategy.ResultSet, error)
}

// StrategyPlanner produces a strategy for a query. Satisfied by
// planner.Planner.
type StrategyPlanner interface {
	CreateStrategy(ctx context.Context, userQuery string, pctx planner.Context) (strategy.Strategy, error)
}

// ResultAnalyzer judges intermediate results and proposes follow-up steps.
// Satisfied by analysis.Service.
type ResultAnalyzer interface {
	Analyze(ctx context.Context, results []strategy.StepResult, strat strategy.Strategy) strategy.AnalysisResult
	GenerateFollowUpSteps(ctx context.Context, result strategy.AnalysisResult, strat strategy.Strategy, nextStep int) []strategy.Step
}

// Synthesizer turns the collected results into a final natural-language
// answer. Satisfied by the LLM-backed AnswerSynthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, userQuery, executionID string, strat strategy.Strategy, result strategy.AnalysisResult) string
}

// PipelineConfig carries the pipeline's iteration and timeout settings.
type PipelineConfig struct {
	// MaxIterations bounds the analyze-then-follow-up loop, counting the
	// initial execution pass as iteration one.
	MaxIterations int
	// StepTimeout bounds each graph query.
	StepTimeout time.Duration
	// LLMTimeout bounds each planning, analysis, and synthesis call.
	LLMTimeout time.Duration
}

// DefaultPipelineConfig returns the standard pipeline settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxIterations: 3,
		StepTimeout:   10 * time.Second,
		LLMTimeout:    30 * time.Second,
	}
}

// ValidationError reports a strategy the validator refused to execute.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("strategy failed validation: %s", strings.Join(e.Errors, "; "))
}

// Result is the outcome of one pipeline run.
type Result struct {
	ExecutionID string         `json:"executionId"`
	Response    string         `json:"response"`
	Metadata    ResultMetadata `json:"metadata"`
}

// ResultMetadata describes how the answer was produced.
type ResultMetadata struct {
	Iterations       int      `json:"iterations"`
	ResultsCollected int      `json:"resultsCollected"`
	DurationMs       int64    `json:"durationMs"`
	Completeness     float64  `json:"completeness"`
	Confidence       float64  `json:"confidence"`
	StrategySource   string   `json:"strategySource"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Pipeline drives a query from planning through iterative execution to a
// synthesized answer.
//
// Concurrency model: within one execution pass, steps whose dependencies are
// all satisfied are dispatched concurrently, but their results are applied to
// the context store in completion order by this single goroutine. A step
// whose dependency failed is never dispatched; it gets a synthetic failure
// result instead so analysis sees the full picture.
type Pipeline struct {
	planner     StrategyPlanner
	validator   *strategy.Validator
	analyzer    ResultAnalyzer
	executor    QueryExecutor
	synthesizer Synthesizer
	store       *Store
	config      PipelineConfig
	logger      *slog.Logger
}

// NewPipeline wires the pipeline components together.
func NewPipeline(
	strategyPlanner StrategyPlanner,
	validator *strategy.Validator,
	analyzer ResultAnalyzer,
	executor QueryExecutor,
	synthesizer Synthesizer,
	store *Store,
	config PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxIterations < 1 {
		config.MaxIterations = 1
	}
	return &Pipeline{
		planner:     strategyPlanner,
		validator:   validator,
		analyzer:    analyzer,
		executor:    executor,
		synthesizer: synthesizer,
		store:       store,
		config:      config,
		logger:      logger,
	}
}

// Run answers one user query: plan, validate, optimize, execute with bounded
// follow-up iterations, then synthesize a final response.
func (p *Pipeline) Run(ctx context.Context, userQuery string, user model.UserContext, history []model.ConversationTurn) (*Result, error) {
	started := time.Now()

	planCtx, cancel := context.WithTimeout(ctx, p.config.LLMTimeout)
	strat, err := p.planner.CreateStrategy(planCtx, userQuery, planner.Context{
		User:                user,
		ConversationHistory: history,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("pipeline: planning failed: %w", err)
	}

	validation := p.validator.Validate(&strat)
	if !validation.IsValid {
		return nil, &ValidationError{Errors: validation.Errors}
	}
	strat = p.validator.Optimize(strat, validation)

	executionID := uuid.NewString()
	p.store.Initialize(executionID, strat, user)
	p.logger.Info("execution started",
		"executionId", executionID,
		"steps", len(strat.Steps),
		"complexity", strat.Complexity,
		"source", strat.Metadata.Source)

	succeeded := make(map[int]bool)
	failed := make(map[int]bool)
	pending := strat.Steps

	iterations := 0
	var analyzed strategy.AnalysisResult
	for {
		iterations++
		p.executeWaves(ctx, executionID, pending, user, succeeded, failed)

		collected := p.store.StepResults(executionID)
		analysisCtx, cancel := context.WithTimeout(ctx, p.config.LLMTimeout)
		analyzed = p.analyzer.Analyze(analysisCtx, collected, strat)
		cancel()

		if !analyzed.NeedsFollowUp || iterations >= p.config.MaxIterations {
			break
		}

		followCtx, cancel := context.WithTimeout(ctx, p.config.LLMTimeout)
		followUp := p.analyzer.GenerateFollowUpSteps(followCtx, analyzed, strat, len(strat.Steps)+1)
		cancel()
		if len(followUp) == 0 {
			p.logger.Info("analysis wanted follow-up but produced no steps, stopping",
				"executionId", executionID, "iteration", iterations)
			break
		}

		p.logger.Info("executing follow-up steps",
			"executionId", executionID,
			"iteration", iterations+1,
			"steps", len(followUp),
			"reason", analyzed.Reason)
		strat.Steps = append(strat.Steps, followUp...)
		pending = followUp
	}

	synthCtx, cancel := context.WithTimeout(ctx, p.config.LLMTimeout)
	answer := p.synthesizer.Synthesize(synthCtx, userQuery, executionID, strat, analyzed)
	cancel()

	p.store.AddConversationContext(executionID, model.ConversationTurn{
		Query:     userQuery,
		Response:  answer,
		Timestamp: time.Now(),
	})
	p.store.FinalizeExecution(executionID)

	resultsCollected := 0
	for _, r := range p.store.StepResults(executionID) {
		if r.Success {
			resultsCollected += len(r.Results.Results)
		}
	}

	return &Result{
		ExecutionID: executionID,
		Response:    answer,
		Metadata: ResultMetadata{
			Iterations:       iterations,
			ResultsCollected: resultsCollected,
			DurationMs:       time.Since(started).Milliseconds(),
			Completeness:     analyzed.Completeness,
			Confidence:       analyzed.Confidence,
			StrategySource:   strat.Metadata.Source,
			Warnings:         validation.Warnings,
		},
	}, nil
}

// executeWaves schedules one batch of steps. Each wave dispatches every step
// whose dependencies have all succeeded; steps with a failed dependency get a
// synthetic failure and are never dispatched. Results are applied to the
// store in completion order, here, on the scheduling goroutine.
func (p *Pipeline) executeWaves(ctx context.Context, executionID string, steps []strategy.Step, user model.UserContext, succeeded, failed map[int]bool) {
	pending := append([]strategy.Step(nil), steps...)

	for len(pending) > 0 {
		var ready, waiting []strategy.Step

		for _, step := range pending {
			switch p.dependencyState(step, succeeded, failed) {
			case depsSatisfied:
				ready = append(ready, step)
			case depsFailed:
				p.recordSyntheticFailure(executionID, step, failed,
					"skipped: dependency step failed")
			default:
				waiting = append(waiting, step)
			}
		}

		if len(ready) == 0 {
			// Validation rejects forward and circular references, so this
			// only fires when waiting steps depend on steps that were never
			// scheduled at all.
			for _, step := range waiting {
				p.recordSyntheticFailure(executionID, step, failed,
					"skipped: dependency was never executed")
			}
			return
		}

		type outcome struct {
			step   strategy.Step
			result strategy.StepResult
		}
		done := make(chan outcome, len(ready))
		for _, step := range ready {
			go func(step strategy.Step) {
				done <- outcome{step: step, result: p.runStep(ctx, step, user)}
			}(step)
		}
		for range ready {
			o := <-done
			p.store.UpdateStepResult(executionID, o.step.StepNumber, o.result)
			if o.result.Success {
				succeeded[o.step.StepNumber] = true
			} else {
				failed[o.step.StepNumber] = true
				p.logger.Warn("step failed",
					"executionId", executionID,
					"step", o.step.StepNumber,
					"queryType", o.step.QueryType.String(),
					"error", o.result.Error)
			}
		}

		pending = waiting
	}
}

type depState int

const (
	depsSatisfied depState = iota
	depsWaiting
	depsFailed
)

func (p *Pipeline) dependencyState(step strategy.Step, succeeded, failed map[int]bool) depState {
	for _, dep := range step.Dependencies {
		if failed[dep] {
			return depsFailed
		}
		if !succeeded[dep] {
			return depsWaiting
		}
	}
	return depsSatisfied
}

func (p *Pipeline) recordSyntheticFailure(executionID string, step strategy.Step, failed map[int]bool, reason string) {
	failed[step.StepNumber] = true
	p.store.UpdateStepResult(executionID, step.StepNumber, strategy.StepResult{
		StepNumber: step.StepNumber,
		QueryType:  step.QueryType,
		Success:    false,
		Parameters: step.Parameters,
		Error:      reason,
		Timestamp:  time.Now(),
	})
}

// runStep executes one graph query under the step timeout. Errors become
// failed results; they never abort the execution.
func (p *Pipeline) runStep(ctx context.Context, step strategy.Step, user model.UserContext) strategy.StepResult {
	stepCtx, cancel := context.WithTimeout(ctx, p.config.StepTimeout)
	defer cancel()

	result := strategy.StepResult{
		StepNumber: step.StepNumber,
		QueryType:  step.QueryType,
		Parameters: step.Parameters,
		Timestamp:  time.Now(),
	}

	results, err := p.executor.ExecuteQuery(stepCtx, step.QueryType, step.Parameters, user)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Results = results
	return result
}
