// Package execution runs validated strategies and tracks their state.
//
// The Store owns one ExecutionContext per in-flight query. Contexts are
// exclusively owned by the pipeline invocation that created them; the only
// cross-request interaction is the age-based eviction sweep, so callers must
// treat the store as not durable and tolerate a context disappearing
// underneath them.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prepwise/glance/analysis"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// Status is an execution context's lifecycle state.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusRunning     Status = "running"
	StatusFinalized   Status = "finalized"
)

// maxConversationHistory bounds per-context conversation history (FIFO).
const maxConversationHistory = 10

// EntityKind selects a collection from the entity cache.
type EntityKind string

const (
	EntityPeople    EntityKind = "people"
	EntityMeetings  EntityKind = "meetings"
	EntityDocuments EntityKind = "documents"
	EntityTopics    EntityKind = "topics"
)

// executionContext is the per-query mutable state. All access goes through
// the Store, which serializes writes per context: step execution may be
// parallel, but results are applied here in completion order by one writer.
type executionContext struct {
	mu sync.Mutex

	id          string
	strategy    strategy.Strategy
	user        model.UserContext
	status      Status
	startedAt   time.Time
	finalizedAt time.Time

	stepResults  map[int]strategy.StepResult
	entities     *analysis.Entities
	intermediate map[string]any
	history      []model.ConversationTurn
}

// StoreConfig holds the store's eviction settings.
type StoreConfig struct {
	// MaxContextAge is how long a context survives after finalization
	// (or after start, if it was abandoned without finalization).
	MaxContextAge time.Duration
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration
}

// DefaultStoreConfig returns the standard eviction settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxContextAge: 30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Statistics summarizes the store for observability endpoints.
type Statistics struct {
	Total            int     `json:"total"`
	Active           int     `json:"active"`
	Finalized        int     `json:"finalized"`
	AvgStepsPerRun   float64 `json:"avgStepsPerRun"`
	AvgExecutionTime float64 `json:"avgExecutionTimeMs"`
}

// Store holds all live execution contexts.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*executionContext
	config   StoreConfig
	logger   *slog.Logger
	now      func() time.Time // test seam
}

// NewStore creates an empty context store.
func NewStore(config StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		contexts: make(map[string]*executionContext),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Initialize creates a context for a new execution.
func (s *Store) Initialize(executionID string, strat strategy.Strategy, user model.UserContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[executionID] = &executionContext{
		id:           executionID,
		strategy:     strat,
		user:         user,
		status:       StatusInitialized,
		startedAt:    s.now(),
		stepResults:  make(map[int]strategy.StepResult),
		entities:     analysis.NewEntities(),
		intermediate: make(map[string]any),
	}
}

// get returns the context, or nil with a logged warning. Operations against
// an evicted or unknown execution id are no-ops by contract, never errors:
// the pipeline must tolerate a context that was already cleaned up.
func (s *Store) get(executionID, op string) *executionContext {
	s.mu.RLock()
	ec := s.contexts[executionID]
	s.mu.RUnlock()
	if ec == nil {
		s.logger.Warn("operation on unknown execution context",
			"executionId", executionID, "op", op)
	}
	return ec
}

// UpdateStepResult records one step's outcome and merges its entities into
// the cache. Entity extraction is idempotent under re-delivery: collections
// are keyed by natural id, so applying the same result twice cannot grow
// them.
func (s *Store) UpdateStepResult(executionID string, stepNumber int, result strategy.StepResult) {
	ec := s.get(executionID, "UpdateStepResult")
	if ec == nil {
		return
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.status = StatusRunning
	ec.stepResults[stepNumber] = result

	if result.Success {
		ec.entities.MergeResult(result)
		ec.intermediate[fmt.Sprintf("step_%d", stepNumber)] = result.Results.Results
		s.updateMeetingConventions(ec)
	}
}

// updateMeetingConventions maintains the conventional intermediate keys that
// dependent steps read: the full id list and the most recent meetings.
func (s *Store) updateMeetingConventions(ec *executionContext) {
	if len(ec.entities.Meetings) == 0 {
		return
	}
	ids := make([]string, 0, len(ec.entities.Meetings))
	latest := make([]model.Meeting, 0, len(ec.entities.Meetings))
	for id, meeting := range ec.entities.Meetings {
		ids = append(ids, id)
		latest = append(latest, meeting)
	}
	ec.intermediate["meeting_ids"] = ids
	ec.intermediate["latest_meetings"] = latest
}

// GetStepResult returns a recorded step result.
func (s *Store) GetStepResult(executionID string, stepNumber int) (strategy.StepResult, bool) {
	ec := s.get(executionID, "GetStepResult")
	if ec == nil {
		return strategy.StepResult{}, false
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	result, ok := ec.stepResults[stepNumber]
	return result, ok
}

// StepResults returns all recorded results ordered by step number presence.
func (s *Store) StepResults(executionID string) []strategy.StepResult {
	ec := s.get(executionID, "StepResults")
	if ec == nil {
		return nil
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]strategy.StepResult, 0, len(ec.stepResults))
	for _, r := range ec.stepResults {
		out = append(out, r)
	}
	return out
}

// CachedEntities returns a snapshot of one entity collection.
func (s *Store) CachedEntities(executionID string, kind EntityKind) []any {
	ec := s.get(executionID, "CachedEntities")
	if ec == nil {
		return nil
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()

	switch kind {
	case EntityPeople:
		out := make([]any, 0, len(ec.entities.People))
		for _, p := range ec.entities.People {
			out = append(out, p)
		}
		return out
	case EntityMeetings:
		out := make([]any, 0, len(ec.entities.Meetings))
		for _, m := range ec.entities.Meetings {
			out = append(out, m)
		}
		return out
	case EntityDocuments:
		out := make([]any, 0, len(ec.entities.Documents))
		for _, d := range ec.entities.Documents {
			out = append(out, d)
		}
		return out
	case EntityTopics:
		out := make([]any, 0, len(ec.entities.Topics))
		for topic := range ec.entities.Topics {
			out = append(out, topic)
		}
		return out
	}
	return nil
}

// Entities returns a copy-free view of the entity aggregate for synthesis.
// Callers must not mutate it after the execution finishes.
func (s *Store) Entities(executionID string) (*analysis.Entities, bool) {
	ec := s.get(executionID, "Entities")
	if ec == nil {
		return nil, false
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.entities, true
}

// GetIntermediateData returns one conventional intermediate value
// (step_<n>, meeting_ids, latest_meetings, ...).
func (s *Store) GetIntermediateData(executionID, key string) (any, bool) {
	ec := s.get(executionID, "GetIntermediateData")
	if ec == nil {
		return nil, false
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	v, ok := ec.intermediate[key]
	return v, ok
}

// AddConversationContext appends a turn to the context's bounded history,
// dropping the oldest entry past the cap.
func (s *Store) AddConversationContext(executionID string, turn model.ConversationTurn) {
	ec := s.get(executionID, "AddConversationContext")
	if ec == nil {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.history = append(ec.history, turn)
	if len(ec.history) > maxConversationHistory {
		ec.history = ec.history[len(ec.history)-maxConversationHistory:]
	}
}

// ConversationHistory returns a copy of the context's history, oldest first.
func (s *Store) ConversationHistory(executionID string) []model.ConversationTurn {
	ec := s.get(executionID, "ConversationHistory")
	if ec == nil {
		return nil
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]model.ConversationTurn(nil), ec.history...)
}

// FinalizeExecution marks the context finished (success or exhaustion).
func (s *Store) FinalizeExecution(executionID string) {
	ec := s.get(executionID, "FinalizeExecution")
	if ec == nil {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.status = StatusFinalized
	ec.finalizedAt = s.now()
}

// CleanupOldContexts removes contexts older than MaxContextAge: finalized
// ones aged from finalization, abandoned ones aged from start. Returns the
// number removed.
func (s *Store) CleanupOldContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, ec := range s.contexts {
		ec.mu.Lock()
		expired := false
		if ec.status == StatusFinalized {
			expired = now.Sub(ec.finalizedAt) > s.config.MaxContextAge
		} else {
			expired = now.Sub(ec.startedAt) > s.config.MaxContextAge
			if expired {
				s.logger.Warn("evicting abandoned execution context", "executionId", id)
			}
		}
		ec.mu.Unlock()

		if expired {
			delete(s.contexts, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs CleanupOldContexts on the configured interval until the
// context is cancelled.
func (s *Store) StartSweeper(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.CleanupOldContexts(); removed > 0 {
					s.logger.Info("swept old execution contexts", "removed", removed)
				}
			}
		}
	}()
}

// GetStatistics reports totals and averages. Averages cover finalized
// contexts only.
func (s *Store) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{Total: len(s.contexts)}
	var totalSteps int
	var totalDuration time.Duration

	for _, ec := range s.contexts {
		ec.mu.Lock()
		if ec.status == StatusFinalized {
			stats.Finalized++
			totalSteps += len(ec.stepResults)
			totalDuration += ec.finalizedAt.Sub(ec.startedAt)
		} else {
			stats.Active++
		}
		ec.mu.Unlock()
	}

	if stats.Finalized > 0 {
		stats.AvgStepsPerRun = float64(totalSteps) / float64(stats.Finalized)
		stats.AvgExecutionTime = float64(totalDuration.Milliseconds()) / float64(stats.Finalized)
	}
	return stats
}
