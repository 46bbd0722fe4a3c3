// In-memory conversation storage, used in tests and in deployments that do
// not care about sessions surviving a restart. Mirrors the SQLite
// implementation's contract: Load copies, ListSessions orders newest first.

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prepwise/glance/model"
)

type memorySession struct {
	turns     []model.ConversationTurn
	updatedAt time.Time
}

// InMemoryStorage keeps sessions in a map guarded by a RWMutex.
type InMemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{sessions: make(map[string]memorySession)}
}

// Save replaces the stored history for a session. The slice is copied, so
// callers may keep appending to theirs.
func (s *InMemoryStorage) Save(ctx context.Context, sessionID string, history []model.ConversationTurn) error {
	copied := make([]model.ConversationTurn, len(history))
	copy(copied, history)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = memorySession{turns: copied, updatedAt: time.Now()}
	return nil
}

// Load returns a copy of the session's history, oldest first, or an empty
// slice for an unknown session.
func (s *InMemoryStorage) Load(ctx context.Context, sessionID string) ([]model.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return []model.ConversationTurn{}, nil
	}
	copied := make([]model.ConversationTurn, len(session.turns))
	copy(copied, session.turns)
	return copied, nil
}

// Delete removes a session and its history.
func (s *InMemoryStorage) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// ListSessions returns all session IDs, most recently updated first.
func (s *InMemoryStorage) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.sessions[ids[i]].updatedAt.After(s.sessions[ids[j]].updatedAt)
	})
	return ids, nil
}

// Exists reports whether a session has stored history.
func (s *InMemoryStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

var _ ConversationStorage = (*InMemoryStorage)(nil)
