// Package storage persists conversation sessions and catalog run history.
//
// Information Hiding:
// - Persistence backend hidden behind ConversationStorage
// - Schema and migration details encapsulated in the SQLite implementation
// - Thread-safety is each implementation's own concern

package storage

import (
	"context"

	"github.com/prepwise/glance/model"
)

// ConversationStorage persists the turn history of conversation sessions.
type ConversationStorage interface {
	// Save replaces the stored history for a session.
	Save(ctx context.Context, sessionID string, history []model.ConversationTurn) error

	// Load returns the stored history for a session, oldest first.
	// Returns an empty slice for an unknown session.
	Load(ctx context.Context, sessionID string) ([]model.ConversationTurn, error)

	// Delete removes a session and its history.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions returns all known session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists reports whether a session is known.
	Exists(ctx context.Context, sessionID string) (bool, error)
}
