// SQLite-backed conversation and catalog run storage.
//
// Thread-safe via sql.DB's built-in connection pooling.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/prepwise/glance/catalog"
	"github.com/prepwise/glance/model"
)

// SqliteStorage implements ConversationStorage and the catalog run log on a
// SQLite database file.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
			UNIQUE(session_id, turn_index)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_session
		ON turns(session_id, turn_index);

		CREATE TABLE IF NOT EXISTS catalog_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_email TEXT NOT NULL,
			events_fetched INTEGER NOT NULL,
			meetings_created INTEGER NOT NULL,
			people_created INTEGER NOT NULL,
			events_skipped INTEGER NOT NULL,
			errors TEXT NOT NULL DEFAULT '[]',
			duration_ms INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_catalog_runs_user
		ON catalog_runs(user_email, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SqliteStorage) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (session_id) VALUES (?)",
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	return nil
}

// Save replaces the stored history for a session.
func (s *SqliteStorage) Save(ctx context.Context, sessionID string, history []model.ConversationTurn) error {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after Commit.
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear old turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO turns (session_id, turn_index, query, response, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, turn := range history {
		_, err = stmt.ExecContext(ctx, sessionID, i, turn.Query, turn.Response, turn.Timestamp.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = datetime('now') WHERE session_id = ?",
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Load returns the stored history for a session, oldest first.
// Returns an empty slice if the session doesn't exist.
func (s *SqliteStorage) Load(ctx context.Context, sessionID string) ([]model.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT query, response, created_at FROM turns WHERE session_id = ? ORDER BY turn_index ASC",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []model.ConversationTurn{} // Start with empty slice, not nil
	for rows.Next() {
		var turn model.ConversationTurn
		var createdAt int64
		if err := rows.Scan(&turn.Query, &turn.Response, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Timestamp = time.Unix(createdAt, 0)
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	return turns, nil
}

// Delete removes a session and its history.
func (s *SqliteStorage) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE session_id = ?",
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Exists checks if a session exists.
func (s *SqliteStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE session_id = ?",
		sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}

	return count > 0, nil
}

// RecordCatalogRun appends one catalog run to the run log. Per-event errors
// are stored as a JSON array alongside the counts.
func (s *SqliteStorage) RecordCatalogRun(ctx context.Context, report catalog.RunReport) error {
	runErrors := report.Errors
	if runErrors == nil {
		runErrors = []catalog.RunError{}
	}
	encodedErrors, err := json.Marshal(runErrors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_runs
		(user_email, events_fetched, meetings_created, people_created, events_skipped, errors, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.UserEmail,
		report.EventsFetched,
		report.MeetingsCreated,
		report.PeopleCreated,
		report.EventsSkipped,
		string(encodedErrors),
		report.DurationMs,
		report.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record catalog run: %w", err)
	}
	return nil
}

// RecentCatalogRuns returns the most recent runs for a user, newest first.
func (s *SqliteStorage) RecentCatalogRuns(ctx context.Context, userEmail string, limit int) ([]catalog.RunReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_email, events_fetched, meetings_created, people_created, events_skipped, errors, duration_ms, started_at
		FROM catalog_runs
		WHERE user_email = ?
		ORDER BY started_at DESC
		LIMIT ?`,
		userEmail, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog runs: %w", err)
	}
	defer rows.Close()

	reports := []catalog.RunReport{}
	for rows.Next() {
		var r catalog.RunReport
		var startedAt int64
		var encodedErrors string
		err := rows.Scan(
			&r.UserEmail,
			&r.EventsFetched,
			&r.MeetingsCreated,
			&r.PeopleCreated,
			&r.EventsSkipped,
			&encodedErrors,
			&r.DurationMs,
			&startedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog run: %w", err)
		}
		if err := json.Unmarshal([]byte(encodedErrors), &r.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode run errors: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		r.Duration = time.Duration(r.DurationMs) * time.Millisecond
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog runs: %w", err)
	}

	return reports, nil
}

// Verify SqliteStorage implements the storage interfaces
var _ ConversationStorage = (*SqliteStorage)(nil)
var _ catalog.RunLog = (*SqliteStorage)(nil)
