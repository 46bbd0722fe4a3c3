package storage

import (
	"context"
	"testing"
	"time"

	"github.com/prepwise/glance/catalog"
	"github.com/prepwise/glance/model"
)

func newTestDB(t *testing.T) *SqliteStorage {
	t.Helper()
	db, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSqliteSaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	turns := []model.ConversationTurn{
		{Query: "what meetings today?", Response: "two standups", Timestamp: time.Now()},
		{Query: "who organizes them?", Response: "Alice", Timestamp: time.Now()},
	}

	if err := db.Save(ctx, "session-1", turns); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := db.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(loaded))
	}
	if loaded[0].Query != "what meetings today?" {
		t.Errorf("unexpected first turn: %+v", loaded[0])
	}
	if loaded[1].Response != "Alice" {
		t.Errorf("unexpected second turn: %+v", loaded[1])
	}
}

func TestSqliteSaveReplacesHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, "s", []model.ConversationTurn{{Query: "old", Response: "old", Timestamp: time.Now()}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := db.Save(ctx, "s", []model.ConversationTurn{{Query: "new", Response: "new", Timestamp: time.Now()}}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := db.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Query != "new" {
		t.Errorf("expected replaced history, got %+v", loaded)
	}
}

func TestSqliteLoadUnknownSession(t *testing.T) {
	db := newTestDB(t)

	loaded, err := db.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty history, got %d turns", len(loaded))
	}
}

func TestSqliteDeleteSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, "s", []model.ConversationTurn{{Query: "q", Response: "r", Timestamp: time.Now()}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := db.Delete(ctx, "s"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err := db.Exists(ctx, "s")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected session to be gone")
	}
}

func TestSqliteCatalogRunLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	report := catalog.RunReport{
		UserEmail:       "alice@corp.com",
		EventsFetched:   10,
		MeetingsCreated: 8,
		PeopleCreated:   5,
		EventsSkipped:   2,
		Errors: []catalog.RunError{
			{EventID: "evt-9", Message: "upserting meeting: constraint violation"},
			{EventID: "", Message: "event has no id"},
		},
		DurationMs: 1200,
		StartedAt:  time.Now().Truncate(time.Second),
	}
	if err := db.RecordCatalogRun(ctx, report); err != nil {
		t.Fatalf("RecordCatalogRun failed: %v", err)
	}

	runs, err := db.RecentCatalogRuns(ctx, "alice@corp.com", 10)
	if err != nil {
		t.Fatalf("RecentCatalogRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].MeetingsCreated != 8 || runs[0].EventsSkipped != 2 {
		t.Errorf("unexpected run: %+v", runs[0])
	}
	if len(runs[0].Errors) != 2 || runs[0].Errors[0].EventID != "evt-9" {
		t.Errorf("expected persisted run errors, got %+v", runs[0].Errors)
	}
	if !runs[0].StartedAt.Equal(report.StartedAt) {
		t.Errorf("expected started_at %v, got %v", report.StartedAt, runs[0].StartedAt)
	}

	other, err := db.RecentCatalogRuns(ctx, "bob@corp.com", 10)
	if err != nil {
		t.Fatalf("RecentCatalogRuns failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no runs for other user, got %d", len(other))
	}
}
