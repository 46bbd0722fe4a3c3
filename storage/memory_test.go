package storage

import (
	"context"
	"testing"
	"time"

	"github.com/prepwise/glance/model"
)

func TestInMemoryStorageSaveAndLoad(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	turns := []model.ConversationTurn{
		{Query: "hello", Response: "hi there", Timestamp: time.Now()},
		{Query: "next", Response: "sure", Timestamp: time.Now()},
	}

	if err := storage.Save(ctx, "test-session", turns); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("expected 2 turns, got %d", len(loaded))
	}
	if loaded[0].Query != "hello" {
		t.Errorf("expected 'hello', got '%s'", loaded[0].Query)
	}
}

func TestInMemoryStorageLoadNonexistentSession(t *testing.T) {
	storage := NewInMemoryStorage()

	loaded, err := storage.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty slice, got %d turns", len(loaded))
	}
}

func TestInMemoryStorageReturnsCopies(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	turns := []model.ConversationTurn{{Query: "original", Response: "r", Timestamp: time.Now()}}
	if err := storage.Save(ctx, "s", turns); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, _ := storage.Load(ctx, "s")
	loaded[0].Query = "mutated"

	again, _ := storage.Load(ctx, "s")
	if again[0].Query != "original" {
		t.Error("Load must return a copy, not the stored slice")
	}
}

func TestInMemoryStorageListsNewestFirst(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	turn := []model.ConversationTurn{{Query: "q", Response: "r", Timestamp: time.Now()}}
	for _, id := range []string{"oldest", "middle", "newest"} {
		if err := storage.Save(ctx, id, turn); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	ids, err := storage.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != "newest" || ids[2] != "oldest" {
		t.Errorf("expected newest-first ordering, got %v", ids)
	}
}

func TestInMemoryStorageDeleteSession(t *testing.T) {
	storage := NewInMemoryStorage()
	ctx := context.Background()

	if err := storage.Save(ctx, "s", []model.ConversationTurn{{Query: "q", Response: "r", Timestamp: time.Now()}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := storage.Delete(ctx, "s"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err := storage.Exists(ctx, "s")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected session to be deleted")
	}
}
