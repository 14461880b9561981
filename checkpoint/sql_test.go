package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/ctxpg/ctxpg/types"
)

// Integration tests for the database/sql store. Skipped unless DATABASE_URL
// is set.

func newSQLStore(t *testing.T) (*SQLStore, context.Context) {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	store := NewSQLStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE ctxpg_checkpoints"); err != nil {
		t.Fatalf("Failed to truncate ctxpg_checkpoints: %v", err)
	}

	return store, ctx
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store, ctx := newSQLStore(t)

	cp := New("thread-1", 1, []*types.Message{
		types.NewTextMessage(types.RoleUser, "hello"),
		types.NewTextMessage(types.RoleAssistant, "hi there"),
	})

	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "thread-1", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != cp.ID {
		t.Errorf("ID = %s, want %s", loaded.ID, cp.ID)
	}
	if len(loaded.History) != 2 || loaded.History[0].Text() != "hello" {
		t.Errorf("history not preserved: %+v", loaded.History)
	}
}

func TestSQLStoreIdempotentSaveAndLatest(t *testing.T) {
	store, ctx := newSQLStore(t)

	for _, step := range []int{2, 1} {
		if err := store.Save(ctx, New("thread-1", step, []*types.Message{
			types.NewTextMessage(types.RoleUser, "msg"),
		})); err != nil {
			t.Fatalf("Save(%d) failed: %v", step, err)
		}
	}

	// A retried save for an existing step is a no-op.
	if err := store.Save(ctx, New("thread-1", 2, nil)); err != nil {
		t.Fatalf("duplicate Save must succeed: %v", err)
	}

	latest, err := store.LoadLatest(ctx, "thread-1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if latest.Step != 2 {
		t.Errorf("latest step = %d, want 2", latest.Step)
	}

	list, err := store.List(ctx, "thread-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List length = %d, want 2", len(list))
	}
}

func TestSQLStoreNotFound(t *testing.T) {
	store, ctx := newSQLStore(t)

	if _, err := store.Load(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load = %v, want ErrNotFound", err)
	}
	if _, err := store.LoadLatest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadLatest = %v, want ErrNotFound", err)
	}
}
