package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewJobStore(db)
}

func TestJobStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "import", "magnus", "lichess")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty job id")
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.JobType != "import" || job.Status != "pending" || job.Username != "magnus" {
		t.Errorf("unexpected job: %+v", job)
	}
}

func TestJobStore_GetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJobStore_UpdateStatusAndProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "analysis", "", "")
	if err := s.UpdateStatus(ctx, id, "running", ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := s.UpdateProgress(ctx, id, 7, 20); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != "running" || job.ProgressCurrent != 7 || job.ProgressTotal != 20 {
		t.Errorf("updates not applied: %+v", job)
	}

	if err := s.UpdateStatus(ctx, "missing", "failed", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestJobStore_ListFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.Create(ctx, "import", "", "")
	time.Sleep(5 * time.Millisecond)
	second, _ := s.Create(ctx, "analysis", "", "")
	s.UpdateStatus(ctx, second, "running", "")

	all, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}
	if all[0].ID != second || all[1].ID != first {
		t.Errorf("expected newest first, got %s then %s", all[0].ID, all[1].ID)
	}

	running, err := s.List(ctx, ListFilter{JobType: "analysis", Status: "running"})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(running) != 1 || running[0].ID != second {
		t.Errorf("filter missed: %+v", running)
	}

	limited, _ := s.List(ctx, ListFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit ignored, got %d rows", len(limited))
	}
}

func TestJobStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "sync", "", "")
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected job gone, got %v", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should report not found, got %v", err)
	}
}
