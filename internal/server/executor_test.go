package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/rooksync/internal/store"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// waitForStatus polls the store until the job reaches status or the
// deadline passes.
func waitForStatus(t *testing.T, svc *JobService, id, status string) *store.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Store().Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := svc.Store().Get(context.Background(), id)
	t.Fatalf("job %s never reached %s, stuck at %s", id, status, job.Status)
	return nil
}

func startExecutor(t *testing.T, svc *JobService, registry *Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go NewExecutor(svc, registry).Run(ctx)
	// Give the executor a moment to subscribe before requests flow.
	time.Sleep(10 * time.Millisecond)
}

func TestExecutor_RunsRegisteredRunner(t *testing.T) {
	svc, _ := newTestService(t)
	registry := NewRegistry()
	registry.Register("sync", func(ctx context.Context, job *store.Job, progress func(current, total int)) error {
		progress(3, 3)
		return nil
	})
	startExecutor(t, svc, registry)

	id, err := svc.Request(context.Background(), "sync", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	job := waitForStatus(t, svc, id, protocol.StatusCompleted)
	if job.ProgressCurrent != 3 || job.ProgressTotal != 3 {
		t.Errorf("expected 3/3 progress, got %d/%d", job.ProgressCurrent, job.ProgressTotal)
	}
}

func TestExecutor_RunnerErrorFailsJob(t *testing.T) {
	svc, _ := newTestService(t)
	registry := NewRegistry()
	registry.Register("analysis", func(context.Context, *store.Job, func(int, int)) error {
		return errors.New("engine crashed")
	})
	startExecutor(t, svc, registry)

	id, _ := svc.Request(context.Background(), "analysis", "", "")

	job := waitForStatus(t, svc, id, protocol.StatusFailed)
	if job.ErrorMessage != "engine crashed" {
		t.Errorf("expected the runner's error, got %q", job.ErrorMessage)
	}
}

func TestExecutor_ShutdownFailsRunningJob(t *testing.T) {
	svc, _ := newTestService(t)
	registry := NewRegistry()
	registry.Register("import", func(ctx context.Context, _ *store.Job, _ func(int, int)) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go NewExecutor(svc, registry).Run(ctx)
	time.Sleep(10 * time.Millisecond)

	id, err := svc.Request(context.Background(), "import", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitForStatus(t, svc, id, protocol.StatusRunning)

	cancel()

	// The cancelled runner's failure must still be recorded, not leave
	// the row stuck at running.
	job := waitForStatus(t, svc, id, protocol.StatusFailed)
	if job.ErrorMessage != context.Canceled.Error() {
		t.Errorf("expected the cancellation error, got %q", job.ErrorMessage)
	}
}

func TestExecutor_MissingRunnerFailsJob(t *testing.T) {
	svc, _ := newTestService(t)
	startExecutor(t, svc, NewRegistry())

	id, _ := svc.Request(context.Background(), "backfill_eco", "", "")

	job := waitForStatus(t, svc, id, protocol.StatusFailed)
	if job.ErrorMessage == "" {
		t.Error("expected an error message naming the missing runner")
	}
}
