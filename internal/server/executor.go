package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/rooksync/internal/store"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// RunnerFunc does the actual work of one job type. It reports progress
// through the callback and returns an error to fail the job. The
// business logic behind each runner (fetching games, driving an engine)
// lives outside this package; runners are injected.
type RunnerFunc func(ctx context.Context, job *store.Job, progress func(current, total int)) error

// Registry maps a job type to its runner.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]RunnerFunc
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]RunnerFunc)}
}

// Register installs the runner for a job type, replacing any previous one.
func (r *Registry) Register(jobType string, fn RunnerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[jobType] = fn
}

// Get returns the runner for a job type.
func (r *Registry) Get(jobType string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.runners[jobType]
	return fn, ok
}

// defaultConcurrency caps how many jobs run at once. Engine analysis
// and imports are both IO/CPU heavy; more parallelism just thrashes.
const defaultConcurrency = 2

// Executor listens for execution requests on the bus and runs the
// registered runner for each, driving the job's status transitions.
type Executor struct {
	svc      *JobService
	registry *Registry
	slots    *semaphore.Weighted
}

func NewExecutor(svc *JobService, registry *Registry) *Executor {
	return &Executor{
		svc:      svc,
		registry: registry,
		slots:    semaphore.NewWeighted(defaultConcurrency),
	}
}

// Run blocks consuming execution requests until ctx is cancelled.
// Each job runs in its own goroutine, bounded by the concurrency cap.
func (e *Executor) Run(ctx context.Context) error {
	sub := e.svc.bus.Subscribe(protocol.TopicJobExecutionRequested)
	defer e.svc.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-sub.C:
			if evt == nil {
				continue
			}
			d, err := evt.CreatedData()
			if err != nil {
				slog.Error("executor: bad execution request", "error", err)
				continue
			}
			go e.execute(ctx, d.JobID)
		}
	}
}

func (e *Executor) execute(ctx context.Context, jobID string) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.slots.Release(1)

	job, err := e.svc.jobs.Get(ctx, jobID)
	if err != nil {
		slog.Error("executor: job lookup failed", "job_id", jobID, "error", err)
		return
	}

	tracer := otel.Tracer("rooksync/executor")
	ctx, span := tracer.Start(ctx, "job.execute")
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.JobType),
	)
	defer span.End()

	// Terminal transitions use a detached context: when the runner is
	// cancelled by shutdown, the failed status must still reach the
	// store, or the row stays running forever.
	term := context.WithoutCancel(ctx)

	runner, ok := e.registry.Get(job.JobType)
	if !ok {
		msg := fmt.Sprintf("no runner registered for job type %q", job.JobType)
		span.SetStatus(codes.Error, msg)
		if err := e.svc.Fail(term, job.ID, job.JobType, msg); err != nil {
			slog.Error("executor: fail transition failed", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := e.svc.SetRunning(ctx, job.ID, job.JobType); err != nil {
		slog.Error("executor: running transition failed", "job_id", job.ID, "error", err)
		return
	}

	progress := func(current, total int) {
		if err := e.svc.UpdateProgress(ctx, job.ID, job.JobType, current, total); err != nil {
			slog.Warn("executor: progress update failed", "job_id", job.ID, "error", err)
		}
	}

	if err := runner(ctx, job, progress); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := e.svc.Fail(term, job.ID, job.JobType, err.Error()); ferr != nil {
			slog.Error("executor: fail transition failed", "job_id", job.ID, "error", ferr)
		}
		return
	}

	if err := e.svc.Complete(term, job.ID, job.JobType); err != nil {
		slog.Error("executor: complete transition failed", "job_id", job.ID, "error", err)
	}
}
