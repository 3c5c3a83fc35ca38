package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/rooksync/internal/store"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// progressPublishInterval caps how often one job's progress hits the
// wire. The store still records every update.
const progressPublishInterval = 200 * time.Millisecond

// JobService owns the job lifecycle: every status/progress mutation
// goes through here so the matching events always reach the bus.
type JobService struct {
	jobs *store.JobStore
	bus  *Bus

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // job id → progress rate limiter
}

func NewJobService(jobs *store.JobStore, bus *Bus) *JobService {
	return &JobService{
		jobs:     jobs,
		bus:      bus,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Store returns the underlying job store (read paths for HTTP handlers).
func (s *JobService) Store() *store.JobStore { return s.jobs }

// Create inserts a pending job and announces it.
func (s *JobService) Create(ctx context.Context, jobType, username, source string) (string, error) {
	id, err := s.jobs.Create(ctx, jobType, username, source)
	if err != nil {
		return "", err
	}
	s.publish(protocol.TopicJobCreated, protocol.CreatedData{JobID: id, JobType: jobType})
	slog.Info("job created", "job_id", id, "job_type", jobType)
	return id, nil
}

// Request creates a job and asks the executor to run it.
func (s *JobService) Request(ctx context.Context, jobType, username, source string) (string, error) {
	id, err := s.Create(ctx, jobType, username, source)
	if err != nil {
		return "", err
	}
	s.publish(protocol.TopicJobExecutionRequested, protocol.CreatedData{JobID: id, JobType: jobType})
	return id, nil
}

// SetRunning transitions a job to running.
func (s *JobService) SetRunning(ctx context.Context, id, jobType string) error {
	if err := s.jobs.UpdateStatus(ctx, id, protocol.StatusRunning, ""); err != nil {
		return fmt.Errorf("set running: %w", err)
	}
	s.publishStatus(id, jobType, protocol.StatusRunning, "")
	return nil
}

// UpdateProgress records progress and publishes it, rate-limited per
// job so a hot loop cannot flood the channel.
func (s *JobService) UpdateProgress(ctx context.Context, id, jobType string, current, total int) error {
	if err := s.jobs.UpdateProgress(ctx, id, current, total); err != nil {
		return err
	}
	if !s.limiter(id).Allow() {
		return nil
	}
	evt, err := protocol.NewProgressEvent(id, jobType, current, total)
	if err != nil {
		return err
	}
	s.bus.Publish(evt)
	return nil
}

// Complete transitions a job to completed and announces the terminal
// state, including a stats refresh trigger.
func (s *JobService) Complete(ctx context.Context, id, jobType string) error {
	if err := s.jobs.UpdateStatus(ctx, id, protocol.StatusCompleted, ""); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	s.dropLimiter(id)
	s.publishStatus(id, jobType, protocol.StatusCompleted, "")
	s.publishTerminal(protocol.TopicJobCompleted, id, jobType, "")
	slog.Info("job completed", "job_id", id, "job_type", jobType)
	return nil
}

// Fail transitions a job to failed with the given message.
func (s *JobService) Fail(ctx context.Context, id, jobType, message string) error {
	if err := s.jobs.UpdateStatus(ctx, id, protocol.StatusFailed, message); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	s.dropLimiter(id)
	s.publishStatus(id, jobType, protocol.StatusFailed, message)
	s.publishTerminal(protocol.TopicJobFailed, id, jobType, message)
	slog.Warn("job failed", "job_id", id, "job_type", jobType, "error", message)
	return nil
}

func (s *JobService) publishStatus(id, jobType, status, errorMessage string) {
	evt, err := protocol.NewStatusEvent(id, jobType, status, errorMessage)
	if err != nil {
		slog.Error("job service: build status event failed", "error", err)
		return
	}
	s.bus.Publish(evt)
}

func (s *JobService) publishTerminal(topic, id, jobType, errorMessage string) {
	s.publish(topic, protocol.StatusData{
		JobID:        id,
		JobType:      jobType,
		Status:       topicStatus(topic),
		ErrorMessage: errorMessage,
	})
	s.publish(protocol.TopicStatsUpdated, map[string]string{"trigger": "job_" + topicStatus(topic)})
}

func (s *JobService) publish(topic string, data any) {
	evt, err := protocol.NewEvent(topic, data)
	if err != nil {
		slog.Error("job service: build event failed", "topic", topic, "error", err)
		return
	}
	s.bus.Publish(evt)
}

func topicStatus(topic string) string {
	if topic == protocol.TopicJobFailed {
		return protocol.StatusFailed
	}
	return protocol.StatusCompleted
}

func (s *JobService) limiter(id string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(progressPublishInterval), 1)
		s.limiters[id] = l
	}
	return l
}

func (s *JobService) dropLimiter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, id)
}
