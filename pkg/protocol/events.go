package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Event topics pushed from server to client.
const (
	TopicJobCreated         = "job.created"
	TopicJobStatusChanged   = "job.status_changed"
	TopicJobProgressUpdated = "job.progress_updated"
	TopicJobCompleted       = "job.completed"
	TopicJobFailed          = "job.failed"
	TopicStatsUpdated       = "stats.updated"

	// Internal topic: asks the executor to run a freshly created job.
	// Never forwarded to WebSocket clients.
	TopicJobExecutionRequested = "job.execution_requested"
)

// JobTopics is every topic a job-watching client should subscribe to.
var JobTopics = []string{
	TopicJobCreated,
	TopicJobStatusChanged,
	TopicJobProgressUpdated,
	TopicJobCompleted,
	TopicJobFailed,
}

// Job status values carried in status-change payloads.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StatusData is the payload of job.status_changed (and the terminal
// job.completed / job.failed mirrors).
type StatusData struct {
	JobID        string `json:"job_id"`
	JobType      string `json:"job_type,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProgressData is the payload of job.progress_updated.
type ProgressData struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
}

// CreatedData is the payload of job.created.
type CreatedData struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type,omitempty"`
}

// StatusData decodes the event payload as a status change.
func (e *Event) StatusData() (StatusData, error) {
	var d StatusData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return StatusData{}, fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	if d.JobID == "" {
		return StatusData{}, fmt.Errorf("%s data has no job_id", e.Type)
	}
	return d, nil
}

// ProgressData decodes the event payload as a progress update.
func (e *Event) ProgressData() (ProgressData, error) {
	var d ProgressData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return ProgressData{}, fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	if d.JobID == "" {
		return ProgressData{}, fmt.Errorf("%s data has no job_id", e.Type)
	}
	return d, nil
}

// CreatedData decodes the event payload as a job announcement.
func (e *Event) CreatedData() (CreatedData, error) {
	var d CreatedData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return CreatedData{}, fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	if d.JobID == "" {
		return CreatedData{}, fmt.Errorf("%s data has no job_id", e.Type)
	}
	return d, nil
}

// Percent computes a rounded progress percentage, 0 when total is zero.
func Percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(current) / float64(total)))
}

// NewEvent builds an event frame with the payload marshalled into data
// and a UTC timestamp.
func NewEvent(topic string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", topic, err)
	}
	return &Event{
		Type:      topic,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// NewProgressEvent builds a job.progress_updated frame, computing percent.
func NewProgressEvent(jobID, jobType string, current, total int) (*Event, error) {
	return NewEvent(TopicJobProgressUpdated, ProgressData{
		JobID:   jobID,
		JobType: jobType,
		Current: current,
		Total:   total,
		Percent: Percent(current, total),
	})
}

// NewStatusEvent builds a job.status_changed frame.
func NewStatusEvent(jobID, jobType, status, errorMessage string) (*Event, error) {
	return NewEvent(TopicJobStatusChanged, StatusData{
		JobID:        jobID,
		JobType:      jobType,
		Status:       status,
		ErrorMessage: errorMessage,
	})
}
