// Package jobs reconciles point-in-time poll snapshots with the live
// event stream into one authoritative view per job kind, and routes
// inbound job events to the tracker that owns them.
package jobs

import "context"

// Status is the tracker's state machine state. Terminal wire statuses
// ("completed"/"failed") collapse straight back to Idle, so only the
// two durable states exist here; the wire vocabulary lives in protocol.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
)

func (s Status) String() string {
	if s == StatusRunning {
		return "running"
	}
	return "idle"
}

// Record is the reconciled view of one in-flight job.
// Invariant: JobID is non-empty iff Status is StatusRunning.
type Record struct {
	JobID        string
	Status       Status
	Current      int
	Total        int
	ErrorMessage string
}

// Snapshot is the JobRecord-shaped result of a poll call.
type Snapshot struct {
	JobID   string
	Status  string // protocol status string
	Current int
	Total   int
}

// PollFunc fetches the current server-side status of a job kind.
type PollFunc func(ctx context.Context) (Snapshot, error)

// StartFunc starts a new job and returns its freshly assigned id.
type StartFunc func(ctx context.Context) (string, error)

// StopFunc requests cancellation of the given job.
type StopFunc func(ctx context.Context, jobID string) error

// Binding associates one semantic job kind with its collaborator calls
// and optional terminal callbacks. Created once at startup.
type Binding struct {
	Kind  string
	Poll  PollFunc
	Start StartFunc
	Stop  StopFunc // optional

	OnComplete func()              // optional
	OnFailure  func(message string) // optional
}

// View receives the tracker's UI-facing effects. Implementations render
// progress bars and one-shot notifications; they must not call back
// into the tracker.
type View interface {
	ShowProgress(kind string, current, total, percent int)
	HideProgress(kind string)
	Info(kind, message string)
	Success(kind, message string)
	Error(kind, message string)
}

type nopView struct{}

func (nopView) ShowProgress(string, int, int, int) {}
func (nopView) HideProgress(string)                {}
func (nopView) Info(string, string)                {}
func (nopView) Success(string, string)             {}
func (nopView) Error(string, string)               {}
