package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// Tracker is the per-kind state machine: Idle → Running → Idle.
// It only ever compares inbound events against its current job id, so
// stale or cross-job events cannot corrupt its progress. Every terminal
// transition produces exactly one success or error notification.
type Tracker struct {
	binding Binding
	view    View

	mu  sync.Mutex
	rec Record
}

// NewTracker creates an idle tracker for the binding's kind.
// A nil view is replaced with a no-op one.
func NewTracker(binding Binding, view View) *Tracker {
	if view == nil {
		view = nopView{}
	}
	return &Tracker{binding: binding, view: view}
}

// Kind returns the semantic job kind this tracker owns.
func (t *Tracker) Kind() string { return t.binding.Kind }

// Record returns a copy of the current reconciled view.
func (t *Tracker) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec
}

// LoadStatus polls the collaborator and adopts a running job if one
// exists. This is the recovery path after a page reload, before any
// push events have been observed. A failed poll leaves the prior state
// untouched.
func (t *Tracker) LoadStatus(ctx context.Context) {
	snap, err := t.binding.Poll(ctx)
	if err != nil {
		slog.Warn("tracker: status poll failed", "kind", t.binding.Kind, "error", err)
		return
	}

	t.mu.Lock()
	if snap.Status == protocol.StatusRunning && snap.JobID != "" {
		t.rec = Record{
			JobID:   snap.JobID,
			Status:  StatusRunning,
			Current: snap.Current,
			Total:   snap.Total,
		}
		t.mu.Unlock()
		t.view.ShowProgress(t.binding.Kind, snap.Current, snap.Total, protocol.Percent(snap.Current, snap.Total))
		return
	}
	t.rec = Record{Status: StatusIdle}
	t.mu.Unlock()
	t.view.HideProgress(t.binding.Kind)
}

// Start invokes the start function and adopts the returned job id.
// Safe to call while a previous job is still tracked: the new id simply
// supersedes the old one. On failure the record is left unchanged and
// one error notification carries the failure's message.
func (t *Tracker) Start(ctx context.Context) error {
	jobID, err := t.binding.Start(ctx)
	if err != nil {
		slog.Warn("tracker: start failed", "kind", t.binding.Kind, "error", err)
		t.view.Error(t.binding.Kind, err.Error())
		return err
	}

	t.mu.Lock()
	t.rec = Record{JobID: jobID, Status: StatusRunning}
	t.mu.Unlock()

	slog.Info("tracker: job started", "kind", t.binding.Kind, "job_id", jobID)
	t.view.Info(t.binding.Kind, "job started")
	t.view.ShowProgress(t.binding.Kind, 0, 0, 0)
	return nil
}

// Stop requests cancellation of the current job, then transitions to
// Idle regardless of the stop call's outcome: the user's intent to stop
// is honored locally even if server-side cancellation lags. A tracker
// with no current job never invokes the stop function.
func (t *Tracker) Stop(ctx context.Context) {
	t.mu.Lock()
	jobID := t.rec.JobID
	t.mu.Unlock()
	if jobID == "" {
		return
	}

	if t.binding.Stop != nil {
		if err := t.binding.Stop(ctx, jobID); err != nil {
			slog.Warn("tracker: stop call failed", "kind", t.binding.Kind, "job_id", jobID, "error", err)
		}
	}

	t.mu.Lock()
	t.rec = Record{Status: StatusIdle}
	t.mu.Unlock()

	t.view.HideProgress(t.binding.Kind)
	t.view.Info(t.binding.Kind, "job stopped")
}

// HandleProgress applies a progress update if it belongs to the
// currently tracked job. Returns false ("not mine") on an identity
// mismatch, leaving progress unchanged.
func (t *Tracker) HandleProgress(d protocol.ProgressData) bool {
	t.mu.Lock()
	if t.rec.JobID == "" || d.JobID != t.rec.JobID {
		t.mu.Unlock()
		return false
	}
	t.rec.Current = d.Current
	t.rec.Total = d.Total
	t.mu.Unlock()

	t.view.ShowProgress(t.binding.Kind, d.Current, d.Total, protocol.Percent(d.Current, d.Total))
	return true
}

// HandleStatusChange applies a terminal status change if it belongs to
// the currently tracked job. Unrecognized statuses with a matching id
// are logged and otherwise ignored; the state machine only reacts to
// the two terminal statuses.
func (t *Tracker) HandleStatusChange(ctx context.Context, d protocol.StatusData) bool {
	t.mu.Lock()
	if t.rec.JobID == "" || d.JobID != t.rec.JobID {
		t.mu.Unlock()
		return false
	}

	switch d.Status {
	case protocol.StatusCompleted:
		t.rec = Record{Status: StatusIdle}
		t.mu.Unlock()

		t.view.HideProgress(t.binding.Kind)
		t.view.Success(t.binding.Kind, "job completed")
		if t.binding.OnComplete != nil {
			t.binding.OnComplete()
		} else {
			// Pick up any next pending work for this kind.
			t.LoadStatus(ctx)
		}

	case protocol.StatusFailed:
		msg := d.ErrorMessage
		if msg == "" {
			msg = "job failed"
		}
		t.rec = Record{Status: StatusIdle, ErrorMessage: msg}
		t.mu.Unlock()

		t.view.HideProgress(t.binding.Kind)
		t.view.Error(t.binding.Kind, msg)
		if t.binding.OnFailure != nil {
			t.binding.OnFailure(msg)
		}
		t.LoadStatus(ctx)

	default:
		t.mu.Unlock()
		slog.Debug("tracker: unrecognized job status", "kind", t.binding.Kind, "job_id", d.JobID, "status", d.Status)
	}
	return true
}
