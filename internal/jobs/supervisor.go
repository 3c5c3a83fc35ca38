package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/rooksync/internal/channel"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// refreshWindow is the coalescing window for job-table refreshes.
const refreshWindow = time.Second

// Supervisor owns the named trackers and routes every inbound
// progress/status event to the one whose current job id matches.
// Job ids are unique across kinds (the server issues them), so at most
// one tracker ever claims an event; routing stops at the first match.
//
// Add all trackers before Bind; the set is fixed for the session.
type Supervisor struct {
	order    []string
	trackers map[string]*Tracker
	refresh  *refreshDebouncer
}

// NewSupervisor creates an empty supervisor. refresh is invoked (at
// most once per second, trailing-edge) after any job-table-affecting
// event; nil disables table refreshes.
func NewSupervisor(refresh func()) *Supervisor {
	if refresh == nil {
		refresh = func() {}
	}
	return &Supervisor{
		trackers: make(map[string]*Tracker),
		refresh:  newRefreshDebouncer(refreshWindow, refresh),
	}
}

// Add registers a tracker. Routing iterates trackers in Add order.
func (s *Supervisor) Add(t *Tracker) {
	kind := t.Kind()
	if _, ok := s.trackers[kind]; !ok {
		s.order = append(s.order, kind)
	}
	s.trackers[kind] = t
}

// Tracker returns the tracker for kind, or nil.
func (s *Supervisor) Tracker(kind string) *Tracker {
	return s.trackers[kind]
}

// Kinds returns the registered kinds in Add order.
func (s *Supervisor) Kinds() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// LoadAll polls every tracker's current status, recovering state after
// a fresh start or page reload.
func (s *Supervisor) LoadAll(ctx context.Context) {
	for _, kind := range s.order {
		s.trackers[kind].LoadStatus(ctx)
	}
}

// RouteProgress hands a progress update to the first tracker that
// claims it. An unclaimed event is a normal occurrence, not an error.
func (s *Supervisor) RouteProgress(d protocol.ProgressData) bool {
	for _, kind := range s.order {
		if s.trackers[kind].HandleProgress(d) {
			return true
		}
	}
	slog.Debug("supervisor: unclaimed progress event", "job_id", d.JobID)
	return false
}

// RouteStatus hands a status change to the first tracker that claims it.
func (s *Supervisor) RouteStatus(ctx context.Context, d protocol.StatusData) bool {
	for _, kind := range s.order {
		if s.trackers[kind].HandleStatusChange(ctx, d) {
			return true
		}
	}
	slog.Debug("supervisor: unclaimed status event", "job_id", d.JobID, "status", d.Status)
	return false
}

// Bind registers the supervisor's routing on the registry. ctx bounds
// the poll calls terminal transitions may issue; it should live for the
// session.
func (s *Supervisor) Bind(ctx context.Context, reg *channel.HandlerRegistry) {
	reg.On(protocol.TopicJobProgressUpdated, func(evt *protocol.Event) {
		d, err := evt.ProgressData()
		if err != nil {
			slog.Debug("supervisor: bad progress payload", "error", err)
			return
		}
		s.RouteProgress(d)
		s.refresh.Trigger()
	})

	reg.On(protocol.TopicJobStatusChanged, func(evt *protocol.Event) {
		d, err := evt.StatusData()
		if err != nil {
			slog.Debug("supervisor: bad status payload", "error", err)
			return
		}
		s.RouteStatus(ctx, d)
		s.refresh.Trigger()
	})

	// Table-affecting events with no per-tracker routing.
	reg.On(protocol.TopicJobCreated, func(*protocol.Event) { s.refresh.Trigger() })
	reg.On(protocol.TopicJobCompleted, func(*protocol.Event) { s.refresh.Trigger() })
}

// Close cancels any pending table refresh.
func (s *Supervisor) Close() {
	s.refresh.Stop()
}
