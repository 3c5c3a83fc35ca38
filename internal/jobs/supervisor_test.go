package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/rooksync/internal/channel"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

func runningTracker(t *testing.T, kind, jobID string) *Tracker {
	t.Helper()
	b := Binding{
		Kind:  kind,
		Poll:  func(context.Context) (Snapshot, error) { return idleSnapshot(), nil },
		Start: func(context.Context) (string, error) { return jobID, nil },
	}
	tr := NewTracker(b, nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start %s: %v", kind, err)
	}
	return tr
}

func TestSupervisor_RoutesToOwningTracker(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Close()
	s.Add(runningTracker(t, "analysis", "J1"))
	s.Add(runningTracker(t, "import", "J2"))

	if !s.RouteProgress(protocol.ProgressData{JobID: "J2", Current: 4, Total: 8}) {
		t.Fatal("progress for J2 was not claimed")
	}

	if rec := s.Tracker("import").Record(); rec.Current != 4 {
		t.Errorf("import tracker did not apply the update: %+v", rec)
	}
	if rec := s.Tracker("analysis").Record(); rec.Current != 0 {
		t.Errorf("analysis tracker was wrongly updated: %+v", rec)
	}
}

func TestSupervisor_UnclaimedEventReturnsFalse(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Close()
	s.Add(runningTracker(t, "analysis", "J1"))

	if s.RouteProgress(protocol.ProgressData{JobID: "J99", Current: 1, Total: 2}) {
		t.Error("nobody tracks J99; the event must go unclaimed")
	}
	if s.RouteStatus(context.Background(), protocol.StatusData{JobID: "J99", Status: protocol.StatusCompleted}) {
		t.Error("status for an untracked job must go unclaimed")
	}
}

func TestSupervisor_KindsInAddOrder(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Close()
	s.Add(runningTracker(t, "analysis", "J1"))
	s.Add(runningTracker(t, "import", "J2"))
	s.Add(runningTracker(t, "sync", "J3"))

	kinds := s.Kinds()
	want := []string{"analysis", "import", "sync"}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestSupervisor_BindRoutesChannelEvents(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Close()
	s.Add(runningTracker(t, "analysis", "J1"))

	reg := channel.NewHandlerRegistry()
	s.Bind(context.Background(), reg)

	evt, err := protocol.NewProgressEvent("J1", "analysis", 7, 10)
	if err != nil {
		t.Fatalf("building event: %v", err)
	}
	reg.Dispatch(evt)

	if rec := s.Tracker("analysis").Record(); rec.Current != 7 || rec.Total != 10 {
		t.Errorf("dispatched progress was not applied: %+v", rec)
	}
}

func TestRefreshDebouncer_CoalescesBurst(t *testing.T) {
	var fired atomic.Int32
	d := newRefreshDebouncer(20*time.Millisecond, func() { fired.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger()
	}
	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("expected a burst to coalesce into 1 firing, got %d", got)
	}

	d.Trigger()
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Errorf("expected a later trigger to fire again, got %d", got)
	}
}

func TestRefreshDebouncer_StopCancelsPending(t *testing.T) {
	var fired atomic.Int32
	d := newRefreshDebouncer(20*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	d.Stop()
	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("stopped debouncer still fired %d times", got)
	}
}
