package jobs

import (
	"sync"
	"time"
)

// refreshDebouncer coalesces a burst of triggers into a single delayed
// callback. Only one scheduled task is ever outstanding: a trigger while
// one is pending is absorbed, and the callback fires once the window
// elapses.
type refreshDebouncer struct {
	window time.Duration
	fn     func()

	mu    sync.Mutex
	timer *time.Timer
}

func newRefreshDebouncer(window time.Duration, fn func()) *refreshDebouncer {
	return &refreshDebouncer{window: window, fn: fn}
}

func (d *refreshDebouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A pending timer is absorbed, not reset: under a continuous event
	// stream the refresh still fires once per window instead of never.
	if d.timer != nil {
		return
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Stop cancels any pending callback.
func (d *refreshDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
