// Package scheduler triggers the periodic game-sync job on a cron
// schedule. The schedule is reconfigurable at runtime (config hot
// reload); disabling it parks the loop until re-enabled.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// recheckInterval bounds how long the loop sleeps while disabled or
// after a schedule computation error.
const recheckInterval = time.Hour

// TriggerFunc starts one sync run.
type TriggerFunc func(ctx context.Context) error

// AutoSync runs TriggerFunc at every tick of a cron expression.
type AutoSync struct {
	trigger TriggerFunc
	wake    chan struct{}

	mu      sync.Mutex
	enabled bool
	expr    string
}

func NewAutoSync(trigger TriggerFunc) *AutoSync {
	return &AutoSync{
		trigger: trigger,
		wake:    make(chan struct{}, 1),
	}
}

// Configure updates the schedule and wakes the loop so the change takes
// effect immediately.
func (a *AutoSync) Configure(enabled bool, expr string) error {
	if enabled && !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q", expr)
	}

	a.mu.Lock()
	a.enabled = enabled
	a.expr = expr
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}

	slog.Info("auto-sync configured", "enabled", enabled, "cron", expr)
	return nil
}

// Run blocks until ctx is cancelled, firing the trigger at each
// scheduled tick.
func (a *AutoSync) Run(ctx context.Context) error {
	for {
		a.mu.Lock()
		enabled, expr := a.enabled, a.expr
		a.mu.Unlock()

		wait := recheckInterval
		if enabled {
			next, err := gronx.NextTickAfter(expr, time.Now(), false)
			if err != nil {
				slog.Error("auto-sync: schedule computation failed", "cron", expr, "error", err)
			} else {
				wait = time.Until(next)
				if wait < 0 {
					wait = 0
				}
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-a.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if !enabled {
			continue
		}
		if err := a.trigger(ctx); err != nil {
			slog.Error("auto-sync: trigger failed", "error", err)
		}
	}
}
