package rest

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// throttle enforces a minimum spacing interval between the start times of
// successive dispatches. It is a leaky bucket of size one: no burst
// allowance, one dispatch per interval, FIFO by slot reservation order.
type throttle struct {
	clock    clockwork.Clock
	interval time.Duration

	mu       sync.Mutex
	nextSlot time.Time
}

func newThrottle(clock clockwork.Clock, interval time.Duration) *throttle {
	return &throttle{clock: clock, interval: interval}
}

// Wait reserves the next dispatch slot and blocks until it arrives. Slots are
// handed out in call order, so dispatch order follows arrival order
// regardless of how long individual requests take to complete afterwards.
// Returns how long the caller waited.
func (t *throttle) Wait(ctx context.Context) (time.Duration, error) {
	t.mu.Lock()
	now := t.clock.Now()
	slot := t.nextSlot
	if slot.Before(now) {
		slot = now
	}
	t.nextSlot = slot.Add(t.interval)
	t.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return 0, nil
	}

	select {
	case <-t.clock.After(delay):
		return delay, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
