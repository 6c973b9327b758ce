package resilience

import (
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/clock"
)

// Throttle lets at most one event through per interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	clock    clock.Clock
}

func NewThrottle(interval time.Duration, c clock.Clock) *Throttle {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Throttle{interval: interval, clock: clock.Or(c)}
}

// Allow reports whether an event may pass now and records it if so.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Reset forgets the last event.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}
