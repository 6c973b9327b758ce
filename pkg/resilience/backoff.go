package resilience

import (
	"math"
	"time"
)

// Backoff computes exponential restart delays: Base * Factor^attempt, capped at Max.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func NewBackoff(base time.Duration, factor float64, max time.Duration) Backoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if factor < 1 {
		factor = 2
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if max < base {
		max = base
	}
	return Backoff{Base: base, Factor: factor, Max: max}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if d > float64(b.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return b.Max
	}
	return time.Duration(d)
}
