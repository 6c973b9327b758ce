package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/clock"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 2, 500*time.Millisecond)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for i, w := range want {
		if got := b.Delay(i); got != w {
			t.Fatalf("attempt %d: expected %s, got %s", i, w, got)
		}
	}
	if got := b.Delay(10000); got != 500*time.Millisecond {
		t.Fatalf("expected cap for huge attempt, got %s", got)
	}
}

func TestThrottleAllowsOncePerInterval(t *testing.T) {
	c := clock.NewFake(time.Time{})
	th := NewThrottle(5*time.Second, c)
	if !th.Allow() {
		t.Fatalf("first event should pass")
	}
	c.Advance(2 * time.Second)
	if th.Allow() {
		t.Fatalf("event inside interval should be dropped")
	}
	c.Advance(3 * time.Second)
	if !th.Allow() {
		t.Fatalf("event after interval should pass")
	}
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	p := NewRetryPolicy(3, time.Millisecond)
	err := p.Do(context.Background(), func(err error) bool { return !errors.Is(err, fatal) }, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single attempt, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got calls=%d err=%v", calls, err)
	}
}
