package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/metrics"
)

// CallLatency is the measured timing of one finished call attempt.
type CallLatency struct {
	Attempt    string
	Activation int64 // trigger heard -> channel live, -1 for manual starts
	Connect    int64 // open requested -> channel live, -1 when never live
	Duration   int64 // channel live -> ended, -1 when never live
	Failed     bool
}

// CallLatencyObserver measures per-attempt connect latency and call duration.
type CallLatencyObserver struct {
	mu        sync.Mutex
	traces    map[string]*callTrace
	activated time.Time
	log       *slog.Logger
	last      *CallLatency
}

type callTrace struct {
	activated time.Time
	opening   time.Time
	opened    time.Time
}

func NewCallLatencyObserver(log *slog.Logger) *CallLatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &CallLatencyObserver{
		traces: make(map[string]*callTrace),
		log:    log,
	}
}

func (o *CallLatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// activation is recorded before the attempt counter moves, so it is
	// held until the next call_opening claims it.
	if ev.Name == metrics.EventActivation {
		o.activated = ev.Time
		return
	}
	attempt := ev.Tag(metrics.TagAttempt)
	if attempt == "" {
		return
	}
	switch ev.Name {
	case metrics.EventCallOpening:
		o.traces[attempt] = &callTrace{activated: o.activated, opening: ev.Time}
		o.activated = time.Time{}
	case metrics.EventCallOpened:
		if t := o.traces[attempt]; t != nil && t.opened.IsZero() {
			t.opened = ev.Time
		}
	case metrics.EventCallEnded, metrics.EventCallError:
		t := o.traces[attempt]
		if t == nil {
			return
		}
		delete(o.traces, attempt)
		o.finishLocked(attempt, t, ev.Time, ev.Name == metrics.EventCallError)
	}
}

// Last returns the most recently finished attempt.
func (o *CallLatencyObserver) Last() (CallLatency, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return CallLatency{}, false
	}
	return *o.last, true
}

func (o *CallLatencyObserver) finishLocked(attempt string, t *callTrace, end time.Time, failed bool) {
	lat := CallLatency{
		Attempt:    attempt,
		Activation: durationMs(t.activated, t.opened),
		Connect:    durationMs(t.opening, t.opened),
		Duration:   durationMs(t.opened, end),
		Failed:     failed,
	}
	o.last = &lat
	o.log.Info("call_latency",
		"attempt", attempt,
		"activation_ms", lat.Activation,
		"connect_ms", lat.Connect,
		"duration_ms", lat.Duration,
		"failed", failed,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
