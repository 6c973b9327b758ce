package metrics

import "time"

// Lifecycle event names recorded by the conversation controller.
const (
	EventStateChange      = "state_change"
	EventActivation       = "activation"
	EventRecognitionError = "recognition_error"
	EventCallOpening      = "call_opening"
	EventCallOpened       = "call_opened"
	EventCallEnded        = "call_ended"
	EventCallError        = "call_error"
)

// TagAttempt identifies the call attempt an event belongs to.
const TagAttempt = "attempt"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Tag returns the tag value or "".
func (ev MetricsEvent) Tag(key string) string {
	if ev.Tags == nil {
		return ""
	}
	return ev.Tags[key]
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
