package transports

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrBusy is returned when an open/close is already in flight or a session is live.
	ErrBusy = errors.New("transport: operation in progress")
	// ErrTooEarly is returned when a non-error close arrives before the minimum call duration.
	ErrTooEarly = errors.New("transport: call younger than minimum duration")
	// ErrNotActive is returned when closing without an active session.
	ErrNotActive = errors.New("transport: no active session")
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("transport: disposed")
	// ErrEndedWhileConnecting is returned by Open when the remote side ended
	// or dropped the call before the open completed.
	ErrEndedWhileConnecting = errors.New("transport: call ended while connecting")
)

// Role identifies the speaker of a transcript fragment.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole maps wire roles onto Role. Unknown roles yield "".
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return RoleUser
	case "agent", "assistant":
		return RoleAssistant
	default:
		return ""
	}
}

// CloseReason explains why a session is being closed.
type CloseReason string

const (
	CloseUser        CloseReason = "user"
	CloseIdleTimeout CloseReason = "idle_timeout"
	CloseError       CloseReason = "error"
	CloseRemote      CloseReason = "remote"
	CloseShutdown    CloseReason = "shutdown"
)

// Guarded reports whether the minimum-duration rule applies to the reason.
func (r CloseReason) Guarded() bool {
	return r == CloseUser || r == CloseIdleTimeout
}

// Listener receives normalized session events. Calls may come from any goroutine.
type Listener interface {
	OnTranscriptFragment(role Role, text string)
	OnResponse(text string)
	OnSentenceComplete()
	OnCallEnded()
	OnError(message string)
}

// Transport owns the lifecycle of one remote voice call at a time.
type Transport interface {
	Name() string
	// SetListener wires the single consumer; call it before Open.
	SetListener(l Listener)
	// Open acquires a credential and opens the realtime channel.
	Open(ctx context.Context) error
	// Close ends the active session.
	Close(ctx context.Context, reason CloseReason) error
	// Dispose force-closes and detaches the listener. Idempotent.
	Dispose()
	// Session returns a copy of the current session record.
	Session() Session
}

// ReadyReporter allows transports to expose readiness metadata for startup logging.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
