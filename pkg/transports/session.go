package transports

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/wakecall/pkg/clock"
)

// SessionStatus is the lifecycle status of one call attempt.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusConnecting SessionStatus = "connecting"
	StatusActive     SessionStatus = "active"
	StatusEnded      SessionStatus = "ended"
	StatusError      SessionStatus = "error"
)

// Live reports whether the status counts against the one-session limit.
func (s SessionStatus) Live() bool {
	return s == StatusConnecting || s == StatusActive
}

// Session is one remote call attempt.
type Session struct {
	ID           string
	Status       SessionStatus
	StartedAt    time.Time
	LastActivity time.Time
}

type GuardConfig struct {
	MinDuration time.Duration
	IdleTimeout time.Duration
	Clock       clock.Clock
}

// SessionGuard tracks the session record of a transport: the in-flight flag,
// the minimum-duration rule, the inactivity watchdog and the single
// call-ended notice per session.
type SessionGuard struct {
	cfg    GuardConfig
	clock  clock.Clock
	onIdle func(id string)

	mu          sync.Mutex
	session     Session
	inFlight    bool
	disposed    bool
	endNotified bool
	deferred    CloseReason
	watchdog    clock.Timer
}

func NewSessionGuard(cfg GuardConfig, onIdle func(id string)) *SessionGuard {
	if cfg.MinDuration < 0 {
		cfg.MinDuration = 0
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &SessionGuard{
		cfg:     cfg,
		clock:   clock.Or(cfg.Clock),
		onIdle:  onIdle,
		session: Session{Status: StatusIdle},
	}
}

// Session returns a copy of the current record.
func (g *SessionGuard) Session() Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// BeginOpen creates a connecting session and marks an operation in flight.
func (g *SessionGuard) BeginOpen() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return "", ErrDisposed
	}
	if g.inFlight || g.session.Status.Live() {
		return "", ErrBusy
	}
	g.inFlight = true
	g.endNotified = false
	g.deferred = ""
	g.session = Session{ID: uuid.NewString(), Status: StatusConnecting}
	return g.session.ID, nil
}

// OpenSucceeded activates the session and arms the watchdog. It returns false
// when the session was superseded or disposed meanwhile. When a close was
// deferred during connect the session stays in flight for that close; the
// caller collects it with TakeDeferredClose.
func (g *SessionGuard) OpenSucceeded(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed || id != g.session.ID || g.session.Status != StatusConnecting {
		return false
	}
	now := g.clock.Now()
	g.session.Status = StatusActive
	g.session.StartedAt = now
	g.session.LastActivity = now
	if g.deferred != "" {
		return true
	}
	g.inFlight = false
	g.armLocked()
	return true
}

// DeferClose records a remote-initiated close that arrived while session id
// was still connecting. An error close wins over a clean one. It returns
// false when id is not connecting.
func (g *SessionGuard) DeferClose(id string, reason CloseReason) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed || id != g.session.ID || g.session.Status != StatusConnecting {
		return false
	}
	if g.deferred == "" || reason == CloseError {
		g.deferred = reason
	}
	return true
}

// TakeDeferredClose returns and clears the close deferred for session id.
// The close stays marked in flight until Finish.
func (g *SessionGuard) TakeDeferredClose(id string) (CloseReason, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id != g.session.ID || g.deferred == "" {
		return "", false
	}
	reason := g.deferred
	g.deferred = ""
	return reason, true
}

// OpenFailed marks the session failed and clears the in-flight flag.
func (g *SessionGuard) OpenFailed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id != g.session.ID {
		return
	}
	if g.session.Status.Live() {
		g.session.Status = StatusError
	}
	g.inFlight = false
	g.deferred = ""
	g.stopLocked()
}

// Touch records inbound activity. It returns false when id is not the live session.
func (g *SessionGuard) Touch(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed || id != g.session.ID || !g.session.Status.Live() {
		return false
	}
	g.session.LastActivity = g.clock.Now()
	if g.session.Status == StatusActive {
		g.armLocked()
	}
	return true
}

// BeginClose validates a close request and marks it in flight.
func (g *SessionGuard) BeginClose(reason CloseReason) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return "", ErrDisposed
	}
	if g.inFlight {
		return "", ErrBusy
	}
	if g.session.Status != StatusActive {
		return "", ErrNotActive
	}
	if reason.Guarded() && g.clock.Now().Sub(g.session.StartedAt) < g.cfg.MinDuration {
		return "", ErrTooEarly
	}
	g.inFlight = true
	return g.session.ID, nil
}

// Finish ends the session with status and reports whether the caller should
// emit the call-ended notice (at most once per session).
func (g *SessionGuard) Finish(id string, status SessionStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id != g.session.ID {
		return false
	}
	wasActive := g.session.Status == StatusActive
	if g.session.Status.Live() || g.session.Status == StatusEnded {
		g.session.Status = status
	}
	g.inFlight = false
	g.stopLocked()
	if g.endNotified || !wasActive {
		return false
	}
	g.endNotified = true
	return true
}

// Dispose blocks further operations. It returns the live session id (if any)
// and whether a call-ended notice is still owed.
func (g *SessionGuard) Dispose() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return "", false
	}
	g.disposed = true
	g.inFlight = false
	g.stopLocked()
	if !g.session.Status.Live() {
		return "", false
	}
	wasActive := g.session.Status == StatusActive
	g.session.Status = StatusEnded
	notify := wasActive && !g.endNotified
	g.endNotified = true
	return g.session.ID, notify
}

// Disposed reports whether Dispose ran.
func (g *SessionGuard) Disposed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disposed
}

func (g *SessionGuard) armLocked() {
	g.stopLocked()
	id := g.session.ID
	g.watchdog = g.clock.AfterFunc(g.cfg.IdleTimeout, func() {
		if g.onIdle != nil {
			g.onIdle(id)
		}
	})
}

func (g *SessionGuard) stopLocked() {
	if g.watchdog != nil {
		g.watchdog.Stop()
		g.watchdog = nil
	}
}
