package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/transports"
)

type Config struct {
	MinDuration time.Duration
	IdleTimeout time.Duration
	Clock       clock.Clock
	// OpenHook runs inside Open after the guard admits the attempt; a non-nil
	// error fails the open.
	OpenHook func(ctx context.Context) error
}

// Transport is an in-memory transport for local testing and demos. It applies
// the same session rules as the realtime transport without any network.
type Transport struct {
	cfg   Config
	guard *transports.SessionGuard

	mu       sync.Mutex
	listener transports.Listener
	openErr  error

	opens  atomic.Int32
	closes atomic.Int32
}

func New(cfg Config) *Transport {
	t := &Transport{cfg: cfg}
	t.guard = transports.NewSessionGuard(transports.GuardConfig{
		MinDuration: cfg.MinDuration,
		IdleTimeout: cfg.IdleTimeout,
		Clock:       cfg.Clock,
	}, func(string) { _ = t.Close(context.Background(), transports.CloseIdleTimeout) })
	return t
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) SetListener(l transports.Listener) {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
}

func (t *Transport) Session() transports.Session { return t.guard.Session() }

// FailNextOpen makes the next admitted Open fail with err.
func (t *Transport) FailNextOpen(err error) {
	t.mu.Lock()
	t.openErr = err
	t.mu.Unlock()
}

func (t *Transport) Open(ctx context.Context) error {
	t.opens.Add(1)
	id, err := t.guard.BeginOpen()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	failErr := t.openErr
	t.openErr = nil
	t.mu.Unlock()
	if failErr == nil && t.cfg.OpenHook != nil {
		failErr = t.cfg.OpenHook(ctx)
	}
	if failErr != nil {
		t.guard.OpenFailed(id)
		if l := t.current(); l != nil && !t.guard.Disposed() {
			l.OnError(failErr.Error())
		}
		return failErr
	}
	if !t.guard.OpenSucceeded(id) {
		return transports.ErrDisposed
	}
	if reason, ok := t.guard.TakeDeferredClose(id); ok {
		t.finish(id, reason)
		return transports.ErrEndedWhileConnecting
	}
	return nil
}

func (t *Transport) Close(_ context.Context, reason transports.CloseReason) error {
	t.closes.Add(1)
	id, err := t.guard.BeginClose(reason)
	if err != nil {
		return err
	}
	t.finish(id, reason)
	return nil
}

func (t *Transport) finish(id string, reason transports.CloseReason) {
	status := transports.StatusEnded
	if reason == transports.CloseError {
		status = transports.StatusError
	}
	if t.guard.Finish(id, status) {
		if l := t.current(); l != nil {
			l.OnCallEnded()
		}
	}
}

func (t *Transport) Dispose() {
	_, notify := t.guard.Dispose()
	l := t.current()
	t.SetListener(nil)
	if notify && l != nil {
		l.OnCallEnded()
	}
}

// Opens returns how many times Open was invoked.
func (t *Transport) Opens() int { return int(t.opens.Load()) }

// Closes returns how many times Close was invoked.
func (t *Transport) Closes() int { return int(t.closes.Load()) }

// PushFragment injects a transcript fragment into the live session.
func (t *Transport) PushFragment(role transports.Role, text string) bool {
	l := t.touch()
	if l == nil {
		return false
	}
	l.OnTranscriptFragment(role, text)
	return true
}

// PushResponse injects an assistant response.
func (t *Transport) PushResponse(text string) bool {
	l := t.touch()
	if l == nil {
		return false
	}
	l.OnResponse(text)
	return true
}

// PushSentenceComplete injects a sentence boundary.
func (t *Transport) PushSentenceComplete() bool {
	l := t.touch()
	if l == nil {
		return false
	}
	l.OnSentenceComplete()
	return true
}

// PushError simulates a mid-call remote error followed by teardown.
func (t *Transport) PushError(message string) bool {
	id := t.guard.Session().ID
	l := t.touch()
	if l == nil {
		return false
	}
	l.OnError(message)
	t.remoteClose(id, transports.CloseError)
	return true
}

// EndRemote simulates the agent hanging up. During connect the hang-up is
// applied when Open completes.
func (t *Transport) EndRemote() bool {
	return t.remoteClose(t.guard.Session().ID, transports.CloseRemote)
}

func (t *Transport) remoteClose(id string, reason transports.CloseReason) bool {
	if t.guard.DeferClose(id, reason) {
		return true
	}
	cid, err := t.guard.BeginClose(reason)
	if err != nil || cid != id {
		return false
	}
	t.finish(id, reason)
	return true
}

func (t *Transport) touch() transports.Listener {
	if !t.guard.Touch(t.guard.Session().ID) {
		return nil
	}
	return t.current()
}

func (t *Transport) current() transports.Listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener
}

var _ transports.Transport = (*Transport)(nil)
