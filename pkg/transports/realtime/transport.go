package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/transports"
)

// Credentials issues short-lived access tokens for web calls.
type Credentials interface {
	CreateWebCall(ctx context.Context, agentID string) (string, error)
}

type Config struct {
	AgentID         string
	WSURL           string
	SampleRate      int
	CaptureDeviceID string
	MinDuration     time.Duration
	IdleTimeout     time.Duration
	Clock           clock.Clock
	Logger          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.WSURL == "" {
		c.WSURL = "wss://api.retellai.com/audio-websocket"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.MinDuration < 0 {
		c.MinDuration = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

// Transport runs one web call at a time over the platform's realtime channel.
type Transport struct {
	cfg    Config
	creds  Credentials
	dialer Dialer
	guard  *transports.SessionGuard
	logger *slog.Logger

	mu         sync.Mutex
	listener   transports.Listener
	ch         Channel
	openCancel context.CancelFunc
}

func New(cfg Config, creds Credentials, dialer Dialer) *Transport {
	cfg = cfg.withDefaults()
	if dialer == nil {
		dialer = WSDialer{Logger: cfg.Logger}
	}
	t := &Transport{
		cfg:    cfg,
		creds:  creds,
		dialer: dialer,
		logger: logging.NewComponentLogger(cfg.Logger, "realtime_transport"),
	}
	t.guard = transports.NewSessionGuard(transports.GuardConfig{
		MinDuration: cfg.MinDuration,
		IdleTimeout: cfg.IdleTimeout,
		Clock:       cfg.Clock,
	}, t.onIdle)
	return t
}

func (t *Transport) Name() string { return "realtime" }

func (t *Transport) SetListener(l transports.Listener) {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
}

func (t *Transport) Session() transports.Session { return t.guard.Session() }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"ws_url":       t.cfg.WSURL,
		"agent_id":     t.cfg.AgentID,
		"sample_rate":  t.cfg.SampleRate,
		"min_duration": t.cfg.MinDuration.String(),
		"idle_timeout": t.cfg.IdleTimeout.String(),
	}
}

func (t *Transport) Open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := t.guard.BeginOpen()
	if err != nil {
		t.logger.Debug("open_ignored", slog.String("reason", err.Error()))
		return err
	}
	openCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.openCancel = cancel
	t.mu.Unlock()

	t.logger.Info("call_opening", slog.String("session_id", id))

	token, err := t.creds.CreateWebCall(openCtx, t.cfg.AgentID)
	if err != nil {
		return t.failOpen(id, nil, errorsx.Wrap(err, errorsx.ReasonCredentialFetch))
	}

	ch, err := t.dialer.Dial(openCtx, t.cfg.WSURL, token, &sessionHandler{t: t, id: id})
	if err != nil {
		return t.failOpen(id, nil, errorsx.Wrap(err, errorsx.ReasonChannelOpen))
	}
	start := StartCall{
		Type:                EventStartCall,
		AccessToken:         token,
		SampleRate:          t.cfg.SampleRate,
		CaptureDeviceID:     t.cfg.CaptureDeviceID,
		EmitRawAudioSamples: false,
	}
	if err := ch.Send(start); err != nil {
		return t.failOpen(id, ch, errorsx.Wrap(err, errorsx.ReasonChannelOpen))
	}

	t.mu.Lock()
	t.ch = ch
	t.mu.Unlock()
	if !t.guard.OpenSucceeded(id) {
		t.releaseChannel(ch)
		return transports.ErrDisposed
	}
	if reason, ok := t.guard.TakeDeferredClose(id); ok {
		t.logger.Warn("call_ended_while_connecting",
			slog.String("session_id", id),
			slog.String("reason", string(reason)))
		_ = t.finish(id, reason)
		return errorsx.Wrap(transports.ErrEndedWhileConnecting, errorsx.ReasonRemoteError)
	}
	t.logger.Info("call_opened", slog.String("session_id", id))
	return nil
}

// failOpen releases everything the attempt acquired and reports the error.
func (t *Transport) failOpen(id string, ch Channel, err error) error {
	t.guard.OpenFailed(id)
	if ch != nil {
		t.releaseChannel(ch)
	}
	t.mu.Lock()
	if t.openCancel != nil {
		t.openCancel()
		t.openCancel = nil
	}
	l := t.listener
	t.mu.Unlock()

	t.logger.Error("call_open_failed",
		slog.String("session_id", id),
		slog.String("reason", string(errorsx.Reason(err))),
		slog.String("error", err.Error()))
	if l != nil && !t.guard.Disposed() {
		l.OnError(err.Error())
	}
	return err
}

func (t *Transport) Close(ctx context.Context, reason transports.CloseReason) error {
	id, err := t.guard.BeginClose(reason)
	if err != nil {
		t.logger.Info("close_dropped",
			slog.String("reason", string(reason)),
			slog.String("cause", err.Error()))
		return err
	}
	return t.finish(id, reason)
}

// finish tears down the active session. Release is forced even when the
// remote side fails to acknowledge.
func (t *Transport) finish(id string, reason transports.CloseReason) error {
	ch := t.takeChannel()
	var closeErr error
	if ch != nil {
		if reason != transports.CloseRemote {
			if err := ch.Send(StopCall{Type: EventStopCall}); err != nil {
				closeErr = err
			}
		}
		if err := ch.Close(); err != nil && closeErr == nil {
			closeErr = errorsx.Wrap(err, errorsx.ReasonChannelClose)
		}
	}
	t.cancelOpen()

	status := transports.StatusEnded
	if reason == transports.CloseError {
		status = transports.StatusError
	}
	notify := t.guard.Finish(id, status)
	if closeErr != nil {
		t.logger.Warn("call_close_forced",
			slog.String("session_id", id),
			slog.String("error", closeErr.Error()))
	}
	t.logger.Info("call_closed",
		slog.String("session_id", id),
		slog.String("reason", string(reason)))
	if notify {
		if l := t.currentListener(); l != nil {
			l.OnCallEnded()
		}
	}
	return closeErr
}

// Dispose force-closes any session and detaches the listener.
func (t *Transport) Dispose() {
	id, notify := t.guard.Dispose()
	t.cancelOpen()
	if ch := t.takeChannel(); ch != nil {
		_ = ch.Send(StopCall{Type: EventStopCall})
		t.releaseChannel(ch)
	}
	l := t.currentListener()
	t.SetListener(nil)
	if notify && l != nil {
		l.OnCallEnded()
	}
	if id != "" {
		t.logger.Info("transport_disposed", slog.String("session_id", id))
	}
}

func (t *Transport) onIdle(id string) {
	if t.guard.Session().ID != id {
		return
	}
	t.logger.Warn("call_idle_timeout", slog.String("session_id", id))
	if err := t.Close(context.Background(), transports.CloseIdleTimeout); err != nil && !errors.Is(err, transports.ErrNotActive) {
		t.logger.Warn("idle_close_failed", slog.String("error", err.Error()))
	}
}

func (t *Transport) handleMessage(id string, data []byte) {
	if !t.guard.Touch(id) {
		return
	}
	ev, err := decodeEvent(data)
	if err != nil {
		t.logger.Warn("event_dropped", slog.String("error", err.Error()))
		return
	}
	l := t.currentListener()
	if l == nil {
		return
	}
	switch ev.Type {
	case EventUpdate:
		if u, ok := ev.LastUtterance(); ok {
			if role := transports.NormalizeRole(u.Role); role != "" && u.Content != "" {
				t.logger.Debug("transcript_fragment",
					slog.String("role", string(role)),
					slog.String("text", redact.Text(u.Content)))
				l.OnTranscriptFragment(role, u.Content)
			}
		}
		if text, ok := ev.ResponseText(); ok {
			l.OnResponse(text)
		}
	case EventSentenceComplete:
		l.OnSentenceComplete()
	case EventError:
		msg := ev.Message
		if msg == "" {
			msg = "remote error"
		}
		t.logger.Error("remote_error", slog.String("session_id", id), slog.String("message", msg))
		l.OnError(msg)
		t.closeFor(id, transports.CloseError)
	case EventCallEnded:
		t.closeFor(id, transports.CloseRemote)
	case EventCallStarted, EventAgentStart, EventAgentStop, EventMetadata:
		t.logger.Debug("event_ignored", slog.String("type", ev.Type))
	default:
		t.logger.Warn("event_unknown", slog.String("type", ev.Type))
	}
}

func (t *Transport) handleClosed(id string, err error) {
	if t.guard.Session().ID != id || !t.guard.Session().Status.Live() {
		return
	}
	if err != nil {
		t.logger.Error("channel_lost", slog.String("session_id", id), slog.String("error", err.Error()))
		if l := t.currentListener(); l != nil {
			l.OnError("connection lost: " + err.Error())
		}
		t.closeFor(id, transports.CloseError)
		return
	}
	t.closeFor(id, transports.CloseRemote)
}

// closeFor closes session id on behalf of the remote side, bypassing the
// minimum-duration rule. While the session is still connecting the close is
// deferred to Open.
func (t *Transport) closeFor(id string, reason transports.CloseReason) {
	if t.guard.Session().ID != id {
		return
	}
	if t.guard.DeferClose(id, reason) {
		t.logger.Debug("close_deferred", slog.String("session_id", id), slog.String("reason", string(reason)))
		return
	}
	cid, err := t.guard.BeginClose(reason)
	if err != nil || cid != id {
		return
	}
	_ = t.finish(id, reason)
}

func (t *Transport) currentListener() transports.Listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener
}

func (t *Transport) takeChannel() Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := t.ch
	t.ch = nil
	return ch
}

func (t *Transport) cancelOpen() {
	t.mu.Lock()
	if t.openCancel != nil {
		t.openCancel()
		t.openCancel = nil
	}
	t.mu.Unlock()
}

func (t *Transport) releaseChannel(ch Channel) {
	if err := ch.Close(); err != nil {
		t.logger.Debug("channel_release_failed", slog.String("error", err.Error()))
	}
}

type sessionHandler struct {
	t  *Transport
	id string
}

func (h *sessionHandler) OnMessage(data []byte) { h.t.handleMessage(h.id, data) }
func (h *sessionHandler) OnClosed(err error)    { h.t.handleClosed(h.id, err) }

var _ transports.Transport = (*Transport)(nil)
var _ transports.ReadyReporter = (*Transport)(nil)
