// Package conversation coordinates the activation monitor and the session
// transport into a single conversation state machine and owns the chat log.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/wakecall/pkg/activation"
	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/metrics"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/transports"
)

var (
	ErrClosed         = errors.New("conversation: controller closed")
	ErrAlreadyRunning = errors.New("conversation: already running")
)

const shutdownCloseTimeout = 2 * time.Second

// Monitor is the activation monitor as seen by the controller.
type Monitor interface {
	SetListener(l activation.Listener)
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	Cooldown         time.Duration
	ConnectingNotice string
	Clock            clock.Clock
	Logger           *slog.Logger
	Observer         metrics.Observer
}

// Snapshot is an immutable view of the conversation for presentation.
type Snapshot struct {
	State         State
	Messages      []Message
	LastError     string
	Notice        string
	CallStartedAt time.Time
	Activation    bool
	Change        StateChange
}

type eventKind int

const (
	evActivated eventKind = iota
	evRecognitionError
	evStartCall
	evEndCall
	evOpenDone
	evCloseDone
	evFragment
	evResponse
	evSentence
	evCallEnded
	evTransportError
	evCooldown
)

type event struct {
	kind    eventKind
	role    transports.Role
	text    string
	err     error
	attempt uint64
	gen     uint64
}

// Controller is the conversation state machine. All state is owned by the
// goroutine running Run; collaborators only enqueue events.
type Controller struct {
	monitor   Monitor
	transport transports.Transport
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
	observer  metrics.Observer

	events   chan event
	quit     chan struct{}
	done     chan struct{}
	effects  *effectQueue
	started  atomic.Bool
	quitOnce sync.Once
	downOnce sync.Once
	cancel   context.CancelFunc

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	last    Snapshot

	// owned by the loop
	state         State
	log           Log
	lastErr       string
	notice        string
	inFlight      bool
	resumePending bool
	attempt       uint64
	cooldown      clock.Timer
	cooldownGen   uint64
	callStarted   time.Time
	connectAt     time.Time
	change        StateChange
}

// New wires the controller as the single listener of monitor and transport.
// monitor may be nil, in which case calls are started manually only.
func New(monitor Monitor, transport transports.Transport, cfg Config) *Controller {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 1200 * time.Millisecond
	}
	if cfg.ConnectingNotice == "" {
		cfg.ConnectingNotice = "Connecting to assistant..."
	}
	obs := cfg.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	c := &Controller{
		monitor:   monitor,
		transport: transport,
		cfg:       cfg,
		clock:     clock.Or(cfg.Clock),
		logger:    logging.NewComponentLogger(cfg.Logger, "conversation"),
		observer:  obs,
		events:    make(chan event, 256),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		effects:   newEffectQueue(),
		subs:      make(map[int]chan Snapshot),
		state:     StateIdle,
	}
	c.last = c.snapshot()
	if monitor != nil {
		monitor.SetListener(monitorListener{c})
	}
	transport.SetListener(transportListener{c})
	return c
}

// Run boots into listening and processes events until ctx ends or Close is called.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if ctx == nil {
		ctx = context.Background()
	}
	effCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.effects.run(effCtx)

	c.resume("boot")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.quit:
			c.shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Close stops the monitor, disposes the transport and ends Run. Idempotent.
func (c *Controller) Close() error {
	c.quitOnce.Do(func() { close(c.quit) })
	if c.started.Load() {
		<-c.done
		return nil
	}
	c.downOnce.Do(c.teardown)
	return nil
}

// StartCall requests a manual call start.
func (c *Controller) StartCall() error { return c.enqueue(event{kind: evStartCall}) }

// EndCall requests the active call to end.
func (c *Controller) EndCall() error { return c.enqueue(event{kind: evEndCall}) }

// Snapshot returns the latest published snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return c.last
}

// Subscribe delivers snapshots after each change. Slow readers only see the
// latest one. The channel is closed on unsubscribe or shutdown.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.last
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
			c.subsMu.Unlock()
		})
	}
}

func (c *Controller) enqueue(ev event) error {
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evActivated:
		c.record(metrics.EventActivation, nil)
		if c.state != StateListening {
			c.logger.Debug("activation_ignored", slog.String("state", c.state.String()))
			return
		}
		c.beginCall("trigger phrase detected")
	case evStartCall:
		switch c.state {
		case StateIdle, StateListening, StateEnded, StateError:
			c.beginCall("manual start")
		default:
			c.logger.Info("start_call_rejected", slog.String("state", c.state.String()))
		}
	case evEndCall:
		c.endCall()
	case evRecognitionError:
		c.notice = "Speech recognition error: " + ev.text
		c.record(metrics.EventRecognitionError, map[string]string{"kind": ev.text})
		c.publish()
	case evOpenDone:
		c.openDone(ev)
	case evCloseDone:
		c.closeDone(ev)
	case evFragment:
		if c.acceptStream("fragment") {
			c.log.Fragment(ev.role, ev.text, c.clock.Now())
			c.publish()
		}
	case evResponse:
		if c.acceptStream("response") {
			c.log.Response(ev.text, c.clock.Now())
			c.publish()
		}
	case evSentence:
		if c.acceptStream("sentence_complete") {
			c.log.CompleteOldest()
			c.publish()
		}
	case evCallEnded:
		c.callEnded()
	case evTransportError:
		c.transportError(ev.text)
	case evCooldown:
		c.cooldownDone(ev.gen)
	}
}

func (c *Controller) beginCall(reason string) {
	if c.inFlight {
		c.logger.Info("start_call_in_flight", slog.String("state", c.state.String()))
		c.notice = "Previous call is still closing; try again in a moment"
		c.publish()
		return
	}
	if err := c.transition(StateConnecting, reason); err != nil {
		return
	}
	c.cancelCooldown()
	c.resumePending = false
	c.attempt++
	c.inFlight = true
	c.lastErr = ""
	c.notice = ""
	c.connectAt = c.clock.Now()
	c.log.System(c.cfg.ConnectingNotice, c.connectAt)

	attempt := c.attempt
	if c.monitor != nil {
		c.effects.push(func(context.Context) {
			if err := c.monitor.Stop(); err != nil {
				c.logger.Warn("monitor_stop_failed", slog.String("error", err.Error()))
			}
		})
	}
	c.effects.push(func(ctx context.Context) {
		err := c.transport.Open(ctx)
		_ = c.enqueue(event{kind: evOpenDone, err: err, attempt: attempt})
	})
	c.record(metrics.EventCallOpening, nil)
	c.publish()
}

func (c *Controller) openDone(ev event) {
	if ev.attempt != c.attempt {
		return
	}
	c.inFlight = false
	if ev.err == nil {
		if c.state == StateConnecting {
			_ = c.transition(StateActive, "call opened")
			c.callStarted = c.clock.Now()
			c.record(metrics.EventCallOpened, nil)
			c.publish()
			return
		}
		// The attempt failed while the channel was still coming up.
		c.logger.Warn("abandoned_call_closing", slog.String("state", c.state.String()))
		c.closeTransport(transports.CloseError)
		return
	}
	if c.state == StateConnecting {
		c.fail(ev.err.Error())
		return
	}
	c.maybeResume()
}

func (c *Controller) endCall() {
	if c.state != StateActive {
		c.logger.Info("end_call_rejected", slog.String("state", c.state.String()))
		return
	}
	if c.inFlight {
		c.logger.Info("end_call_in_flight")
		return
	}
	c.closeTransport(transports.CloseUser)
}

func (c *Controller) closeTransport(reason transports.CloseReason) {
	c.inFlight = true
	c.effects.push(func(ctx context.Context) {
		err := c.transport.Close(ctx, reason)
		_ = c.enqueue(event{kind: evCloseDone, err: err})
	})
}

func (c *Controller) closeDone(ev event) {
	c.inFlight = false
	switch {
	case errors.Is(ev.err, transports.ErrTooEarly):
		c.notice = "Call just started; try ending it again in a moment"
		c.publish()
	case ev.err != nil && !errors.Is(ev.err, transports.ErrNotActive):
		c.logger.Warn("call_close_failed", slog.String("error", ev.err.Error()))
	}
	c.maybeResume()
}

func (c *Controller) callEnded() {
	if !c.state.CallLive() {
		c.logger.Debug("call_ended_ignored", slog.String("state", c.state.String()))
		return
	}
	if err := c.transition(StateEnded, "call ended"); err != nil {
		return
	}
	now := c.clock.Now()
	c.log.CompleteAll()
	c.log.System("Call ended", now)
	fields := map[string]string{}
	if !c.callStarted.IsZero() {
		fields["duration_ms"] = strconv.FormatInt(now.Sub(c.callStarted).Milliseconds(), 10)
	}
	c.record(metrics.EventCallEnded, fields)
	c.callStarted = time.Time{}
	c.scheduleCooldown()
	c.publish()
}

func (c *Controller) transportError(msg string) {
	if !c.state.CallLive() {
		c.logger.Debug("transport_error_ignored",
			slog.String("state", c.state.String()),
			slog.String("message", msg))
		return
	}
	c.fail(msg)
}

func (c *Controller) fail(msg string) {
	if err := c.transition(StateError, "transport error"); err != nil {
		return
	}
	c.lastErr = msg
	c.log.CompleteAll()
	c.log.System("Error: "+msg, c.clock.Now())
	c.callStarted = time.Time{}
	c.record(metrics.EventCallError, map[string]string{"message": msg})
	c.scheduleCooldown()
	c.publish()
}

func (c *Controller) acceptStream(kind string) bool {
	if c.state.CallLive() {
		return true
	}
	c.logger.Debug("stream_event_dropped",
		slog.String("kind", kind),
		slog.String("state", c.state.String()))
	return false
}

func (c *Controller) scheduleCooldown() {
	c.cancelCooldown()
	gen := c.cooldownGen
	c.cooldown = c.clock.AfterFunc(c.cfg.Cooldown, func() {
		_ = c.enqueue(event{kind: evCooldown, gen: gen})
	})
}

func (c *Controller) cancelCooldown() {
	if c.cooldown != nil {
		c.cooldown.Stop()
		c.cooldown = nil
	}
	c.cooldownGen++
}

func (c *Controller) cooldownDone(gen uint64) {
	if gen != c.cooldownGen || (c.state != StateEnded && c.state != StateError) {
		return
	}
	c.cooldown = nil
	if c.inFlight {
		c.resumePending = true
		return
	}
	c.resume("cooldown elapsed")
}

func (c *Controller) maybeResume() {
	if !c.resumePending || c.inFlight {
		return
	}
	c.resumePending = false
	if c.state == StateEnded || c.state == StateError {
		c.resume("cooldown elapsed")
	}
}

// resume returns to listening, or to idle when no monitor is configured.
func (c *Controller) resume(reason string) {
	if c.monitor == nil {
		if c.state != StateIdle {
			_ = c.transition(StateIdle, reason)
		}
		c.publish()
		return
	}
	if err := c.transition(StateListening, reason); err != nil {
		return
	}
	c.effects.push(func(ctx context.Context) {
		if err := c.monitor.Start(ctx); err != nil {
			c.logger.Warn("monitor_start_failed", slog.String("error", err.Error()))
		}
	})
	c.publish()
}

func (c *Controller) transition(to State, reason string) error {
	from := c.state
	if !transitionValid(from, to) {
		err := &InvalidTransitionError{From: from, To: to}
		c.logger.Warn("invalid_transition", slog.String("error", err.Error()))
		return err
	}
	c.state = to
	c.change = StateChange{From: from, To: to, At: c.clock.Now(), Reason: reason}
	c.logger.Info("state_changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason))
	c.observer.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventStateChange,
		Time: c.clock.Now(),
		Tags: map[string]string{"from": from.String(), "to": to.String(), metrics.TagAttempt: strconv.FormatUint(c.attempt, 10)},
	})
	return nil
}

func (c *Controller) record(name string, tags map[string]string) {
	if tags == nil {
		tags = map[string]string{}
	}
	tags[metrics.TagAttempt] = strconv.FormatUint(c.attempt, 10)
	c.observer.RecordEvent(metrics.MetricsEvent{Name: name, Time: c.clock.Now(), Value: 1, Tags: tags})
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:         c.state,
		Messages:      c.log.Messages(),
		LastError:     c.lastErr,
		Notice:        c.notice,
		CallStartedAt: c.callStarted,
		Activation:    c.monitor != nil,
		Change:        c.change,
	}
}

func (c *Controller) publish() {
	s := c.snapshot()
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.last = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
	c.cancelCooldown()
	c.effects.stop()
	if c.cancel != nil {
		c.cancel()
	}
	<-c.effects.done
	c.downOnce.Do(c.teardown)
	c.logger.Info("conversation_closed", slog.String("state", c.state.String()))

	c.subsMu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subsMu.Unlock()
	close(c.done)
}

// teardown ends a live call with stop_call before disposing the transport.
func (c *Controller) teardown() {
	if c.monitor != nil {
		if err := c.monitor.Stop(); err != nil {
			c.logger.Warn("monitor_stop_failed", slog.String("error", err.Error()))
		}
	}
	if c.transport.Session().Status == transports.StatusActive {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownCloseTimeout)
		if err := c.transport.Close(ctx, transports.CloseShutdown); err != nil {
			c.logger.Warn("shutdown_close_failed", slog.String("error", err.Error()))
		}
		cancel()
	}
	c.transport.Dispose()
}

type monitorListener struct{ c *Controller }

func (l monitorListener) OnActivated() { _ = l.c.enqueue(event{kind: evActivated}) }
func (l monitorListener) OnRecognitionError(kind activation.ErrorKind) {
	_ = l.c.enqueue(event{kind: evRecognitionError, text: string(kind)})
}

type transportListener struct{ c *Controller }

func (l transportListener) OnTranscriptFragment(role transports.Role, text string) {
	l.c.logger.Debug("fragment_received", slog.String("role", string(role)), slog.String("text", redact.Text(text)))
	_ = l.c.enqueue(event{kind: evFragment, role: role, text: text})
}
func (l transportListener) OnResponse(text string) {
	_ = l.c.enqueue(event{kind: evResponse, text: text})
}
func (l transportListener) OnSentenceComplete() { _ = l.c.enqueue(event{kind: evSentence}) }
func (l transportListener) OnCallEnded()        { _ = l.c.enqueue(event{kind: evCallEnded}) }
func (l transportListener) OnError(message string) {
	_ = l.c.enqueue(event{kind: evTransportError, text: message})
}
