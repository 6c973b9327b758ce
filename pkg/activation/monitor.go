package activation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/resilience"
)

// Config controls trigger matching, restart backoff and error reporting.
type Config struct {
	TriggerPhrase       string
	Backoff             resilience.Backoff
	ErrorReportInterval time.Duration
	Clock               clock.Clock
	Logger              *slog.Logger
}

// State is a snapshot of the monitor.
type State struct {
	Running   bool
	Triggered bool
	Failures  int
}

// Monitor watches continuous recognition for the trigger phrase and fires
// OnActivated once per cycle. It restarts the engine with exponential backoff
// when it ends on its own.
type Monitor struct {
	rec      Recognizer
	phrase   string
	backoff  resilience.Backoff
	throttle *resilience.Throttle
	clock    clock.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	listener  Listener
	ctx       context.Context
	running   bool
	triggered bool
	failures  int
	gen       uint64
	restart   clock.Timer
}

func NewMonitor(rec Recognizer, cfg Config) *Monitor {
	c := clock.Or(cfg.Clock)
	b := cfg.Backoff
	if b.Base <= 0 || b.Factor < 1 || b.Max <= 0 {
		b = resilience.NewBackoff(b.Base, b.Factor, b.Max)
	}
	return &Monitor{
		rec:      rec,
		phrase:   normalize(cfg.TriggerPhrase),
		backoff:  b,
		throttle: resilience.NewThrottle(cfg.ErrorReportInterval, c),
		clock:    c,
		logger:   logging.NewComponentLogger(cfg.Logger, "activation"),
	}
}

// SetListener wires the single consumer of activation signals.
func (m *Monitor) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// State returns the current activation state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Running: m.running, Triggered: m.triggered, Failures: m.failures}
}

// Running reports whether the monitor is supposed to be listening.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start begins continuous recognition. It is a no-op when already running.
// An engine start failure is returned but the monitor keeps retrying with
// backoff until Stop.
func (m *Monitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.triggered = false
	m.ctx = ctx
	m.mu.Unlock()

	m.logger.Info("activation_started", slog.String("engine", m.rec.Name()))
	return m.launch()
}

// Stop halts recognition, cancels any pending restart and silences further
// auto-restarts.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running && m.restart == nil {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.gen++
	m.cancelRestartLocked()
	m.mu.Unlock()

	m.logger.Info("activation_stopped")
	return m.rec.Stop()
}

func (m *Monitor) launch() error {
	m.mu.Lock()
	if !m.running || m.triggered {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	ctx := m.ctx
	m.restart = nil
	m.mu.Unlock()

	err := m.rec.Start(ctx, &runHandler{m: m, gen: gen})

	m.mu.Lock()
	if gen != m.gen || !m.running {
		m.mu.Unlock()
		if err == nil {
			_ = m.rec.Stop()
		}
		return nil
	}
	if err != nil {
		delay := m.scheduleRestartLocked()
		m.mu.Unlock()
		m.logger.Warn("recognizer_start_failed",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay))
		m.report(ErrorStartFailed)
		return errorsx.Wrap(err, errorsx.ReasonRecognitionStart)
	}
	m.failures = 0
	m.mu.Unlock()
	return nil
}

// scheduleRestartLocked arms the backoff timer and returns its delay.
func (m *Monitor) scheduleRestartLocked() time.Duration {
	m.cancelRestartLocked()
	delay := m.backoff.Delay(m.failures)
	m.failures++
	gen := m.gen
	m.restart = m.clock.AfterFunc(delay, func() { m.restartFired(gen) })
	return delay
}

func (m *Monitor) restartFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.running {
		m.mu.Unlock()
		return
	}
	m.restart = nil
	m.mu.Unlock()
	_ = m.launch()
}

func (m *Monitor) cancelRestartLocked() {
	if m.restart != nil {
		m.restart.Stop()
		m.restart = nil
	}
}

func (m *Monitor) onResult(gen uint64, transcripts []string) {
	joined := normalize(strings.Join(transcripts, " "))
	m.mu.Lock()
	if gen != m.gen || !m.running || m.triggered || m.phrase == "" {
		m.mu.Unlock()
		return
	}
	if !strings.Contains(joined, m.phrase) {
		m.mu.Unlock()
		return
	}
	m.triggered = true
	m.running = false
	m.gen++
	m.cancelRestartLocked()
	l := m.listener
	m.mu.Unlock()

	m.logger.Info("activation_detected", slog.String("transcript", redact.Text(joined)))
	_ = m.rec.Stop()
	if l != nil {
		l.OnActivated()
	}
}

func (m *Monitor) onError(gen uint64, kind ErrorKind) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}
	if kind.Benign() {
		m.logger.Debug("recognition_benign_error", slog.String("kind", string(kind)))
		return
	}
	m.report(kind)
}

func (m *Monitor) onEnd(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.running || m.triggered {
		m.mu.Unlock()
		return
	}
	delay := m.scheduleRestartLocked()
	m.mu.Unlock()
	m.logger.Debug("recognition_ended_restarting", slog.Duration("retry_in", delay))
}

func (m *Monitor) report(kind ErrorKind) {
	if !m.throttle.Allow() {
		m.logger.Debug("recognition_error_throttled", slog.String("kind", string(kind)))
		return
	}
	m.logger.Warn("recognition_error", slog.String("kind", string(kind)))
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		l.OnRecognitionError(kind)
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// runHandler binds engine callbacks to the run that produced them so events
// from a stopped run are ignored.
type runHandler struct {
	m   *Monitor
	gen uint64
}

func (h *runHandler) OnResult(transcripts []string) { h.m.onResult(h.gen, transcripts) }
func (h *runHandler) OnError(kind ErrorKind)        { h.m.onError(h.gen, kind) }
func (h *runHandler) OnEnd()                        { h.m.onEnd(h.gen) }
