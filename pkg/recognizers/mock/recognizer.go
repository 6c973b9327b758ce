package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/activation"
)

type Config struct {
	// Script is played one entry per Interval after each Start, then the run ends.
	Script   []string
	Interval time.Duration
	StartErr error
}

// Recognizer is an in-memory engine. It plays an optional script and exposes
// Emit/Fail/End so callers can drive it directly.
type Recognizer struct {
	cfg Config

	mu      sync.Mutex
	handler activation.RecognizerHandler
	cancel  context.CancelFunc
	starts  int
	stops   int
}

func New(cfg Config) *Recognizer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Name() string { return "mock" }

func (r *Recognizer) Start(ctx context.Context, h activation.RecognizerHandler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.cfg.StartErr != nil {
		return r.cfg.StartErr
	}
	if r.handler != nil {
		return nil
	}
	r.handler = h
	if len(r.cfg.Script) > 0 {
		runCtx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go r.play(runCtx, h)
	}
	return nil
}

func (r *Recognizer) play(ctx context.Context, h activation.RecognizerHandler) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for _, line := range r.cfg.Script {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		h.OnResult([]string{line})
	}
	if r.detach(h) {
		h.OnEnd()
	}
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handler == nil {
		return nil
	}
	r.stops++
	r.handler = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}

// SetStartErr makes subsequent starts fail with err (nil clears it).
func (r *Recognizer) SetStartErr(err error) {
	r.mu.Lock()
	r.cfg.StartErr = err
	r.mu.Unlock()
}

// Emit delivers a result batch to the running handler.
func (r *Recognizer) Emit(transcripts ...string) bool {
	h := r.current()
	if h == nil {
		return false
	}
	h.OnResult(transcripts)
	return true
}

// Fail reports an engine error to the running handler.
func (r *Recognizer) Fail(kind activation.ErrorKind) bool {
	h := r.current()
	if h == nil {
		return false
	}
	h.OnError(kind)
	return true
}

// End simulates the engine stopping on its own.
func (r *Recognizer) End() bool {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h == nil || !r.detach(h) {
		return false
	}
	h.OnEnd()
	return true
}

// Active reports whether a run is in progress.
func (r *Recognizer) Active() bool {
	return r.current() != nil
}

// Counts returns how many times Start and an effective Stop were called.
func (r *Recognizer) Counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

func (r *Recognizer) current() activation.RecognizerHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

func (r *Recognizer) detach(h activation.RecognizerHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handler != h {
		return false
	}
	r.handler = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return true
}

var _ activation.Recognizer = (*Recognizer)(nil)
