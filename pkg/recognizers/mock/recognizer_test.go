package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/activation"
)

type handler struct {
	mu      sync.Mutex
	results []string
	ends    int
	done    chan struct{}
}

func (h *handler) OnResult(t []string) {
	h.mu.Lock()
	h.results = append(h.results, t...)
	h.mu.Unlock()
}

func (h *handler) OnError(activation.ErrorKind) {}

func (h *handler) OnEnd() {
	h.mu.Lock()
	h.ends++
	h.mu.Unlock()
	if h.done != nil {
		close(h.done)
	}
}

func TestRecognizerPlaysScriptThenEnds(t *testing.T) {
	rec := New(Config{Script: []string{"hello", "hey assistant"}, Interval: 5 * time.Millisecond})
	h := &handler{done: make(chan struct{})}
	if err := rec.Start(context.Background(), h); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("script did not finish")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) != 2 || h.results[1] != "hey assistant" {
		t.Fatalf("unexpected results: %v", h.results)
	}
	if rec.Active() {
		t.Fatalf("expected run detached after end")
	}
}

func TestRecognizerManualDrive(t *testing.T) {
	rec := New(Config{})
	h := &handler{}
	if rec.Emit("x") {
		t.Fatalf("emit without run must fail")
	}
	_ = rec.Start(context.Background(), h)
	if !rec.Emit("a", "b") {
		t.Fatalf("emit failed")
	}
	if !rec.End() || rec.End() {
		t.Fatalf("end must succeed exactly once")
	}
	if h.ends != 1 || len(h.results) != 2 {
		t.Fatalf("unexpected handler state: ends=%d results=%v", h.ends, h.results)
	}
	_ = rec.Stop()
	starts, stops := rec.Counts()
	if starts != 1 || stops != 0 {
		t.Fatalf("unexpected counts %d/%d", starts, stops)
	}
}
