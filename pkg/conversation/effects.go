package conversation

import (
	"context"
	"sync"
)

// effectQueue runs side effects (monitor start/stop, transport open/close)
// one at a time in submission order, off the event loop.
type effectQueue struct {
	mu      sync.Mutex
	items   []func(ctx context.Context)
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newEffectQueue() *effectQueue {
	return &effectQueue{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (q *effectQueue) push(f func(ctx context.Context)) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *effectQueue) pop() func(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || len(q.items) == 0 {
		return nil
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return f
}

func (q *effectQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		if f := q.pop(); f != nil {
			f(ctx)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

// stop drops pending effects; the caller cancels ctx and waits on done.
func (q *effectQueue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.items = nil
	q.mu.Unlock()
}
