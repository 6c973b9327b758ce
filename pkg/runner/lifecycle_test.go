package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestLifecycleRunnerDrainsOnCancel(t *testing.T) {
	drained := make(chan struct{})
	stopped := false
	var banner bytes.Buffer
	r := NewLifecycleRunner(DrainFunc(func() error {
		close(drained)
		return nil
	}), Hooks{OnStop: func() { stopped = true }}, time.Second, WithBanner(&banner))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return")
	}
	select {
	case <-drained:
	default:
		t.Fatalf("drainer not called")
	}
	if !stopped || r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if banner.Len() == 0 {
		t.Fatalf("expected banner output")
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on rerun, got %v", err)
	}
}

func TestLifecycleRunnerStartFailure(t *testing.T) {
	drains := 0
	r := NewLifecycleRunner(DrainFunc(func() error {
		drains++
		return nil
	}), Hooks{OnStart: func(context.Context) error { return errors.New("boom") }}, time.Second)

	err := r.Run(context.Background())
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected start error, got %v", err)
	}
	if drains != 1 {
		t.Fatalf("expected one drain, got %d", drains)
	}
}

func TestLifecycleRunnerDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(DrainFunc(func() error {
		<-block
		return nil
	}), Hooks{}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("stop must return the same error, got %v", err)
	}
}
