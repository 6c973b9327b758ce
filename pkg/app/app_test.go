package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/conversation"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/metrics"
)

func waitSnapshot(t *testing.T, ch <-chan conversation.Snapshot, desc string, ok func(conversation.Snapshot) bool) conversation.Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s, open := <-ch:
			if !open {
				t.Fatalf("subscription closed while waiting for %s", desc)
			}
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
		}
	}
}

func TestAppRunsMockCallEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
activation:
  trigger_phrase: "hey wake"
recognizer:
  provider: mock
  settings:
    script: ["hello there", "Hey Wake up"]
    interval: 10ms
transport:
  provider: mock
  settings:
    greeting: "Hi, how can I help?"
    reply_delay: 10ms
call:
  min_duration: 0s
  cooldown: 10s
observability:
  timeline_dir: `+dir+`
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mem := metrics.NewMemoryObserver()
	a, err := New(cfg, Options{
		Logger:    logging.NewLogger(nil, 0, "text"),
		Observers: []metrics.Observer{mem},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Monitor() == nil || a.Transport().Name() != "mock" {
		t.Fatalf("unexpected wiring")
	}

	snaps, unsubscribe := a.Controller().Subscribe()
	defer unsubscribe()
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSnapshot(t, snaps, "greeting", func(s conversation.Snapshot) bool {
		if s.State != conversation.StateActive {
			return false
		}
		for _, m := range s.Messages {
			if m.Kind == conversation.KindResponse && m.Text == "Hi, how can I help?" && m.Complete {
				return true
			}
		}
		return false
	})

	if err := a.Controller().EndCall(); err != nil {
		t.Fatalf("end call: %v", err)
	}
	waitSnapshot(t, snaps, "ended", func(s conversation.Snapshot) bool {
		return s.State == conversation.StateEnded || s.State == conversation.StateListening
	})

	if err := a.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := a.Drain(); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if mem.Count(metrics.EventCallOpened) != 1 || mem.Count(metrics.EventCallEnded) != 1 {
		t.Fatalf("expected one opened and one ended call, got %d/%d",
			mem.Count(metrics.EventCallOpened), mem.Count(metrics.EventCallEnded))
	}
	if lat, ok := a.Latency().Last(); !ok || lat.Failed || lat.Duration < 0 {
		t.Fatalf("expected a measured call, got %+v", lat)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read timeline dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), a.RunID()) {
		t.Fatalf("expected one timeline for run %s, got %v", a.RunID(), entries)
	}
}

func TestAppManualOnlyWhenActivationDisabled(t *testing.T) {
	cfg := Config{
		Transport:     VendorConfig{Provider: "mock"},
		Activation:    ActivationConfig{Enabled: false},
		Observability: ObservabilityConfig{MetricsBuffer: 8},
	}
	a, err := New(cfg, Options{Logger: logging.NewLogger(nil, 0, "text")})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Monitor() != nil {
		t.Fatalf("expected no monitor")
	}
	snaps, unsubscribe := a.Controller().Subscribe()
	defer unsubscribe()
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatalf("second start must fail")
	}
	if err := a.Controller().StartCall(); err != nil {
		t.Fatalf("start call: %v", err)
	}
	waitSnapshot(t, snaps, "active", func(s conversation.Snapshot) bool {
		return s.State == conversation.StateActive && !s.Activation
	})
	if err := a.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	cfg := Config{Transport: VendorConfig{Provider: "carrier-pigeon"}}
	if _, err := New(cfg, Options{}); !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	cfg = Config{Transport: VendorConfig{Provider: "realtime"}}
	_, err := New(cfg, Options{})
	if err == nil || !strings.Contains(err.Error(), "platform.api_key") {
		t.Fatalf("expected missing platform credentials, got %v", err)
	}
	cfg = Config{
		Transport:  VendorConfig{Provider: "mock"},
		Activation: ActivationConfig{Enabled: true, TriggerPhrase: "hi"},
		Recognizer: VendorConfig{Provider: "deepgram"},
	}
	_, err = New(cfg, Options{})
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected deepgram api_key error, got %v", err)
	}
}

func TestNewHistoryBuildsProviders(t *testing.T) {
	cfg := Config{History: VendorConfig{Provider: "platform"}, Platform: PlatformConfig{APIKey: "k"}}
	p, err := NewHistory(cfg, nil, nil)
	if err != nil || p.Name() != "platform" {
		t.Fatalf("platform history: %v", err)
	}
	cfg = Config{History: VendorConfig{Provider: "twilio", Settings: map[string]any{"account_sid": "AC1", "auth_token": "t"}}}
	p, err = NewHistory(cfg, nil, nil)
	if err != nil || p.Name() != "twilio" {
		t.Fatalf("twilio history: %v", err)
	}
	cfg = Config{History: VendorConfig{Provider: "platform"}}
	if _, err := NewHistory(cfg, nil, nil); !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
