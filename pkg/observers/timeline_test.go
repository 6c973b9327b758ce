package observers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/metrics"
)

func TestTimelineObserverWritesPerAttempt(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir, "run1", true)

	now := time.Now()
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventCallOpening, Time: now, Tags: map[string]string{metrics.TagAttempt: "1"}})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventCallError,
		Time: now,
		Tags: map[string]string{metrics.TagAttempt: "1", "message": "reach me at jane@example.com"},
	})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventStateChange, Time: now, Tags: map[string]string{metrics.TagAttempt: "0"}})
	if err := obs.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "run1-1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	out := string(b)
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	if !strings.Contains(out, `"event":"call_error"`) {
		t.Fatalf("expected call_error event, got %q", out)
	}
	if strings.Contains(out, "jane@example.com") {
		t.Fatalf("expected email redacted, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "run1-0.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("attempt 0 must not produce a trace")
	}
}

func TestPurgeTimelines(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	_ = os.Chtimes(old, past, past)
	_ = os.Chtimes(other, past, past)

	n, err := PurgeTimelines(dir, 24*time.Hour, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 removed, got %d err=%v", n, err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh trace removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("non-trace file removed")
	}
	if n, err := PurgeTimelines(filepath.Join(dir, "missing"), time.Hour, time.Now()); n != 0 || err != nil {
		t.Fatalf("missing dir: %d %v", n, err)
	}
}
