package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/metrics"
	"github.com/harunnryd/wakecall/pkg/redact"
)

// TimelineObserver writes one JSONL trace per call attempt. Files are named
// <run>-<attempt>.jsonl so consecutive process runs never share a file.
type TimelineObserver struct {
	dir    string
	run    string
	redact bool
	mu     sync.Mutex
	files  map[string]*os.File
}

// NewTimelineObserver creates a timeline observer writing to dir. When
// redactPII is set, string tags and fields pass through redact.Text.
func NewTimelineObserver(dir, runID string, redactPII bool) *TimelineObserver {
	return &TimelineObserver{
		dir:    dir,
		run:    sanitizeID(runID),
		redact: redactPII,
		files:  make(map[string]*os.File),
	}
}

// RecordEvent implements metrics.Observer.
func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	attempt := ev.Tag(metrics.TagAttempt)
	if attempt == "" || attempt == "0" || strings.TrimSpace(o.dir) == "" {
		return
	}
	entry := timelineEvent{
		Time:    ev.Time.UTC(),
		Event:   ev.Name,
		Attempt: attempt,
		Tags:    o.sanitizeTags(ev.Tags),
		Fields:  o.sanitizeFields(ev.Fields),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	f := o.fileFor(attempt)
	if f == nil {
		return
	}
	o.mu.Lock()
	_, _ = f.Write(append(line, '\n'))
	o.mu.Unlock()
}

// Flush syncs every open trace file.
func (o *TimelineObserver) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		err = errors.Join(err, f.Sync())
	}
	return err
}

// Close closes any open files.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

type timelineEvent struct {
	Time    time.Time         `json:"time"`
	Event   string            `json:"event"`
	Attempt string            `json:"attempt"`
	Tags    map[string]string `json:"tags,omitempty"`
	Fields  map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) fileFor(attempt string) *os.File {
	name := sanitizeID(attempt)
	if o.run != "" {
		name = o.run + "-" + name
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if f := o.files[name]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, name+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	o.files[name] = f
	return f
}

func (o *TimelineObserver) sanitizeTags(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if k == metrics.TagAttempt {
			continue
		}
		if o.redact {
			v = redact.Text(v)
		}
		out[k] = v
	}
	return out
}

func (o *TimelineObserver) sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok && o.redact {
			out[k] = redact.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

var _ metrics.Observer = (*TimelineObserver)(nil)
