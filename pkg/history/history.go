// Package history lists and retrieves past calls from a configured backend.
package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("history: call not found")

// Record is a past call, normalized across backends. Analysis fields are
// empty when the backend does not produce them.
type Record struct {
	ID               string        `json:"id"`
	Source           string        `json:"source"`
	Status           string        `json:"status,omitempty"`
	Direction        string        `json:"direction,omitempty"`
	From             string        `json:"from,omitempty"`
	To               string        `json:"to,omitempty"`
	AgentID          string        `json:"agent_id,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	DisconnectReason string        `json:"disconnect_reason,omitempty"`
	Transcript       string        `json:"transcript,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	Sentiment        string        `json:"sentiment,omitempty"`
	Successful       *bool         `json:"successful,omitempty"`
}

// Query selects a page of records, newest first.
type Query struct {
	Limit  int
	Cursor string
}

const DefaultLimit = 20

// PageSize returns the page size, falling back to DefaultLimit.
func (q Query) PageSize() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Provider is a call history backend.
type Provider interface {
	Name() string
	List(ctx context.Context, q Query) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
}
