// Package platform serves call history from the voice agent platform.
package platform

import (
	"context"
	"errors"
	"net/http"

	"github.com/harunnryd/wakecall/pkg/history"
	"github.com/harunnryd/wakecall/pkg/platform"
)

const Name = "platform"

type callAPI interface {
	ListCalls(ctx context.Context, opts platform.ListOptions) ([]platform.Call, error)
	GetCall(ctx context.Context, id string) (platform.Call, error)
}

type Provider struct {
	api     callAPI
	agentID string
}

// New returns a provider; agentID narrows listings to one agent when set.
func New(api callAPI, agentID string) *Provider {
	return &Provider{api: api, agentID: agentID}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) List(ctx context.Context, q history.Query) ([]history.Record, error) {
	calls, err := p.api.ListCalls(ctx, platform.ListOptions{
		Limit:         q.PageSize(),
		PaginationKey: q.Cursor,
		AgentID:       p.agentID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]history.Record, 0, len(calls))
	for _, c := range calls {
		out = append(out, toRecord(c))
	}
	return out, nil
}

func (p *Provider) Get(ctx context.Context, id string) (history.Record, error) {
	call, err := p.api.GetCall(ctx, id)
	if err != nil {
		var httpErr *platform.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return history.Record{}, history.ErrNotFound
		}
		return history.Record{}, err
	}
	return toRecord(call), nil
}

func toRecord(c platform.Call) history.Record {
	rec := history.Record{
		ID:               c.CallID,
		Source:           Name,
		Status:           c.Status,
		Direction:        c.CallType,
		AgentID:          c.AgentID,
		StartedAt:        c.StartedAt(),
		Duration:         c.Duration(),
		DisconnectReason: c.DisconnectionReason,
		Transcript:       c.Transcript,
	}
	if a := c.Analysis; a != nil {
		rec.Summary = a.Summary
		rec.Sentiment = a.UserSentiment
		ok := a.Successful
		rec.Successful = &ok
	}
	return rec
}
