package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/history"
	"github.com/harunnryd/wakecall/pkg/platform"
)

type stubAPI struct {
	opts  platform.ListOptions
	calls []platform.Call
	get   platform.Call
	err   error
}

func (s *stubAPI) ListCalls(_ context.Context, opts platform.ListOptions) ([]platform.Call, error) {
	s.opts = opts
	return s.calls, s.err
}

func (s *stubAPI) GetCall(context.Context, string) (platform.Call, error) {
	return s.get, s.err
}

func TestListMapsCalls(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	api := &stubAPI{calls: []platform.Call{{
		CallID:         "call_1",
		AgentID:        "agent_1",
		CallType:       "web_call",
		Status:         "ended",
		StartTimestamp: start.UnixMilli(),
		EndTimestamp:   start.Add(90 * time.Second).UnixMilli(),
		Analysis:       &platform.CallAnalysis{Summary: "booked", UserSentiment: "Positive", Successful: true},
	}}}
	p := New(api, "agent_1")

	recs, err := p.List(context.Background(), history.Query{Cursor: "next"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if api.opts.Limit != history.DefaultLimit || api.opts.PaginationKey != "next" || api.opts.AgentID != "agent_1" {
		t.Fatalf("unexpected options %+v", api.opts)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.ID != "call_1" || rec.Source != Name || rec.Duration != 90*time.Second || !rec.StartedAt.Equal(start) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Summary != "booked" || rec.Successful == nil || !*rec.Successful {
		t.Fatalf("analysis not mapped: %+v", rec)
	}
}

func TestGetMapsNotFound(t *testing.T) {
	api := &stubAPI{err: errorsx.Wrap(&platform.HTTPError{Status: 404, Body: "nope"}, errorsx.ReasonHistoryFetch)}
	p := New(api, "")
	if _, err := p.Get(context.Background(), "call_x"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetWithoutAnalysis(t *testing.T) {
	api := &stubAPI{get: platform.Call{CallID: "call_2", Status: "ongoing"}}
	rec, err := New(api, "").Get(context.Background(), "call_2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Successful != nil || rec.Duration != 0 || !rec.StartedAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}
}
