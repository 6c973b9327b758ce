package twilio

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/history"
)

type stubCalls struct {
	list    *api.ListCallParams
	calls   []api.ApiV2010Call
	fetched string
	call    *api.ApiV2010Call
	err     error
}

func (s *stubCalls) ListCall(params *api.ListCallParams) ([]api.ApiV2010Call, error) {
	s.list = params
	return s.calls, s.err
}

func (s *stubCalls) FetchCall(sid string, _ *api.FetchCallParams) (*api.ApiV2010Call, error) {
	s.fetched = sid
	return s.call, s.err
}

func ptr(s string) *string { return &s }

func TestListMapsTwilioCalls(t *testing.T) {
	stub := &stubCalls{calls: []api.ApiV2010Call{{
		Sid:       ptr("CA123"),
		Status:    ptr("completed"),
		Direction: ptr("inbound"),
		From:      ptr("+15550001111"),
		To:        ptr("+15550002222"),
		StartTime: ptr("Fri, 01 Mar 2024 10:00:00 +0000"),
		Duration:  ptr("42"),
	}}}
	p := &Provider{cfg: Settings{PageSize: 50, To: "+15550002222"}, client: stub}

	recs, err := p.List(context.Background(), history.Query{Limit: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if stub.list == nil || stub.list.Limit == nil || *stub.list.Limit != 5 {
		t.Fatalf("limit not forwarded")
	}
	if stub.list.To == nil || *stub.list.To != "+15550002222" {
		t.Fatalf("to filter not forwarded")
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if rec.ID != "CA123" || rec.Source != Name || rec.Duration != 42*time.Second || !rec.StartedAt.Equal(want) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Successful != nil || rec.Summary != "" {
		t.Fatalf("twilio records carry no analysis: %+v", rec)
	}
}

func TestListWrapsErrors(t *testing.T) {
	p := &Provider{client: &stubCalls{err: errors.New("401")}}
	_, err := p.List(context.Background(), history.Query{})
	if !errorsx.HasReason(err, errorsx.ReasonHistoryList) {
		t.Fatalf("expected history_list reason, got %v", err)
	}
}

func TestGetFetchesBySid(t *testing.T) {
	stub := &stubCalls{call: &api.ApiV2010Call{Sid: ptr("CA9"), Status: ptr("in-progress")}}
	p := &Provider{client: stub}
	rec, err := p.Get(context.Background(), "CA9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stub.fetched != "CA9" || rec.Status != "in-progress" || rec.Duration != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := p.Get(context.Background(), " "); !errorsx.HasReason(err, errorsx.ReasonHistoryFetch) {
		t.Fatalf("expected history_fetch for empty sid, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(map[string]any{"account_sid": "AC1"})
	if !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	p, err := New(map[string]any{"account_sid": "AC1", "auth_token": "tok", "page-size": "25"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.cfg.PageSize != 25 || p.Name() != Name {
		t.Fatalf("unexpected settings %+v", p.cfg)
	}
}
