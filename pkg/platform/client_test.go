package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/resilience"
)

func TestCreateWebCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/create-web-call" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body createWebCallRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.AgentID != "agent_1" || body.APIKey != "key" {
			t.Errorf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "call_id": "c1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	token, err := c.CreateWebCall(context.Background(), "agent_1")
	if err != nil {
		t.Fatalf("create web call: %v", err)
	}
	if token != "tok" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestCreateWebCallNon2xxIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	_, err := c.CreateWebCall(context.Background(), "agent_1")
	if errorsx.Reason(err) != errorsx.ReasonCredentialFetch {
		t.Fatalf("expected credential fetch reason, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected single round trip, got %d", hits.Load())
	}
}

func TestCreateWebCallEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", time.Second).CreateWebCall(context.Background(), "a")
	if errorsx.Reason(err) != errorsx.ReasonCredentialFetch {
		t.Fatalf("expected credential fetch reason, got %v", err)
	}
}

func TestListCallsRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var body listCallsRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Limit != 2 || body.FilterCriteria == nil {
			t.Errorf("unexpected list body %+v", body)
		}
		_, _ = w.Write([]byte(`[{"call_id":"c1","call_status":"ended","start_timestamp":1000,"end_timestamp":61000,
			"call_analysis":{"call_summary":"booked","user_sentiment":"Positive","call_successful":true}}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second, WithRetry(resilience.NewRetryPolicy(2, time.Millisecond)))
	calls, err := c.ListCalls(context.Background(), ListOptions{Limit: 2, AgentID: "agent_1"})
	if err != nil {
		t.Fatalf("list calls: %v", err)
	}
	if len(calls) != 1 || calls[0].Analysis == nil || !calls[0].Analysis.Successful {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[0].Duration() != time.Minute {
		t.Fatalf("unexpected duration %s", calls[0].Duration())
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d hits", hits.Load())
	}
}

func TestGetCallClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/v2/get-call/missing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second, WithRetry(resilience.NewRetryPolicy(3, time.Millisecond)))
	_, err := c.GetCall(context.Background(), "missing")
	if errorsx.Reason(err) != errorsx.ReasonHistoryFetch {
		t.Fatalf("expected history fetch reason, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("404 must not be retried, got %d hits", hits.Load())
	}
	if _, err := c.GetCall(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestHTTPErrorMasksEchoedCredentials(t *testing.T) {
	err := &HTTPError{Status: http.StatusUnauthorized, Body: `{"error":"invalid","api_key":"key_live_123"}`}
	if strings.Contains(err.Error(), "key_live_123") {
		t.Fatalf("credential leaked: %q", err.Error())
	}
}
