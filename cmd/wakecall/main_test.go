package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wakecall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func platformServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/list-calls":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["limit"] != float64(5) {
				t.Errorf("expected limit 5, got %v", body["limit"])
			}
			_, _ = w.Write([]byte(`[{"call_id":"call_a","call_status":"ended","start_timestamp":1709287200000,"end_timestamp":1709287260000,"call_analysis":{"user_sentiment":"Positive"}}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2/get-call/call_a":
			_, _ = w.Write([]byte(`{"call_id":"call_a","call_status":"ended","transcript":"User: mail me at jane@example.com","call_analysis":{"call_summary":"asked for email","call_successful":true}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestCallsListPrintsTable(t *testing.T) {
	srv := platformServer(t)
	defer srv.Close()
	path := writeConfig(t, "platform:\n  base_url: "+srv.URL+"\n  api_key: key_test\n")

	out, err := execute(t, "--config", path, "calls", "list", "--limit", "5")
	if err != nil {
		t.Fatalf("calls list: %v", err)
	}
	for _, want := range []string{"ID", "call_a", "1m0s", "Positive"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCallsGetRedactsTranscript(t *testing.T) {
	srv := platformServer(t)
	defer srv.Close()
	path := writeConfig(t, "platform:\n  base_url: "+srv.URL+"\n  api_key: key_test\n")

	out, err := execute(t, "--config", path, "calls", "get", "call_a", "--json")
	if err != nil {
		t.Fatalf("calls get: %v", err)
	}
	if strings.Contains(out, "jane@example.com") {
		t.Fatalf("expected transcript redacted:\n%s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["id"] != "call_a" || rec["successful"] != true {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestCallsListRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, "history:\n  provider: platform\n")
	if _, err := execute(t, "--config", path, "calls", "list"); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestConfigCheckWithMockProviders(t *testing.T) {
	path := writeConfig(t, `
log_level: error
activation:
  trigger_phrase: hey wake
recognizer:
  provider: mock
transport:
  provider: mock
`)
	out, err := execute(t, "--config", path, "config", "check")
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"transport:  mock", `trigger "hey wake"`, "history:    platform unavailable", "ok"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
