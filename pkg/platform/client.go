// Package platform is the HTTP client for the hosted voice-agent platform:
// web-call credentials and call history.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/resilience"
)

const defaultBaseURL = "https://api.retellai.com"

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.NewComponentLogger(l, "platform") }
}

func WithRetry(p resilience.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   resilience.RetryPolicy
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		retry:   resilience.NewRetryPolicy(2, 300*time.Millisecond),
		logger:  logging.NewComponentLogger(nil, "platform"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPError is a non-2xx platform response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("platform: status %d: %s", e.Status, redact.Credentials(e.Body))
}

// Temporary reports whether the request may succeed on retry.
func (e *HTTPError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type createWebCallRequest struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

type createWebCallResponse struct {
	AccessToken string `json:"access_token"`
	CallID      string `json:"call_id,omitempty"`
}

// CreateWebCall exchanges the agent id for a short-lived access credential.
// It is a single round trip; failures are not retried.
func (c *Client) CreateWebCall(ctx context.Context, agentID string) (string, error) {
	var out createWebCallResponse
	body := createWebCallRequest{AgentID: agentID, APIKey: c.apiKey}
	if err := c.do(ctx, http.MethodPost, "/v2/create-web-call", body, &out); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonCredentialFetch)
	}
	if out.AccessToken == "" {
		return "", errorsx.Newf(errorsx.ReasonCredentialFetch, "platform: empty access token")
	}
	c.logger.Info("web_call_created", slog.String("call_id", out.CallID))
	return out.AccessToken, nil
}

// ListOptions pages through past calls.
type ListOptions struct {
	Limit         int    `json:"limit,omitempty"`
	PaginationKey string `json:"pagination_key,omitempty"`
	AgentID       string `json:"-"`
}

type listCallsRequest struct {
	Limit          int            `json:"limit,omitempty"`
	PaginationKey  string         `json:"pagination_key,omitempty"`
	FilterCriteria map[string]any `json:"filter_criteria,omitempty"`
	SortOrder      string         `json:"sort_order,omitempty"`
}

// ListCalls returns past calls, newest first.
func (c *Client) ListCalls(ctx context.Context, opts ListOptions) ([]Call, error) {
	req := listCallsRequest{Limit: opts.Limit, PaginationKey: opts.PaginationKey, SortOrder: "descending"}
	if opts.AgentID != "" {
		req.FilterCriteria = map[string]any{"agent_id": []string{opts.AgentID}}
	}
	var out []Call
	err := c.retry.Do(ctx, retryable, func(ctx context.Context) error {
		out = nil
		return c.do(ctx, http.MethodPost, "/v2/list-calls", req, &out)
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonHistoryList)
	}
	return out, nil
}

// GetCall fetches one call with its post-call analysis.
func (c *Client) GetCall(ctx context.Context, id string) (Call, error) {
	if strings.TrimSpace(id) == "" {
		return Call{}, errorsx.Newf(errorsx.ReasonHistoryFetch, "platform: call id required")
	}
	var out Call
	err := c.retry.Do(ctx, retryable, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/v2/get-call/"+url.PathEscape(id), nil, &out)
	})
	if err != nil {
		return Call{}, errorsx.Wrap(err, errorsx.ReasonHistoryFetch)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("platform: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("platform: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("platform_request_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("platform: request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("platform_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}
