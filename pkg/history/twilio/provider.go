// Package twilio serves call history from the Twilio Calls API, for agents
// reached over a Twilio number instead of the browser channel.
package twilio

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/wakecall/pkg/configutil"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/history"
)

const Name = "twilio"

// Schema lists the keys accepted under history.settings.
var Schema = configutil.Schema{
	Required: []string{"account_sid", "auth_token"},
	Optional: []string{"page_size", "to", "from"},
}

type Settings struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	PageSize   int    `mapstructure:"page_size"`
	To         string `mapstructure:"to"`
	From       string `mapstructure:"from"`
}

type callAPI interface {
	ListCall(params *api.ListCallParams) ([]api.ApiV2010Call, error)
	FetchCall(sid string, params *api.FetchCallParams) (*api.ApiV2010Call, error)
}

type Provider struct {
	cfg    Settings
	client callAPI
}

// New decodes settings and builds a REST-backed provider.
func New(settings map[string]any) (*Provider, error) {
	var cfg Settings
	if err := configutil.DecodeProvider(Name, settings, Schema, &cfg); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Provider{cfg: cfg, client: rest.Api}, nil
}

func (p *Provider) Name() string { return Name }

// List returns the newest calls. Twilio pages internally, so q.Cursor is ignored.
func (p *Provider) List(ctx context.Context, q history.Query) ([]history.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &api.ListCallParams{}
	params.SetLimit(q.PageSize())
	if p.cfg.PageSize > 0 {
		params.SetPageSize(p.cfg.PageSize)
	}
	if p.cfg.To != "" {
		params.SetTo(p.cfg.To)
	}
	if p.cfg.From != "" {
		params.SetFrom(p.cfg.From)
	}
	calls, err := p.client.ListCall(params)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonHistoryList)
	}
	out := make([]history.Record, 0, len(calls))
	for i := range calls {
		out = append(out, toRecord(&calls[i]))
	}
	return out, nil
}

func (p *Provider) Get(ctx context.Context, id string) (history.Record, error) {
	if err := ctx.Err(); err != nil {
		return history.Record{}, err
	}
	if strings.TrimSpace(id) == "" {
		return history.Record{}, errorsx.Newf(errorsx.ReasonHistoryFetch, "twilio: call sid required")
	}
	call, err := p.client.FetchCall(id, &api.FetchCallParams{})
	if err != nil {
		return history.Record{}, errorsx.Wrap(err, errorsx.ReasonHistoryFetch)
	}
	if call == nil || call.Sid == nil {
		return history.Record{}, history.ErrNotFound
	}
	return toRecord(call), nil
}

func toRecord(c *api.ApiV2010Call) history.Record {
	rec := history.Record{
		ID:        deref(c.Sid),
		Source:    Name,
		Status:    deref(c.Status),
		Direction: deref(c.Direction),
		From:      deref(c.From),
		To:        deref(c.To),
		StartedAt: parseTime(deref(c.StartTime)),
	}
	if secs, err := strconv.Atoi(deref(c.Duration)); err == nil && secs > 0 {
		rec.Duration = time.Duration(secs) * time.Second
	}
	return rec
}

// Twilio renders timestamps in RFC 2822.
func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC1123Z, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
