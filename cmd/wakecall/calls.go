package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/wakecall/pkg/app"
	"github.com/harunnryd/wakecall/pkg/history"
	"github.com/harunnryd/wakecall/pkg/redact"
)

func newCallsCmd(configPath *string) *cobra.Command {
	calls := &cobra.Command{Use: "calls", Short: "Inspect past calls"}

	var limit int
	var cursor string
	var asJSON bool
	var timeout time.Duration

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent calls, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, closer, err := loadHistory(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			recs, err := provider.List(ctx, history.Query{Limit: limit, Cursor: cursor})
			if err != nil {
				return err
			}
			for i := range recs {
				recs[i] = scrub(recs[i])
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			return writeTable(cmd.OutOrStdout(), recs)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "maximum calls to show")
	listCmd.Flags().StringVar(&cursor, "cursor", "", "pagination key from a previous listing")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	listCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	getCmd := &cobra.Command{
		Use:   "get <call-id>",
		Short: "Show one call with its transcript and analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, closer, err := loadHistory(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			rec, err := provider.Get(ctx, args[0])
			if err != nil {
				return err
			}
			rec = scrub(rec)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			writeRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	getCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	getCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	calls.AddCommand(listCmd, getCmd)
	return calls
}

func loadHistory(configPath string, stderr io.Writer) (history.Provider, io.Closer, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := newLogger(cfg, stderr)
	if err != nil {
		return nil, nil, err
	}
	provider, err := app.NewHistory(cfg, nil, logger)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return provider, closer, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, recs []history.Record) error {
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "no calls")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tSTATUS\tSENTIMENT")
	for _, r := range recs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, formatTime(r.StartedAt), formatDuration(r.Duration), orDash(r.Status), orDash(r.Sentiment))
	}
	return tw.Flush()
}

func writeRecord(w io.Writer, r history.Record) {
	field := func(name, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(w, "%-12s %s\n", name+":", value)
		}
	}
	field("id", r.ID)
	field("source", r.Source)
	field("status", r.Status)
	field("direction", r.Direction)
	field("agent", r.AgentID)
	field("from", r.From)
	field("to", r.To)
	field("started", formatTime(r.StartedAt))
	field("duration", formatDuration(r.Duration))
	field("ended by", r.DisconnectReason)
	field("sentiment", r.Sentiment)
	if r.Successful != nil {
		field("successful", fmt.Sprintf("%t", *r.Successful))
	}
	field("summary", r.Summary)
	if t := strings.TrimSpace(r.Transcript); t != "" {
		_, _ = fmt.Fprintln(w, "\ntranscript:")
		_, _ = fmt.Fprintln(w, t)
	}
}

// scrub redacts contact details and free text when privacy.redact_pii is on.
func scrub(r history.Record) history.Record {
	r.From = redact.Text(r.From)
	r.To = redact.Text(r.To)
	r.Summary = redact.Text(r.Summary)
	r.Transcript = redact.Text(r.Transcript)
	return r
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Truncate(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
