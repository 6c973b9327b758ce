package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/wakecall/pkg/app"
	"github.com/harunnryd/wakecall/pkg/conversation"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/runner"
	"github.com/harunnryd/wakecall/pkg/ui"
)

func newRunCmd(configPath *string) *cobra.Command {
	var manual, headless bool
	var drainTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Listen for the trigger phrase and hold calls with the assistant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if manual {
				cfg.Activation.Enabled = false
			}

			// The terminal UI owns stdout, so logs only go to log_file there.
			var fallback io.Writer = io.Discard
			if headless {
				fallback = cmd.ErrOrStderr()
			}
			logger, closer, err := newLogger(cfg, fallback)
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := app.New(cfg, app.Options{Logger: logger})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var (
				uiMu  sync.Mutex
				uiErr error
			)
			opts := []runner.Option{}
			if headless {
				opts = append(opts, runner.WithBanner(cmd.OutOrStdout()))
			}
			r := runner.NewLifecycleRunner(runner.DrainFunc(a.Drain), runner.Hooks{
				OnStart: func(ctx context.Context) error {
					if headless {
						go printTranscript(cmd.OutOrStdout(), a.Controller())
						return a.Start(ctx)
					}
					if err := a.Start(ctx); err != nil {
						return err
					}
					go func() {
						err := ui.Run(ctx, a.Controller())
						uiMu.Lock()
						uiErr = err
						uiMu.Unlock()
						cancel()
					}()
					return nil
				},
			}, drainTimeout, opts...)

			if err := r.Run(ctx); err != nil {
				return err
			}
			uiMu.Lock()
			defer uiMu.Unlock()
			return uiErr
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "disable the trigger phrase; start calls with the s key only")
	cmd.Flags().BoolVar(&headless, "headless", false, "print the conversation to stdout instead of the terminal UI")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 10*time.Second, "how long shutdown may take")
	return cmd
}

// printTranscript writes state changes and completed messages as plain lines.
func printTranscript(w io.Writer, ctrl *conversation.Controller) {
	snaps, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	printed := make(map[uint64]bool)
	last := conversation.State(-1)
	for s := range snaps {
		if s.State != last {
			if s.Change.Reason != "" && s.Change.To == s.State {
				_, _ = fmt.Fprintf(w, "[%s] %s\n", s.State, s.Change.Reason)
			} else {
				_, _ = fmt.Fprintf(w, "[%s]\n", s.State)
			}
			last = s.State
		}
		for _, m := range s.Messages {
			if !m.Complete || printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			who := string(m.Role)
			if m.Kind == conversation.KindSystem {
				who = "system"
			}
			_, _ = fmt.Fprintf(w, "%s %-9s %s\n", m.CreatedAt.Format("15:04:05"), who+":", redact.Text(m.Text))
		}
	}
}
