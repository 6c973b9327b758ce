package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harunnryd/wakecall/pkg/app"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the config and build every provider without starting them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Drain() }()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "transport:  %s\n", a.Transport().Name())
			if a.Monitor() != nil {
				_, _ = fmt.Fprintf(out, "activation: %s (trigger %q)\n", cfg.Recognizer.Provider, cfg.Activation.TriggerPhrase)
			} else {
				_, _ = fmt.Fprintln(out, "activation: disabled")
			}
			if _, err := app.NewHistory(cfg, nil, nil); err != nil {
				_, _ = fmt.Fprintf(out, "history:    %s unavailable: %v\n", cfg.History.Provider, err)
			} else {
				_, _ = fmt.Fprintf(out, "history:    %s\n", cfg.History.Provider)
			}
			_, _ = fmt.Fprintln(out, "ok")
			return nil
		},
	})
	return cfgCmd
}
