package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/wakecall/pkg/app"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/runner"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wakecall",
		Short:         "Hands-free voice assistant front-end",
		Version:       runner.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("WAKECALL_CONFIG"), "config file (yaml, json or toml)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newCallsCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	return root
}

func loadConfig(path string) (app.Config, error) {
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return app.Config{}, err
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)
	return cfg, nil
}

// newLogger routes logs to log_file, or to fallback when unset. The caller
// closes the returned closer.
func newLogger(cfg app.Config, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFile == "" {
		logger := logging.NewLogger(fallback, level, cfg.LogFormat)
		slog.SetDefault(logger)
		return logger, io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := logging.NewLogger(f, level, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger, f, nil
}
