// Package app loads configuration and assembles the activation monitor,
// session transport, observers and conversation controller.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harunnryd/wakecall/pkg/activation"
	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/conversation"
	"github.com/harunnryd/wakecall/pkg/history"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/metrics"
	"github.com/harunnryd/wakecall/pkg/observers"
	"github.com/harunnryd/wakecall/pkg/redact"
	"github.com/harunnryd/wakecall/pkg/resilience"
	"github.com/harunnryd/wakecall/pkg/transports"
)

type Options struct {
	Providers *ProviderRegistry
	Logger    *slog.Logger
	Clock     clock.Clock
	// Observers receive every lifecycle event next to the built-in ones.
	Observers []metrics.Observer
}

type App struct {
	cfg        Config
	logger     *slog.Logger
	runID      string
	controller *conversation.Controller
	monitor    *activation.Monitor
	transport  transports.Transport
	observer   *metrics.AsyncObserver
	latency    *observers.CallLatencyObserver
	timeline   *observers.TimelineObserver

	mu       sync.Mutex
	runDone  chan error
	drained  sync.Once
	drainErr error
}

// New builds every component from cfg. Nothing runs until Start.
func New(cfg Config, opts Options) (*App, error) {
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	clk := clock.Or(opts.Clock)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	a := &App{
		cfg:    cfg,
		runID:  uuid.NewString(),
		logger: logging.NewComponentLogger(base, "app"),
	}
	d := Deps{Config: cfg, Logger: base, Clock: clk}

	tr, err := providers.BuildTransport(cfg.Transport.Provider, d)
	if err != nil {
		return nil, err
	}
	a.transport = tr

	if cfg.Activation.Enabled {
		rec, err := providers.BuildRecognizer(cfg.Recognizer.Provider, d)
		if err != nil {
			return nil, err
		}
		b := cfg.Activation.Backoff
		a.monitor = activation.NewMonitor(rec, activation.Config{
			TriggerPhrase:       cfg.Activation.TriggerPhrase,
			Backoff:             resilience.NewBackoff(b.Base, b.Factor, b.Max),
			ErrorReportInterval: cfg.Activation.ErrorReportInterval,
			Clock:               clk,
			Logger:              base,
		})
	}

	a.latency = observers.NewCallLatencyObserver(logging.NewComponentLogger(base, "latency"))
	list := []metrics.Observer{a.latency, observers.NewLoggerObserver(logging.NewComponentLogger(base, "metrics"))}
	if dir := strings.TrimSpace(cfg.Observability.TimelineDir); dir != "" {
		if n, err := observers.PurgeTimelines(dir, cfg.Observability.TimelineRetention, clk.Now()); err != nil {
			a.logger.Warn("timeline_purge_failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.Info("timeline_purged", slog.Int("files", n))
		}
		a.timeline = observers.NewTimelineObserver(dir, a.runID, cfg.Privacy.RedactPII)
		list = append(list, a.timeline)
	}
	list = append(list, opts.Observers...)
	a.observer = metrics.NewAsyncObserver(observers.NewMultiObserver(list...), cfg.Observability.MetricsBuffer)

	// A nil *Monitor must not become a non-nil interface.
	var monitor conversation.Monitor
	if a.monitor != nil {
		monitor = a.monitor
	}
	a.controller = conversation.New(monitor, tr, conversation.Config{
		Cooldown: cfg.Call.Cooldown,
		Clock:    clk,
		Logger:   base,
		Observer: a.observer,
	})

	a.logger.Info("wakecall_init",
		slog.String("environment", cfg.Environment),
		slog.String("run_id", a.runID),
		slog.Bool("activation", a.monitor != nil),
		slog.String("recognizer", cfg.Recognizer.Provider),
		slog.String("transport", tr.Name()),
	)
	return a, nil
}

// Start runs the controller in the background.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runDone != nil {
		return conversation.ErrAlreadyRunning
	}
	done := make(chan error, 1)
	a.runDone = done
	go func() {
		done <- a.controller.Run(ctx)
	}()
	return nil
}

// Drain closes the controller, then flushes observers. Idempotent.
func (a *App) Drain() error {
	a.drained.Do(func() {
		var errs []error
		errs = append(errs, a.controller.Close())
		a.mu.Lock()
		done := a.runDone
		a.mu.Unlock()
		if done != nil {
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}
		a.observer.Close()
		if a.timeline != nil {
			errs = append(errs, a.timeline.Close())
		}
		if dropped := a.observer.Dropped(); dropped > 0 {
			a.logger.Warn("metrics_dropped", slog.Int64("count", dropped))
		}
		a.drainErr = errors.Join(errs...)
		a.logger.Info("wakecall_drained")
	})
	return a.drainErr
}

func (a *App) Controller() *conversation.Controller { return a.controller }

func (a *App) Transport() transports.Transport { return a.transport }

// Monitor is nil when activation is disabled.
func (a *App) Monitor() *activation.Monitor { return a.monitor }

func (a *App) Latency() *observers.CallLatencyObserver { return a.latency }

func (a *App) RunID() string { return a.runID }

// NewHistory builds the configured history provider.
func NewHistory(cfg Config, providers *ProviderRegistry, logger *slog.Logger) (history.Provider, error) {
	if providers == nil {
		providers = DefaultProviders()
	}
	return providers.BuildHistory(cfg.History.Provider, Deps{Config: cfg, Logger: logger, Clock: clock.System{}})
}
