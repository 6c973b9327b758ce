package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/wakecall/pkg/activation"
	"github.com/harunnryd/wakecall/pkg/audio"
	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/configutil"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/history"
	historyplatform "github.com/harunnryd/wakecall/pkg/history/platform"
	historytwilio "github.com/harunnryd/wakecall/pkg/history/twilio"
	"github.com/harunnryd/wakecall/pkg/platform"
	"github.com/harunnryd/wakecall/pkg/recognizers/deepgram"
	mockrecognizer "github.com/harunnryd/wakecall/pkg/recognizers/mock"
	"github.com/harunnryd/wakecall/pkg/resilience"
	"github.com/harunnryd/wakecall/pkg/transports"
	mocktransport "github.com/harunnryd/wakecall/pkg/transports/mock"
	"github.com/harunnryd/wakecall/pkg/transports/realtime"
)

// Deps is what provider factories may draw on.
type Deps struct {
	Config Config
	Logger *slog.Logger
	Clock  clock.Clock
}

type RecognizerFactory func(d Deps) (activation.Recognizer, error)
type TransportFactory func(d Deps) (transports.Transport, error)
type HistoryFactory func(d Deps) (history.Provider, error)

type ProviderRegistry struct {
	recognizers map[string]RecognizerFactory
	transports  map[string]TransportFactory
	history     map[string]HistoryFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		recognizers: make(map[string]RecognizerFactory),
		transports:  make(map[string]TransportFactory),
		history:     make(map[string]HistoryFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterRecognizer(name string, factory RecognizerFactory) {
	r.recognizers[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.transports[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterHistory(name string, factory HistoryFactory) {
	r.history[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildRecognizer(provider string, d Deps) (activation.Recognizer, error) {
	fn := r.recognizers[providerKey(provider)]
	if fn == nil {
		return nil, errorsx.Newf(errorsx.ReasonConfig, "recognizer provider not registered: %s", provider)
	}
	return fn(d)
}

func (r *ProviderRegistry) BuildTransport(provider string, d Deps) (transports.Transport, error) {
	fn := r.transports[providerKey(provider)]
	if fn == nil {
		return nil, errorsx.Newf(errorsx.ReasonConfig, "transport provider not registered: %s", provider)
	}
	return fn(d)
}

func (r *ProviderRegistry) BuildHistory(provider string, d Deps) (history.Provider, error) {
	fn := r.history[providerKey(provider)]
	if fn == nil {
		return nil, errorsx.Newf(errorsx.ReasonConfig, "history provider not registered: %s", provider)
	}
	return fn(d)
}

// DefaultProviders registers every built-in backend.
func DefaultProviders() *ProviderRegistry {
	reg := NewProviderRegistry()
	reg.RegisterRecognizer("deepgram", buildDeepgram)
	reg.RegisterRecognizer("mock", buildMockRecognizer)
	reg.RegisterTransport("realtime", buildRealtime)
	reg.RegisterTransport("mock", buildMockTransport)
	reg.RegisterHistory(historyplatform.Name, buildPlatformHistory)
	reg.RegisterHistory(historytwilio.Name, func(d Deps) (history.Provider, error) {
		return historytwilio.New(d.Config.History.Settings)
	})
	return reg
}

type deepgramSettings struct {
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Language     string        `mapstructure:"language"`
	SampleRate   int           `mapstructure:"sample_rate"`
	AudioCommand string        `mapstructure:"audio_command"`
	AudioFormat  string        `mapstructure:"audio_format"`
	AudioDevice  string        `mapstructure:"audio_device"`
	StartupGrace time.Duration `mapstructure:"startup_grace"`
}

var deepgramSchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "language", "sample_rate", "audio_command", "audio_format", "audio_device", "startup_grace"},
}

func buildDeepgram(d Deps) (activation.Recognizer, error) {
	var s deepgramSettings
	if err := configutil.DecodeProvider("recognizer.settings", d.Config.Recognizer.Settings, deepgramSchema, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	if err := configutil.RequireString(s.APIKey, "recognizer.settings.api_key"); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	if s.Language == "" {
		s.Language = d.Config.Activation.Locale
	}
	if s.SampleRate == 0 {
		s.SampleRate = 16000
	}
	source := audio.NewFFmpegSource(audio.Config{
		Command:      s.AudioCommand,
		InputFormat:  s.AudioFormat,
		InputDevice:  s.AudioDevice,
		SampleRate:   s.SampleRate,
		Channels:     1,
		StartupGrace: s.StartupGrace,
		Logger:       d.Logger,
	})
	return deepgram.New(deepgram.Config{
		APIKey:     s.APIKey,
		Model:      s.Model,
		Language:   s.Language,
		SampleRate: s.SampleRate,
		Encoding:   "linear16",
		Logger:     d.Logger,
	}, source), nil
}

type mockRecognizerSettings struct {
	Script   []string      `mapstructure:"script"`
	Interval time.Duration `mapstructure:"interval"`
}

var mockRecognizerSchema = configutil.Schema{Optional: []string{"script", "interval"}}

func buildMockRecognizer(d Deps) (activation.Recognizer, error) {
	var s mockRecognizerSettings
	if err := configutil.DecodeProvider("recognizer.settings", d.Config.Recognizer.Settings, mockRecognizerSchema, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	return mockrecognizer.New(mockrecognizer.Config{Script: s.Script, Interval: s.Interval}), nil
}

func newPlatformClient(d Deps) *platform.Client {
	p := d.Config.Platform
	return platform.NewClient(p.BaseURL, p.APIKey, p.Timeout,
		platform.WithLogger(d.Logger),
		platform.WithRetry(resilience.NewRetryPolicy(2, 300*time.Millisecond)),
	)
}

func buildRealtime(d Deps) (transports.Transport, error) {
	if err := d.Config.RequirePlatform(); err != nil {
		return nil, err
	}
	c := d.Config.Call
	return realtime.New(realtime.Config{
		AgentID:         d.Config.Platform.AgentID,
		WSURL:           d.Config.Platform.WSURL,
		SampleRate:      c.SampleRate,
		CaptureDeviceID: c.CaptureDeviceID,
		MinDuration:     c.MinDuration,
		IdleTimeout:     c.IdleTimeout,
		Clock:           d.Clock,
		Logger:          d.Logger,
	}, newPlatformClient(d), nil), nil
}

type mockTransportSettings struct {
	Greeting   string        `mapstructure:"greeting"`
	ReplyDelay time.Duration `mapstructure:"reply_delay"`
}

var mockTransportSchema = configutil.Schema{Optional: []string{"greeting", "reply_delay"}}

// buildMockTransport returns an offline transport that greets once per call,
// for trying the flow without platform credentials.
func buildMockTransport(d Deps) (transports.Transport, error) {
	var s mockTransportSettings
	if err := configutil.DecodeProvider("transport.settings", d.Config.Transport.Settings, mockTransportSchema, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	delay := configutil.DurationValue(s.ReplyDelay, 500*time.Millisecond)
	clk := clock.Or(d.Clock)
	var t *mocktransport.Transport
	t = mocktransport.New(mocktransport.Config{
		MinDuration: d.Config.Call.MinDuration,
		IdleTimeout: d.Config.Call.IdleTimeout,
		Clock:       d.Clock,
		OpenHook: func(context.Context) error {
			if s.Greeting == "" {
				return nil
			}
			clk.AfterFunc(delay, func() {
				if t.PushResponse(s.Greeting) {
					t.PushSentenceComplete()
				}
			})
			return nil
		},
	})
	return t, nil
}

func buildPlatformHistory(d Deps) (history.Provider, error) {
	if strings.TrimSpace(d.Config.Platform.APIKey) == "" {
		return nil, errorsx.Newf(errorsx.ReasonConfig, "platform.api_key is required")
	}
	return historyplatform.New(newPlatformClient(d), d.Config.Platform.AgentID), nil
}
