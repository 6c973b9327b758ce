package app

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/wakecall/pkg/errorsx"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	LogFile       string              `mapstructure:"log_file"`
	Platform      PlatformConfig      `mapstructure:"platform"`
	Activation    ActivationConfig    `mapstructure:"activation"`
	Recognizer    VendorConfig        `mapstructure:"recognizer"`
	Transport     VendorConfig        `mapstructure:"transport"`
	Call          CallConfig          `mapstructure:"call"`
	History       VendorConfig        `mapstructure:"history"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type PlatformConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	WSURL   string        `mapstructure:"ws_url"`
	APIKey  string        `mapstructure:"api_key"`
	AgentID string        `mapstructure:"agent_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ActivationConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	TriggerPhrase       string        `mapstructure:"trigger_phrase"`
	Locale              string        `mapstructure:"locale"`
	ErrorReportInterval time.Duration `mapstructure:"error_report_interval"`
	Backoff             BackoffConfig `mapstructure:"backoff"`
}

type BackoffConfig struct {
	Base   time.Duration `mapstructure:"base"`
	Factor float64       `mapstructure:"factor"`
	Max    time.Duration `mapstructure:"max"`
}

type CallConfig struct {
	SampleRate      int           `mapstructure:"sample_rate"`
	CaptureDeviceID string        `mapstructure:"capture_device_id"`
	MinDuration     time.Duration `mapstructure:"min_duration"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ObservabilityConfig struct {
	MetricsBuffer     int           `mapstructure:"metrics_buffer"`
	TimelineDir       string        `mapstructure:"timeline_dir"`
	TimelineRetention time.Duration `mapstructure:"timeline_retention"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("platform.base_url", "https://api.retellai.com")
	v.SetDefault("platform.ws_url", "wss://api.retellai.com/audio-websocket")
	v.SetDefault("platform.timeout", "10s")
	v.SetDefault("activation.enabled", true)
	v.SetDefault("activation.trigger_phrase", "hey assistant")
	v.SetDefault("activation.locale", "en-US")
	v.SetDefault("activation.error_report_interval", "5s")
	v.SetDefault("activation.backoff.base", "500ms")
	v.SetDefault("activation.backoff.factor", 2.0)
	v.SetDefault("activation.backoff.max", "10s")
	v.SetDefault("recognizer.provider", "deepgram")
	v.SetDefault("transport.provider", "realtime")
	v.SetDefault("call.sample_rate", 24000)
	v.SetDefault("call.capture_device_id", "default")
	v.SetDefault("call.min_duration", "10s")
	v.SetDefault("call.idle_timeout", "5m")
	v.SetDefault("call.cooldown", "1200ms")
	v.SetDefault("history.provider", "platform")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("observability.metrics_buffer", 256)
	v.SetDefault("observability.timeline_dir", "")
	v.SetDefault("observability.timeline_retention", "0s")
}

// LoadConfig reads path (any format viper understands), applies defaults,
// expands ${ENV} references and validates the result. An empty path loads
// defaults only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Newf(errorsx.ReasonConfig, "read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Newf(errorsx.ReasonConfig, "unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Newf(errorsx.ReasonConfig, "validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Provider settings are validated
// when the provider is built.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Transport.Provider) == "" {
		errs = append(errs, errors.New("transport.provider is required"))
	}
	if c.Activation.Enabled {
		if strings.TrimSpace(c.Activation.TriggerPhrase) == "" {
			errs = append(errs, errors.New("activation.trigger_phrase is required when activation is enabled"))
		}
		if strings.TrimSpace(c.Recognizer.Provider) == "" {
			errs = append(errs, errors.New("recognizer.provider is required when activation is enabled"))
		}
	}
	if c.Activation.Backoff.Factor != 0 && c.Activation.Backoff.Factor < 1 {
		errs = append(errs, fmt.Errorf("activation.backoff.factor must be >= 1, got %v", c.Activation.Backoff.Factor))
	}
	if c.Activation.Backoff.Max > 0 && c.Activation.Backoff.Base > c.Activation.Backoff.Max {
		errs = append(errs, errors.New("activation.backoff.base must not exceed activation.backoff.max"))
	}
	if c.Call.MinDuration < 0 {
		errs = append(errs, errors.New("call.min_duration must not be negative"))
	}
	if c.Call.IdleTimeout > 0 && c.Call.IdleTimeout < c.Call.MinDuration {
		errs = append(errs, errors.New("call.idle_timeout must not be shorter than call.min_duration"))
	}
	if c.Call.SampleRate < 0 {
		errs = append(errs, errors.New("call.sample_rate must not be negative"))
	}
	if c.Observability.MetricsBuffer < 0 {
		errs = append(errs, errors.New("observability.metrics_buffer must not be negative"))
	}
	return errors.Join(errs...)
}

// RequirePlatform checks the credentials needed to reach the platform API.
func (c *Config) RequirePlatform() error {
	var errs []error
	if strings.TrimSpace(c.Platform.APIKey) == "" {
		errs = append(errs, errors.New("platform.api_key is required"))
	}
	if strings.TrimSpace(c.Platform.AgentID) == "" {
		errs = append(errs, errors.New("platform.agent_id is required"))
	}
	return errorsx.Wrap(errors.Join(errs...), errorsx.ReasonConfig)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Recognizer.Settings = expandSettings(cfg.Recognizer.Settings)
	cfg.Transport.Settings = expandSettings(cfg.Transport.Settings)
	cfg.History.Settings = expandSettings(cfg.History.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
