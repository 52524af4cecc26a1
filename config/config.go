// Package config loads engine configuration from TOML files.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/executor"
	"github.com/praxislabs/agentplan/telemetry"
)

// DefaultPath is where the engine looks for its configuration.
const DefaultPath = "agentplan.toml"

// duration wraps time.Duration so TOML files can write "200ms" or "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// RetrySection configures the executor's retry behavior.
type RetrySection struct {
	MaxAttempts     int      `toml:"max_attempts"`
	Policy          string   `toml:"policy"`
	BaseDelay       duration `toml:"base_delay"`
	MaxDelay        duration `toml:"max_delay"`
	Jitter          string   `toml:"jitter"`
	RetryableStatus []int    `toml:"retryable_status"`
}

// CheckpointSection configures checkpoint storage.
type CheckpointSection struct {
	Dir      string `toml:"dir"`
	AutoSave bool   `toml:"auto_save"`
	Keep     int    `toml:"keep"`
}

// EngineSection records which engine drives the run. Hints only; API
// keys live in the environment, never in this file.
type EngineSection struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

// LimitsSection configures tool rate limiting.
type LimitsSection struct {
	ToolsPerMinute int `toml:"tools_per_minute"`
	Burst          int `toml:"burst"`
}

// TelemetrySection configures trace export. Spans go to the OTLP
// endpoint when one is set; tool-call records go to the events file.
type TelemetrySection struct {
	Endpoint   string `toml:"endpoint"`
	Protocol   string `toml:"protocol"`
	Insecure   bool   `toml:"insecure"`
	Debug      bool   `toml:"debug"`
	EventsFile string `toml:"events_file"`
}

// Config is the full engine configuration.
type Config struct {
	Retry      RetrySection      `toml:"retry"`
	Checkpoint CheckpointSection `toml:"checkpoint"`
	Engine     EngineSection     `toml:"engine"`
	Limits     LimitsSection     `toml:"limits"`
	Telemetry  TelemetrySection  `toml:"telemetry"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Retry: RetrySection{
			MaxAttempts: 3,
			Policy:      string(executor.BackoffExponential),
			BaseDelay:   duration{100 * time.Millisecond},
			MaxDelay:    duration{10 * time.Second},
			Jitter:      string(executor.JitterNone),
		},
		Checkpoint: CheckpointSection{
			Dir:      ".agentplan/checkpoints",
			AutoSave: true,
			Keep:     10,
		},
		Limits: LimitsSection{
			ToolsPerMinute: 60,
			Burst:          10,
		},
		Telemetry: TelemetrySection{
			Protocol: "grpc",
		},
	}
}

// LoadFile reads a configuration file, layering it over the defaults.
// A missing file yields the defaults without error.
func LoadFile(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"reading config file")
	}
	return Parse(string(content))
}

// Parse parses TOML content over the defaults.
func Parse(content string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(content, &cfg); err != nil {
		return Config{}, errors.WrapWithCode(err, errors.ErrCodeInvalidInput,
			"parsing config")
	}
	return cfg, cfg.validate()
}

// validate rejects values the engine cannot run with.
func (c Config) validate() error {
	switch executor.BackoffPolicy(c.Retry.Policy) {
	case executor.BackoffFixed, executor.BackoffLinear, executor.BackoffExponential:
	default:
		return errors.InvalidInput("retry.policy must be fixed, linear or exponential")
	}
	switch executor.JitterMode(c.Retry.Jitter) {
	case executor.JitterNone, executor.JitterFull, executor.JitterEqual, executor.JitterDecorrelated:
	default:
		return errors.InvalidInput("retry.jitter must be none, full, equal or decorrelated")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.InvalidInput("retry.max_attempts must be at least 1")
	}
	if c.Checkpoint.Keep < 0 {
		return errors.InvalidInput("checkpoint.keep must not be negative")
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return errors.InvalidInput("telemetry.protocol must be grpc or http")
	}
	return nil
}

// RetryConfig converts the retry section into the executor's form.
func (c Config) RetryConfig() executor.RetryConfig {
	return executor.RetryConfig{
		MaxAttempts:     c.Retry.MaxAttempts,
		Policy:          executor.BackoffPolicy(c.Retry.Policy),
		BaseDelay:       c.Retry.BaseDelay.Duration,
		MaxDelay:        c.Retry.MaxDelay.Duration,
		Jitter:          executor.JitterMode(c.Retry.Jitter),
		RetryableStatus: c.Retry.RetryableStatus,
	}
}

// TelemetryConfig converts the telemetry section into the provider's
// form. Tracing is enabled when an endpoint is configured.
func (c Config) TelemetryConfig() telemetry.ProviderConfig {
	return telemetry.ProviderConfig{
		Endpoint: c.Telemetry.Endpoint,
		Protocol: c.Telemetry.Protocol,
		Insecure: c.Telemetry.Insecure,
		Debug:    c.Telemetry.Debug,
	}
}

// TracingEnabled reports whether the configuration asks for span export.
func (c Config) TracingEnabled() bool {
	return c.Telemetry.Endpoint != ""
}
