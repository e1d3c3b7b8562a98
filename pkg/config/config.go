// Package config loads PlayHT client configuration from a YAML file, applies
// PLAYHT_* environment overrides and validates the result.
package config

import (
	"time"

	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/lease"
	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/pkg/httputil"
	"github.com/playht/playht-go-sdk/sentence"
	"github.com/playht/playht-go-sdk/tts"
)

// Config is the complete client configuration.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	Voice       VoiceConfig       `yaml:"voice"`
	Lease       LeaseConfig       `yaml:"lease"`
	Redis       RedisConfig       `yaml:"redis"`
	Streaming   StreamingConfig   `yaml:"streaming"`
	RPC         RPCConfig         `yaml:"rpc"`
	Polling     PollingConfig     `yaml:"polling"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// ConfigDir is the directory of the loaded file, used to resolve
	// relative paths such as the API key file.
	ConfigDir string `yaml:"-"`
}

// CredentialsConfig holds account credentials. Leave them empty to read
// PLAYHT_USER_ID and PLAYHT_API_KEY.
type CredentialsConfig struct {
	UserID     string `yaml:"userId"`
	APIKey     string `yaml:"apiKey"`
	APIKeyFile string `yaml:"apiKeyFile"`
}

// APIConfig configures the REST endpoint.
type APIConfig struct {
	BaseURL             string        `yaml:"baseUrl"`
	Timeout             time.Duration `yaml:"timeout"`
	StreamHeaderTimeout time.Duration `yaml:"streamHeaderTimeout"`
}

// VoiceConfig holds per-call defaults.
type VoiceConfig struct {
	Engine       string  `yaml:"engine"`
	Voice        string  `yaml:"voice"`
	OutputFormat string  `yaml:"outputFormat"`
	Quality      string  `yaml:"quality"`
	Speed        float64 `yaml:"speed"`
	SampleRate   int     `yaml:"sampleRate"`
	Protocol     string  `yaml:"protocol"`
	Language     string  `yaml:"language"`
}

// LeaseConfig tunes both credential stores. Coordinates use their own
// usable threshold.
type LeaseConfig struct {
	UsableThreshold           time.Duration `yaml:"usableThreshold"`
	CoordinateUsableThreshold time.Duration `yaml:"coordinateUsableThreshold"`
	AdvanceRefresh            time.Duration `yaml:"advanceRefresh"`
	MinimalRefresh            time.Duration `yaml:"minimalRefresh"`
	MaxAttempts               int           `yaml:"maxAttempts"`
	RetryDelay                time.Duration `yaml:"retryDelay"`
	IdleTTL                   time.Duration `yaml:"idleTtl"`
	CleanupInterval           time.Duration `yaml:"cleanupInterval"`
}

// RedisConfig enables the shared credential tier when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// StreamingConfig tunes chunking and generation of streamed text.
type StreamingConfig struct {
	LineMaxLength     int           `yaml:"lineMaxLength"`
	DesiredLineLength int           `yaml:"desiredLineLength"`
	FlushInterval     time.Duration `yaml:"flushInterval"`
	Prefetch          int           `yaml:"prefetch"`
	Congestion        string        `yaml:"congestion"`
}

// RPCConfig configures the streaming RPC engine.
type RPCConfig struct {
	Insecure      bool   `yaml:"insecure"`
	CustomAddress string `yaml:"customAddress"`
	Fallback      bool   `yaml:"fallback"`
}

// PollingConfig configures the legacy engine's status polling.
type PollingConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxRetries int           `yaml:"maxRetries"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level        string            `yaml:"level"`
	Format       string            `yaml:"format"`
	CommonFields map[string]string `yaml:"commonFields"`
}

// Spec converts to the logger's configuration.
func (l LoggingConfig) Spec() *logger.LoggingConfigSpec {
	return &logger.LoggingConfigSpec{Level: l.Level, Format: l.Format, CommonFields: l.CommonFields}
}

// TelemetryConfig enables OTLP trace export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"serviceName"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// MetricsConfig enables the Prometheus exporter when Bind is set.
type MetricsConfig struct {
	Bind string `yaml:"bind"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	ls := lease.DefaultLeaseSettings()
	cs := lease.DefaultCoordinateSettings()
	return &Config{
		API: APIConfig{
			BaseURL:             tts.DefaultBaseURL,
			Timeout:             httputil.DefaultAPITimeout,
			StreamHeaderTimeout: httputil.DefaultStreamTimeout,
		},
		Voice: VoiceConfig{
			Engine: string(tts.Play3Mini),
		},
		Lease: LeaseConfig{
			UsableThreshold:           ls.UsableThreshold,
			CoordinateUsableThreshold: cs.UsableThreshold,
			AdvanceRefresh:            ls.AdvanceRefresh,
			MinimalRefresh:            ls.MinimalRefresh,
			MaxAttempts:               ls.MaxAttempts,
			RetryDelay:                ls.RetryDelay,
			IdleTTL:                   ls.IdleTTL,
			CleanupInterval:           ls.CleanupInterval,
		},
		Redis: RedisConfig{
			Prefix: "playht",
		},
		Streaming: StreamingConfig{
			LineMaxLength:     sentence.LineMaxLength,
			DesiredLineLength: sentence.DesiredLineLength,
			FlushInterval:     sentence.DefaultFlushInterval,
			Prefetch:          tts.DefaultPrefetch,
			Congestion:        congestion.Off.String(),
		},
		Polling: PollingConfig{
			Interval:   tts.DefaultPollInterval,
			MaxRetries: tts.DefaultPollAttempts,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatText,
		},
	}
}
