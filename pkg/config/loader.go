package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/credentials"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/tts"
)

// Environment overrides, applied after the file.
const (
	EnvVoiceEngine    = "PLAYHT_VOICE_ENGINE"
	EnvVoice          = "PLAYHT_VOICE"
	EnvBaseURL        = "PLAYHT_API_BASE_URL"
	EnvCongestion     = "PLAYHT_CONGESTION"
	EnvPrefetch       = "PLAYHT_PREFETCH"
	EnvLogLevel       = "PLAYHT_LOG_LEVEL"
	EnvRedisAddr      = "PLAYHT_REDIS_ADDR"
	EnvOTLPEndpoint   = "PLAYHT_OTLP_ENDPOINT"
	EnvPrometheusBind = "PLAYHT_PROMETHEUS_BIND"
	EnvInsecureRPC    = "PLAYHT_INSECURE_RPC"
)

// Load reads the configuration file at path over Default, then applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
		cfg.ConfigDir = filepath.Dir(path)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data over Default and validates it. The environment
// is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if err := ValidateConfig(data); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnv applies PLAYHT_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str(credentials.EnvUserID, &c.Credentials.UserID)
	str(credentials.EnvAPIKey, &c.Credentials.APIKey)
	str(EnvVoiceEngine, &c.Voice.Engine)
	str(EnvVoice, &c.Voice.Voice)
	str(EnvBaseURL, &c.API.BaseURL)
	str(EnvCongestion, &c.Streaming.Congestion)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvRedisAddr, &c.Redis.Addr)
	str(EnvOTLPEndpoint, &c.Telemetry.OTLPEndpoint)
	str(EnvPrometheusBind, &c.Metrics.Bind)

	if v, ok := lookup(EnvPrefetch); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPrefetch, err)
		}
		c.Streaming.Prefetch = n
	}
	if v, ok := lookup(EnvInsecureRPC); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvInsecureRPC, err)
		}
		c.RPC.Insecure = b
	}
	return nil
}

// Validate checks semantic constraints the schema cannot express. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, pkgerrors.Newf(pkgerrors.KindInvalidOption, "config", "Validate", format, args...))
	}

	if c.Voice.Engine != "" {
		if _, err := tts.ParseVoiceEngine(c.Voice.Engine); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := congestion.ParseAlgorithm(c.Streaming.Congestion); err != nil {
		errs = append(errs, err)
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		fail("api base URL %q must be http or https", c.API.BaseURL)
	}

	s := c.Streaming
	if s.LineMaxLength <= 0 {
		fail("streaming line max length must be positive")
	}
	if s.DesiredLineLength <= 0 || s.DesiredLineLength > s.LineMaxLength {
		fail("streaming desired line length %d must be in 1..%d", s.DesiredLineLength, s.LineMaxLength)
	}
	if s.FlushInterval <= 0 {
		fail("streaming flush interval must be positive")
	}
	if s.Prefetch <= 0 {
		fail("streaming prefetch must be positive, got %d", s.Prefetch)
	}

	l := c.Lease
	if l.MaxAttempts <= 0 {
		fail("lease max attempts must be positive")
	}
	if l.AdvanceRefresh <= l.UsableThreshold {
		fail("lease advance refresh %s must exceed the usable threshold %s", l.AdvanceRefresh, l.UsableThreshold)
	}

	if c.Polling.Interval <= 0 || c.Polling.MaxRetries <= 0 {
		fail("polling interval and max retries must be positive")
	}
	if c.RPC.Fallback && c.RPC.CustomAddress == "" {
		fail("rpc fallback requires a custom address")
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		fail("telemetry sample ratio %g outside 0..1", r)
	}
	return errors.Join(errs...)
}
