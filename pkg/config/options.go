package config

import (
	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/credentials"
	"github.com/playht/playht-go-sdk/lease"
	"github.com/playht/playht-go-sdk/pkg/httputil"
	"github.com/playht/playht-go-sdk/sentence"
	"github.com/playht/playht-go-sdk/tts"
)

// ResolverConfig returns the credential resolution settings.
func (c *Config) ResolverConfig() credentials.ResolverConfig {
	return credentials.ResolverConfig{
		UserID:     c.Credentials.UserID,
		APIKey:     c.Credentials.APIKey,
		APIKeyFile: c.Credentials.APIKeyFile,
		ConfigDir:  c.ConfigDir,
	}
}

func (l LeaseConfig) settings(usable lease.Settings) lease.Settings {
	usable.AdvanceRefresh = l.AdvanceRefresh
	usable.MinimalRefresh = l.MinimalRefresh
	usable.MaxAttempts = l.MaxAttempts
	usable.RetryDelay = l.RetryDelay
	usable.IdleTTL = l.IdleTTL
	usable.CleanupInterval = l.CleanupInterval
	return usable
}

// ClientOptions converts the configuration into client options. The shared
// cache is wired by the caller, which owns the Redis connection.
func (c *Config) ClientOptions() ([]tts.Option, error) {
	algo, err := congestion.ParseAlgorithm(c.Streaming.Congestion)
	if err != nil {
		return nil, err
	}

	return []tts.Option{
		tts.WithBaseURL(c.API.BaseURL),
		tts.WithHTTPClient(httputil.NewHTTPClient(c.API.Timeout)),
		tts.WithStreamHTTPClient(httputil.NewStreamingClient(c.API.StreamHeaderTimeout)),
		tts.WithLeaseSettings(c.Lease.settings(lease.Settings{UsableThreshold: c.Lease.UsableThreshold})),
		tts.WithCoordinateSettings(c.Lease.settings(lease.Settings{UsableThreshold: c.Lease.CoordinateUsableThreshold})),
		tts.WithCongestion(algo),
		tts.WithSentenceConfig(sentence.Config{
			MaxLength:     c.Streaming.LineMaxLength,
			DesiredLength: c.Streaming.DesiredLineLength,
			FlushInterval: c.Streaming.FlushInterval,
		}),
		tts.WithPrefetch(c.Streaming.Prefetch),
		tts.WithPolling(c.Polling.Interval, c.Polling.MaxRetries),
		tts.WithInsecureRPC(c.RPC.Insecure),
	}, nil
}

// CallOptions builds per-call options for engine from the voice defaults.
// An empty engine selects the configured one.
func (c *Config) CallOptions(engine string) (tts.Options, error) {
	if engine == "" {
		engine = c.Voice.Engine
	}
	e, err := tts.ParseVoiceEngine(engine)
	if err != nil {
		return nil, err
	}

	opts, err := tts.NewOptions(e, tts.CommonOptions{
		Voice:        c.Voice.Voice,
		OutputFormat: tts.OutputFormat(c.Voice.OutputFormat),
		SampleRate:   c.Voice.SampleRate,
		Speed:        c.Voice.Speed,
		Quality:      tts.Quality(c.Voice.Quality),
	})
	if err != nil {
		return nil, err
	}

	switch o := opts.(type) {
	case *tts.TurboOptions:
		o.CustomAddress = c.RPC.CustomAddress
		o.FallbackEnabled = c.RPC.Fallback
	case *tts.Play3Options:
		o.Language = c.Voice.Language
	case *tts.DialogOptions:
		o.Language = c.Voice.Language
	}
	if c.Voice.Protocol != "" {
		if err := tts.WithProtocol(opts, tts.Protocol(c.Voice.Protocol)); err != nil {
			return nil, err
		}
	}
	return opts, opts.Validate()
}
