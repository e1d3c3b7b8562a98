package main

import (
	"context"
	"fmt"

	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/metrics/prometheus"
	"github.com/playht/playht-go-sdk/pkg/config"
	"github.com/playht/playht-go-sdk/telemetry"
)

// startObservability starts the tracer provider and metrics exporter cfg
// asks for. The returned func stops both.
func startObservability(ctx context.Context, cfg *config.Config) (func(), error) {
	var closers []func(context.Context) error
	shutdown := func() {
		for _, c := range closers {
			if err := c(context.Background()); err != nil {
				logger.Warn("shutdown failed", "error", err)
			}
		}
	}

	t := cfg.Telemetry
	stopTracing, err := telemetry.Install(ctx, telemetry.ProviderConfig{
		Endpoint:    t.OTLPEndpoint,
		Insecure:    t.Insecure,
		ServiceName: t.ServiceName,
		SampleRatio: t.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("starting tracer provider: %w", err)
	}
	closers = append(closers, stopTracing)

	if cfg.Metrics.Bind != "" {
		exp := prometheus.NewExporter(cfg.Metrics.Bind)
		addr, err := exp.Start(ctx)
		if err != nil {
			shutdown()
			return nil, fmt.Errorf("starting metrics exporter: %w", err)
		}
		logger.Info("metrics exporter listening", "addr", addr)
		closers = append(closers, exp.Shutdown)
	}
	return shutdown, nil
}
