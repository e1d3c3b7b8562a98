// Package telemetry provides OpenTelemetry integration for the PlayHT client:
// tracer provider construction, propagation setup and span helpers.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	scopeName    = "github.com/playht/playht-go-sdk"
	scopeVersion = "1.0.0"

	// DefaultServiceName is reported when ProviderConfig leaves it empty.
	DefaultServiceName = "playht-client"
)

// ProviderConfig says where spans go.
type ProviderConfig struct {
	// Endpoint is an OTLP/HTTP collector, either a full URL or host:port.
	Endpoint string
	// Insecure drops TLS for a host:port Endpoint.
	Insecure    bool
	ServiceName string
	// SampleRatio outside (0,1) samples every root span.
	SampleRatio float64
}

// Tracer returns the client's tracer from tp, or from the global provider.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(scopeName, trace.WithInstrumentationVersion(scopeVersion))
}

// NewTracerProvider batches spans to an OTLP/HTTP collector. The caller owns
// Shutdown.
func NewTracerProvider(ctx context.Context, cfg ProviderConfig) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracehttp.New(ctx, endpointOptions(cfg)...)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", service)))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	var root sdktrace.Sampler = sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		root = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(root)),
	), nil
}

func endpointOptions(cfg ProviderConfig) []otlptracehttp.Option {
	if strings.Contains(cfg.Endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// SetupPropagation installs W3C trace context, baggage and AWS X-Ray
// propagation globally.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}

// Install sets up propagation and, when cfg has an Endpoint, makes an OTLP
// provider the global one. The returned func flushes and stops it.
func Install(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	SetupPropagation()
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
