package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// Span names.
const (
	SpanStream     = "playht.stream"
	SpanStreamText = "playht.stream_text"
	SpanGenerate   = "playht.generate"
	SpanChunk      = "playht.chunk"
	SpanAcquire    = "playht.lease.acquire"
)

// Attribute keys.
const (
	AttrEngine     = attribute.Key("playht.voice_engine")
	AttrVoice      = attribute.Key("playht.voice")
	AttrChunkIndex = attribute.Key("playht.chunk_index")
	AttrTextLength = attribute.Key("playht.text_length")
	AttrTarget     = attribute.Key("playht.target")
	AttrCredential = attribute.Key("playht.credential")
)

// StartSpan starts a client span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(nil).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// mdCarrier adapts gRPC metadata to propagation.TextMapCarrier.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) {
	metadata.MD(c).Set(strings.ToLower(key), value)
}

func (c mdCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectOutgoingMetadata propagates the span context in ctx into outgoing
// gRPC metadata using the global propagator.
func InjectOutgoingMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	otel.GetTextMapPropagator().Inject(ctx, mdCarrier(md))
	if len(md) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, md)
}
