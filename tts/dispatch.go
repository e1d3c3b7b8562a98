package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/metrics/prometheus"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/sentence"
	"github.com/playht/playht-go-sdk/telemetry"
)

func (c *Client) prepare(op string, opts Options) error {
	if opts == nil {
		return pkgerrors.Newf(pkgerrors.KindInvalidOption, component, op, "options are required")
	}
	if err := c.checkOpen(op); err != nil {
		return err
	}
	return opts.Validate()
}

func (c *Client) callContext(ctx context.Context, spanName string, opts Options) (context.Context, trace.Span) {
	ctx, _ = withRequestID(ctx)
	ctx = logger.WithUserID(ctx, c.cred.UserID())
	ctx = logger.WithVoiceEngine(ctx, string(opts.Engine()))
	return telemetry.StartSpan(ctx, spanName,
		telemetry.AttrEngine.String(string(opts.Engine())),
		telemetry.AttrVoice.String(opts.common().Voice),
	)
}

// Stream synthesizes text and returns its audio as it is produced. Options
// are validated before any network call. Errors after the stream is
// returned are reported by Read as *errors.Error.
func (c *Client) Stream(ctx context.Context, text string, opts Options) (io.ReadCloser, error) {
	if err := c.prepare("Stream", opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidOption, component, "Stream", "text is required")
	}

	start := time.Now()
	ctx, span := c.callContext(ctx, telemetry.SpanStream, opts)
	span.SetAttributes(telemetry.AttrTextLength.Int(len(text)))

	var (
		r   io.ReadCloser
		err error
	)
	switch o := opts.(type) {
	case *PlayHT1Options:
		var gen *Generation
		if gen, err = c.generateLegacy(ctx, text, o); err == nil {
			r, err = c.download(ctx, gen.AudioURL)
		}
	case *PlayHT2Options:
		r, err = c.streamV2(ctx, text, o)
	case *TurboOptions:
		var lines []string
		if lines, err = sentence.Split(text); err == nil {
			ctrl := c.controller(PlayHT2Turbo, o.algorithm(c.congestion))
			r = c.pipeline(ctx, PlayHT2Turbo, lineSource(lines), ctrl, c.rpcChunk(o))
		}
	case *Play3Options:
		r, err = c.inferenceStream(ctx, text, o)
	case *DialogOptions:
		r, err = c.inferenceStream(ctx, text, o)
	default:
		err = pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "Stream", "unsupported options %T", opts)
	}
	return c.finishStream(ctx, span, opts.Engine(), "stream", start, r, err)
}

// StreamText synthesizes text that arrives incrementally, such as tokens from
// a language model. Text is cut into sentences, each generated behind the
// engine's congestion control and assembled in order. The legacy engine does
// not support live text.
func (c *Client) StreamText(ctx context.Context, text <-chan sentence.Delta, opts Options) (io.ReadCloser, error) {
	if err := c.prepare("StreamText", opts); err != nil {
		return nil, err
	}

	var (
		gen  chunkGenerator
		algo = c.congestion
	)
	switch o := opts.(type) {
	case *PlayHT1Options:
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "StreamText",
			"%s does not support streaming text input", PlayHT1)
	case *PlayHT2Options:
		gen = httpChunk(func(ctx context.Context, t string) (io.ReadCloser, error) { return c.streamV2(ctx, t, o) })
	case *TurboOptions:
		gen = c.rpcChunk(o)
		algo = o.algorithm(c.congestion)
	case *Play3Options:
		gen = httpChunk(func(ctx context.Context, t string) (io.ReadCloser, error) { return c.inferenceStream(ctx, t, o) })
	case *DialogOptions:
		gen = httpChunk(func(ctx context.Context, t string) (io.ReadCloser, error) { return c.inferenceStream(ctx, t, o) })
	default:
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "StreamText", "unsupported options %T", opts)
	}

	start := time.Now()
	ctx, span := c.callContext(ctx, telemetry.SpanStreamText, opts)
	engine := opts.Engine()
	source := func(ctx context.Context) <-chan sentence.Chunk {
		// Once the stream is done, keep receiving so the producer never
		// blocks on a send nobody reads.
		context.AfterFunc(ctx, func() {
			go func() {
				for range text {
				}
			}()
		})
		return sentence.Aggregate(ctx, text, c.sentences)
	}
	r := c.pipeline(ctx, engine, source, c.controller(engine, algo), gen)
	return c.finishStream(ctx, span, engine, "stream_text", start, r, nil)
}

// Generate synthesizes text to a hosted audio file and waits until it is
// ready.
func (c *Client) Generate(ctx context.Context, text string, opts Options) (*Generation, error) {
	if err := c.prepare("Generate", opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidOption, component, "Generate", "text is required")
	}

	start := time.Now()
	ctx, span := c.callContext(ctx, telemetry.SpanGenerate, opts)

	var (
		gen *Generation
		err error
	)
	switch o := opts.(type) {
	case *PlayHT1Options:
		gen, err = c.generateLegacy(ctx, text, o)
	case *PlayHT2Options, *TurboOptions, *Play3Options, *DialogOptions:
		gen, err = c.generateV2(ctx, text, o)
	default:
		err = pkgerrors.Newf(pkgerrors.KindInvalidEngine, component, "Generate", "unsupported options %T", opts)
	}

	if err != nil {
		err = pkgerrors.Normalize(err)
		logger.ErrorContext(ctx, "generation failed", "error", err)
	}
	prometheus.RecordGeneration(string(opts.Engine()), "generate", err, time.Since(start).Seconds())
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return gen, nil
}

func (c *Client) finishStream(ctx context.Context, span trace.Span, engine VoiceEngine, op string,
	start time.Time, r io.ReadCloser, err error) (io.ReadCloser, error) {
	if err != nil {
		err = pkgerrors.Normalize(err)
		logger.ErrorContext(ctx, "stream failed to open", "operation", op, "error", err)
		prometheus.RecordGeneration(string(engine), op, err, time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
		return nil, err
	}
	prometheus.RecordStreamOpen()
	return &observed{ReadCloser: r, engine: engine, op: op, start: start, span: span}, nil
}

// observed reports time to first audio and ends the call's span and metrics
// when the stream ends or is closed. Read errors are normalized.
type observed struct {
	io.ReadCloser
	engine VoiceEngine
	op     string
	start  time.Time
	span   trace.Span

	first bool
	once  sync.Once
}

func (o *observed) Read(p []byte) (int, error) {
	n, err := o.ReadCloser.Read(p)
	if n > 0 && !o.first {
		o.first = true
		prometheus.RecordTimeToFirstAudio(string(o.engine), time.Since(o.start).Seconds())
	}
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		o.end(nil)
		return n, err
	}
	nerr := pkgerrors.Normalize(err)
	o.end(nerr)
	return n, nerr
}

func (o *observed) Close() error {
	err := o.ReadCloser.Close()
	o.end(nil)
	return err
}

func (o *observed) end(err error) {
	o.once.Do(func() {
		prometheus.RecordStreamClose()
		prometheus.RecordGeneration(string(o.engine), o.op, err, time.Since(o.start).Seconds())
		telemetry.EndSpan(o.span, err)
	})
}
