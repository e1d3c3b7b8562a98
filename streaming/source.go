// Package streaming turns RPC calls and chunk futures into pull-based audio
// streams.
package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/metrics/prometheus"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
	"github.com/playht/playht-go-sdk/telemetry"
)

const component = "streaming"

// Target is a named inference node.
type Target struct {
	Name string
	Conn grpc.ClientConnInterface
}

// SourceConfig configures one Tts call.
type SourceConfig struct {
	// Request is sent once per attempt. Required.
	Request *playhtv1.TtsRequest

	// Primary is tried first. Required.
	Primary Target

	// Fallback is tried once, after the primary has used up its retries.
	Fallback *Target

	// Congestion selects the retry budget and backoff, see congestion.RetryPolicy.
	Congestion congestion.Algorithm

	// Engine labels logs.
	Engine string

	// OnFirstData is called when the first audio bytes arrive.
	OnFirstData func()

	// OnSettled is called exactly once, on first data or when the source ends,
	// whichever happens first.
	OnSettled func()

	CallOptions []grpc.CallOption
}

// Source is the audio of one Tts call as an io.ReadCloser. Transport errors
// are retried until the first data frame arrives; after that, or after Close,
// any failure is final.
type Source struct {
	cfg    SourceConfig
	ctx    context.Context
	cancel context.CancelFunc

	frames chan []byte
	done   chan struct{}
	err    error
	buf    []byte

	mu        sync.Mutex
	retryable bool

	settle sync.Once
}

// Open starts the call in the background and returns immediately.
func Open(ctx context.Context, cfg SourceConfig) *Source {
	sctx, cancel := context.WithCancel(ctx)
	s := &Source{
		cfg:       cfg,
		ctx:       sctx,
		cancel:    cancel,
		frames:    make(chan []byte),
		done:      make(chan struct{}),
		retryable: true,
	}
	go s.run()
	return s
}

// Read implements io.Reader. The terminal error is a normalized *errors.Error.
func (s *Source) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		select {
		case b := <-s.frames:
			s.buf = b
		case <-s.done:
			if s.err != nil {
				return 0, s.err
			}
			return 0, io.EOF
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Cancel stops the call and disables retries.
func (s *Source) Cancel() {
	s.mu.Lock()
	s.retryable = false
	s.mu.Unlock()
	s.cancel()
}

// Close cancels the call. It does not wait for the call to end.
func (s *Source) Close() error {
	s.Cancel()
	return nil
}

// Done is closed once the source has ended.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

func (s *Source) isRetryable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryable
}

func (s *Source) settled() {
	s.settle.Do(func() {
		if s.cfg.OnSettled != nil {
			s.cfg.OnSettled()
		}
	})
}

func (s *Source) run() {
	maxRetries, backoff := congestion.RetryPolicy(s.cfg.Congestion)
	target := s.cfg.Primary
	fallback := s.cfg.Fallback
	retries := 0

	for {
		err := s.attempt(target)
		if err == nil {
			s.finish(nil)
			return
		}
		if !s.isRetryable() || pkgerrors.KindOf(err) != pkgerrors.KindTransport {
			s.finish(err)
			return
		}

		switch {
		case retries < maxRetries:
			retries++
			prometheus.RecordRPCRetry("retry")
			logger.StreamEvent(s.ctx, s.cfg.Engine, "retry",
				"target", target.Name, "attempt", retries, "error", err)
			if !sleep(s.ctx, backoff) {
				s.finish(s.ctx.Err())
				return
			}
		case fallback != nil:
			prometheus.RecordRPCRetry("fallback")
			logger.WarnContext(s.ctx, "stream falling back to secondary target",
				"engine", s.cfg.Engine, "primary", target.Name, "fallback", fallback.Name, "error", err)
			target = *fallback
			fallback = nil
			retries = 0
		default:
			s.finish(err)
			return
		}
	}
}

// attempt runs one call against target. Its context is canceled before
// attempt returns, so at most one call is ever live.
func (s *Source) attempt(target Target) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	ctx = logger.WithTarget(ctx, target.Name)

	stream, err := playhtv1.NewTtsClient(target.Conn).Tts(telemetry.InjectOutgoingMetadata(ctx), s.cfg.Request, s.cfg.CallOptions...)
	if err != nil {
		return s.classify(ctx, err)
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return s.classify(ctx, err)
		}

		if len(resp.Data) > 0 {
			s.firstData()
			select {
			case s.frames <- resp.Data:
			case <-ctx.Done():
				return s.classify(ctx, ctx.Err())
			}
		}

		if resp.Status == nil {
			continue
		}
		switch resp.Status.Code {
		case playhtv1.CodeComplete:
			return nil
		case playhtv1.CodeInProgress, playhtv1.CodeUnspecified:
		case playhtv1.CodeCanceled, playhtv1.CodeError:
			msg := strings.Join(resp.Status.Message, "; ")
			if msg == "" {
				msg = resp.Status.Code.String()
			}
			return pkgerrors.Newf(pkgerrors.KindProtocol, component, "Recv", "%s", msg).
				WithCode(resp.Status.Code.String())
		default:
			return pkgerrors.Newf(pkgerrors.KindProtocol, component, "Recv",
				"unknown status code %d", int32(resp.Status.Code))
		}
	}
}

func (s *Source) firstData() {
	s.mu.Lock()
	first := s.retryable
	s.retryable = false
	s.mu.Unlock()
	if !first {
		return
	}
	if s.cfg.OnFirstData != nil {
		s.cfg.OnFirstData()
	}
	s.settled()
}

func (s *Source) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && s.ctx.Err() != nil {
		return pkgerrors.New(pkgerrors.KindCanceled, component, "Recv", err)
	}
	if errors.Is(err, playhtv1.ErrMalformedFrame) {
		return pkgerrors.New(pkgerrors.KindProtocol, component, "Recv", err)
	}
	n := pkgerrors.Normalize(err)
	if n.Component == "" {
		n.Component = component
		n.Operation = "Recv"
	}
	return n
}

func (s *Source) finish(err error) {
	if err != nil {
		s.err = pkgerrors.Normalize(err)
		logger.StreamEvent(s.ctx, s.cfg.Engine, "failed", "error", err)
	}
	close(s.done)
	s.settled()
	s.cancel()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
