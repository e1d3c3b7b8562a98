package tts

import (
	"context"
	"io"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/metrics/prometheus"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/sentence"
	"github.com/playht/playht-go-sdk/streaming"
	"github.com/playht/playht-go-sdk/telemetry"
)

// chunkGenerator starts synthesis of one chunk. It must call onSettled once
// audio starts flowing or the attempt is known to have failed; the pipeline
// uses it to release the congestion slot.
type chunkGenerator func(ctx context.Context, text string, onSettled func()) (io.ReadCloser, error)

// httpChunk adapts a request/response synthesis call: the call is settled
// as soon as response headers arrive.
func httpChunk(open func(ctx context.Context, text string) (io.ReadCloser, error)) chunkGenerator {
	return func(ctx context.Context, text string, onSettled func()) (io.ReadCloser, error) {
		defer onSettled()
		return open(ctx, text)
	}
}

// chunkSource starts the producer of a pipeline's chunks. It runs on the
// pipeline's own context and must stop sending once that context ends.
type chunkSource func(ctx context.Context) <-chan sentence.Chunk

// lineSource feeds precomputed lines as chunks.
func lineSource(lines []string) chunkSource {
	return func(ctx context.Context) <-chan sentence.Chunk { return chunksOf(ctx, lines) }
}

func chunksOf(ctx context.Context, lines []string) <-chan sentence.Chunk {
	ch := make(chan sentence.Chunk)
	go func() {
		defer close(ch)
		for i, l := range lines {
			select {
			case ch <- sentence.Chunk{Index: i, Text: l}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// releasing releases a prefetch slot once when its stream is closed.
type releasing struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (r *releasing) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.release)
	return err
}

// pipeline generates chunks behind ctrl, at most c.prefetch ahead of the
// reader, and assembles their audio in order. Closing the returned reader,
// or the client, stops the chunk source as well.
func (c *Client) pipeline(ctx context.Context, engine VoiceEngine, source chunkSource,
	ctrl *congestion.Controller, gen chunkGenerator) io.ReadCloser {
	ctx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(c.ctx, cancel)
	context.AfterFunc(ctx, func() { stopOnClose() })
	chunks := source(ctx)
	tasks := make(chan *streaming.Task, c.prefetch)
	out := streaming.Assemble(ctx, tasks)
	window := semaphore.NewWeighted(int64(c.prefetch))

	go func() {
		defer close(tasks)
		for {
			var chunk sentence.Chunk
			var ok bool
			select {
			case chunk, ok = <-chunks:
			case <-ctx.Done():
				return
			}
			if !ok {
				return
			}

			task := streaming.NewTask(chunk.Index, chunk.Text)
			if chunk.Err != nil {
				task.Future.Reject(chunk.Err)
				select {
				case tasks <- task:
				case <-ctx.Done():
				}
				return
			}

			if err := window.Acquire(ctx, 1); err != nil {
				return
			}
			stopReject := rejectOnCancel(ctx, task)
			ctrl.Enqueue(string(engine)+"#"+strconv.Itoa(chunk.Index), func() {
				go func() {
					c.runChunk(ctx, engine, task, ctrl, gen, func() { window.Release(1) })
					stopReject()
				}()
			})
			select {
			case tasks <- task:
			case <-ctx.Done():
				go discard(task)
				return
			}
		}
	}()

	return &cancelOnClose{ReadCloser: out, cancel: cancel}
}

// rejectOnCancel fails task with KindCanceled if ctx ends before the
// returned stop func runs. Call stop once the task has settled.
func rejectOnCancel(ctx context.Context, task *streaming.Task) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		task.Future.Reject(pkgerrors.New(pkgerrors.KindCanceled, component, "Stream", ctx.Err()))
	})
}

func (c *Client) runChunk(ctx context.Context, engine VoiceEngine, task *streaming.Task,
	ctrl *congestion.Controller, gen chunkGenerator, release func()) {
	ctx = logger.WithChunkIndex(ctx, task.Index)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanChunk,
		telemetry.AttrEngine.String(string(engine)),
		telemetry.AttrChunkIndex.Int(task.Index),
		telemetry.AttrTextLength.Int(len(task.Text)),
	)

	var settle sync.Once
	onSettled := func() { settle.Do(ctrl.OnCompletion) }

	r, err := gen(ctx, task.Text, onSettled)
	prometheus.RecordChunk(string(engine), err)
	telemetry.EndSpan(span, err)
	if err != nil {
		onSettled()
		release()
		logger.StreamEvent(ctx, string(engine), "chunk failed", "error", err)
		task.Future.Reject(err)
		return
	}

	rr := &releasing{ReadCloser: r, release: release}
	if !task.Future.Resolve(rr) {
		_ = rr.Close()
	}
}

// discard closes the audio of a task no reader will consume.
func discard(task *streaming.Task) {
	if r, err := task.Future.Wait(context.Background()); err == nil {
		_ = r.Close()
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
