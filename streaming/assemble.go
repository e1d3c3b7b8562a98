package streaming

import (
	"context"
	"io"
	"sync"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Future is the eventual audio of one chunk.
type Future struct {
	once sync.Once
	done chan struct{}
	r    io.ReadCloser
	err  error
}

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles f with r. It reports false if f was already settled, in
// which case the caller still owns r.
func (f *Future) Resolve(r io.ReadCloser) bool {
	ok := false
	f.once.Do(func() {
		f.r = r
		ok = true
		close(f.done)
	})
	return ok
}

// Reject settles f with err.
func (f *Future) Reject(err error) bool {
	ok := false
	f.once.Do(func() {
		f.err = err
		ok = true
		close(f.done)
	})
	return ok
}

// Done is closed once f is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until f is settled or ctx is done.
func (f *Future) Wait(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-f.done:
		return f.r, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Task is the pending audio of chunk Index.
type Task struct {
	Index  int
	Text   string
	Future *Future
}

// NewTask returns a task with an unsettled future.
func NewTask(index int, text string) *Task {
	return &Task{Index: index, Text: text, Future: NewFuture()}
}

type assembled struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (a *assembled) Close() error {
	a.cancel()
	return a.PipeReader.Close()
}

// Assemble concatenates the audio of tasks in the order they are received,
// copying each sub-stream fully before waiting on the next. The first failure
// is returned from Read as a normalized *errors.Error and ends the output;
// remaining tasks are drained and their streams closed in the background.
// The output reaches EOF after tasks is closed and the last sub-stream is
// drained. Closing the output cancels the assembly.
func Assemble(ctx context.Context, tasks <-chan *Task) io.ReadCloser {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	go func() {
		defer cancel()
		for {
			var t *Task
			var ok bool
			select {
			case t, ok = <-tasks:
			case <-ctx.Done():
				fail(pw, ctx.Err())
				go drain(tasks)
				return
			}
			if !ok {
				_ = pw.Close()
				return
			}

			if err := copyTask(ctx, pw, t); err != nil {
				fail(pw, err)
				go drain(tasks)
				return
			}
		}
	}()

	return &assembled{PipeReader: pr, cancel: cancel}
}

func copyTask(ctx context.Context, w io.Writer, t *Task) error {
	r, err := t.Future.Wait(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	if _, err := io.Copy(w, r); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func fail(pw *io.PipeWriter, err error) {
	_ = pw.CloseWithError(pkgerrors.Normalize(err))
}

// drain closes the stream of every remaining task once it settles.
func drain(tasks <-chan *Task) {
	for t := range tasks {
		go func() {
			<-t.Future.Done()
			if t.Future.r != nil {
				_ = t.Future.r.Close()
			}
		}()
	}
}
