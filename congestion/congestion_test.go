package congestion

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", Off, false},
		{"Off", Off, false},
		{"StaticMar2024", StaticMar2024, false},
		{"staticmar2024", StaticMar2024, false},
		{"adaptive", Off, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidOption)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	n, backoff := RetryPolicy(Off)
	assert.Zero(t, n)
	assert.Zero(t, backoff)

	n, backoff = RetryPolicy(StaticMar2024)
	assert.Equal(t, 2, n)
	assert.Equal(t, 50*time.Millisecond, backoff)
}

func TestController_OffRunsSynchronouslyInOrder(t *testing.T) {
	c := NewController("test-off", Off)
	defer c.Close()

	var order []int
	for i := range 5 {
		c.Enqueue("task", func() { order = append(order, i) })
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Zero(t, c.Pending())
}

func TestController_StaticOneInFlightWithBackoff(t *testing.T) {
	c := NewController("test-static", StaticMar2024)
	defer c.Close()

	const tasks = 4
	var (
		running  atomic.Int32
		maxSeen  atomic.Int32
		mu       sync.Mutex
		starts   = make([]time.Time, tasks)
		finishes = make([]time.Time, tasks)
		wg       sync.WaitGroup
	)
	wg.Add(tasks)
	for i := range tasks {
		c.Enqueue("task", func() {
			n := running.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			mu.Lock()
			starts[i] = time.Now()
			mu.Unlock()

			go func() {
				defer wg.Done()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				finishes[i] = time.Now()
				mu.Unlock()
				running.Add(-1)
				c.OnCompletion()
			}()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not all run")
	}

	assert.Equal(t, int32(1), maxSeen.Load())
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < tasks; i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(finishes[i-1]), 50*time.Millisecond,
			"task %d started too soon after task %d completed", i, i-1)
	}
}

func TestController_QueuesUntilCompletion(t *testing.T) {
	c := NewController("test-queue", StaticMar2024)
	defer c.Close()

	var ran atomic.Int32
	c.Enqueue("a", func() { ran.Add(1) })
	c.Enqueue("b", func() { ran.Add(1) })

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, 1, c.InFlight())
	assert.Equal(t, 1, c.Pending())

	c.OnCompletion()
	assert.Eventually(t, func() bool { return ran.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestController_OnCompletionFloorsAtZero(t *testing.T) {
	c := NewController("test-floor", StaticMar2024)
	defer c.Close()

	c.OnCompletion()
	c.OnCompletion()
	assert.Zero(t, c.InFlight())
}

func TestController_CloseDropsQueue(t *testing.T) {
	c := NewController("test-close", StaticMar2024)

	var ran atomic.Int32
	c.Enqueue("a", func() { ran.Add(1) })
	c.Enqueue("b", func() { ran.Add(1) })
	c.OnCompletion()
	c.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), ran.Load())
	assert.Zero(t, c.Pending())

	c.Enqueue("c", func() { ran.Add(1) })
	assert.Equal(t, int32(1), ran.Load())
}
