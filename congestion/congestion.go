// Package congestion throttles how many chunk generations are admitted to the
// inference backend at once.
package congestion

import (
	"strings"
	"sync"
	"time"

	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/metrics/prometheus"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Algorithm selects a congestion control policy.
type Algorithm int

const (
	// Off admits every task immediately.
	Off Algorithm = iota
	// StaticMar2024 admits one task at a time and waits a fixed backoff after
	// each completion.
	StaticMar2024
)

const (
	staticParallelism = 1
	staticBackoff     = 50 * time.Millisecond
	staticMaxRetries  = 2
)

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case Off:
		return "Off"
	case StaticMar2024:
		return "StaticMar2024"
	}
	return "Unknown"
}

// ParseAlgorithm parses a configuration name. Matching is case-insensitive
// and an empty name means Off.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return Off, nil
	case "staticmar2024", "static_mar_2024", "static":
		return StaticMar2024, nil
	}
	return Off, pkgerrors.Newf(pkgerrors.KindInvalidOption, "congestion", "ParseAlgorithm",
		"unknown congestion control algorithm %q", s)
}

// RetryPolicy returns how often a stream may be reopened before it gives up
// on a target and how long to wait between attempts.
func RetryPolicy(a Algorithm) (maxRetries int, backoff time.Duration) {
	if a == StaticMar2024 {
		return staticMaxRetries, staticBackoff
	}
	return 0, 0
}

type entry struct {
	name string
	fn   func()
}

// Controller is a FIFO admission queue. Tasks are dispatched while fewer than
// the algorithm's parallelism are in flight; OnCompletion frees a slot and
// retries dispatch after the backoff.
type Controller struct {
	algo        Algorithm
	name        string
	parallelism int
	backoff     time.Duration

	mu       sync.Mutex
	queue    []entry
	inFlight int
	timers   map[*time.Timer]struct{}
	closed   bool
}

// NewController creates a controller. name labels its queue depth gauge.
func NewController(name string, algo Algorithm) *Controller {
	c := &Controller{
		algo:   algo,
		name:   name,
		timers: make(map[*time.Timer]struct{}),
	}
	if algo == StaticMar2024 {
		c.parallelism = staticParallelism
		c.backoff = staticBackoff
	}
	return c
}

// Algorithm returns the controller's policy.
func (c *Controller) Algorithm() Algorithm {
	return c.algo
}

// Enqueue schedules fn. With Off it runs before Enqueue returns. fn runs on
// the dispatching goroutine and must return promptly; it should start the
// work and arrange for OnCompletion to be called.
func (c *Controller) Enqueue(name string, fn func()) {
	if c.algo == Off {
		fn()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logger.Debug("congestion: enqueue after close", "controller", c.name, "task", name)
		return
	}
	c.queue = append(c.queue, entry{name: name, fn: fn})
	prometheus.SetQueueDepth(c.name, len(c.queue))
	c.mu.Unlock()

	c.dispatch()
}

// OnCompletion marks one in-flight task as having produced its first audio.
func (c *Controller) OnCompletion() {
	if c.algo == Off {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
	if c.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(c.backoff, func() {
		c.mu.Lock()
		delete(c.timers, t)
		c.mu.Unlock()
		c.dispatch()
	})
	c.timers[t] = struct{}{}
}

// InFlight returns the number of dispatched tasks not yet completed.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Pending returns the number of queued tasks.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops pending backoff timers and drops queued tasks.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	if n := len(c.queue); n > 0 {
		logger.Debug("congestion: dropping queued tasks", "controller", c.name, "count", n)
	}
	c.queue = nil
	prometheus.SetQueueDepth(c.name, 0)
}

func (c *Controller) dispatch() {
	for {
		c.mu.Lock()
		if c.closed || c.inFlight >= c.parallelism || len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		next := c.queue[0]
		c.queue[0] = entry{}
		c.queue = c.queue[1:]
		c.inFlight++
		prometheus.SetQueueDepth(c.name, len(c.queue))
		c.mu.Unlock()

		logger.Debug("congestion: dispatch", "controller", c.name, "task", next.name)
		next.fn()
	}
}
