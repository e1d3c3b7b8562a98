package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/metrics/prometheus"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/telemetry"
)

// Settings tunes a Store.
type Settings struct {
	// UsableThreshold is how far before expiry a cached value stops being served.
	UsableThreshold time.Duration
	// AdvanceRefresh is how far before expiry the background refresh fires.
	AdvanceRefresh time.Duration
	// MinimalRefresh is the floor for the background refresh delay.
	MinimalRefresh time.Duration
	// MaxAttempts bounds network attempts per acquisition.
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	// IdleTTL evicts entries not read for this long. Zero disables eviction.
	IdleTTL time.Duration
	// CleanupInterval is the idle sweep period. Zero disables the sweeper.
	CleanupInterval time.Duration
}

// DefaultLeaseSettings returns settings for binary leases.
func DefaultLeaseSettings() Settings {
	return Settings{
		UsableThreshold: 30 * time.Second,
		AdvanceRefresh:  5 * time.Minute,
		MinimalRefresh:  time.Minute,
		MaxAttempts:     3,
		RetryDelay:      500 * time.Millisecond,
		IdleTTL:         2 * time.Hour,
		CleanupInterval: 30 * time.Minute,
	}
}

// DefaultCoordinateSettings returns settings for inference coordinates.
func DefaultCoordinateSettings() Settings {
	s := DefaultLeaseSettings()
	s.UsableThreshold = 5 * time.Second
	return s
}

// StoreConfig configures NewStore.
type StoreConfig[T Credential] struct {
	// Name labels logs, spans and metrics ("lease", "coordinates").
	Name     string
	Acquirer Acquirer[T]
	Settings Settings
	// Shared is an optional cross-process tier. Decode is required with it.
	Shared SharedCache
	Decode func([]byte) (T, error)
	Now    func() time.Time
}

var (
	errSuperseded = errors.New("acquisition superseded")
	errClosed     = pkgerrors.Newf(pkgerrors.KindCanceled, "lease", "Get", "store closed")
)

type entry[T Credential] struct {
	value    T
	has      bool
	gen      uint64
	cancel   context.CancelFunc
	timer    *time.Timer
	lastUsed time.Time
}

// Store caches one credential per Key. Concurrent readers of a missing or
// stale key share a single acquisition; a newer acquisition for a key aborts
// the older one and its waiters move to the newer one.
type Store[T Credential] struct {
	name     string
	acquirer Acquirer[T]
	settings Settings
	shared   SharedCache
	decode   func([]byte) (T, error)
	now      func() time.Time

	mu      sync.Mutex
	entries map[Key]*entry[T]
	nextGen uint64
	closed  bool
	group   singleflight.Group

	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopCh     chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewStore creates a store and starts its idle sweeper.
func NewStore[T Credential](cfg StoreConfig[T]) *Store[T] {
	if cfg.Settings.MaxAttempts <= 0 {
		cfg.Settings.MaxAttempts = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "credential"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store[T]{
		name:       cfg.Name,
		acquirer:   cfg.Acquirer,
		settings:   cfg.Settings,
		shared:     cfg.Shared,
		decode:     cfg.Decode,
		now:        cfg.Now,
		entries:    make(map[Key]*entry[T]),
		baseCtx:    ctx,
		baseCancel: cancel,
		stopCh:     make(chan struct{}),
	}
	if s.decode == nil {
		s.shared = nil
	}
	if cfg.Settings.CleanupInterval > 0 && cfg.Settings.IdleTTL > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// NewLeaseStore creates a store of binary leases.
func NewLeaseStore(acq Acquirer[*Lease], settings Settings, shared SharedCache) *Store[*Lease] {
	return NewStore(StoreConfig[*Lease]{
		Name:     "lease",
		Acquirer: acq,
		Settings: settings,
		Shared:   shared,
		Decode:   ParseLease,
	})
}

// NewCoordinateStore creates a store of inference coordinates.
func NewCoordinateStore(acq Acquirer[*Coordinates], settings Settings, shared SharedCache) *Store[*Coordinates] {
	return NewStore(StoreConfig[*Coordinates]{
		Name:     "coordinates",
		Acquirer: acq,
		Settings: settings,
		Shared:   shared,
		Decode:   ParseCoordinates,
	})
}

// Get returns the cached value for key while it is usable, otherwise joins
// or starts the key's single in-flight acquisition. Canceling ctx abandons
// only this caller's wait.
func (s *Store[T]) Get(ctx context.Context, key Key) (T, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			var zero T
			return zero, errClosed
		}
		e := s.entryLocked(key)
		e.lastUsed = s.now()
		if e.has && s.usable(e.value) {
			v := e.value
			s.mu.Unlock()
			return v, nil
		}
		gen := e.gen
		s.mu.Unlock()

		v, err := s.wait(ctx, key, gen, false)
		if errors.Is(err, errSuperseded) {
			continue
		}
		return v, err
	}
}

// Refresh starts a fresh acquisition for key, aborting any in-flight one,
// and waits for it. The shared tier is written but not read.
func (s *Store[T]) Refresh(ctx context.Context, key Key) (T, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		var zero T
		return zero, errClosed
	}
	e := s.entryLocked(key)
	e.lastUsed = s.now()
	gen := s.supersedeLocked(e)
	s.mu.Unlock()

	logger.LeaseEvent(ctx, s.name, key.Engine, "refresh")
	v, err := s.wait(ctx, key, gen, true)
	if errors.Is(err, errSuperseded) {
		return s.Get(ctx, key)
	}
	return v, err
}

// Clear drops the cached value for key, its refresh timer, any in-flight
// acquisition and its shared-tier copy.
func (s *Store[T]) Clear(key Key) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.evictLocked(key, e)
	}
	s.mu.Unlock()
	s.dropShared(key)
}

// ClearAll drops every entry, including shared-tier copies.
func (s *Store[T]) ClearAll() {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k, e := range s.entries {
		s.evictLocked(k, e)
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.dropShared(k)
	}
}

func (s *Store[T]) dropShared(key Key) {
	if s.shared == nil {
		return
	}
	if err := s.shared.Delete(context.Background(), s.sharedKey(key)); err != nil {
		logger.Warn("shared credential delete failed", "credential", s.name, "error", err)
	}
}

func (s *Store[T]) sharedKey(key Key) string {
	return s.name + ":" + key.String()
}

// Len returns the number of tracked keys.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweeper, every refresh timer and every in-flight acquisition.
func (s *Store[T]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for k, e := range s.entries {
			s.evictLocked(k, e)
		}
		s.mu.Unlock()
		s.baseCancel()
		close(s.stopCh)
		s.wg.Wait()
	})
}

// Sweep evicts entries not read for IdleTTL and returns how many it removed.
func (s *Store[T]) Sweep() int {
	if s.settings.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.settings.IdleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			s.evictLocked(k, e)
			n++
		}
	}
	if n > 0 {
		logger.Debug("evicted idle credentials", "credential", s.name, "count", n)
	}
	return n
}

func (s *Store[T]) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.settings.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store[T]) usable(v T) bool {
	return v.ExpiresAt().Sub(s.now()) > s.settings.UsableThreshold
}

func (s *Store[T]) entryLocked(key Key) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		s.nextGen++
		e = &entry[T]{gen: s.nextGen}
		s.entries[key] = e
	}
	return e
}

// supersedeLocked aborts the in-flight acquisition and returns a new generation.
func (s *Store[T]) supersedeLocked(e *entry[T]) uint64 {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	s.nextGen++
	e.gen = s.nextGen
	return e.gen
}

func (s *Store[T]) evictLocked(key Key, e *entry[T]) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	delete(s.entries, key)
}

func (s *Store[T]) wait(ctx context.Context, key Key, gen uint64, forced bool) (T, error) {
	var zero T
	ch := s.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		return s.run(key, gen, forced)
	})
	select {
	case <-ctx.Done():
		return zero, pkgerrors.New(pkgerrors.KindCanceled, "lease", "Get", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// run is the body of one acquisition. It owns the entry's cancel func while
// running and only publishes its result if no newer generation started.
func (s *Store[T]) run(key Key, gen uint64, forced bool) (any, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if s.closed || !ok || e.gen != gen {
		s.mu.Unlock()
		return nil, errSuperseded
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	e.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	ctx = logger.WithVoiceEngine(ctx, key.Engine)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanAcquire,
		telemetry.AttrCredential.String(s.name), telemetry.AttrEngine.String(key.Engine))
	start := time.Now()

	v, fromShared, err := s.obtain(ctx, key, forced)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.entries[key]
	if !ok || e.gen != gen {
		telemetry.EndSpan(span, errSuperseded)
		return nil, errSuperseded
	}
	e.cancel = nil
	telemetry.EndSpan(span, err)
	if !fromShared {
		prometheus.RecordLeaseAcquisition(s.name, err, time.Since(start).Seconds())
	}
	if err != nil {
		var zero T
		e.value, e.has = zero, false
		return nil, err
	}

	e.value, e.has = v, true
	s.scheduleLocked(key, e, v)
	logger.LeaseEvent(ctx, s.name, key.Engine, "acquired",
		"expires_at", v.ExpiresAt().UTC().Format(time.RFC3339), "shared", fromShared)
	return v, nil
}

// obtain reads the shared tier (unless forced), then acquires with retry and
// writes the result back to the shared tier.
func (s *Store[T]) obtain(ctx context.Context, key Key, forced bool) (T, bool, error) {
	sharedKey := s.sharedKey(key)
	if s.shared != nil && !forced {
		if v, ok := s.loadShared(ctx, sharedKey); ok {
			return v, true, nil
		}
	}

	v, err := s.acquireWithRetry(ctx, key)
	if err != nil {
		return v, false, err
	}

	if s.shared != nil {
		if b, merr := v.MarshalBinary(); merr == nil {
			if ttl := v.ExpiresAt().Sub(s.now()); ttl > 0 {
				if serr := s.shared.Save(ctx, sharedKey, b, ttl); serr != nil {
					logger.WarnContext(ctx, "shared credential write failed", "credential", s.name, "error", serr)
				}
			}
		}
	}
	return v, false, nil
}

func (s *Store[T]) loadShared(ctx context.Context, sharedKey string) (T, bool) {
	var zero T
	b, err := s.shared.Load(ctx, sharedKey)
	if err != nil {
		logger.WarnContext(ctx, "shared credential read failed", "credential", s.name, "error", err)
		return zero, false
	}
	if b == nil {
		return zero, false
	}
	v, err := s.decode(b)
	if err != nil || !s.usable(v) {
		return zero, false
	}
	return v, true
}

func (s *Store[T]) acquireWithRetry(ctx context.Context, key Key) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= s.settings.MaxAttempts; attempt++ {
		v, err := s.acquirer.Acquire(ctx, key)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || isCanceled(err) {
			return zero, pkgerrors.New(pkgerrors.KindCanceled, "lease", "Acquire", err)
		}
		if attempt == s.settings.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * s.settings.RetryDelay
		logger.WarnContext(ctx, "credential acquisition attempt failed",
			"credential", s.name, "attempt", attempt, "retry_in", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return zero, pkgerrors.New(pkgerrors.KindCanceled, "lease", "Acquire", ctx.Err())
		}
	}
	logger.LeaseFailure(ctx, s.name, key.Engine, s.settings.MaxAttempts, lastErr)
	return zero, lastErr
}

// scheduleLocked replaces the key's refresh timer.
func (s *Store[T]) scheduleLocked(key Key, e *entry[T], v T) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delay := v.ExpiresAt().Sub(s.now()) - s.settings.AdvanceRefresh
	if delay < s.settings.MinimalRefresh {
		delay = s.settings.MinimalRefresh
	}
	gen := e.gen
	e.timer = time.AfterFunc(delay, func() { s.autoRefresh(key, gen) })
}

func (s *Store[T]) autoRefresh(key Key, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if s.closed || !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	newGen := s.supersedeLocked(e)
	s.mu.Unlock()

	logger.LeaseEvent(s.baseCtx, s.name, key.Engine, "auto_refresh")
	_, _ = s.wait(s.baseCtx, key, newGen, true)
}
