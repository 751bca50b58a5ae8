// Package services implements the polling-cache pattern behind every bar
// data source: fetch from an unreliable source, keep the last good value,
// persist it for offline fallback, and notify subscribers. A Registry and a
// Runner drive any number of services on fixed intervals.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
)

// Default configuration values.
const (
	DefaultInterval = 15 * time.Minute
	DefaultTimeout  = 10 * time.Second
)

// Source produces one fresh value per call. Implementations should honour
// ctx cancellation; the service applies its own timeout on top.
type Source[T any] interface {
	Fetch(ctx context.Context) (T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context) (T, error)

// Fetch calls f.
func (f SourceFunc[T]) Fetch(ctx context.Context) (T, error) { return f(ctx) }

// Config describes a single polling-cache service.
type Config[T any] struct {
	// Name identifies the service and its snapshot key (e.g. "weather").
	Name string

	// Source is the data source adapter.
	Source Source[T]

	// Default is the value Current returns before anything is fetched or
	// loaded, typically placeholders such as "N/A".
	Default T

	// Interval is how often the runner refreshes. Zero uses DefaultInterval.
	Interval time.Duration

	// Timeout bounds each fetch. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Store persists snapshots. Nil disables persistence and fallback.
	Store *cache.Store

	// ReadOnly keeps the disk fallback but never writes the snapshot, for
	// processes that do not own the cache directory.
	ReadOnly bool

	// Logger receives fetch failures. Nil uses slog.Default().
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service is a single polling-cache service. Current never blocks on I/O;
// Refresh never returns an error, failures are logged and kept in
// LastError.
type Service[T any] struct {
	name     string
	source   Source[T]
	interval time.Duration
	timeout  time.Duration
	store    *cache.Store
	readOnly bool
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	value    CachedValue[T]
	hasValue bool // value came from a fetch or the disk snapshot
	lastErr  error

	subs Broadcaster[change[T]]
}

// change is one notification: the value and the refresh error current
// when it was sent.
type change[T any] struct {
	value CachedValue[T]
	err   error
}

// New creates a service in the Uninitialized state holding cfg.Default.
func New[T any](cfg Config[T]) *Service[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service[T]{
		name:     cfg.Name,
		source:   cfg.Source,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		store:    cfg.Store,
		readOnly: cfg.ReadOnly,
		logger:   cfg.Logger.With("service", cfg.Name),
		now:      cfg.Now,
		value:    CachedValue[T]{Data: cfg.Default, State: Uninitialized},
	}
}

// Name returns the service identifier.
func (s *Service[T]) Name() string { return s.name }

// Interval returns the refresh interval.
func (s *Service[T]) Interval() time.Duration { return s.interval }

// Current returns the last known value, possibly stale.
func (s *Service[T]) Current() CachedValue[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// LastError returns the error from the most recent refresh, or nil.
func (s *Service[T]) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Healthy reports whether the most recent refresh succeeded. A service that
// has never refreshed is healthy.
func (s *Service[T]) Healthy() bool {
	return s.LastError() == nil
}

// Info returns the type-erased view of the current value.
func (s *Service[T]) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info(s.value, s.lastErr)
}

func (s *Service[T]) info(cv CachedValue[T], err error) Info {
	info := Info{
		Name:      s.name,
		State:     cv.State,
		FetchedAt: cv.FetchedAt,
		FromDisk:  cv.FromDisk,
		Data:      cv.Data,
	}
	if err != nil {
		info.Error = err.Error()
	}
	return info
}

// OnChange registers cb for every successful or fallback update. Callbacks
// run on the refreshing goroutine, outside the service lock; a panic in
// one callback is logged and does not stop delivery to the others.
func (s *Service[T]) OnChange(cb func(CachedValue[T])) *Subscription {
	return s.subs.Subscribe(func(c change[T]) { cb(c.value) })
}

// Watch is OnChange for consumers that do not know T. The Info describes
// the notified update, not whatever state the service has reached since.
func (s *Service[T]) Watch(cb func(Info)) *Subscription {
	return s.subs.Subscribe(func(c change[T]) { cb(s.info(c.value, c.err)) })
}

// Subscribers reports how many callbacks are registered.
func (s *Service[T]) Subscribers() int { return s.subs.Len() }

// Refresh fetches a new value with the configured timeout. On success the
// value is stored, persisted and broadcast. On failure the last on-disk
// snapshot is loaded if no value has been held yet, the state becomes
// Stale, and subscribers are still notified.
func (s *Service[T]) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.value.State = Fetching
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	data, err := s.source.Fetch(fetchCtx)
	cancel()

	if err == nil {
		s.accept(data)
		return
	}
	s.fail(ctx, err)
}

// Update replaces the current data with fn(data) without fetching and
// notifies subscribers. It is used for derived fields that depend on the
// wall clock, such as the next prayer. The state and fetch time are kept.
func (s *Service[T]) Update(fn func(T) T) {
	s.mu.Lock()
	s.value.Data = fn(s.value.Data)
	c := change[T]{value: s.value, err: s.lastErr}
	s.mu.Unlock()

	s.subs.Notify(s.logger, c)
}

func (s *Service[T]) accept(data T) {
	now := s.now()

	s.mu.Lock()
	s.value = CachedValue[T]{Data: data, FetchedAt: now, State: Fresh}
	s.hasValue = true
	s.lastErr = nil
	c := change[T]{value: s.value}
	s.mu.Unlock()

	if s.store != nil && !s.readOnly {
		if err := cache.PutTyped(s.store, s.name, data, now); err != nil {
			s.logger.Warn("persist snapshot failed", "error", err)
		}
	}

	s.logger.Debug("refreshed")
	s.subs.Notify(s.logger, c)
}

func (s *Service[T]) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		err = fmt.Errorf("%s: refresh cancelled: %w", s.name, err)
		s.logger.Debug("refresh cancelled", "error", err)
	} else if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s: fetch timed out after %s: %w", s.name, s.timeout, err)
		s.logger.Warn("refresh failed", "error", err)
	} else {
		err = fmt.Errorf("%s: %w", s.name, err)
		s.logger.Warn("refresh failed", "error", err)
	}

	s.mu.Lock()
	s.lastErr = err
	if !s.hasValue && s.store != nil {
		if snap, ok := cache.GetTyped[T](s.store, s.name); ok {
			s.value.Data = snap.Data
			s.value.FetchedAt = snap.FetchedAt
			s.value.FromDisk = true
			s.hasValue = true
			s.logger.Info("loaded snapshot fallback", "fetched_at", snap.FetchedAt)
		}
	}
	s.value.State = Stale
	c := change[T]{value: s.value, err: err}
	s.mu.Unlock()

	s.subs.Notify(s.logger, c)
}

// Broadcaster is a set of callbacks keyed by registration id. The zero
// value is ready to use.
type Broadcaster[V any] struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(V)
}

// Subscribe registers fn until the returned Subscription is released.
func (s *Broadcaster[V]) Subscribe(fn func(V)) *Subscription {
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(V))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.mu.Unlock()

	return newSubscription(func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	})
}

// Len reports how many callbacks are registered.
func (s *Broadcaster[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Notify calls every callback with v outside the lock. A panicking
// callback is logged and does not stop delivery to the others.
func (s *Broadcaster[V]) Notify(logger *slog.Logger, v V) {
	s.mu.Lock()
	fns := make([]func(V), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		deliver(logger, fn, v)
	}
}

func deliver[V any](logger *slog.Logger, fn func(V), v V) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscriber panicked", "panic", r)
		}
	}()
	fn(v)
}
