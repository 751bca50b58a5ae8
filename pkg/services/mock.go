package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockPoller implements Poller for tests of the runner and of consumers
// such as the daemon and the monitor. It tracks how many times Refresh has
// been called.
type MockPoller struct {
	name     string
	interval time.Duration

	mu      sync.RWMutex
	data    any
	err     error
	state   State
	fetched time.Time

	subs      Broadcaster[Info]
	callCount atomic.Int64

	// RefreshFunc, if set, produces the data and error for each refresh
	// instead of the configured values.
	RefreshFunc func(ctx context.Context) (any, error)
}

// MockPollerOption configures a MockPoller.
type MockPollerOption func(*MockPoller)

// WithData sets the data produced by Refresh.
func WithData(data any) MockPollerOption {
	return func(m *MockPoller) { m.data = data }
}

// WithError sets the error produced by Refresh.
func WithError(err error) MockPollerOption {
	return func(m *MockPoller) { m.err = err }
}

// WithRefreshFunc sets a custom function for Refresh.
func WithRefreshFunc(fn func(ctx context.Context) (any, error)) MockPollerOption {
	return func(m *MockPoller) { m.RefreshFunc = fn }
}

// NewMockPoller creates a mock poller with the given name and interval.
func NewMockPoller(name string, interval time.Duration, opts ...MockPollerOption) *MockPoller {
	m := &MockPoller{name: name, interval: interval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the poller name.
func (m *MockPoller) Name() string { return m.name }

// Interval returns the configured interval.
func (m *MockPoller) Interval() time.Duration { return m.interval }

// Refresh records the call and stores the configured or computed outcome.
// The error is only exposed through LastError after the first call.
func (m *MockPoller) Refresh(ctx context.Context) {
	m.callCount.Add(1)

	var (
		data any
		err  error
	)
	if m.RefreshFunc != nil {
		data, err = m.RefreshFunc(ctx)
		m.mu.Lock()
		m.data, m.err = data, err
		m.mu.Unlock()
	}

	m.mu.Lock()
	if m.err == nil {
		m.state = Fresh
		m.fetched = time.Now()
	} else {
		m.state = Stale
	}
	m.mu.Unlock()

	m.subs.Notify(discardLogger, m.Info())
}

// LastError returns the configured error once Refresh has run.
func (m *MockPoller) LastError() error {
	if m.callCount.Load() == 0 {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Healthy reports LastError() == nil.
func (m *MockPoller) Healthy() bool { return m.LastError() == nil }

// Info returns the mock's current value.
func (m *MockPoller) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{Name: m.name, State: m.state, FetchedAt: m.fetched, Data: m.data}
	if m.err != nil && m.callCount.Load() > 0 {
		info.Error = m.err.Error()
	}
	return info
}

// Watch registers cb for every Refresh.
func (m *MockPoller) Watch(cb func(Info)) *Subscription {
	return m.subs.Subscribe(cb)
}

// SetData updates the data returned by future refreshes.
func (m *MockPoller) SetData(data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
}

// SetError updates the error returned by future refreshes.
func (m *MockPoller) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// CallCount returns how many times Refresh has been called.
func (m *MockPoller) CallCount() int64 {
	return m.callCount.Load()
}
