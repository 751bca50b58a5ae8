package services

import (
	"context"
	"time"
)

// Poller is what the Registry and Runner drive. *Service[T] satisfies it
// for every T.
type Poller interface {
	// Name returns a unique identifier (e.g. "weather").
	Name() string

	// Interval returns how often the runner should call Refresh.
	Interval() time.Duration

	// Refresh performs one fetch cycle. It never fails; the outcome is
	// visible through LastError and Info.
	Refresh(ctx context.Context)

	// LastError returns the error of the most recent refresh, or nil.
	LastError() error

	// Healthy reports whether the most recent refresh succeeded.
	Healthy() bool

	// Info returns the current value in type-erased form.
	Info() Info

	// Watch registers a callback for every update.
	Watch(cb func(Info)) *Subscription
}

// PollerStatus tracks the runtime bookkeeping of a single poller. The
// runner updates it after every refresh cycle.
type PollerStatus struct {
	Name        string        `json:"name"`
	Healthy     bool          `json:"healthy"`
	LastRun     time.Time     `json:"last_run"`
	LastError   string        `json:"last_error,omitempty"`
	RunCount    int64         `json:"run_count"`
	ErrorCount  int64         `json:"error_count"`
	LastLatency time.Duration `json:"last_latency"`
	Interval    time.Duration `json:"interval"`
}

// Update carries the outcome of one refresh cycle from a poller goroutine
// to an optional consumer such as the daemon's health writer.
type Update struct {
	Source    string
	Info      Info
	Timestamp time.Time
	Error     error
}

var _ Poller = (*Service[struct{}])(nil)
