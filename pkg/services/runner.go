package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultUpdateBufferSize is the suggested capacity for the updates channel.
const DefaultUpdateBufferSize = 64

// refreshAllLimit caps concurrent refreshes in RefreshAll. Most sources are
// CLI tools, and spawning all of them at once makes slow laptops stutter.
const refreshAllLimit = 4

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// Runner refreshes every registered poller on its own fixed-interval
// ticker. Each poll registration is a Handle owned by the runner's scope,
// so Stop releases every ticker.
type Runner struct {
	registry *Registry
	updates  chan<- Update
	logger   *slog.Logger

	mu    sync.Mutex
	scope *Scope
	wg    sync.WaitGroup
}

// NewRunner creates a runner over registry. Updates are sent to the
// channel without blocking; a nil channel disables them.
func NewRunner(registry *Registry, updates chan<- Update, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		updates:  updates,
		logger:   slog.Default(),
		scope:    NewScope(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins polling every registered poller. Each one refreshes
// immediately and then on its interval until ctx is cancelled or Stop is
// called.
func (r *Runner) Start(ctx context.Context) error {
	for _, p := range r.registry.Pollers() {
		r.Poll(ctx, p)
	}
	return nil
}

// Poll starts a ticker for a single poller and returns the registration.
// The registration is also owned by the runner, so callers may release it
// early or leave it to Stop.
func (r *Runner) Poll(ctx context.Context, p Poller) Handle {
	ctx, cancel := context.WithCancel(ctx)

	interval := p.Interval()
	if interval <= 0 {
		interval = DefaultInterval
	}

	r.mu.Lock()
	scope := r.scope
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		r.cycle(ctx, p)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cycle(ctx, p)
			}
		}
	}()

	return scope.Add(HandleFunc(cancel))
}

// RunOnce refreshes the named poller synchronously and returns its value
// and the refresh error, if any.
func (r *Runner) RunOnce(ctx context.Context, name string) (Info, error) {
	p, err := r.registry.Lookup(name)
	if err != nil {
		return Info{}, err
	}
	r.cycle(ctx, p)
	return p.Info(), p.LastError()
}

// RefreshAll refreshes every poller concurrently and returns the joined
// refresh errors.
func (r *Runner) RefreshAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(refreshAllLimit)

	for _, p := range r.registry.Pollers() {
		g.Go(func() error {
			r.cycle(ctx, p)
			if err := p.LastError(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Health returns the healthy flag of every registered poller.
func (r *Runner) Health() map[string]bool {
	statuses := r.registry.AllStatus()
	health := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		health[s.Name] = s.Healthy
	}
	return health
}

// Stop releases every poll registration and waits for the goroutines to
// exit. It is safe to call more than once; a stopped runner can be started
// again.
func (r *Runner) Stop() {
	r.mu.Lock()
	scope := r.scope
	r.scope = NewScope()
	r.mu.Unlock()

	scope.Close()
	r.wg.Wait()
}

// cycle performs one refresh and records its outcome.
func (r *Runner) cycle(ctx context.Context, p Poller) {
	start := time.Now()
	p.Refresh(ctx)
	latency := time.Since(start)
	if latency <= 0 {
		latency = time.Nanosecond
	}

	err := p.LastError()
	r.registry.updateStatus(p.Name(), func(s *PollerStatus) {
		s.LastRun = start
		s.LastLatency = latency
		s.RunCount++
		if err != nil {
			s.ErrorCount++
			s.Healthy = false
			s.LastError = err.Error()
		} else {
			s.Healthy = true
			s.LastError = ""
		}
	})

	if r.updates == nil {
		return
	}
	u := Update{
		Source:    p.Name(),
		Info:      p.Info(),
		Timestamp: time.Now(),
		Error:     err,
	}
	select {
	case r.updates <- u:
	default:
		r.logger.Debug("update dropped, consumer too slow", "service", p.Name())
	}
}
