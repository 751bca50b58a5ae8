package prayer

import (
	"context"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// ClockInterval is how often the next prayer is recomputed.
const ClockInterval = time.Minute

// Clock keeps a prayer service's next prayer fields current without
// refetching.
type Clock struct {
	svc      *services.Service[Times]
	interval time.Duration
	now      func() time.Time
}

// NewClock creates a Clock for svc. A zero interval uses ClockInterval and
// a nil now uses time.Now.
func NewClock(svc *services.Service[Times], interval time.Duration, now func() time.Time) *Clock {
	if interval <= 0 {
		interval = ClockInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{svc: svc, interval: interval, now: now}
}

// Tick recomputes the next prayer once and notifies subscribers.
func (c *Clock) Tick() {
	now := c.now()
	c.svc.Update(func(t Times) Times { return t.WithNext(now) })
}

// Start ticks until ctx is done or the returned handle is released.
func (c *Clock) Start(ctx context.Context) services.Handle {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
	return services.HandleFunc(func() {
		cancel()
		wg.Wait()
	})
}
