package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Registry Tests ---

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	p := NewMockPoller("weather", time.Second)

	if err := r.Register(p); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Get("weather")
	if !ok {
		t.Fatal("Get returned false for registered poller")
	}
	if got.Name() != "weather" {
		t.Errorf("Name = %q, want %q", got.Name(), "weather")
	}
	s, _ := r.Status("weather")
	if s.Interval != time.Second {
		t.Errorf("Status.Interval = %v, want 1s", s.Interval)
	}
}

func TestRegistryRejectsDuplicateAndEmptyNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewMockPoller("dup", time.Second)); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(NewMockPoller("dup", time.Second)); err == nil {
		t.Fatal("duplicate name should be rejected")
	}
	if err := r.Register(NewMockPoller("", time.Second)); err == nil {
		t.Fatal("empty name should be rejected")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("gone", time.Second))

	r.Unregister("gone")
	r.Unregister("never-there")

	if _, ok := r.Get("gone"); ok {
		t.Fatal("Get returned true after Unregister")
	}
	if _, ok := r.Status("gone"); ok {
		t.Fatal("Status should return false after Unregister")
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("ghost")
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("Lookup error = %v, want ErrUnknownService", err)
	}
}

func TestRegistryListAndPollersSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("weather", time.Second))
	_ = r.Register(NewMockPoller("battery", time.Second))
	_ = r.Register(NewMockPoller("prayer", time.Second))

	expected := []string{"battery", "prayer", "weather"}
	names := r.List()
	pollers := r.Pollers()
	if len(names) != len(expected) || len(pollers) != len(expected) {
		t.Fatalf("List = %v, Pollers = %d; want %v", names, len(pollers), expected)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("List[%d] = %q, want %q", i, names[i], expected[i])
		}
		if pollers[i].Name() != expected[i] {
			t.Errorf("Pollers[%d] = %q, want %q", i, pollers[i].Name(), expected[i])
		}
	}
}

func TestRegistryAllStatusSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("b", time.Second))
	_ = r.Register(NewMockPoller("a", time.Second))

	statuses := r.AllStatus()
	if len(statuses) != 2 {
		t.Fatalf("AllStatus returned %d, want 2", len(statuses))
	}
	if statuses[0].Name != "a" || statuses[1].Name != "b" {
		t.Errorf("AllStatus not sorted: got %q, %q", statuses[0].Name, statuses[1].Name)
	}
	if !statuses[0].Healthy {
		t.Error("initial status should be healthy")
	}
}

func TestRegistryConcurrentSafety(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.Register(NewMockPoller(fmt.Sprintf("concurrent-%d", n), time.Second))
			_ = r.AllStatus()
			_ = r.List()
		}(i)
	}
	wg.Wait()

	if got := len(r.List()); got != 10 {
		t.Errorf("expected 10 pollers, got %d", got)
	}
}

// --- Runner Tests ---

func TestRunnerReceivesUpdates(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("fast", 50*time.Millisecond, WithData("ping")))

	updates := make(chan Update, DefaultUpdateBufferSize)
	runner := NewRunner(r, updates)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := runner.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	select {
	case u := <-updates:
		if u.Source != "fast" {
			t.Errorf("Source = %q, want %q", u.Source, "fast")
		}
		if u.Info.Data != "ping" {
			t.Errorf("Data = %v, want %q", u.Info.Data, "ping")
		}
		if u.Error != nil {
			t.Errorf("unexpected error: %v", u.Error)
		}
		if u.Timestamp.IsZero() {
			t.Error("Timestamp should not be zero")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for update")
	}
}

func TestRunnerGracefulDegradation(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("failing", 50*time.Millisecond, WithError(errors.New("nmcli missing"))))
	_ = r.Register(NewMockPoller("working", 50*time.Millisecond, WithData("ok")))

	updates := make(chan Update, DefaultUpdateBufferSize)
	runner := NewRunner(r, updates)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_ = runner.Start(ctx)
	defer runner.Stop()

	var sawFailing, sawWorking bool
	deadline := time.After(400 * time.Millisecond)

	for !sawFailing || !sawWorking {
		select {
		case u := <-updates:
			switch u.Source {
			case "failing":
				sawFailing = true
				if u.Error == nil {
					t.Error("failing poller should report error")
				}
			case "working":
				sawWorking = true
				if u.Error != nil {
					t.Errorf("working poller had error: %v", u.Error)
				}
			}
		case <-deadline:
			t.Fatalf("timed out; sawFailing=%v sawWorking=%v", sawFailing, sawWorking)
		}
	}
}

func TestRunnerImmediateRefresh(t *testing.T) {
	r := NewRegistry()

	refreshed := make(chan struct{}, 1)
	_ = r.Register(NewMockPoller("immediate", time.Hour,
		WithRefreshFunc(func(ctx context.Context) (any, error) {
			select {
			case refreshed <- struct{}{}:
			default:
			}
			return "first", nil
		}),
	))

	runner := NewRunner(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = runner.Start(ctx)
	defer runner.Stop()

	select {
	case <-refreshed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("poller should refresh immediately on Start, not wait for first tick")
	}
}

func TestRunnerStopWaitsForGoroutines(t *testing.T) {
	r := NewRegistry()
	counter := &callCounter{}

	_ = r.Register(NewMockPoller("tracked", 30*time.Millisecond,
		WithRefreshFunc(func(ctx context.Context) (any, error) {
			counter.inc()
			return nil, nil
		}),
	))

	runner := NewRunner(r, nil)
	_ = runner.Start(context.Background())

	time.Sleep(150 * time.Millisecond)
	runner.Stop()

	before := counter.get()
	time.Sleep(100 * time.Millisecond)
	if after := counter.get(); after != before {
		t.Errorf("refreshes continued after Stop: before=%d, after=%d", before, after)
	}
}

func TestRunnerContextCancellationStopsTickers(t *testing.T) {
	r := NewRegistry()

	blocked := make(chan struct{})
	_ = r.Register(NewMockPoller("slow", 50*time.Millisecond,
		WithRefreshFunc(func(ctx context.Context) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case blocked <- struct{}{}:
				return "done", nil
			}
		}),
	))

	runner := NewRunner(r, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_ = runner.Start(ctx)

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never ran")
	}

	cancel()

	done := make(chan struct{})
	go func() {
		runner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestRunnerPollRegistrationRelease(t *testing.T) {
	r := NewRegistry()
	runner := NewRunner(r, nil)
	defer runner.Stop()

	counter := &callCounter{}
	p := NewMockPoller("scoped", 20*time.Millisecond,
		WithRefreshFunc(func(ctx context.Context) (any, error) {
			counter.inc()
			return nil, nil
		}),
	)

	h := runner.Poll(context.Background(), p)
	time.Sleep(70 * time.Millisecond)
	h.Release()
	time.Sleep(30 * time.Millisecond)

	before := counter.get()
	time.Sleep(80 * time.Millisecond)
	if after := counter.get(); after != before {
		t.Errorf("released registration kept polling: before=%d after=%d", before, after)
	}
	if before < 2 {
		t.Errorf("expected at least 2 refreshes before release, got %d", before)
	}
}

func TestRunnerStatusTracking(t *testing.T) {
	r := NewRegistry()
	counter := &callCounter{}

	_ = r.Register(NewMockPoller("tracked", 30*time.Millisecond,
		WithRefreshFunc(func(ctx context.Context) (any, error) {
			counter.inc()
			if counter.get()%2 == 0 {
				return nil, errors.New("intermittent")
			}
			return "ok", nil
		}),
	))

	runner := NewRunner(r, nil)
	_ = runner.Start(context.Background())
	time.Sleep(250 * time.Millisecond)
	runner.Stop()

	s, ok := r.Status("tracked")
	if !ok {
		t.Fatal("Status not found")
	}
	if s.RunCount < 3 {
		t.Errorf("RunCount = %d, want >= 3", s.RunCount)
	}
	if s.ErrorCount == 0 {
		t.Error("ErrorCount should be > 0 for intermittent failures")
	}
	if s.LastLatency <= 0 {
		t.Error("LastLatency should be positive")
	}
}

func TestRunnerRunOnce(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("manual", time.Hour, WithData("triggered")))
	runner := NewRunner(r, nil)

	info, err := runner.RunOnce(context.Background(), "manual")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if info.Data != "triggered" {
		t.Errorf("Data = %v, want %q", info.Data, "triggered")
	}
	if info.State != Fresh {
		t.Errorf("State = %v, want fresh", info.State)
	}

	_, _ = runner.RunOnce(context.Background(), "manual")
	s, _ := r.Status("manual")
	if s.RunCount != 2 {
		t.Errorf("RunCount = %d, want 2", s.RunCount)
	}
	if s.LastRun.IsZero() {
		t.Error("LastRun should not be zero after RunOnce")
	}
}

func TestRunnerRunOnceNotFound(t *testing.T) {
	runner := NewRunner(NewRegistry(), nil)

	_, err := runner.RunOnce(context.Background(), "ghost")
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("RunOnce error = %v, want ErrUnknownService", err)
	}
}

func TestRunnerRunOnceWithError(t *testing.T) {
	r := NewRegistry()
	testErr := errors.New("runonce-fail")
	_ = r.Register(NewMockPoller("errorer", time.Hour, WithError(testErr)))
	runner := NewRunner(r, nil)

	_, err := runner.RunOnce(context.Background(), "errorer")
	if !errors.Is(err, testErr) {
		t.Fatalf("RunOnce error = %v, want %v", err, testErr)
	}

	s, _ := r.Status("errorer")
	if s.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", s.ErrorCount)
	}
	if s.Healthy {
		t.Error("status should be unhealthy after error")
	}
	if s.LastError != "runonce-fail" {
		t.Errorf("LastError = %q, want %q", s.LastError, "runonce-fail")
	}
}

func TestRunnerRefreshAllJoinsErrors(t *testing.T) {
	r := NewRegistry()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ok := NewMockPoller("ok", time.Hour, WithData(1))
	_ = r.Register(NewMockPoller("a", time.Hour, WithError(errA)))
	_ = r.Register(NewMockPoller("b", time.Hour, WithError(errB)))
	_ = r.Register(ok)

	runner := NewRunner(r, nil)
	err := runner.RefreshAll(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("RefreshAll error = %v, want both errors joined", err)
	}
	if ok.CallCount() != 1 {
		t.Errorf("ok CallCount = %d, want 1", ok.CallCount())
	}
}

func TestRunnerHealth(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("good", time.Hour, WithData("ok")))
	_ = r.Register(NewMockPoller("bad", time.Hour, WithError(errors.New("fail"))))
	runner := NewRunner(r, nil)

	health := runner.Health()
	if !health["good"] || !health["bad"] {
		t.Errorf("initial health should all be true: %v", health)
	}

	_, _ = runner.RunOnce(context.Background(), "bad")

	health = runner.Health()
	if !health["good"] {
		t.Error("good should still be healthy")
	}
	if health["bad"] {
		t.Error("bad should be unhealthy after error")
	}
}

func TestRunnerEmptyRegistry(t *testing.T) {
	runner := NewRunner(NewRegistry(), nil)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start with empty registry should not error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		runner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on empty registry")
	}
}

func TestRunnerStopIdempotent(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("x", 50*time.Millisecond, WithData(1)))
	runner := NewRunner(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_ = runner.Start(ctx)
	cancel()

	runner.Stop()
	runner.Stop()
	runner.Stop()
}

func TestRunnerDropsUpdatesWhenChannelFull(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockPoller("chatty", time.Hour, WithData(1)))

	updates := make(chan Update, 1)
	runner := NewRunner(r, updates)

	for i := 0; i < 5; i++ {
		_, _ = runner.RunOnce(context.Background(), "chatty")
	}
	if len(updates) != 1 {
		t.Errorf("len(updates) = %d, want 1", len(updates))
	}
}

// --- Service + Runner integration ---

func TestRunnerDrivesRealService(t *testing.T) {
	var calls callCounter
	svc := New(Config[int]{
		Name:     "counter",
		Interval: 20 * time.Millisecond,
		Default:  -1,
		Logger:   quietLogger(),
		Source: SourceFunc[int](func(ctx context.Context) (int, error) {
			calls.inc()
			return int(calls.get()), nil
		}),
	})

	r := NewRegistry()
	if err := r.Register(svc); err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(r, nil)
	_ = runner.Start(context.Background())
	time.Sleep(90 * time.Millisecond)
	runner.Stop()

	if got := svc.Current().Data; got < 2 {
		t.Errorf("Current = %d, want >= 2 after several ticks", got)
	}
}

// --- helpers ---

type callCounter struct {
	mu    sync.Mutex
	count int64
}

func (c *callCounter) inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *callCounter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
