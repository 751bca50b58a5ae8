package services

import (
	"sync"
)

// Handle is anything a Scope can release: a subscription, a poll
// registration, a child scope.
type Handle interface {
	Release()
}

// HandleFunc adapts a plain function to Handle.
type HandleFunc func()

// Release calls f.
func (f HandleFunc) Release() { f() }

// Subscription is returned by OnChange and Watch. Releasing it stops
// further deliveries; it is safe to release more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Release unregisters the callback.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Scope owns handles and releases them together, in reverse order of
// acquisition, when it is closed. A handle added after Close is released
// immediately so nothing outlives its owner.
type Scope struct {
	mu      sync.Mutex
	handles []Handle
	closed  bool
}

// NewScope returns an open scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add transfers ownership of h to the scope and returns it for chaining.
func (s *Scope) Add(h Handle) Handle {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.Release()
		return h
	}
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

// Child creates a nested scope that is released with its parent.
func (s *Scope) Child() *Scope {
	c := NewScope()
	s.Add(c)
	return c
}

// Len reports how many handles the scope currently owns.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases every owned handle. Subsequent calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Release()
	}
}

// Release implements Handle so scopes can nest.
func (s *Scope) Release() { s.Close() }
