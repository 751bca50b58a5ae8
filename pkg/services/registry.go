package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownService is returned when a poller name is not registered.
var ErrUnknownService = errors.New("unknown service")

// Registry manages a set of named pollers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	pollers  map[string]Poller
	statuses map[string]*PollerStatus
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pollers:  make(map[string]Poller),
		statuses: make(map[string]*PollerStatus),
	}
}

// Register adds a poller. It returns an error if the name is taken.
func (r *Registry) Register(p Poller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("register: empty service name")
	}
	if _, exists := r.pollers[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}

	r.pollers[name] = p
	r.statuses[name] = &PollerStatus{
		Name:     name,
		Healthy:  true,
		Interval: p.Interval(),
	}
	return nil
}

// Unregister removes a poller by name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pollers, name)
	delete(r.statuses, name)
}

// Get returns the poller with the given name.
func (r *Registry) Get(name string) (Poller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pollers[name]
	return p, ok
}

// Lookup is Get with an ErrUnknownService error for callers that report
// to users.
func (r *Registry) Lookup(name string) (Poller, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return p, nil
}

// List returns the sorted names of all registered pollers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pollers))
	for name := range r.pollers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pollers returns all registered pollers sorted by name.
func (r *Registry) Pollers() []Poller {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Poller, 0, len(names))
	for _, n := range names {
		if p, ok := r.pollers[n]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Status returns a copy of the runtime status for the named poller.
func (r *Registry) Status(name string) (PollerStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.statuses[name]
	if !ok {
		return PollerStatus{}, false
	}
	return *s, true
}

// AllStatus returns a copy of all statuses, sorted by name.
func (r *Registry) AllStatus() []PollerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PollerStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// updateStatus applies fn to the status entry for name. The caller must not
// hold the lock.
func (r *Registry) updateStatus(name string, fn func(s *PollerStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.statuses[name]; ok {
		fn(s)
	}
}
