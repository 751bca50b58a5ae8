package services

import "time"

// State is the lifecycle position of a polling-cache service.
//
//	Uninitialized -> Fetching -> Fresh | Stale
//	Fresh | Stale -> Fetching (next tick)
type State int

const (
	// Uninitialized means no refresh has started yet.
	Uninitialized State = iota
	// Fetching means a refresh is in flight.
	Fetching
	// Fresh means the last refresh succeeded.
	Fresh
	// Stale means the last refresh failed; the value is a disk snapshot,
	// an older in-memory value, or the construction default.
	Stale
)

// String returns the lowercase state name used in logs and IPC payloads.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Fetching:
		return "fetching"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode
// as Uninitialized.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fetching":
		*s = Fetching
	case "fresh":
		*s = Fresh
	case "stale":
		*s = Stale
	default:
		*s = Uninitialized
	}
	return nil
}

// CachedValue is what Current returns: the data plus where it came from.
type CachedValue[T any] struct {
	Data      T
	FetchedAt time.Time // zero while Data is the construction default
	State     State
	FromDisk  bool // Data was loaded from the on-disk snapshot
}

// Age returns how long ago the value was fetched, or zero if it never was.
func (v CachedValue[T]) Age(now time.Time) time.Duration {
	if v.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(v.FetchedAt)
}

// Info is the type-erased view of a service used by the runner, the IPC
// daemon, the monitor and the publishers.
type Info struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	FetchedAt time.Time `json:"fetched_at"`
	FromDisk  bool      `json:"from_disk"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data"`
}
