package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is a decoded snapshot: the value plus the time it was fetched.
type Entry[T any] struct {
	Data      T
	FetchedAt time.Time
}

// GetTyped decodes the snapshot stored under key into T. Returns false if
// the snapshot is missing, expired, or does not decode as T.
func GetTyped[T any](s *Store, key string) (Entry[T], bool) {
	raw, fetchedAt, ok := s.Get(key)
	if !ok {
		return Entry[T]{}, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return Entry[T]{}, false
	}
	return Entry[T]{Data: v, FetchedAt: fetchedAt}, true
}

// PutTyped encodes value as JSON and stores it under key.
func PutTyped[T any](s *Store, key string, value T, fetchedAt time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal typed value for %q: %w", key, err)
	}
	return s.Put(key, data, fetchedAt)
}
