// Package cache persists one JSON snapshot per service under a cache
// directory. Each snapshot lives in its own file, {name}.json, holding the
// encoded value and the time it was fetched. Writes go through a temp file
// and a rename so readers never observe a partially written snapshot.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInvalidJSON is returned by Put when the payload is not a JSON document.
	ErrInvalidJSON = errors.New("cache: payload is not valid JSON")

	// ErrReadOnly is returned by the mutating methods of a read-only Store.
	ErrReadOnly = errors.New("cache: store is read-only")
)

// StoreConfig holds configuration for a snapshot Store.
type StoreConfig struct {
	// Dir is the directory where snapshot files are written.
	Dir string

	// MaxAge rejects snapshots older than this on read. Zero accepts any
	// age, which is what offline fallback wants.
	MaxAge time.Duration

	// ReadOnly stores never create, replace or remove files. Processes
	// that read another process's snapshots open the store this way.
	ReadOnly bool
}

// Stats holds read counters for a Store.
type Stats struct {
	Hits    int64
	Misses  int64
	Corrupt int64
	Writes  int64
}

// envelope is the on-disk layout of a snapshot file.
type envelope struct {
	Key       string          `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// Store reads and writes snapshot files. It is safe for concurrent use.
type Store struct {
	cfg StoreConfig

	mu    sync.RWMutex
	stats Stats
}

// NewStore creates the cache directory with 0755 permissions if needed and
// returns a Store rooted there. A read-only store does not create it.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: empty directory")
	}
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	if cfg.ReadOnly {
		return &Store{cfg: cfg}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", cfg.Dir, err)
	}
	return &Store{cfg: cfg}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// ReadOnly reports whether the store refuses writes.
func (s *Store) ReadOnly() bool {
	return s.cfg.ReadOnly
}

// Path returns the snapshot file path for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.cfg.Dir, fileName(key)+".json")
}

// Get returns the raw JSON payload stored under key and the time it was
// fetched. A missing, unreadable, corrupt, or too old snapshot is a miss.
// Corrupt files are removed so the next write starts clean, unless the
// store is read-only.
func (s *Store) Get(key string) ([]byte, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read(key)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.stats.Corrupt++
			if !s.cfg.ReadOnly {
				_ = os.Remove(s.Path(key))
			}
		}
		s.stats.Misses++
		return nil, time.Time{}, false
	}
	if s.expired(env.FetchedAt) {
		s.stats.Misses++
		return nil, time.Time{}, false
	}
	s.stats.Hits++
	return env.Data, env.FetchedAt, true
}

// Put stores payload under key. The payload must already be JSON.
func (s *Store) Put(key string, payload []byte, fetchedAt time.Time) error {
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: key %q", ErrInvalidJSON, key)
	}

	data, err := json.Marshal(envelope{
		Key:       key,
		FetchedAt: fetchedAt.UTC(),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicWrite(s.Path(key), data, s.cfg.Dir); err != nil {
		return fmt.Errorf("cache: write snapshot %q: %w", key, err)
	}
	s.stats.Writes++
	return nil
}

// Delete removes the snapshot for key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// Has reports whether a readable, unexpired snapshot exists for key. It does
// not touch the hit counters.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, err := s.read(key)
	if err != nil {
		return false
	}
	return !s.expired(env.FetchedAt)
}

// Keys returns the keys of all readable, unexpired snapshots, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		env, err := readEnvelope(filepath.Join(s.cfg.Dir, e.Name()))
		if err != nil || s.expired(env.FetchedAt) {
			continue
		}
		keys = append(keys, env.Key)
	}
	sort.Strings(keys)
	return keys
}

// Clear removes every snapshot and leftover temp file from the directory.
func (s *Store) Clear() error {
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cache: clear read dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			_ = os.Remove(filepath.Join(s.cfg.Dir, name))
		}
	}
	return nil
}

// Stats returns a copy of the read and write counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// --- internal helpers ---

func (s *Store) read(key string) (envelope, error) {
	env, err := readEnvelope(s.Path(key))
	if err != nil {
		return env, err
	}
	if env.Key != key {
		return env, fmt.Errorf("cache: snapshot key mismatch: have %q, want %q", env.Key, key)
	}
	return env, nil
}

func (s *Store) expired(fetchedAt time.Time) bool {
	if s.cfg.MaxAge <= 0 {
		return false
	}
	return time.Since(fetchedAt) > s.cfg.MaxAge
}

func readEnvelope(path string) (envelope, error) {
	var env envelope
	data, err := os.ReadFile(path)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, err
	}
	if len(env.Data) == 0 {
		return env, fmt.Errorf("cache: snapshot %s has no data", filepath.Base(path))
	}
	return env, nil
}

// atomicWrite writes data to path via a temporary file and rename.
func atomicWrite(path string, data []byte, tmpDir string) error {
	tmp, err := os.CreateTemp(tmpDir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	success = true
	return nil
}
