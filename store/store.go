// Package store implements PersistentStore[T]: a debounced, atomic
// JSON-on-disk store (spec §4.1). Grounded on the teacher's atomic
// tmp-file-then-rename write pattern used throughout purify's adaptive pool
// and domain memory persistence.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stats reports PersistentStore usage counters.
type Stats struct {
	SaveRequests  int64
	ActualWrites  int64
	FailedWrites  int64
	DebouncedSkips int64
	LastWriteTime time.Time
	LastError     string
}

// Store is a debounced, atomically-written JSON persistence layer for one
// value of type T at one path.
type Store[T any] struct {
	path       string
	debounce   time.Duration

	mu         sync.Mutex
	pending    *T
	timer      *time.Timer
	writeMu    sync.Mutex // serializes actual disk writes

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Store writing to path, debouncing Save calls by debounce.
func New[T any](path string, debounce time.Duration) *Store[T] {
	return &Store[T]{
		path:     path,
		debounce: debounce,
	}
}

// Save schedules a debounced write. Calls within debounce of each other
// coalesce to the latest payload; only the last one is actually written.
func (s *Store[T]) Save(data T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.SaveRequests++
	s.statsMu.Unlock()

	cp := data
	s.pending = &cp

	if s.timer != nil {
		s.statsMu.Lock()
		s.stats.DebouncedSkips++
		s.statsMu.Unlock()
		s.timer.Stop()
	}

	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		payload := s.pending
		s.pending = nil
		s.timer = nil
		s.mu.Unlock()
		if payload != nil {
			_ = s.writeAtomic(*payload)
		}
	})
}

// SaveImmediate cancels any pending debounce and writes synchronously.
func (s *Store[T]) SaveImmediate(data T) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.SaveRequests++
	s.statsMu.Unlock()

	return s.writeAtomic(data)
}

// Flush forces any pending debounced write to complete now.
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	if s.timer == nil {
		s.mu.Unlock()
		return nil
	}
	s.timer.Stop()
	s.timer = nil
	payload := s.pending
	s.pending = nil
	s.mu.Unlock()

	if payload == nil {
		return nil
	}
	return s.writeAtomic(*payload)
}

// Cancel discards any pending debounced write without persisting it.
func (s *Store[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

// Load reads and unmarshals the stored value. Returns ok=false if the file
// does not exist.
func (s *Store[T]) Load() (data T, ok bool, err error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, false, nil
		}
		return data, false, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, false, err
	}
	return data, true, nil
}

// Exists reports whether the backing file is present.
func (s *Store[T]) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Delete removes the backing file, if any.
func (s *Store[T]) Delete() error {
	s.Cancel()
	err := os.Remove(s.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetStats returns a snapshot of usage counters.
func (s *Store[T]) GetStats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// writeAtomic serializes the value and writes it via tmp-file + rename.
// Concurrent writes serialize on writeMu: a new write waits for the
// previous one to finish before starting.
func (s *Store[T]) writeAtomic(data T) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.recordFailure(err)
		return fmt.Errorf("store: serialize %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.recordFailure(err)
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d.%d", s.path, time.Now().UnixNano(), os.Getpid())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		os.Remove(tmp)
		s.recordFailure(err)
		return fmt.Errorf("store: write temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		s.recordFailure(err)
		return fmt.Errorf("store: rename into place: %w", err)
	}

	s.statsMu.Lock()
	s.stats.ActualWrites++
	s.stats.LastWriteTime = time.Now()
	s.statsMu.Unlock()

	return nil
}

func (s *Store[T]) recordFailure(err error) {
	s.statsMu.Lock()
	s.stats.FailedWrites++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}
