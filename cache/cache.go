// Package cache implements ResponseCache[T] (generic) and ContentCache
// (spec §4.3). Grounded on the teacher's cache/cache.go in-memory TTL map;
// generalized to a type parameter and switched from random eviction to
// oldest-10% eviction per spec, plus simhash-based content-change
// detection adapted from the teacher's simhash package.
package cache

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	insertedAt time.Time
	expiresAt time.Time
}

// Store is an in-memory map[key]{value, insertedAt, expiresAt} cache, key
// normalized by the caller via Key. On capacity, the oldest 10% of entries
// are evicted.
type Store[T any] struct {
	mu         sync.RWMutex
	entries    map[string]*entry[T]
	maxEntries int
}

// New creates a Store with the given capacity.
func New[T any](maxEntries int) *Store[T] {
	return &Store[T]{
		entries:    make(map[string]*entry[T]),
		maxEntries: maxEntries,
	}
}

// Key normalizes a URL + param set into a cache key: the URL's origin+path
// plus its query params URL-form-encoded with keys sorted lexically.
func Key(rawURL string, params map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Set(k, params[k])
	}

	base := u.Scheme + "://" + u.Host + u.Path
	if encoded := q.Encode(); encoded != "" {
		return base + "?" + encoded
	}
	return base
}

// Get returns the cached value for key if present and not expired.
func (s *Store[T]) Get(key string) (value T, ok bool) {
	s.mu.RLock()
	e, found := s.entries[key]
	s.mu.RUnlock()

	if !found {
		return value, false
	}
	if time.Now().After(e.expiresAt) {
		return value, false
	}
	return e.value, true
}

// Set inserts or replaces the value for key with the given TTL.
func (s *Store[T]) Set(key string, value T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}

	now := time.Now()
	s.entries[key] = &entry[T]{
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
}

// evictOldestLocked drops the oldest 10% of entries (at least one). Caller
// must hold s.mu.
func (s *Store[T]) evictOldestLocked() {
	n := len(s.entries) / 10
	if n < 1 {
		n = 1
	}

	type keyed struct {
		key       string
		insertedAt time.Time
	}
	all := make([]keyed, 0, len(s.entries))
	for k, e := range s.entries {
		all = append(all, keyed{k, e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].insertedAt.Before(all[j].insertedAt) })

	for i := 0; i < n && i < len(all); i++ {
		delete(s.entries, all[i].key)
	}
}

// Cleanup drops every expired entry.
func (s *Store[T]) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// ClearDomain drops every key whose URL host equals domain or is a
// subdomain of it.
func (s *Store[T]) ClearDomain(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if keyMatchesDomain(k, domain) {
			delete(s.entries, k)
		}
	}
}

func keyMatchesDomain(key, domain string) bool {
	u, err := url.Parse(key)
	if err != nil {
		return false
	}
	host := u.Host
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Clear drops every entry.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry[T])
}

// Len returns the current entry count.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
