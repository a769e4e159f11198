// Package apisession is a thread-safe, TTL-bounded store of per-client state
// keyed by an opaque session ID.
package apisession

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value      *T
	lastAccess time.Time
}

// Store maps session IDs to values. Entries idle longer than the TTL are
// removed by Cleanup, which hands each evicted value to the evict callback.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	ttl     time.Duration
	onEvict func(id string, v *T)
	now     func() time.Time
}

// New creates a Store that evicts sessions inactive longer than ttl.
// onEvict may be nil.
func New[T any](ttl time.Duration, onEvict func(id string, v *T)) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		ttl:     ttl,
		onEvict: onEvict,
		now:     time.Now,
	}
}

// Put stores v under id, replacing any previous value.
func (s *Store[T]) Put(id string, v *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry[T]{value: v, lastAccess: s.now()}
}

// Get returns the value for id and refreshes its last-access time.
func (s *Store[T]) Get(id string) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.lastAccess = s.now()
	return e.value, true
}

// Delete removes id and returns its value. The evict callback is not called.
func (s *Store[T]) Delete(id string) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	return e.value, true
}

// Cleanup evicts every entry idle since before now-ttl and returns the evicted IDs.
// The evict callback runs after the store lock is released.
func (s *Store[T]) Cleanup(now time.Time) []string {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	var ids []string
	var vals []*T
	for id, e := range s.entries {
		if e.lastAccess.Before(cutoff) {
			ids = append(ids, id)
			vals = append(vals, e.value)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		for i, id := range ids {
			s.onEvict(id, vals[i])
		}
	}
	return ids
}

// Drain removes and returns every entry without calling the evict callback.
func (s *Store[T]) Drain() map[string]*T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*T, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.value
	}
	s.entries = make(map[string]*entry[T])
	return out
}

// Len returns the number of live sessions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
