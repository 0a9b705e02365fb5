// Package cache holds recent search results in memory, bounded by entry count and age.
package cache

import (
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 24 * time.Hour
)

// Store is a least-recently-used map whose entries also expire TTL after they were stored.
// It is safe for concurrent use; expired entries are dropped in the background.
type Store[V any] struct {
	capacity int
	ttl      time.Duration
	lru      *expirable.LRU[string, V]
}

// New creates a store. Non-positive capacity or ttl fall back to the defaults.
func New[V any](capacity int, ttl time.Duration) *Store[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[V]{
		capacity: capacity,
		ttl:      ttl,
		lru:      expirable.NewLRU[string, V](capacity, nil, ttl),
	}
}

// Put stores or replaces a value, restarts its TTL and marks it most recently used.
func (s *Store[V]) Put(key string, value V) {
	s.lru.Add(key, value)
}

// Get returns a live value and marks it most recently used.
func (s *Store[V]) Get(key string) (V, bool) {
	return s.lru.Get(key)
}

func (s *Store[V]) Delete(key string) {
	s.lru.Remove(key)
}

// Len counts live entries.
func (s *Store[V]) Len() int {
	return len(s.lru.Keys())
}

// Keys returns the live keys, most recently used first.
func (s *Store[V]) Keys() []string {
	keys := s.lru.Keys()
	slices.Reverse(keys)
	return keys
}

// Values returns the live values, most recently used first.
func (s *Store[V]) Values() []V {
	values := s.lru.Values()
	slices.Reverse(values)
	return values
}
