// Package cache provides a TTL-bounded key/value store with single-flight
// compute-if-absent semantics. It backs the schema, privilege, and per-role
// GraphQL schema caches.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoValue is the no-value sentinel. A producer returning it signals that
// there is nothing to cache for the key; the error propagates to every waiter
// and no entry is recorded.
var ErrNoValue = errors.New("cache: no value")

// Stats reports cache activity counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

type entry[V any] struct {
	value    V
	deadline time.Time
}

// Cache is a TTL key/value store. The zero value is not usable; construct
// with New. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	group   singleflight.Group

	hits      uint64
	misses    uint64
	evictions uint64

	// now is replaceable in tests.
	now func() time.Time
}

// New returns a cache whose entries expire ttl after they were stored.
// A non-positive ttl means entries never expire.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live value for k. Expired entries are removed on access and
// reported as absent.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && c.expired(e) {
		c.mu.Lock()
		// Re-check under the write lock: another goroutine may have replaced
		// the entry with a fresh one since the read.
		if cur, still := c.entries[k]; still && c.expired(cur) {
			delete(c.entries, k)
			c.evictions++
		}
		c.mu.Unlock()
		ok = false
	}

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores v under k with a fresh deadline, replacing any prior entry.
// An opportunistic sweep reclaims expired entries while the lock is held.
func (c *Cache[K, V]) Put(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			c.evictions++
		}
	}
	c.entries[k] = entry[V]{value: v, deadline: c.deadline()}
}

// GetOrCompute returns the cached value for k, or invokes producer to compute
// it. Concurrent callers for the same key share a single producer invocation
// and receive the same result. Producer errors propagate unchanged and cache
// nothing, including ErrNoValue.
func (c *Cache[K, V]) GetOrCompute(k K, producer func() (V, error)) (V, error) {
	if v, ok := c.Get(k); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(fmt.Sprintf("%v", k), func() (any, error) {
		// A concurrent Put or a just-finished flight may have filled the
		// entry while we waited for the flight lock.
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := producer()
		if err != nil {
			return nil, err
		}
		c.Put(k, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Remove drops the entry for k if present.
func (c *Cache[K, V]) Remove(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of activity counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

func (c *Cache[K, V]) expired(e entry[V]) bool {
	return !e.deadline.IsZero() && c.now().After(e.deadline)
}

func (c *Cache[K, V]) deadline() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}
