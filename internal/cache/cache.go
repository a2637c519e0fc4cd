package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrComputeFailed wraps a compute function failure. The caller treats
// it like a remote-tier failure: previous good values stay displayed.
var ErrComputeFailed = errors.New("cache compute failed")

// ComputeFunc produces the value for a missing key. It may perform a
// remote lookup.
type ComputeFunc func(ctx context.Context) (interface{}, error)

// BatchComputeFunc produces values for many missing keys in one call.
type BatchComputeFunc func(ctx context.Context, missing []string) (map[string]interface{}, error)

type entry struct {
	value      interface{}
	insertedAt time.Time
	ttl        time.Duration
}

// Cache is a process-wide TTL memoization layer for expensive derived
// lookups (tag resolution, per-component display metadata). It is
// shared across sessions: keys embed lookup inputs, never session
// identity. Writers are last-writer-wins; entries are idempotent pure
// functions of their key, so locking beyond the map mutex buys nothing.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group // dedupe concurrent computes of one key

	nowFn func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		nowFn:   time.Now,
	}
}

// get returns the cached value if present and fresh.
func (c *Cache) get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFn().Sub(e.insertedAt) >= e.ttl {
		// Expired reads are misses; eviction happens lazily on the
		// next store.
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{value: value, insertedAt: c.nowFn(), ttl: ttl}
}

// GetOrCompute returns the cached value for key if fresh, otherwise
// calls fn, stores the result, and returns it. A ttl <= 0 disables
// caching for the call: fn runs every time and nothing is stored.
// Concurrent callers for the same missing key share one fn invocation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) (interface{}, error) {
	if ttl <= 0 {
		value, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrComputeFailed, err)
		}
		return value, nil
	}

	if value, ok := c.get(key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Double-check after winning the flight: a concurrent caller
		// may have stored the value already.
		if value, ok := c.get(key); ok {
			return value, nil
		}

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputeFailed, err)
	}
	return value, nil
}

// PrimeMany returns values for all keys, collapsing the misses into at
// most one batch call. Zero keys or zero misses issue no batch call.
// Keys the batch function does not return are simply absent from the
// result.
func (c *Cache) PrimeMany(ctx context.Context, keys []string, ttl time.Duration, fn BatchComputeFunc) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var missing []string
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		if ttl > 0 {
			if value, ok := c.get(key); ok {
				result[key] = value
				continue
			}
		}
		missing = append(missing, key)
	}

	if len(missing) == 0 {
		return result, nil
	}

	computed, err := fn(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputeFailed, err)
	}

	for key, value := range computed {
		result[key] = value
		if ttl > 0 {
			c.store(key, value, ttl)
		}
	}
	return result, nil
}

// Invalidate removes one entry. Called when the underlying referenced
// entity is edited.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// InvalidatePrefix removes every entry whose key starts with prefix,
// e.g. all derived lookups of a renamed dataset.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored entries, fresh or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
