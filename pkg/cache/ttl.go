package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/refreshkit/errors"
)

type ttlEntry[V any] struct {
	key      string
	value    V
	deadline time.Time
}

func (e *ttlEntry[V]) expired() bool { return time.Now().After(e.deadline) }

// ttlCache is a thread-safe cache with per-entry expiry. Each Set records a
// deadline, reads drop expired entries lazily, and a background sweep purges
// whatever reads never touch.
type ttlCache[V any] struct {
	mu              sync.RWMutex
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	items           map[string]*ttlEntry[V]
	stats           *Statistics
	metrics         *cacheMetrics // nil unless metrics were requested
	evictFn         EvictCallback[V]
	statsInterval   time.Duration

	closeOnce sync.Once
	shutdown  chan struct{}
	done      chan struct{}
}

func newTTLCache[V any](
	ctx context.Context, defaultTTL, cleanupInterval time.Duration, opts *cacheOptions[V],
) (*ttlCache[V], error) {
	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "newTTLCache", "metrics registration")
		}
	}

	statsInterval := opts.statsInterval
	if statsInterval <= 0 {
		statsInterval = 30 * time.Second
	}

	c := &ttlCache[V]{
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		items:           make(map[string]*ttlEntry[V]),
		stats:           NewStatistics(), // stats are unconditional, metrics opt-in
		metrics:         metrics,
		evictFn:         opts.evictCallback,
		statsInterval:   statsInterval,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

// Tracking helpers fan each event out to the internal counters and, when
// enabled, the Prometheus gauges. Call them outside the lock.

func (c *ttlCache[V]) trackHit() {
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
}

func (c *ttlCache[V]) trackMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *ttlCache[V]) trackSet(size int) {
	c.stats.Set()
	if c.metrics != nil {
		c.metrics.recordSet()
	}
	c.trackSize(size)
}

func (c *ttlCache[V]) trackDelete(size int) {
	c.stats.Delete()
	if c.metrics != nil {
		c.metrics.recordDelete()
	}
	c.trackSize(size)
}

func (c *ttlCache[V]) trackEvictions(n, size int) {
	for range n {
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.recordEviction()
		}
	}
	c.trackSize(size)
}

func (c *ttlCache[V]) trackSize(size int) {
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.updateSize(size)
	}
}

// Get retrieves a value by key. An entry past its deadline reads as a miss
// and is removed even if no sweep has run yet.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if exists && !entry.expired() {
		c.trackHit()
		return entry.value, true
	}

	if exists {
		c.dropExpired(key)
	}

	var zero V
	c.trackMiss()
	return zero, false
}

// dropExpired removes key if it is still present and still expired. The
// re-check under the write lock covers a concurrent Set that revived the
// key between our read and now.
func (c *ttlCache[V]) dropExpired(key string) {
	c.mu.Lock()
	entry, ok := c.items[key]
	if !ok || !entry.expired() {
		c.mu.Unlock()
		return
	}
	delete(c.items, key)
	size := len(c.items)
	c.mu.Unlock()

	c.trackEvictions(1, size)
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
}

// Set stores a value under the cache's default TTL.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	return c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with its own expiry deadline. Entries from
// different callers can carry different TTLs in the same cache.
func (c *ttlCache[V]) SetWithTTL(key string, value V, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := &ttlEntry[V]{key: key, value: value, deadline: time.Now().Add(ttl)}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = entry
	size := len(c.items)
	c.mu.Unlock()

	c.trackSet(size)

	return !exists, nil
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.trackDelete(size)
		if c.evictFn != nil {
			c.evictFn(key, entry.value)
		}
	}

	return exists, nil
}

// Clear removes all entries. Eviction callbacks fire after the lock is
// released so a callback can safely touch the cache again.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	dropped := c.items
	c.items = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, entry := range dropped {
			c.evictFn(entry.key, entry.value)
		}
	}

	c.trackSize(0)
	return nil
}

// Size returns the entry count, including expired entries not yet swept.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the non-expired keys.
func (c *ttlCache[V]) Keys() []string {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if entry.deadline.After(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (c *ttlCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

// cleanup periodically sweeps expired entries and refreshes the size gauge
// until Close or the construction context stops it.
func (c *ttlCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(c.statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.Sweep()
		case <-statsTicker.C:
			c.trackSize(c.Size())
		}
	}
}

// Sweep removes all expired entries and returns how many were purged. Safe
// to call concurrently with reads and writes; callbacks fire outside the
// lock.
func (c *ttlCache[V]) Sweep() int {
	now := time.Now()
	var expired []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if now.After(entry.deadline) {
			expired = append(expired, entry)
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	if c.evictFn != nil {
		for _, entry := range expired {
			c.evictFn(entry.key, entry.value)
		}
	}
	c.trackEvictions(len(expired), size)

	return len(expired)
}
