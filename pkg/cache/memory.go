package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// memEntry is a cached response in the memory backend.
type memEntry[V any] struct {
	key       string
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// isExpired checks if the entry is past its expiry.
func (e *memEntry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// isSweepable checks if the entry has also outlived its stale window.
func (e *memEntry[V]) isSweepable(now time.Time, staleFor time.Duration) bool {
	return now.After(e.expiresAt.Add(staleFor))
}

// memoryCache combines TTL expiry with LRU size bounding. Entries are
// evicted when the cache reaches maximum size (LRU) or when the background
// sweep finds them past expiry plus the stale window, whichever comes first.
type memoryCache[V any] struct {
	mu            sync.RWMutex
	maxEntries    int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	staleFor      time.Duration
	items         map[string]*list.Element // key -> list element
	order         *list.List               // doubly-linked list for LRU ordering
	stats         *Statistics              // ALWAYS initialized
	metrics       *cacheMetrics            // Optional, if metrics enabled
	evictFn       EvictCallback[V]         // Optional callback

	// Background sweep coordination
	shutdown chan struct{}
	done     chan struct{}
}

// newMemoryCache creates the in-process backend.
// Returns an error if metrics registration fails when requested.
func newMemoryCache[V any](
	ctx context.Context, maxEntries int, defaultTTL, sweepInterval time.Duration, opts *cacheOptions[V],
) (*memoryCache[V], error) {
	// Stats are ALWAYS initialized - observability is not optional
	stats := NewStatistics()

	var metrics *cacheMetrics
	// Optionally expose stats as Prometheus metrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "newMemoryCache", "metrics registration")
		}
	}

	c := &memoryCache[V]{
		maxEntries:    maxEntries,
		defaultTTL:    defaultTTL,
		sweepInterval: sweepInterval,
		staleFor:      opts.staleFor,
		items:         make(map[string]*list.Element),
		order:         list.New(),
		stats:         stats,
		metrics:       metrics,
		evictFn:       opts.evictCallback,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}

	// Background sweep goroutine runs with the caller's context
	go c.sweep(ctx)

	return c, nil
}

// Get retrieves a fresh value by key, updating LRU order on a hit. Expired
// entries count as misses but stay resident for GetStale until swept.
func (c *memoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	entry := element.Value.(*memEntry[V])

	if entry.isExpired(time.Now()) {
		// Retained for the degraded-response tier; the sweep removes it
		// once the stale window passes.
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}

		var zero V
		return zero, false
	}

	// Move to front (most recently used)
	c.order.MoveToFront(element)

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}

	return entry.value, true
}

// GetStale retrieves a value regardless of expiry. The entry's LRU position
// is left alone; a degraded read should not outcompete live entries.
func (c *memoryCache[V]) GetStale(key string) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		return zero, time.Time{}, false
	}

	entry := element.Value.(*memEntry[V])

	c.stats.StaleHit()
	if c.metrics != nil {
		c.metrics.recordStaleHit()
	}

	return entry.value, entry.expiresAt, true
}

// Set stores a value with the default TTL, unconditionally overwriting.
func (c *memoryCache[V]) Set(key string, value V) (bool, error) {
	return c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with a per-entry TTL, unconditionally overwriting.
func (c *memoryCache[V]) SetTTL(key string, value V, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Overwrite existing entry, refreshing both timestamps
	if element, exists := c.items[key]; exists {
		entry := element.Value.(*memEntry[V])
		entry.value = value
		entry.storedAt = now
		entry.expiresAt = now.Add(ttl)
		c.order.MoveToFront(element)

		c.stats.Set()
		if c.metrics != nil {
			c.metrics.recordSet()
		}
		return false, nil // existing entry was overwritten
	}

	entry := &memEntry[V]{
		key:       key,
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	element := c.order.PushFront(entry)
	c.items[key] = element

	// Bound growth (LRU policy)
	if len(c.items) > c.maxEntries {
		c.evictLRU()
	}

	c.stats.Set()
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(len(c.items))
	}

	return true, nil // new entry was created
}

// Delete removes an entry by key.
func (c *memoryCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return false, nil
	}

	c.removeElement(element)

	c.stats.Delete()
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(len(c.items))
	}

	return true, nil
}

// Clear removes all entries from the cache.
func (c *memoryCache[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evictFn != nil {
		// Call OnEvict for all items
		for element := c.order.Back(); element != nil; element = element.Prev() {
			entry := element.Value.(*memEntry[V])
			c.evictFn(entry.key, entry.value)
		}
	}

	c.items = make(map[string]*list.Element)
	c.order.Init()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}

	return nil
}

// Size returns the current number of entries in the cache, stale included.
func (c *memoryCache[V]) Size() int {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return size
}

// Keys returns all non-expired keys in LRU order (most recently used first).
func (c *memoryCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	now := time.Now()

	for element := c.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*memEntry[V])
		if now.Before(entry.expiresAt) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

// Entries returns metadata snapshots in LRU order (most recently used first).
func (c *memoryCache[V]) Entries() []EntryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]EntryInfo, 0, len(c.items))
	now := time.Now()

	for element := c.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*memEntry[V])
		infos = append(infos, EntryInfo{
			Key:       entry.key,
			StoredAt:  entry.storedAt,
			ExpiresAt: entry.expiresAt,
			Stale:     now.After(entry.expiresAt),
		})
	}
	return infos
}

// Stats returns cache statistics.
func (c *memoryCache[V]) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache and stops the background sweep goroutine.
func (c *memoryCache[V]) Close() error {
	select {
	case <-c.shutdown:
		// Already shutting down
	default:
		close(c.shutdown)
	}

	// Wait for sweep goroutine to finish with timeout
	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for sweep goroutine to finish")
	}
}

// evictLRU removes the least recently used item from the cache.
// Must be called with mutex held.
func (c *memoryCache[V]) evictLRU() {
	element := c.order.Back()
	if element != nil {
		c.removeElement(element)
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.recordEviction()
		}
	}
}

// removeElement removes an element from both the list and map.
// Must be called with mutex held.
func (c *memoryCache[V]) removeElement(element *list.Element) {
	entry := element.Value.(*memEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)

	if c.evictFn != nil {
		// Call OnEvict callback outside of critical section
		defer c.evictFn(entry.key, entry.value)
	}
}

// sweep runs in a background goroutine and periodically removes entries
// that have outlived both their TTL and the stale retention window.
func (c *memoryCache[V]) sweep(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeSweepable()
		}
	}
}

// removeSweepable removes all entries past expiry plus the stale window.
func (c *memoryCache[V]) removeSweepable() {
	now := time.Now()
	var removed []*list.Element

	c.mu.Lock()

	for element := c.order.Front(); element != nil; {
		next := element.Next()
		entry := element.Value.(*memEntry[V])

		if entry.isSweepable(now, c.staleFor) {
			removed = append(removed, element)
			delete(c.items, entry.key)
			c.order.Remove(element)
		}

		element = next
	}

	size := len(c.items)
	c.mu.Unlock()

	// Call OnEvict callbacks outside the lock
	if c.evictFn != nil {
		for _, element := range removed {
			entry := element.Value.(*memEntry[V])
			c.evictFn(entry.key, entry.value)
		}
	}

	if len(removed) > 0 {
		for range removed {
			c.stats.Eviction()
		}
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			for range removed {
				c.metrics.recordEviction()
			}
			c.metrics.updateSize(size)
		}
	}
}
