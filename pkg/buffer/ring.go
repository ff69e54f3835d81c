// Package buffer provides a generic, thread-safe ring that retains the most
// recent N items.
//
// Unlike a queue, reads do not consume: the ring backs the agent's rolling
// request and error logs and the sentiment history, all of which are queried
// repeatedly while new items keep arriving. When the ring is full the oldest
// item is overwritten; an optional drop callback observes each displaced item
// so callers can archive instead of lose them.
//
// Statistics are always collected. Prometheus export is optional via
// WithMetrics().
package buffer

import (
	"sync"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// DropCallback is called with each item displaced by overwrite or removed by
// Clear. Callbacks run outside the ring's lock.
type DropCallback[T any] func(item T)

// Ring is a fixed-capacity buffer that keeps the newest items.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	closed   bool

	stats   *Statistics
	metrics *ringMetrics
	opts    *ringOptions[T]
}

// NewRing creates a ring with the given capacity.
// Returns an error if metrics registration fails when requested.
func NewRing[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	opts := applyOptions(options...)

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewRing", "metrics registration")
		}
	}

	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Append adds an item, overwriting the oldest entry when the ring is full.
func (r *Ring[T]) Append(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Ring", "Append", "ring closed")
	}

	var displaced T
	overwrote := r.size == r.capacity
	if overwrote {
		// Full ring: head has wrapped onto the oldest entry.
		displaced = r.items[r.head]
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if !overwrote {
		r.size++
	}

	r.stats.Append()
	r.stats.UpdateSize(int64(r.size))
	if overwrote {
		r.stats.Overwrite()
	}

	if r.metrics != nil {
		r.metrics.recordAppend(r.size, r.capacity)
		if overwrote {
			r.metrics.recordOverwrite()
		}
	}

	cb := r.opts.dropCallback
	r.mu.Unlock()

	if overwrote && cb != nil {
		cb(displaced)
	}
	return nil
}

// Snapshot returns a copy of all retained items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return nil
	}

	out := make([]T, r.size)
	tail := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(tail+i)%r.capacity]
	}

	r.stats.Snapshot()
	return out
}

// Recent returns up to n items, newest first.
func (r *Ring[T]) Recent(n int) []T {
	if n <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	newest := (r.head - 1 + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.items[(newest-i+r.capacity)%r.capacity]
	}

	r.stats.Snapshot()
	return out
}

// Last returns the most recently appended item.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head-1+r.capacity)%r.capacity], true
}

// Drain removes and returns all retained items, oldest first.
// The drop callback is not invoked; the caller owns the drained items.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	out := make([]T, r.size)
	var zero T
	tail := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		idx := (tail + i) % r.capacity
		out[i] = r.items[idx]
		r.items[idx] = zero
	}

	r.head = 0
	r.size = 0

	r.stats.Drain(int64(len(out)))
	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.recordDrain()
	}

	return out
}

// Len returns the current number of retained items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the ring retains.
func (r *Ring[T]) Capacity() int {
	return r.capacity // immutable
}

// Clear removes all items, invoking the drop callback for each.
func (r *Ring[T]) Clear() {
	r.mu.Lock()

	var dropped []T
	if r.opts.dropCallback != nil && r.size > 0 {
		dropped = make([]T, r.size)
		tail := (r.head - r.size + r.capacity) % r.capacity
		for i := 0; i < r.size; i++ {
			dropped[i] = r.items[(tail+i)%r.capacity]
		}
	}

	var zero T
	for i := 0; i < r.capacity; i++ {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0

	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, r.capacity)
	}

	cb := r.opts.dropCallback
	r.mu.Unlock()

	if cb != nil {
		for _, item := range dropped {
			cb(item)
		}
	}
}

// Stats returns ring statistics (always available for observability).
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}

// Close marks the ring closed. Further appends fail; reads keep working so
// shutdown paths can still flush retained items.
func (r *Ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
