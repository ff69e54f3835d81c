package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks ring performance metrics.
type Statistics struct {
	// Atomic counters for thread-safe updates
	appends    int64
	overwrites int64
	snapshots  int64
	drains     int64
	drained    int64

	// Protected by mutex
	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Append records an append operation.
func (s *Statistics) Append() {
	atomic.AddInt64(&s.appends, 1)
}

// Overwrite records an oldest-item displacement.
func (s *Statistics) Overwrite() {
	atomic.AddInt64(&s.overwrites, 1)
}

// Snapshot records a read of the retained items.
func (s *Statistics) Snapshot() {
	atomic.AddInt64(&s.snapshots, 1)
}

// Drain records a drain operation removing n items.
func (s *Statistics) Drain(n int64) {
	atomic.AddInt64(&s.drains, 1)
	atomic.AddInt64(&s.drained, n)
}

// UpdateSize updates the current ring size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Appends returns the total number of append operations.
func (s *Statistics) Appends() int64 {
	return atomic.LoadInt64(&s.appends)
}

// Overwrites returns the total number of displaced items.
func (s *Statistics) Overwrites() int64 {
	return atomic.LoadInt64(&s.overwrites)
}

// Snapshots returns the total number of snapshot reads.
func (s *Statistics) Snapshots() int64 {
	return atomic.LoadInt64(&s.snapshots)
}

// Drains returns the total number of drain operations.
func (s *Statistics) Drains() int64 {
	return atomic.LoadInt64(&s.drains)
}

// Drained returns the total number of items removed by drains.
func (s *Statistics) Drained() int64 {
	return atomic.LoadInt64(&s.drained)
}

// CurrentSize returns the current number of items in the ring.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the maximum number of items the ring has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Throughput returns the average number of appends per second.
func (s *Statistics) Throughput() float64 {
	s.mu.RLock()
	elapsed := time.Since(s.startTime)
	s.mu.RUnlock()

	if elapsed == 0 {
		return 0.0
	}

	return float64(s.Appends()) / elapsed.Seconds()
}

// OverwriteRate returns the fraction of appends that displaced an older
// item (0.0 to 1.0). A rate near 1.0 means the ring is persistently full.
func (s *Statistics) OverwriteRate() float64 {
	appends := s.Appends()
	if appends == 0 {
		return 0.0
	}

	return float64(s.Overwrites()) / float64(appends)
}

// Utilization returns the current ring utilization as a percentage (0.0 to 1.0).
func (s *Statistics) Utilization(capacity int64) float64 {
	if capacity == 0 {
		return 0.0
	}

	return float64(s.CurrentSize()) / float64(capacity)
}

// Uptime returns how long the ring has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset resets all statistics to zero.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.appends, 0)
	atomic.StoreInt64(&s.overwrites, 0)
	atomic.StoreInt64(&s.snapshots, 0)
	atomic.StoreInt64(&s.drains, 0)
	atomic.StoreInt64(&s.drained, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.currentSize = 0
	s.maxSize = 0
	s.mu.Unlock()
}

// StatsSummary returns a snapshot of all statistics.
type StatsSummary struct {
	Appends       int64         `json:"appends"`
	Overwrites    int64         `json:"overwrites"`
	Snapshots     int64         `json:"snapshots"`
	Drains        int64         `json:"drains"`
	Drained       int64         `json:"drained"`
	CurrentSize   int64         `json:"current_size"`
	MaxSize       int64         `json:"max_size"`
	Throughput    float64       `json:"throughput"`
	OverwriteRate float64       `json:"overwrite_rate"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Appends:       s.Appends(),
		Overwrites:    s.Overwrites(),
		Snapshots:     s.Snapshots(),
		Drains:        s.Drains(),
		Drained:       s.Drained(),
		CurrentSize:   s.CurrentSize(),
		MaxSize:       s.MaxSize(),
		Throughput:    s.Throughput(),
		OverwriteRate: s.OverwriteRate(),
		Uptime:        s.Uptime(),
	}
}
