package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
)

const (
	// DefaultRecentFailures is how many recent failure messages a record keeps.
	DefaultRecentFailures = 10

	// DefaultRetention is how long after the last failure a record survives
	// before the garbage collector removes it.
	DefaultRetention = time.Hour

	// defaultGCInterval is how often the collector scans for expired records.
	defaultGCInterval = 5 * time.Minute
)

// FailureEntry is one observed failure. Timestamps are Unix milliseconds.
type FailureEntry struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// FailureRecord accumulates failures for one endpoint. A success probe
// clears the record entirely; an endpoint with a record is failing NOW.
type FailureRecord struct {
	Endpoint     string         `json:"endpoint"`
	Count        int            `json:"count"`
	FirstFailure int64          `json:"first_failure"`
	LastFailure  int64          `json:"last_failure"`
	Recent       []FailureEntry `json:"recent"`
}

// Tracker maintains per-endpoint failure records with bounded recents and
// time-based garbage collection.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*FailureRecord

	maxRecent int
	retention time.Duration
	logger    *slog.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithRetention overrides how long records outlive their last failure.
func WithRetention(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// WithMaxRecent overrides how many recent messages each record keeps.
func WithMaxRecent(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxRecent = n
		}
	}
}

// WithLogger sets the logger used by the garbage collector.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a failure tracker and starts its garbage collector.
// The collector stops when ctx is cancelled or Close is called.
func NewTracker(ctx context.Context, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		records:   make(map[string]*FailureRecord),
		maxRecent: DefaultRecentFailures,
		retention: DefaultRetention,
		logger:    slog.Default(),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	go t.gcLoop(ctx)

	return t
}

// RecordFailure appends a failure for the endpoint, creating the record on
// first sight. Messages are sanitized before storage.
func (t *Tracker) RecordFailure(endpoint string, err error) {
	if endpoint == "" || err == nil {
		return
	}

	now := timestamp.Now()
	entry := FailureEntry{
		Timestamp: now,
		Message:   sanitizeErrorMessage(err.Error()),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[endpoint]
	if !exists {
		rec = &FailureRecord{
			Endpoint:     endpoint,
			FirstFailure: now,
		}
		t.records[endpoint] = rec
	}

	rec.Count++
	rec.LastFailure = now
	rec.Recent = append(rec.Recent, entry)
	if len(rec.Recent) > t.maxRecent {
		rec.Recent = rec.Recent[len(rec.Recent)-t.maxRecent:]
	}
}

// RecordSuccess clears the endpoint's record. A healthy probe means the
// old failures no longer describe the endpoint's state.
func (t *Tracker) RecordSuccess(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, endpoint)
}

// Get returns a copy of the endpoint's record.
func (t *Tracker) Get(endpoint string) (FailureRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.records[endpoint]
	if !exists {
		return FailureRecord{}, false
	}
	return copyRecord(rec), true
}

// All returns copies of every record, ordered by endpoint.
func (t *Tracker) All() []FailureRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]FailureRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}

// Len returns the number of endpoints currently failing.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Close stops the garbage collector.
func (t *Tracker) Close() error {
	select {
	case <-t.shutdown:
		return nil // already closed
	default:
	}
	close(t.shutdown)

	select {
	case <-t.done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// gcLoop removes records whose last failure is older than the retention
// window. An endpoint that stopped being probed should not pin memory.
func (t *Tracker) gcLoop(ctx context.Context) {
	defer close(t.done)

	interval := defaultGCInterval
	if t.retention < interval {
		interval = t.retention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.collect()
		case <-ctx.Done():
			return
		case <-t.shutdown:
			return
		}
	}
}

// collect removes expired records and logs what it dropped.
func (t *Tracker) collect() {
	t.mu.Lock()
	var expired []string
	for endpoint, rec := range t.records {
		if timestamp.Since(rec.LastFailure) > t.retention {
			expired = append(expired, endpoint)
			delete(t.records, endpoint)
		}
	}
	remaining := len(t.records)
	t.mu.Unlock()

	if len(expired) > 0 {
		t.logger.Debug("expired failure records collected",
			"expired", len(expired),
			"remaining", remaining)
	}
}

func copyRecord(rec *FailureRecord) FailureRecord {
	out := *rec
	out.Recent = make([]FailureEntry, len(rec.Recent))
	copy(out.Recent, rec.Recent)
	return out
}
