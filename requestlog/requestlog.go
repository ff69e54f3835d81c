// Package requestlog keeps the agent's rolling request and error logs.
//
// Every request the fetch client completes lands in a bounded ring (newest
// 100 by default). Failed requests additionally land in a second ring so
// error history survives longer than the general request churn. Both are
// queryable over the operations API.
//
// When an archive store is attached, records displaced from the request
// ring are written through before they are lost, so diagnostics survive
// restarts and long sessions.
package requestlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/buffer"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
	"github.com/nimazasinich/crypto-dt-source-sub009/store"
)

// DefaultCapacity bounds each ring when no override is given.
const DefaultCapacity = 100

// archiveTimeout bounds the write-through when a displaced record is
// archived.
const archiveTimeout = 2 * time.Second

// Record is one completed request, success or failure.
type Record struct {
	ID         string  `json:"id"`
	Time       int64   `json:"time"` // unix-ms
	Method     string  `json:"method"`
	Endpoint   string  `json:"endpoint"`
	Status     int     `json:"status,omitempty"`
	DurationMs float64 `json:"duration_ms"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	Source     string  `json:"source,omitempty"`   // network, cache, mirror, proxy, stale-cache
	Attempts   int     `json:"attempts,omitempty"` // recovery attempts beyond the first
}

// Log is the pair of bounded request/error rings. All methods are safe for
// concurrent use.
type Log struct {
	requests *buffer.Ring[Record]
	errs     *buffer.Ring[Record]
	logger   *slog.Logger
	archive  store.Store
}

// Option configures a Log.
type Option func(*settings)

type settings struct {
	capacity      int
	logger        *slog.Logger
	archive       store.Store
	metricsReg    *metric.Registry
	metricsPrefix string
}

// WithCapacity overrides the ring capacity (default 100).
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger for archive failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithArchive attaches a store; records displaced from the request ring
// are written through to it before being dropped.
func WithArchive(st store.Store) Option {
	return func(s *settings) { s.archive = st }
}

// WithMetrics registers ring gauges and counters on the registry under
// the given prefix.
func WithMetrics(reg *metric.Registry, prefix string) Option {
	return func(s *settings) {
		s.metricsReg = reg
		s.metricsPrefix = prefix
	}
}

// New creates a request log.
func New(opts ...Option) (*Log, error) {
	s := &settings{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	l := &Log{
		logger:  s.logger,
		archive: s.archive,
	}

	var reqOpts []buffer.Option[Record]
	if s.archive != nil {
		reqOpts = append(reqOpts, buffer.WithDropCallback(l.archiveRecord))
	}
	if s.metricsReg != nil {
		reqOpts = append(reqOpts, buffer.WithMetrics[Record](s.metricsReg, s.metricsPrefix+"_requests"))
	}

	requests, err := buffer.NewRing(s.capacity, reqOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "requestlog", "New", "request ring")
	}

	var errOpts []buffer.Option[Record]
	if s.metricsReg != nil {
		errOpts = append(errOpts, buffer.WithMetrics[Record](s.metricsReg, s.metricsPrefix+"_errors"))
	}

	errs, err := buffer.NewRing(s.capacity, errOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "requestlog", "New", "error ring")
	}

	l.requests = requests
	l.errs = errs
	return l, nil
}

// Record appends a completed request. Zero Time is stamped now, empty ID
// gets a fresh UUID, and error text is sanitized before retention. Failed
// requests are mirrored into the error ring.
func (l *Log) Record(rec Record) {
	if rec.Time == 0 {
		rec.Time = timestamp.Now()
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Error != "" {
		rec.Error = health.Sanitize(rec.Error)
	}

	// Append only fails on a closed ring; a late record after Close is
	// not worth surfacing.
	_ = l.requests.Append(rec)
	if !rec.Success {
		_ = l.errs.Append(rec)
	}
}

// Requests returns the newest n request records, oldest first. n <= 0
// returns everything retained.
func (l *Log) Requests(n int) []Record {
	if n <= 0 {
		return l.requests.Snapshot()
	}
	return l.requests.Recent(n)
}

// Errors returns the newest n error records, oldest first. n <= 0 returns
// everything retained.
func (l *Log) Errors(n int) []Record {
	if n <= 0 {
		return l.errs.Snapshot()
	}
	return l.errs.Recent(n)
}

// Len returns the number of retained request records.
func (l *Log) Len() int {
	return l.requests.Len()
}

// ErrorCount returns the number of retained error records.
func (l *Log) ErrorCount() int {
	return l.errs.Len()
}

// Clear discards everything retained in both rings. Cleared records are
// not archived; Clear is the explicit forget operation.
func (l *Log) Clear() {
	l.requests.Drain()
	l.errs.Drain()
}

// Close flushes retained request records to the archive (when one is
// attached) and closes both rings.
func (l *Log) Close() error {
	if l.archive != nil {
		for _, rec := range l.requests.Drain() {
			l.archiveRecord(rec)
		}
	}
	_ = l.requests.Close()
	return l.errs.Close()
}

// archiveKey builds the store key for a displaced record. Unix-ms sorts
// lexicographically at a fixed width, so List("requests/") returns records
// in time order.
func archiveKey(rec Record) string {
	return fmt.Sprintf("requests/%013d/%s", rec.Time, rec.ID)
}

// archiveRecord writes a displaced record through to the archive store.
// Failures are logged, never propagated; the archive is best effort.
func (l *Log) archiveRecord(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		l.logger.Warn("request record not archived", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := l.archive.Put(ctx, archiveKey(rec), data); err != nil {
		l.logger.Warn("request record not archived",
			"key", archiveKey(rec),
			"error", err,
		)
	}
}
