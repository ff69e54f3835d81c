// Package sentiment polls the fear/greed index and keeps a bounded history
// of readings for the ops API. An optional OpenAI-compatible classifier
// labels free-form headlines when a key is configured; without one the
// service still serves index readings.
package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/client"
	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/buffer"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
	"github.com/nimazasinich/crypto-dt-source-sub009/service"
)

// DefaultEndpoint is the public fear/greed index feed.
const DefaultEndpoint = "https://api.alternative.me/fng/"

// DefaultHistorySize caps the retained readings.
const DefaultHistorySize = 50

// Reading is one fear/greed index sample.
type Reading struct {
	Value          int    `json:"value"` // 0 (extreme fear) to 100 (extreme greed)
	Classification string `json:"classification"`
	Timestamp      int64  `json:"timestamp"`        // unix-ms
	Source         string `json:"source,omitempty"` // which client tier answered
}

// Option configures a Service.
type Option func(*Service)

// WithEndpoint overrides the index feed URL.
func WithEndpoint(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.endpoint = url
		}
	}
}

// WithInterval sets the polling cadence. Default 15m; the index itself
// updates a few times a day.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithHistorySize caps the retained readings.
func WithHistorySize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithClassifier attaches the headline classifier.
func WithClassifier(c *Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.With("service", "sentiment")
		}
	}
}

// Service polls the index and retains a bounded history.
type Service struct {
	*service.Base

	fetch       *client.Client
	endpoint    string
	interval    time.Duration
	historySize int
	classifier  *Classifier
	logger      *slog.Logger

	history *buffer.Ring[Reading]

	done chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// New creates the sentiment service over the given fetch client.
func New(fetch *client.Client, opts ...Option) (*Service, error) {
	if fetch == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Service", "New", "nil client")
	}

	s := &Service{
		fetch:       fetch,
		endpoint:    DefaultEndpoint,
		interval:    15 * time.Minute,
		historySize: DefaultHistorySize,
		logger:      slog.Default().With("service", "sentiment"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ring, err := buffer.NewRing[Reading](s.historySize)
	if err != nil {
		return nil, err
	}
	s.history = ring

	s.Base = service.NewBase("sentiment",
		service.WithLogger(s.logger),
		service.WithHealthInterval(0), // lifecycle state is the health signal
	)

	return s, nil
}

// Start launches the polling loop with an immediate first poll.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Service", "Start", "already running")
	}
	if err := s.Base.Start(ctx); err != nil {
		return err
	}

	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("sentiment polling started", "endpoint", s.endpoint, "interval", s.interval)
	return nil
}

// Stop halts the loop.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-finished:
	case <-time.After(timeout):
		s.logger.Warn("sentiment stop timed out", "timeout", timeout)
	}

	return s.Base.Stop(timeout)
}

// Latest returns the most recent reading.
func (s *Service) Latest() (Reading, bool) {
	return s.history.Last()
}

// History returns up to n recent readings, oldest first. n <= 0 returns
// everything retained.
func (s *Service) History(n int) []Reading {
	if n <= 0 {
		return s.history.Snapshot()
	}
	return s.history.Recent(n)
}

// ClassifyHeadline labels a headline through the configured classifier.
func (s *Service) ClassifyHeadline(ctx context.Context, headline string) (Label, error) {
	if s.classifier == nil {
		return "", errors.WrapInvalid(errors.ErrMissingConfig,
			"Service", "ClassifyHeadline", "no classifier configured")
	}
	return s.classifier.Classify(ctx, headline)
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll fetches one reading and appends it to the history.
func (s *Service) poll(ctx context.Context) {
	res := s.fetch.Get(ctx, s.endpoint)
	if !res.OK {
		s.logger.Warn("fear/greed fetch failed", "error", res.Error)
		return
	}

	reading, err := parseReading(res.Data)
	if err != nil {
		s.logger.Warn("fear/greed payload unusable", "error", err)
		return
	}
	reading.Source = res.Source

	if err := s.history.Append(reading); err != nil {
		s.logger.Warn("history append failed", "error", err)
		return
	}
	s.RecordActivity()
	s.logger.Debug("fear/greed reading",
		"value", reading.Value, "classification", reading.Classification)
}

// parseReading extracts the newest sample from the index payload. The feed
// wraps samples in {"data":[{...}]} with numbers serialized as strings;
// a bare sample object is accepted too.
func parseReading(data any) (Reading, error) {
	sample, ok := data.(map[string]any)
	if !ok {
		return Reading{}, fmt.Errorf("unexpected payload type %T", data)
	}

	if rows, ok := sample["data"].([]any); ok {
		if len(rows) == 0 {
			return Reading{}, fmt.Errorf("empty data array")
		}
		sample, ok = rows[0].(map[string]any)
		if !ok {
			return Reading{}, fmt.Errorf("unexpected row type %T", rows[0])
		}
	}

	value, err := intField(sample, "value")
	if err != nil {
		return Reading{}, err
	}
	if value < 0 || value > 100 {
		return Reading{}, fmt.Errorf("index value %d out of range", value)
	}

	reading := Reading{
		Value:     value,
		Timestamp: timestamp.Parse(sample["timestamp"]),
	}
	if c, ok := sample["value_classification"].(string); ok {
		reading.Classification = c
	}
	if reading.Timestamp == 0 {
		reading.Timestamp = timestamp.Now()
	}
	return reading, nil
}

func intField(m map[string]any, key string) (int, error) {
	switch v := m[key].(type) {
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %q has type %T", key, v)
	}
}
