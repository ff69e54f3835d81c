// Package service provides the shared lifecycle machinery embedded by
// the agent's long-running components: status transitions, periodic
// health checks, and activity tracking.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
)

// Status represents the current lifecycle state of a service.
type Status int

// Possible service statuses.
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Info holds runtime information for a service, served by the ops API.
type Info struct {
	Name               string        `json:"name"`
	Status             string        `json:"status"`
	Uptime             time.Duration `json:"uptime"`
	StartTime          time.Time     `json:"start_time"`
	EventsProcessed    int64         `json:"events_processed"`
	LastActivity       time.Time     `json:"last_activity"`
	HealthChecks       int64         `json:"health_checks"`
	FailedHealthChecks int64         `json:"failed_health_checks"`
}

// HealthCheckFunc is a service-specific liveness probe. A nil error means
// healthy.
type HealthCheckFunc func() error

// Option is a functional option for configuring Base.
type Option func(*Base)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics wires service status and health gauges into the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(b *Base) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}

// WithHealthCheck sets the periodic health probe.
func WithHealthCheck(fn HealthCheckFunc) Option {
	return func(b *Base) {
		b.healthCheckFunc = fn
	}
}

// WithHealthInterval sets the health check cadence. Zero disables the loop.
func WithHealthInterval(interval time.Duration) Option {
	return func(b *Base) {
		b.healthInterval = interval
	}
}

// OnHealthChange sets a callback invoked when the health state flips.
func OnHealthChange(fn func(bool)) Option {
	return func(b *Base) {
		b.onHealthChange = fn
	}
}

// Base provides lifecycle and health-loop plumbing. Components embed it
// and layer their own run loops on top: their Start calls Base.Start, their
// Stop calls Base.Stop after their own teardown.
type Base struct {
	name    string
	logger  *slog.Logger
	metrics *metric.Metrics

	status    atomic.Value // Status
	startTime atomic.Value // time.Time
	healthy   atomic.Bool

	eventsProcessed    atomic.Int64
	healthChecks       atomic.Int64
	failedHealthChecks atomic.Int64
	lastActivity       atomic.Value // time.Time

	// checkMu guards healthCheckFunc separately from the lifecycle mutex
	// so a check in flight never blocks (or is blocked by) Stop.
	checkMu         sync.RWMutex
	healthCheckFunc HealthCheckFunc
	healthInterval  time.Duration
	onHealthChange  func(bool)

	healthTicker *time.Ticker
	done         chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
}

// NewBase creates a service base with a 30s health interval by default.
func NewBase(name string, opts ...Option) *Base {
	b := &Base{
		name:           name,
		healthInterval: 30 * time.Second,
		logger:         slog.Default().With("service", name),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.status.Store(StatusStopped)
	b.startTime.Store(time.Time{})
	b.lastActivity.Store(time.Time{})
	b.recordStatus(StatusStopped)

	return b
}

// Name returns the service name.
func (b *Base) Name() string {
	return b.name
}

// Logger returns the service logger for embedders.
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// Status returns the current lifecycle state.
func (b *Base) Status() Status {
	return b.status.Load().(Status)
}

// IsHealthy reports the last health check outcome.
func (b *Base) IsHealthy() bool {
	return b.healthy.Load()
}

// Health returns the standard health status for the service.
func (b *Base) Health() health.Status {
	if b.Status() == StatusRunning && !b.healthy.Load() {
		return health.NewUnhealthy(b.name,
			fmt.Sprintf("service is unhealthy (failed checks: %d)", b.failedHealthChecks.Load()))
	}

	switch b.Status() {
	case StatusRunning:
		return health.NewHealthy(b.name, "service operating normally")
	case StatusStarting:
		return health.NewDegraded(b.name, "service is starting")
	case StatusStopping:
		return health.NewDegraded(b.name, "service is stopping")
	default:
		return health.NewUnhealthy(b.name, "service is stopped")
	}
}

// RecordActivity bumps the processed counter and activity timestamp.
func (b *Base) RecordActivity() {
	b.eventsProcessed.Add(1)
	b.lastActivity.Store(time.Now())
}

// Start begins the health check loop and watches ctx for shutdown.
// Starting a running service is a no-op.
func (b *Base) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.Status()
	if current == StatusRunning || current == StatusStarting {
		return nil
	}

	b.setStatus(StatusStarting)
	b.done = make(chan struct{})

	now := time.Now()
	b.startTime.Store(now)
	b.lastActivity.Store(now)

	if b.healthInterval > 0 {
		b.healthTicker = time.NewTicker(b.healthInterval)
		b.wg.Add(1)
		go b.healthMonitor()

		// First check shortly after start so the service does not sit
		// in an unknown health state for a full interval.
		go func() {
			time.Sleep(200 * time.Millisecond)
			select {
			case <-b.done:
			default:
				b.performHealthCheck()
			}
		}()
	} else {
		// No check loop: the lifecycle state is the only health signal.
		b.healthy.Store(true)
	}

	b.wg.Add(1)
	go b.contextMonitor(ctx)

	b.setStatus(StatusRunning)
	return nil
}

// Stop shuts the service down, waiting up to timeout for its goroutines.
// Stopping a stopped service is a no-op.
func (b *Base) Stop(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.Status()
	if current == StatusStopped || current == StatusStopping {
		return nil
	}

	b.setStatus(StatusStopping)

	if b.done != nil {
		select {
		case <-b.done:
		default:
			close(b.done)
		}
	}

	if b.healthTicker != nil {
		b.healthTicker.Stop()
	}

	if timeout == 0 {
		timeout = 5 * time.Second
	}

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(timeout):
		b.logger.Warn("service stop timed out", "timeout", timeout)
	}

	b.setStatus(StatusStopped)
	b.healthy.Store(false)
	return nil
}

// Info returns the current runtime snapshot.
func (b *Base) Info() Info {
	startTime := b.startTime.Load().(time.Time)
	lastActivity := b.lastActivity.Load().(time.Time)

	uptime := time.Duration(0)
	if !startTime.IsZero() && b.Status() == StatusRunning {
		uptime = time.Since(startTime)
	}

	return Info{
		Name:               b.name,
		Status:             b.Status().String(),
		Uptime:             uptime,
		StartTime:          startTime,
		EventsProcessed:    b.eventsProcessed.Load(),
		LastActivity:       lastActivity,
		HealthChecks:       b.healthChecks.Load(),
		FailedHealthChecks: b.failedHealthChecks.Load(),
	}
}

func (b *Base) setStatus(s Status) {
	b.status.Store(s)
	b.recordStatus(s)
}

func (b *Base) recordStatus(s Status) {
	if b.metrics != nil {
		b.metrics.RecordServiceStatus(b.name, int(s))
	}
}

// healthMonitor runs the periodic health check loop.
func (b *Base) healthMonitor() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case <-b.healthTicker.C:
			b.performHealthCheck()
		}
	}
}

func (b *Base) performHealthCheck() {
	b.healthChecks.Add(1)

	var err error
	if fn := b.checkFunc(); fn != nil {
		err = fn()
	}

	wasHealthy := b.healthy.Load()
	isHealthy := err == nil

	if err != nil {
		b.failedHealthChecks.Add(1)
		b.logger.Debug("health check failed", "error", err)
	}

	b.healthy.Store(isHealthy)
	if b.metrics != nil {
		b.metrics.RecordHealthStatus(b.name, isHealthy)
	}

	if wasHealthy != isHealthy && b.onHealthChange != nil {
		go b.onHealthChange(isHealthy)
	}
}

func (b *Base) checkFunc() HealthCheckFunc {
	b.checkMu.RLock()
	defer b.checkMu.RUnlock()
	return b.healthCheckFunc
}

// SetHealthCheck replaces the health probe after construction. Embedders
// use this when the probe needs state built during their own setup.
func (b *Base) SetHealthCheck(fn HealthCheckFunc) {
	b.checkMu.Lock()
	defer b.checkMu.Unlock()
	b.healthCheckFunc = fn
}

// contextMonitor transitions the service to stopped when the parent
// context ends before Stop is called.
func (b *Base) contextMonitor(ctx context.Context) {
	defer b.wg.Done()

	select {
	case <-ctx.Done():
		if b.Status() == StatusRunning {
			b.setStatus(StatusStopping)
			if b.healthTicker != nil {
				b.healthTicker.Stop()
			}
			b.setStatus(StatusStopped)
			b.healthy.Store(false)
		}
	case <-b.done:
	}
}

// Service is the contract the daemon manages components through.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Status() Status
	IsHealthy() bool
	Health() health.Status
	Info() Info
}
