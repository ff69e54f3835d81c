// Package bus republishes agent events to NATS so downstream consumers
// (alerting, archival, other agents) can subscribe without touching the
// upstream providers. Publishing is guarded by a circuit breaker: after a
// run of consecutive failures the breaker opens and publishes are rejected
// immediately until a timed probe half-closes it, with the probe delay
// doubling on every failed round.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/event"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
)

// Status represents the state of the NATS connection.
type Status int

// Possible connection statuses.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// DefaultSubjectPrefix is the subject namespace events publish under when
// none is configured: <prefix>.<event type>.
const DefaultSubjectPrefix = "crypto.events"

// Info holds runtime status information for the publisher, served by the
// ops API.
type Info struct {
	Status      string        `json:"status"`
	Failures    int64         `json:"failures"`
	Published   int64         `json:"published"`
	LastFailure int64         `json:"last_failure,omitempty"` // unix-ms
	Backoff     time.Duration `json:"backoff"`
	RTT         time.Duration `json:"rtt,omitempty"`
}

// Publisher republishes events on NATS subjects with a circuit breaker.
type Publisher struct {
	urls          string
	name          string
	subjectPrefix string

	status    atomic.Value // Status
	published atomic.Int64
	failures  atomic.Int64

	// Circuit breaker. circuitFailures counts the current round; the
	// breaker opens when it reaches threshold, publishes fail fast, and a
	// timed probe half-closes it. The probe delay doubles per failed round.
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	baseDelay        time.Duration
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	username      string
	password      string
	token         string

	logger  *slog.Logger
	metrics busMetrics

	mu      sync.RWMutex
	conn    *nats.Conn
	publish func(subject string, data []byte) error

	closeMu sync.Mutex
	closed  atomic.Bool
}

// New creates a publisher for the given NATS URLs (comma-joined for
// multi-server clusters). The publisher is disconnected until Connect.
func New(urls []string, opts ...Option) (*Publisher, error) {
	if len(urls) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Publisher", "New", "no NATS URLs")
	}

	p := &Publisher{
		urls:             strings.Join(urls, ","),
		name:             "crypto-dt-agent",
		subjectPrefix:    DefaultSubjectPrefix,
		circuitThreshold: 5,
		baseDelay:        time.Second,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     10 * time.Second,
		logger:           slog.Default().With("service", "bus"),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.WrapInvalid(err, "Publisher", "New", "apply option")
		}
	}

	p.status.Store(StatusDisconnected)
	p.backoff.Store(p.baseDelay)
	p.lastFailure.Store(time.Time{})

	return p, nil
}

// Status returns the current connection status.
func (p *Publisher) Status() Status {
	return p.status.Load().(Status)
}

// IsHealthy reports whether the publisher is connected and the breaker
// closed.
func (p *Publisher) IsHealthy() bool {
	return p.Status() == StatusConnected
}

// Health returns the standard health status for the publisher.
func (p *Publisher) Health() health.Status {
	switch p.Status() {
	case StatusConnected:
		return health.NewHealthy("bus", "connected to NATS")
	case StatusCircuitOpen:
		return health.NewUnhealthy("bus",
			fmt.Sprintf("circuit open after %d failures", p.failures.Load()))
	case StatusConnecting, StatusReconnecting:
		return health.NewDegraded("bus", "connection in progress")
	default:
		return health.NewUnhealthy("bus", "disconnected")
	}
}

// Info returns a runtime snapshot.
func (p *Publisher) Info() Info {
	info := Info{
		Status:    p.Status().String(),
		Failures:  p.failures.Load(),
		Published: p.published.Load(),
		Backoff:   p.backoff.Load().(time.Duration),
	}
	if lf := p.lastFailure.Load().(time.Time); !lf.IsZero() {
		info.LastFailure = lf.UnixMilli()
	}

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn != nil && conn.IsConnected() {
		if rtt, err := conn.RTT(); err == nil {
			info.RTT = rtt
			p.metrics.rtt(rtt)
		}
	}
	return info
}

// Connect establishes the NATS connection. A publish-only connection: the
// nats.Conn handles its own reconnects; the circuit breaker guards the
// publish path on top of that.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrCircuitOpen,
			"Publisher", "Connect", "breaker open")
	}

	p.setStatus(StatusConnecting)
	p.logger.Info("connecting to NATS", "urls", p.urls)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(p.urls, p.connectionOptions()...)
		if err != nil {
			connectDone <- err
			return
		}
		p.mu.Lock()
		p.conn = conn
		p.publish = conn.Publish
		p.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			p.recordFailure()
			if p.Status() == StatusCircuitOpen {
				return errors.WrapTransient(errors.ErrCircuitOpen,
					"Publisher", "Connect", "breaker opened")
			}
			p.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Publisher", "Connect", "establish connection")
		}
	case <-ctx.Done():
		p.recordFailure()
		if p.Status() != StatusCircuitOpen {
			p.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "Publisher", "Connect", "connection cancelled")
	}

	p.setStatus(StatusConnected)
	p.resetCircuit()
	p.logger.Info("connected to NATS", "urls", p.urls)
	return nil
}

// Subject derives the publish subject for an event type.
func (p *Publisher) Subject(eventType string) string {
	return p.subjectPrefix + "." + eventType
}

// Publish republishes one event under <prefix>.<type>. Invalid events and
// open-breaker rejections are reported as errors; the caller decides
// whether a dropped event matters.
func (p *Publisher) Publish(_ context.Context, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	if p.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrCircuitOpen,
			"Publisher", "Publish", "breaker open")
	}

	p.mu.RLock()
	publish := p.publish
	p.mu.RUnlock()
	if publish == nil {
		return errors.WrapTransient(errors.ErrNotConnected,
			"Publisher", "Publish", "no connection")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapInvalid(err, "Publisher", "Publish", "marshal event")
	}

	subject := p.Subject(ev.Type)
	if err := publish(subject, data); err != nil {
		p.recordFailure()
		return errors.WrapTransient(err, "Publisher", "Publish",
			fmt.Sprintf("publish to %s", subject))
	}

	p.published.Add(1)
	p.resetCircuit()
	p.metrics.published(subject)
	return nil
}

// Close drains and closes the connection. Safe to call more than once.
func (p *Publisher) Close(ctx context.Context) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	if p.closed.Load() {
		return nil
	}
	p.closed.Store(true)

	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.publish = nil
	p.mu.Unlock()

	p.setStatus(StatusDisconnected)

	if conn == nil {
		return nil
	}

	drainTimeout := p.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() { drainDone <- conn.Drain() }()

	select {
	case err := <-drainDone:
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "Publisher", "Close", "drain connection")
		}
	case <-time.After(drainTimeout):
		conn.Close()
		p.logger.Warn("drain timed out, connection closed hard", "timeout", drainTimeout)
	}
	return nil
}

func (p *Publisher) setStatus(s Status) {
	p.status.Store(s)
	p.metrics.status(s)
}

// recordFailure counts a publish or connect failure and opens the breaker
// once the current round reaches the threshold. The open breaker schedules
// a probe after the current backoff, and the backoff doubles (capped) so
// a persistent outage degrades to infrequent probes.
func (p *Publisher) recordFailure() {
	p.failures.Add(1)
	p.lastFailure.Store(time.Now())

	round := p.circuitFailures.Add(1)
	if round < p.circuitThreshold {
		return
	}

	current := p.Status()
	if current != StatusCircuitOpen {
		if !p.status.CompareAndSwap(current, StatusCircuitOpen) {
			return
		}
		p.metrics.status(StatusCircuitOpen)

		probeAfter := p.backoff.Load().(time.Duration)
		p.advanceBackoff()
		p.circuitFailures.Store(0)

		p.logger.Warn("circuit breaker opened",
			"failures", round, "probe_after", probeAfter)
		time.AfterFunc(probeAfter, p.probeCircuit)
		return
	}

	// Already open: failures during the open window only stretch the
	// next probe.
	p.advanceBackoff()
	p.circuitFailures.Store(0)
}

func (p *Publisher) advanceBackoff() {
	next := p.backoff.Load().(time.Duration) * 2
	if next > p.maxBackoff {
		next = p.maxBackoff
	}
	p.backoff.Store(next)
}

// probeCircuit half-closes the breaker: the next publish attempt goes
// through and its outcome decides whether the breaker re-opens or resets.
func (p *Publisher) probeCircuit() {
	if p.status.CompareAndSwap(StatusCircuitOpen, StatusReconnecting) {
		p.metrics.status(StatusReconnecting)
		p.metrics.reconnect()
		p.logger.Info("circuit breaker half-closed, probing")

		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()
		if conn != nil && conn.IsConnected() {
			p.setStatus(StatusConnected)
		} else {
			p.setStatus(StatusDisconnected)
		}
	}
}

// resetCircuit clears the breaker after a success.
func (p *Publisher) resetCircuit() {
	p.circuitFailures.Store(0)
	p.backoff.Store(p.baseDelay)
	if p.Status() != StatusConnected {
		p.setStatus(StatusConnected)
	}
}

func (p *Publisher) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(p.name),
		// A down broker at boot becomes a background reconnect instead
		// of a failed start.
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(p.maxReconnects),
		nats.ReconnectWait(p.reconnectWait),
		nats.Timeout(p.timeout),
		nats.DrainTimeout(p.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if p.closed.Load() {
				return
			}
			p.setStatus(StatusReconnecting)
			p.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.setStatus(StatusConnected)
			p.resetCircuit()
			p.metrics.reconnect()
			p.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if p.closed.Load() {
				return
			}
			p.setStatus(StatusDisconnected)
			p.logger.Warn("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			p.logger.Error("NATS async error", "error", err)
		}),
	}

	if p.username != "" && p.password != "" {
		opts = append(opts, nats.UserInfo(p.username, p.password))
	}
	if p.token != "" {
		opts = append(opts, nats.Token(p.token))
	}

	return opts
}
