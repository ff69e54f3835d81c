package bus

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
)

// Option configures a Publisher. Options validate eagerly so New fails
// on bad settings instead of surfacing them mid-publish.
type Option func(*Publisher) error

// WithName sets the connection name shown in NATS server monitoring.
func WithName(name string) Option {
	return func(p *Publisher) error {
		if name != "" {
			p.name = name
		}
		return nil
	}
}

// WithSubjectPrefix sets the subject namespace events publish under.
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) error {
		prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
		if prefix == "" {
			return nil
		}
		if strings.ContainsAny(prefix, " \t*>") {
			return fmt.Errorf("invalid subject prefix %q", prefix)
		}
		p.subjectPrefix = prefix
		return nil
	}
}

// WithMaxReconnects sets the nats.Conn reconnect budget (-1 for infinite).
func WithMaxReconnects(n int) Option {
	return func(p *Publisher) error {
		if n < -1 {
			return fmt.Errorf("max reconnects must be >= -1, got %d", n)
		}
		p.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the wait between nats.Conn reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(p *Publisher) error {
		if d <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", d)
		}
		p.reconnectWait = d
		return nil
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithBreaker tunes the circuit breaker: threshold consecutive failures
// open it, and the probe delay starts at baseDelay and doubles per failed
// round. Zero values keep the defaults.
func WithBreaker(threshold int, baseDelay time.Duration) Option {
	return func(p *Publisher) error {
		if threshold < 0 {
			return fmt.Errorf("breaker threshold must be >= 0, got %d", threshold)
		}
		if threshold > 0 {
			p.circuitThreshold = int32(threshold)
		}
		if baseDelay > 0 {
			p.baseDelay = baseDelay
		}
		return nil
	}
}

// WithUserInfo sets username/password authentication.
func WithUserInfo(username, password string) Option {
	return func(p *Publisher) error {
		p.username = username
		p.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(p *Publisher) error {
		p.token = token
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) error {
		if logger != nil {
			p.logger = logger.With("service", "bus")
		}
		return nil
	}
}

// WithMetrics wires connection and publish metrics into the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(p *Publisher) error {
		if registry != nil {
			p.metrics = busMetrics{core: registry.CoreMetrics()}
		}
		return nil
	}
}

// busMetrics guards the optional metrics sink so call sites stay free of
// nil checks.
type busMetrics struct {
	core *metric.Metrics
}

func (m busMetrics) status(s Status) {
	if m.core == nil {
		return
	}
	m.core.RecordNATSStatus(s == StatusConnected)
	m.core.RecordCircuitBreakerState(int(s))
}

func (m busMetrics) published(subject string) {
	if m.core != nil {
		m.core.RecordEventPublished("bus", subject)
	}
}

func (m busMetrics) reconnect() {
	if m.core != nil {
		m.core.RecordNATSReconnect()
	}
}

func (m busMetrics) rtt(rtt time.Duration) {
	if m.core != nil {
		m.core.RecordNATSRTT(rtt)
	}
}
