package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not provider-specific)
type Metrics struct {
	// Service metrics
	ServiceStatus     *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec

	// Upstream fetch metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamRetries  *prometheus.CounterVec
	MirrorFallbacks  *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec

	// Event bus metrics
	EventsPublished    *prometheus.CounterVec
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge

	// WebSocket relay metrics
	RelayConnected  prometheus.Gauge
	RelayReconnects prometheus.Counter
	RelayEvents     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Service metrics
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cryptodt",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cryptodt",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		// Upstream fetch metrics
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total upstream requests by final outcome (success, error, cached, stale)",
			},
			[]string{"service", "provider", "outcome"},
		),

		UpstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Total retry attempts against upstream providers",
			},
			[]string{"service", "provider"},
		),

		MirrorFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "upstream",
				Name:      "mirror_fallbacks_total",
				Help:      "Total requests rerouted to a mirror host",
			},
			[]string{"service", "host"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cryptodt",
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Upstream request duration in seconds, including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "provider"},
		),

		// Event bus metrics
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published to the bus",
			},
			[]string{"service", "subject"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cryptodt",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cryptodt",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cryptodt",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),

		// WebSocket relay metrics
		RelayConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cryptodt",
				Subsystem: "relay",
				Name:      "connected",
				Help:      "WebSocket relay connection status (0=disconnected, 1=connected)",
			},
		),

		RelayReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "relay",
				Name:      "reconnects_total",
				Help:      "Total number of WebSocket reconnection attempts",
			},
		),

		RelayEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptodt",
				Subsystem: "relay",
				Name:      "events_total",
				Help:      "Total events received over the relay by type",
			},
			[]string{"type"},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordUpstreamRequest increments the request counter for a provider outcome
func (c *Metrics) RecordUpstreamRequest(service, provider, outcome string) {
	c.UpstreamRequests.WithLabelValues(service, provider, outcome).Inc()
}

// RecordUpstreamRetry increments the retry counter for a provider
func (c *Metrics) RecordUpstreamRetry(service, provider string) {
	c.UpstreamRetries.WithLabelValues(service, provider).Inc()
}

// RecordMirrorFallback increments the mirror reroute counter for a host
func (c *Metrics) RecordMirrorFallback(service, host string) {
	c.MirrorFallbacks.WithLabelValues(service, host).Inc()
}

// RecordRequestDuration records end-to-end upstream request time
func (c *Metrics) RecordRequestDuration(service, provider string, duration time.Duration) {
	c.RequestDuration.WithLabelValues(service, provider).Observe(duration.Seconds())
}

// RecordEventPublished increments published event counter
func (c *Metrics) RecordEventPublished(service, subject string) {
	c.EventsPublished.WithLabelValues(service, subject).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}

// RecordRelayStatus updates WebSocket relay connection status
func (c *Metrics) RecordRelayStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.RelayConnected.Set(value)
}

// RecordRelayReconnect increments the relay reconnection counter
func (c *Metrics) RecordRelayReconnect() {
	c.RelayReconnects.Inc()
}

// RecordRelayEvent increments the per-type relay event counter
func (c *Metrics) RecordRelayEvent(eventType string) {
	c.RelayEvents.WithLabelValues(eventType).Inc()
}
