// Package metric provides Prometheus-based metrics collection for the
// crypto-dt-source agent.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (service status, upstream fetches, NATS and relay health)
// and custom service-specific metrics. Exposure happens through the
// operations server, which mounts Registry.Handler() at /metrics.
//
// # Architecture
//
// The package follows a two-layer design:
//
//  1. Core Metrics: Platform-level metrics automatically registered (Metrics type)
//  2. Service Registry: Extensible registration for service-specific metrics (Registrar interface)
//
// This separates infrastructure concerns (core metrics) from application
// concerns (service-specific metrics) while keeping a single registry for
// the scrape endpoint.
//
// # Basic Usage
//
// Setting up metrics collection:
//
//	registry := metric.NewRegistry()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordServiceStatus("poller", 2)
//	coreMetrics.RecordUpstreamRequest("poller", "coingecko", "success")
//	coreMetrics.RecordNATSStatus(true)
//
//	// Expose through any HTTP mux
//	mux.Handle("/metrics", registry.Handler())
//
// # Core Metrics
//
// The registry automatically registers core platform metrics tracking:
//
//   - Service lifecycle: cryptodt_service_status, cryptodt_health_status
//   - Upstream fetches: cryptodt_upstream_requests_total, cryptodt_upstream_retries_total,
//     cryptodt_upstream_mirror_fallbacks_total, cryptodt_upstream_request_duration_seconds
//   - Event bus: cryptodt_events_published_total, cryptodt_nats_connected,
//     cryptodt_nats_rtt_milliseconds, cryptodt_nats_reconnects_total
//   - WebSocket relay: cryptodt_relay_connected, cryptodt_relay_reconnects_total,
//     cryptodt_relay_events_total
//   - Error tracking: cryptodt_errors_total
//
// # Service-Specific Metrics
//
// Services register custom metrics through the registry. Names are tracked
// per service so two services cannot collide:
//
//	hits := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "cryptodt_cache_hits_total",
//	    Help: "Total cache hits",
//	})
//	err := registry.RegisterCounter("market-cache", "cache_hits", hits)
//
// Vector variants (RegisterCounterVec, RegisterGaugeVec, RegisterHistogramVec)
// exist for labeled metrics. Registration returns an Invalid-class error for
// duplicates and a Fatal-class error for underlying Prometheus failures.
//
// # Registrar Interface
//
// Services accept the Registrar interface for dependency injection, which
// enables testing with mock registrars:
//
//	func NewFetcher(metrics metric.Registrar) *Fetcher { ... }
//
// # Thread Safety
//
// All registry operations are thread-safe: registration uses mutex
// protection, and metric recording is lock-free (Prometheus guarantee).
package metric
