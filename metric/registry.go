package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Registrar defines the interface for registering service-specific metrics
type Registrar interface {
	RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error
	RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(serviceName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(serviceName, metricName string) bool
}

// Registry manages the registration and lifecycle of metrics
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a new metrics registry with core platform metrics
func NewRegistry() *Registry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &Registry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	// Initialize and register core metrics
	registry.Metrics = NewMetrics()
	registry.registerMetrics()

	// Add Go runtime metrics
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core platform metrics
func (r *Registry) CoreMetrics() *Metrics {
	return r.Metrics
}

// register adds a collector under "service.metric", rejecting duplicates both
// in our tracking map and in the underlying Prometheus registry.
func (r *Registry) register(operation, serviceName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", serviceName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for service %s", metricName, serviceName),
			"Registry", operation, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", operation,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "Registry", operation,
			"failed to register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for a service
func (r *Registry) RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", serviceName, metricName, counter)
}

// RegisterGauge registers a gauge metric for a service
func (r *Registry) RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", serviceName, metricName, gauge)
}

// RegisterHistogram registers a histogram metric for a service
func (r *Registry) RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", serviceName, metricName, histogram)
}

// RegisterCounterVec registers a counter vector metric for a service
func (r *Registry) RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", serviceName, metricName, counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a service
func (r *Registry) RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", serviceName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a service
func (r *Registry) RegisterHistogramVec(
	serviceName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", serviceName, metricName, histogramVec)
}

// Unregister removes a metric from the registry
func (r *Registry) Unregister(serviceName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", serviceName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}

// registerMetrics registers all core platform metrics
func (r *Registry) registerMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.ServiceStatus,
		r.Metrics.HealthCheckStatus,
		r.Metrics.ErrorsTotal,
		r.Metrics.UpstreamRequests,
		r.Metrics.UpstreamRetries,
		r.Metrics.MirrorFallbacks,
		r.Metrics.RequestDuration,
		r.Metrics.EventsPublished,
		r.Metrics.NATSConnected,
		r.Metrics.NATSRTT,
		r.Metrics.NATSReconnects,
		r.Metrics.NATSCircuitBreaker,
		r.Metrics.RelayConnected,
		r.Metrics.RelayReconnects,
		r.Metrics.RelayEvents,
	)
}
