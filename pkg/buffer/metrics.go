package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
)

// ringMetrics holds Prometheus metrics for ring operations.
type ringMetrics struct {
	appends    prometheus.Counter
	overwrites prometheus.Counter
	drains     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newRingMetrics creates and registers ring metrics with the provided registry.
func newRingMetrics(registry *metric.Registry, prefix string) (*ringMetrics, error) {
	m := &ringMetrics{
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cryptodt",
			Subsystem:   "ring",
			Name:        "appends_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of ring append operations",
		}),
		overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cryptodt",
			Subsystem:   "ring",
			Name:        "overwrites_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of items displaced by overwrite",
		}),
		drains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cryptodt",
			Subsystem:   "ring",
			Name:        "drains_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of drain operations",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cryptodt",
			Subsystem:   "ring",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of items in the ring",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cryptodt",
			Subsystem:   "ring",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Ring utilization as a percentage (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "ring_appends", m.appends); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "ring_overwrites", m.overwrites); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "ring_drains", m.drains); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "ring_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "ring_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

// recordAppend increments the append counter and updates size/utilization.
func (m *ringMetrics) recordAppend(size, capacity int) {
	m.appends.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

// recordOverwrite increments the overwrite counter.
func (m *ringMetrics) recordOverwrite() {
	m.overwrites.Inc()
}

// recordDrain increments the drain counter and zeroes size/utilization.
func (m *ringMetrics) recordDrain() {
	m.drains.Inc()
	m.size.Set(0)
	m.utilization.Set(0)
}

// updateSize sets the current ring size and utilization.
func (m *ringMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
