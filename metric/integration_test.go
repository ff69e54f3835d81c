package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPoller simulates a service that registers its own metrics
type MockPoller struct {
	name    string
	metrics struct {
		pollsCompleted prometheus.Counter
		queueDepth     prometheus.Gauge
	}
}

func NewMockPoller(name string) *MockPoller {
	return &MockPoller{name: name}
}

func (m *MockPoller) Name() string {
	return m.name
}

// RegisterMetrics registers domain-specific metrics for the mock poller
func (m *MockPoller) RegisterMetrics(registrar Registrar) error {
	m.metrics.pollsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryptodt",
		Subsystem: "mock_poller",
		Name:      "polls_completed_total",
		Help:      "Total number of poll cycles completed",
	})

	err := registrar.RegisterCounter(m.name, "polls_completed_total", m.metrics.pollsCompleted)
	if err != nil {
		return err
	}

	m.metrics.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryptodt",
		Subsystem: "mock_poller",
		Name:      "queue_depth",
		Help:      "Current depth of the pending fetch queue",
	})

	return registrar.RegisterGauge(m.name, "queue_depth", m.metrics.queueDepth)
}

// CompletePolls simulates poll activity and updates metrics
func (m *MockPoller) CompletePolls(polls int, queueDepth int) {
	m.metrics.pollsCompleted.Add(float64(polls))
	m.metrics.queueDepth.Set(float64(queueDepth))
}

func TestMetricsIntegration_ServiceRegistration(t *testing.T) {
	registry := NewRegistry()

	mockPoller := NewMockPoller("test-poller")

	err := mockPoller.RegisterMetrics(registry)
	require.NoError(t, err)

	mockPoller.CompletePolls(10, 5)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	assert.True(t, foundMetrics["cryptodt_mock_poller_polls_completed_total"],
		"Custom polls_completed metric should be registered")
	assert.True(t, foundMetrics["cryptodt_mock_poller_queue_depth"],
		"Custom queue_depth metric should be registered")
}

func TestMetricsIntegration_NoDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	// Two pollers with the same name simulate registering a service twice
	poller1 := NewMockPoller("duplicate-poller")
	poller2 := NewMockPoller("duplicate-poller")

	err := poller1.RegisterMetrics(registry)
	require.NoError(t, err)

	err = poller2.RegisterMetrics(registry)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestMetricsIntegration_CoreAndServiceMetricsSeparate(t *testing.T) {
	registry := NewRegistry()
	coreMetrics := registry.CoreMetrics()

	mockPoller := NewMockPoller("separation-test")
	err := mockPoller.RegisterMetrics(registry)
	require.NoError(t, err)

	// Use core metrics
	coreMetrics.RecordServiceStatus("separation-test", 2)
	coreMetrics.RecordUpstreamRequest("separation-test", "coinmarketcap", "success")

	// Use service-specific metrics
	mockPoller.CompletePolls(5, 3)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	// Verify core metrics
	assert.True(t, foundMetrics["cryptodt_service_status"],
		"core service status metric should be present")
	assert.True(t, foundMetrics["cryptodt_upstream_requests_total"],
		"core upstream requests metric should be present")

	// Verify service-specific metrics
	assert.True(t, foundMetrics["cryptodt_mock_poller_polls_completed_total"],
		"Service-specific polls completed metric should be present")
	assert.True(t, foundMetrics["cryptodt_mock_poller_queue_depth"],
		"Service-specific queue depth metric should be present")

	// Provider-level metrics should only come from the services that own them
	assert.False(t, foundMetrics["cryptodt_sentiment_history_size"],
		"Sentiment metrics should NOT be in core registry")
	assert.False(t, foundMetrics["cryptodt_cache_hits_total"],
		"Cache metrics should NOT be in core registry")
}

func TestMetricsIntegration_MetricsUnregistration(t *testing.T) {
	registry := NewRegistry()

	mockPoller := NewMockPoller("unregister-test")

	err := mockPoller.RegisterMetrics(registry)
	require.NoError(t, err)

	mockPoller.CompletePolls(1, 1)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundBefore := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundBefore[mf.GetName()] = true
	}

	assert.True(t, foundBefore["cryptodt_mock_poller_polls_completed_total"],
		"Metric should be present before unregistration")

	success := registry.Unregister("unregister-test", "polls_completed_total")
	assert.True(t, success, "Unregistration should succeed")

	metricFamilies, err = registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundAfter := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundAfter[mf.GetName()] = true
	}

	assert.False(t, foundAfter["cryptodt_mock_poller_polls_completed_total"],
		"Metric should be absent after unregistration")
	assert.True(t, foundAfter["cryptodt_mock_poller_queue_depth"],
		"Other service metrics should remain")
}

func TestMetricsIntegration_MultipleServicesWithUniqueMetrics(t *testing.T) {
	registry := NewRegistry()

	// Different service names, but the same underlying Prometheus metric names
	poller1 := NewMockPoller("market-poller")
	poller2 := NewMockPoller("health-poller")

	err := poller1.RegisterMetrics(registry)
	require.NoError(t, err)

	// The second registration fails at the Prometheus level because the
	// fully-qualified metric names collide
	err = poller2.RegisterMetrics(registry)
	assert.Error(t, err, "Second poller should fail due to Prometheus metric name conflict")
	assert.Contains(t, err.Error(), "prometheus conflict")
}
