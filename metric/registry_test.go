package metric

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
}

func TestRegistry_RegisterCounter(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-service", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	// Verify the counter is registered in the underlying Prometheus registry
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
}

func TestRegistry_RegisterGauge(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("test-service", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_gauge" {
			found = true
			break
		}
	}
	assert.True(t, found, "Gauge should be registered in Prometheus registry")
}

func TestRegistry_RegisterHistogram(t *testing.T) {
	registry := NewRegistry()

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "A test histogram",
		Buckets: prometheus.DefBuckets,
	})

	err := registry.RegisterHistogram("test-service", "test_histogram", histogram)
	require.NoError(t, err)

	histogram.Observe(1.5)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_histogram" {
			found = true
			break
		}
	}
	assert.True(t, found, "Histogram should be registered in Prometheus registry")
}

func TestRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter", // Same help to avoid Prometheus validation error
	})

	// First registration should succeed
	err := registry.RegisterCounter("service1", "duplicate_counter", counter1)
	require.NoError(t, err)

	// Second registration with same name should fail with our custom tracking
	err = registry.RegisterCounter("service2", "duplicate_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestRegistry_UnregisterMetric(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unregister_counter",
		Help: "A counter to unregister",
	})

	err := registry.RegisterCounter("test-service", "unregister_counter", counter)
	require.NoError(t, err)

	success := registry.Unregister("test-service", "unregister_counter")
	assert.True(t, success)

	// Verify it's no longer registered
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "unregister_counter" {
			found = true
			break
		}
	}
	assert.False(t, found)

	// Unregistering again reports failure
	assert.False(t, registry.Unregister("test-service", "unregister_counter"))
}

func TestRegistry_ThreadSafety(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	// Register metrics concurrently
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})

			err := registry.RegisterCounter("concurrent-service",
				fmt.Sprintf("concurrent_counter_%d", id), counter)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	// Verify all metrics were registered
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	counterCount := 0
	for _, mf := range metricFamilies {
		if strings.HasPrefix(mf.GetName(), "concurrent_counter_") {
			counterCount++
		}
	}

	assert.Equal(t, numGoroutines, counterCount,
		"All concurrent counters should be registered")
}

func TestRegistrar_Interface(t *testing.T) {
	registry := NewRegistry()

	// Verify registry implements Registrar interface
	var registrar Registrar = registry
	assert.NotNil(t, registrar)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interface_counter",
		Help: "Counter registered through interface",
	})

	err := registrar.RegisterCounter("interface-service", "interface_counter", counter)
	require.NoError(t, err)
}

func TestRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewRegistry()

	// Vector metrics don't appear in Gather() until they have at least one value set
	coreMetrics := registry.CoreMetrics()

	coreMetrics.RecordServiceStatus("market-poller", 2)
	coreMetrics.RecordHealthStatus("market-poller", true)
	coreMetrics.RecordError("market-poller", "timeout")
	coreMetrics.RecordUpstreamRequest("market-poller", "coingecko", "success")
	coreMetrics.RecordUpstreamRetry("market-poller", "coingecko")
	coreMetrics.RecordMirrorFallback("market-poller", "api.coingecko.com")
	coreMetrics.RecordRequestDuration("market-poller", "coingecko", 100*time.Millisecond)
	coreMetrics.RecordEventPublished("market-poller", "crypto.market.update")
	coreMetrics.RecordRelayEvent("price_update")

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	expectedCoreMetrics := []string{
		"cryptodt_service_status",
		"cryptodt_health_status",
		"cryptodt_errors_total",
		"cryptodt_upstream_requests_total",
		"cryptodt_upstream_retries_total",
		"cryptodt_upstream_mirror_fallbacks_total",
		"cryptodt_upstream_request_duration_seconds",
		"cryptodt_events_published_total",
		"cryptodt_nats_connected",
		"cryptodt_nats_rtt_milliseconds",
		"cryptodt_nats_reconnects_total",
		"cryptodt_nats_circuit_breaker",
		"cryptodt_relay_connected",
		"cryptodt_relay_reconnects_total",
		"cryptodt_relay_events_total",
	}

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	for _, expectedMetric := range expectedCoreMetrics {
		assert.True(t, foundMetrics[expectedMetric],
			"core metric %s should be initialized", expectedMetric)
	}
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	registry := NewRegistry()
	coreMetrics := registry.CoreMetrics()

	coreMetrics.RecordServiceStatus("fetcher", 2)
	coreMetrics.RecordUpstreamRequest("fetcher", "binance", "stale")
	coreMetrics.RecordUpstreamRetry("fetcher", "binance")
	coreMetrics.RecordMirrorFallback("fetcher", "api.binance.com")
	coreMetrics.RecordRequestDuration("fetcher", "binance", 250*time.Millisecond)
	coreMetrics.RecordError("fetcher", "network")
	coreMetrics.RecordHealthStatus("fetcher", false)
	coreMetrics.RecordEventPublished("fetcher", "crypto.price.btc")

	coreMetrics.RecordNATSStatus(true)
	coreMetrics.RecordNATSRTT(50 * time.Millisecond)
	coreMetrics.RecordNATSReconnect()
	coreMetrics.RecordCircuitBreakerState(0)

	coreMetrics.RecordRelayStatus(true)
	coreMetrics.RecordRelayReconnect()
	coreMetrics.RecordRelayEvent("market_update")

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	assert.Greater(t, len(metricFamilies), 0, "Should have recorded metrics")
}

func TestRegistry_Handler(t *testing.T) {
	registry := NewRegistry()
	registry.CoreMetrics().RecordServiceStatus("handler-test", 2)

	srv := httptest.NewServer(registry.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
