package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimazasinich/crypto-dt-source-sub009/client"
	"github.com/nimazasinich/crypto-dt-source-sub009/event"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/provider"
)

// capturePublisher collects published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) byType(eventType string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func fastClient(t *testing.T) *client.Client {
	t.Helper()
	return client.New(client.WithDefaults(client.Defaults{
		Timeout:    2 * time.Second,
		TTL:        time.Minute,
		Retries:    0,
		RetryDelay: time.Millisecond,
	}))
}

func addProvider(t *testing.T, reg *provider.Registry, p provider.Provider) {
	t.Helper()
	require.NoError(t, reg.Add(p))
}

func TestHealthCycle(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer healthy.Close()

	// 404 fails fast without retries or fallback tiers.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer broken.Close()

	reg := provider.New()
	addProvider(t, reg, provider.Provider{
		Name: "goodapi", BaseURL: healthy.URL, Category: provider.CategoryMarket,
		Endpoints: provider.Endpoints{Health: "/ping"}, Enabled: true,
	})
	addProvider(t, reg, provider.Provider{
		Name: "deadapi", BaseURL: broken.URL, Category: provider.CategoryExplorer,
		Endpoints: provider.Endpoints{Health: "/ping"}, Enabled: true,
	})

	pub := &capturePublisher{}
	monitor := health.NewMonitor()
	p, err := New(fastClient(t), reg,
		WithPublisher(pub),
		WithMonitor(monitor),
		WithConfig(Config{MaxConcurrent: 2}),
	)
	require.NoError(t, err)

	p.runHealthCycle(context.Background())

	// Monitor reflects the probe outcomes.
	good, ok := monitor.Get("provider:goodapi")
	require.True(t, ok)
	assert.True(t, good.IsHealthy())

	bad, ok := monitor.Get("provider:deadapi")
	require.True(t, ok)
	assert.True(t, bad.IsUnhealthy())

	// One fleet summary plus one alert for the failed probe.
	stats := pub.byType(event.TypeStatsUpdate)
	require.Len(t, stats, 1)
	var su event.StatsUpdate
	require.NoError(t, stats[0].Decode(&su))
	assert.Equal(t, 2, su.TotalProviders)
	assert.Equal(t, 1, su.OnlineProviders)

	alerts := pub.byType(event.TypeAlert)
	require.Len(t, alerts, 1)
	var al event.Alert
	require.NoError(t, alerts[0].Decode(&al))
	assert.Equal(t, "deadapi", al.Provider)
	assert.Equal(t, event.AlertWarning, al.Level)
}

func TestMarketCycle(t *testing.T) {
	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol":"btc","name":"Bitcoin","current_price":67000.5,"price_change_percentage_24h":1.2},
			{"symbol":"eth","name":"Ethereum","current_price":3500.25,"price_change_percentage_24h":-0.8}
		]`))
	}))
	defer market.Close()

	reg := provider.New()
	addProvider(t, reg, provider.Provider{
		Name: "marketapi", BaseURL: market.URL, Category: provider.CategoryMarket,
		Endpoints: provider.Endpoints{Health: "/ping", Market: "/coins"}, Enabled: true,
	})
	// Explorer providers have no market endpoint and must be skipped.
	addProvider(t, reg, provider.Provider{
		Name: "chainscan", BaseURL: market.URL, Category: provider.CategoryExplorer,
		Endpoints: provider.Endpoints{Health: "/ping"}, Enabled: true,
	})

	pub := &capturePublisher{}
	p, err := New(fastClient(t), reg, WithPublisher(pub))
	require.NoError(t, err)

	p.runMarketCycle(context.Background())

	snaps := p.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "marketapi", snaps[0].Provider)
	require.Len(t, snaps[0].Coins, 2)
	assert.Equal(t, "BTC", snaps[0].Coins[0].Symbol)
	assert.Equal(t, 67000.5, snaps[0].Coins[0].PriceUSD)

	updates := pub.byType(event.TypeMarketUpdate)
	require.Len(t, updates, 1)
	var mu event.MarketUpdate
	require.NoError(t, updates[0].Decode(&mu))
	assert.Equal(t, "marketapi", mu.Provider)
	assert.Len(t, mu.Coins, 2)
}

func TestStartStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reg := provider.New()
	addProvider(t, reg, provider.Provider{
		Name: "api", BaseURL: srv.URL, Category: provider.CategoryMarket,
		Endpoints: provider.Endpoints{Health: "/ping"}, Enabled: true,
	})

	p, err := New(fastClient(t), reg, WithConfig(Config{
		HealthInterval:    time.Hour,
		MarketIntervalMin: time.Hour,
		MarketIntervalMax: time.Hour,
	}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	// Double start is rejected.
	require.Error(t, p.Start(ctx))

	// The immediate first cycle populates the staleness stamp.
	assert.Eventually(t, func() bool {
		return !p.lastCycle.Load().(time.Time).IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop(2*time.Second))
	require.NoError(t, p.Stop(2*time.Second)) // idempotent
}

func TestNextMarketDelay_Bounds(t *testing.T) {
	p, err := New(fastClient(t), provider.New(), WithConfig(Config{
		MarketIntervalMin: 30 * time.Second,
		MarketIntervalMax: 60 * time.Second,
	}))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		d := p.nextMarketDelay()
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.Less(t, d, 60*time.Second)
	}
}

func TestCheckStaleness(t *testing.T) {
	p, err := New(fastClient(t), provider.New(), WithConfig(Config{
		HealthInterval: 10 * time.Millisecond,
	}))
	require.NoError(t, err)

	// Before the first cycle the probe passes.
	require.NoError(t, p.checkStaleness())

	p.lastCycle.Store(time.Now())
	require.NoError(t, p.checkStaleness())

	p.lastCycle.Store(time.Now().Add(-time.Minute))
	require.Error(t, p.checkStaleness())
}
