// Package poller drives the periodic work against upstream providers: a
// health loop probing every enabled provider on a fixed cadence, and a
// market loop refreshing market snapshots on a jittered cadence so the
// agent does not hammer free-tier APIs in lockstep. Results feed the
// health monitor, the event bus, and the ops API.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimazasinich/crypto-dt-source-sub009/client"
	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/event"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
	"github.com/nimazasinich/crypto-dt-source-sub009/provider"
	"github.com/nimazasinich/crypto-dt-source-sub009/service"
)

// Publisher is the event sink the poller republishes results to. A nil
// publisher drops events; polling still feeds the monitor and snapshots.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Config holds the polling cadence.
type Config struct {
	HealthInterval    time.Duration // provider health probes, default 60s
	MarketIntervalMin time.Duration // market refresh lower bound, default 30s
	MarketIntervalMax time.Duration // market refresh upper bound, default 60s
	MaxConcurrent     int           // concurrent provider probes, default 4
}

// withDefaults fills unset fields and orders the market interval bounds.
func (c Config) withDefaults() Config {
	if c.HealthInterval <= 0 {
		c.HealthInterval = 60 * time.Second
	}
	if c.MarketIntervalMin <= 0 {
		c.MarketIntervalMin = 30 * time.Second
	}
	if c.MarketIntervalMax < c.MarketIntervalMin {
		c.MarketIntervalMax = c.MarketIntervalMin
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	return c
}

// Option configures a Poller.
type Option func(*Poller)

// WithConfig sets the polling cadence.
func WithConfig(cfg Config) Option {
	return func(p *Poller) { p.cfg = cfg.withDefaults() }
}

// WithPublisher attaches the event sink.
func WithPublisher(pub Publisher) Option {
	return func(p *Poller) { p.publisher = pub }
}

// WithMonitor attaches the health monitor fed by the probe loop.
func WithMonitor(m *health.Monitor) Option {
	return func(p *Poller) { p.monitor = m }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger.With("service", "poller")
		}
	}
}

// WithMetrics wires poller lifecycle metrics into the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(p *Poller) { p.registry = registry }
}

// Poller runs the health and market loops over the provider registry.
type Poller struct {
	*service.Base

	fetch     *client.Client
	providers *provider.Registry
	monitor   *health.Monitor
	publisher Publisher
	registry  *metric.Registry
	logger    *slog.Logger
	cfg       Config

	snapMu    sync.RWMutex
	snapshots map[string]Snapshot

	lastCycle atomic.Value // time.Time of the last completed health cycle

	done chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// New creates a poller over the given fetch client and provider registry.
func New(fetch *client.Client, providers *provider.Registry, opts ...Option) (*Poller, error) {
	if fetch == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Poller", "New", "nil client")
	}
	if providers == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Poller", "New", "nil registry")
	}

	p := &Poller{
		fetch:     fetch,
		providers: providers,
		cfg:       Config{}.withDefaults(),
		logger:    slog.Default().With("service", "poller"),
		snapshots: make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.lastCycle.Store(time.Time{})

	baseOpts := []service.Option{
		service.WithLogger(p.logger),
		service.WithHealthCheck(p.checkStaleness),
	}
	if p.registry != nil {
		baseOpts = append(baseOpts, service.WithMetrics(p.registry))
	}
	p.Base = service.NewBase("poller", baseOpts...)

	return p, nil
}

// Start launches the health and market loops. The first health cycle runs
// immediately so the monitor is populated before the first tick.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Poller", "Start", "already running")
	}
	if err := p.Base.Start(ctx); err != nil {
		return err
	}

	p.done = make(chan struct{})

	p.wg.Add(2)
	go p.healthLoop(ctx)
	go p.marketLoop(ctx)

	p.logger.Info("poller started",
		"health_interval", p.cfg.HealthInterval,
		"market_interval_min", p.cfg.MarketIntervalMin,
		"market_interval_max", p.cfg.MarketIntervalMax,
		"max_concurrent", p.cfg.MaxConcurrent)
	return nil
}

// Stop halts both loops and waits for in-flight probes to finish.
func (p *Poller) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-finished:
	case <-time.After(timeout):
		p.logger.Warn("poller stop timed out", "timeout", timeout)
	}

	return p.Base.Stop(timeout)
}

// Snapshots returns the latest market snapshot per provider, sorted by
// provider name.
func (p *Poller) Snapshots() []Snapshot {
	p.snapMu.RLock()
	out := make([]Snapshot, 0, len(p.snapshots))
	for _, s := range p.snapshots {
		out = append(out, s)
	}
	p.snapMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// checkStaleness is the service health probe: the poller is unhealthy when
// the health loop has not completed a cycle for two intervals.
func (p *Poller) checkStaleness() error {
	last := p.lastCycle.Load().(time.Time)
	if last.IsZero() {
		// Not yet through the first cycle.
		return nil
	}
	if stale := time.Since(last); stale > 2*p.cfg.HealthInterval {
		return fmt.Errorf("no health cycle for %v", stale.Round(time.Second))
	}
	return nil
}

func (p *Poller) healthLoop(ctx context.Context) {
	defer p.wg.Done()

	done := p.doneChan()
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	p.runHealthCycle(ctx)
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runHealthCycle(ctx)
		}
	}
}

// runHealthCycle probes every enabled provider concurrently, bounded by
// MaxConcurrent, then publishes one stats_update summarizing the fleet.
func (p *Poller) runHealthCycle(ctx context.Context) {
	providers := p.providers.Enabled()
	if len(providers) == 0 {
		return
	}

	var online atomic.Int64
	var totalMs atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, prov := range providers {
		g.Go(func() error {
			p.probeProvider(gctx, prov, &online, &totalMs)
			return nil
		})
	}
	_ = g.Wait()

	p.lastCycle.Store(time.Now())
	p.RecordActivity()

	stats := event.StatsUpdate{
		TotalProviders:  len(providers),
		OnlineProviders: int(online.Load()),
	}
	if n := online.Load(); n > 0 {
		stats.AvgResponseMs = float64(totalMs.Load()) / float64(n)
	}
	p.emit(ctx, event.TypeStatsUpdate, stats)

	p.logger.Debug("health cycle complete",
		"total", stats.TotalProviders, "online", stats.OnlineProviders)
}

// probeProvider hits one provider's health endpoint. The fetch client
// already records retries, failures, and request-log entries; the poller
// only folds the outcome into the monitor and the cycle totals.
func (p *Poller) probeProvider(ctx context.Context, prov provider.Provider, online, totalMs *atomic.Int64) {
	start := time.Now()
	res := p.fetch.Get(ctx, prov.HealthURL(), client.CacheResponse(false))
	elapsed := time.Since(start)

	name := "provider:" + prov.Name
	if res.OK {
		online.Add(1)
		totalMs.Add(elapsed.Milliseconds())
		if p.monitor != nil {
			p.monitor.Update(name, health.NewHealthy(name,
				fmt.Sprintf("responded in %dms", elapsed.Milliseconds())))
		}
		return
	}

	if p.monitor != nil {
		p.monitor.UpdateUnhealthy(name, res.Error)
	}
	p.emit(ctx, event.TypeAlert, event.Alert{
		Level:    event.AlertWarning,
		Provider: prov.Name,
		Message:  fmt.Sprintf("health probe failed: %s", res.Error),
	})
}

func (p *Poller) marketLoop(ctx context.Context) {
	defer p.wg.Done()

	done := p.doneChan()
	timer := time.NewTimer(p.nextMarketDelay())
	defer timer.Stop()

	p.runMarketCycle(ctx)
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			p.runMarketCycle(ctx)
			timer.Reset(p.nextMarketDelay())
		}
	}
}

// nextMarketDelay jitters the market cadence uniformly between the
// configured bounds.
func (p *Poller) nextMarketDelay() time.Duration {
	span := p.cfg.MarketIntervalMax - p.cfg.MarketIntervalMin
	if span <= 0 {
		return p.cfg.MarketIntervalMin
	}
	return p.cfg.MarketIntervalMin + time.Duration(rand.Int63n(int64(span)))
}

// runMarketCycle refreshes market data from every enabled market provider
// and publishes one market_update per provider that produced rows.
func (p *Poller) runMarketCycle(ctx context.Context) {
	providers := p.providers.ByCategory(provider.CategoryMarket)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, prov := range providers {
		if !prov.Enabled || prov.Endpoints.Market == "" {
			continue
		}
		g.Go(func() error {
			p.fetchMarket(gctx, prov)
			return nil
		})
	}
	_ = g.Wait()
	p.RecordActivity()
}

func (p *Poller) fetchMarket(ctx context.Context, prov provider.Provider) {
	res := p.fetch.Get(ctx, prov.MarketURL())
	if !res.OK {
		p.logger.Debug("market fetch failed", "provider", prov.Name, "error", res.Error)
		return
	}

	coins := normalizeCoins(res.Data)
	if len(coins) == 0 {
		p.logger.Debug("market payload had no usable rows", "provider", prov.Name)
		return
	}

	snap := Snapshot{
		Provider:  prov.Name,
		Coins:     coins,
		FetchedAt: timestamp.Now(),
		Source:    res.Source,
		Warning:   res.Warning,
	}
	p.snapMu.Lock()
	p.snapshots[prov.Name] = snap
	p.snapMu.Unlock()

	p.emit(ctx, event.TypeMarketUpdate, event.MarketUpdate{
		Provider:  prov.Name,
		Coins:     coins,
		FetchedAt: snap.FetchedAt,
	})
}

// emit publishes one event, best effort. Publish failures are logged and
// dropped; the bus has its own breaker and the next cycle re-sends fresher
// data anyway.
func (p *Poller) emit(ctx context.Context, eventType string, payload any) {
	if p.publisher == nil {
		return
	}
	ev, err := event.New(eventType, payload)
	if err != nil {
		p.logger.Error("build event failed", "type", eventType, "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Debug("event publish failed", "type", eventType, "error", err)
	}
}

func (p *Poller) doneChan() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
