// Package main implements the entry point for the cryptodtd agent.
// cryptodtd polls crypto market data providers through a resilient
// fetch client, relays dashboard events over WebSocket, and exposes an
// operations API for health, logs, and diagnostics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/bus"
	"github.com/nimazasinich/crypto-dt-source-sub009/client"
	"github.com/nimazasinich/crypto-dt-source-sub009/config"
	"github.com/nimazasinich/crypto-dt-source-sub009/event"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
	"github.com/nimazasinich/crypto-dt-source-sub009/mirror"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/cache"
	"github.com/nimazasinich/crypto-dt-source-sub009/poller"
	"github.com/nimazasinich/crypto-dt-source-sub009/provider"
	"github.com/nimazasinich/crypto-dt-source-sub009/relay"
	"github.com/nimazasinich/crypto-dt-source-sub009/requestlog"
	"github.com/nimazasinich/crypto-dt-source-sub009/sentiment"
	"github.com/nimazasinich/crypto-dt-source-sub009/server"
	"github.com/nimazasinich/crypto-dt-source-sub009/service"
	"github.com/nimazasinich/crypto-dt-source-sub009/store/boltstore"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cryptodtd"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// A single cancellable context owns every background loop the agent
	// spawns; cancelling it tears down cache sweeps, failure GC, and
	// service loops together.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ag, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return ag.runWithSignalHandling(ctx, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting cryptodtd (crypto data-source agent)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig loads configuration from the optional file path. An empty
// path runs on built-in defaults plus environment overrides.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// agent holds every constructed component so start and shutdown can walk
// them in order. There are no package-level singletons; everything hangs
// off this one explicitly wired object.
type agent struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics   *metric.Registry
	responses cache.Cache[any]
	archive   *boltstore.Store
	requests  *requestlog.Log
	tracker   *health.Tracker
	monitor   *health.Monitor
	fetch     *client.Client
	providers *provider.Registry
	publisher *bus.Publisher
	relay     *relay.Client

	// services in start order; stopped in reverse
	services []service.Service
}

// buildAgent constructs the component graph bottom-up: observability
// first, then the fetch pipeline, then the services that drive it.
func buildAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*agent, error) {
	ag := &agent{
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewRegistry(),
		monitor: health.NewMonitor(),
	}
	ag.tracker = health.NewTracker(ctx, health.WithLogger(logger))

	responses, err := cache.NewFromConfig[any](ctx, cfg.Cache,
		cache.WithMetrics[any](ag.metrics, "fetch"))
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	ag.responses = responses

	if err := ag.buildRequestLog(); err != nil {
		return nil, err
	}
	if err := ag.buildFetchClient(); err != nil {
		return nil, err
	}

	ag.providers = provider.Default()
	if err := ag.providers.Apply(cfg.Providers...); err != nil {
		return nil, fmt.Errorf("apply provider overlays: %w", err)
	}

	if err := ag.buildPublisher(); err != nil {
		return nil, err
	}
	if err := ag.buildRelay(); err != nil {
		return nil, err
	}
	if err := ag.buildServices(); err != nil {
		return nil, err
	}

	return ag, nil
}

// buildRequestLog wires the request log, optionally backed by a bbolt
// archive so the audit trail survives restarts.
func (ag *agent) buildRequestLog() error {
	opts := []requestlog.Option{
		requestlog.WithLogger(ag.logger),
		requestlog.WithMetrics(ag.metrics, "fetch"),
	}

	if ag.cfg.Store.Enabled {
		archive, err := boltstore.Open(ag.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open request archive: %w", err)
		}
		ag.archive = archive
		opts = append(opts, requestlog.WithArchive(archive))
	}

	requests, err := requestlog.New(opts...)
	if err != nil {
		return fmt.Errorf("create request log: %w", err)
	}
	ag.requests = requests
	return nil
}

func (ag *agent) buildFetchClient() error {
	cfg := ag.cfg.Client

	defaults := client.DefaultSettings()
	if cfg.Timeout > 0 {
		defaults.Timeout = cfg.Timeout
	}
	if cfg.TTL > 0 {
		defaults.TTL = cfg.TTL
	}
	if cfg.Retries > 0 {
		defaults.Retries = cfg.Retries
	}
	if cfg.RetryDelay > 0 {
		defaults.RetryDelay = cfg.RetryDelay
	}

	opts := []client.Option{
		client.WithCache(ag.responses),
		client.WithDefaults(defaults),
		client.WithLogger(ag.logger),
		client.WithMetrics(ag.metrics),
		client.WithRequestLog(ag.requests),
		client.WithFailureTracker(ag.tracker),
	}

	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, client.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, client.WithProxy(cfg.ProxyURL))
	}

	if ag.cfg.Mirrors.Enabled {
		table, err := loadMirrors(ag.cfg.Mirrors.File)
		if err != nil {
			return err
		}
		opts = append(opts, client.WithMirrors(table))
	}

	ag.fetch = client.New(opts...)
	return nil
}

func loadMirrors(path string) (*mirror.Table, error) {
	if path == "" {
		return mirror.Default(), nil
	}
	table, err := mirror.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load mirror table: %w", err)
	}
	return table, nil
}

func (ag *agent) buildPublisher() error {
	cfg := ag.cfg.Bus
	if !cfg.Enabled {
		return nil
	}

	name := cfg.Name
	if name == "" {
		name = appName
		if ag.cfg.Agent.ID != "" {
			name = appName + "-" + ag.cfg.Agent.ID
		}
	}

	opts := []bus.Option{
		bus.WithName(name),
		bus.WithLogger(ag.logger),
		bus.WithMetrics(ag.metrics),
	}
	if cfg.SubjectPrefix != "" {
		opts = append(opts, bus.WithSubjectPrefix(cfg.SubjectPrefix))
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, bus.WithMaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, bus.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.BreakerThreshold > 0 {
		opts = append(opts, bus.WithBreaker(cfg.BreakerThreshold, cfg.BreakerBaseDelay))
	}
	if cfg.Username != "" {
		opts = append(opts, bus.WithUserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, bus.WithToken(cfg.Token))
	}

	publisher, err := bus.New(cfg.URLs, opts...)
	if err != nil {
		return fmt.Errorf("create bus publisher: %w", err)
	}
	ag.publisher = publisher
	return nil
}

// buildRelay wires the outbound WebSocket relay. Inbound data events
// from the relay backend are republished on the bus so downstream
// consumers see one stream regardless of origin.
func (ag *agent) buildRelay() error {
	cfg := ag.cfg.Relay
	if !cfg.Enabled {
		return nil
	}

	opts := []relay.Option{
		relay.WithLogger(ag.logger),
		relay.WithMetrics(ag.metrics),
	}
	if cfg.HeartbeatInterval > 0 {
		opts = append(opts, relay.WithHeartbeatInterval(cfg.HeartbeatInterval))
	}
	if cfg.ReconnectDelay > 0 {
		opts = append(opts, relay.WithReconnectWait(cfg.ReconnectDelay))
	}
	if cfg.MaxReconnectAttempts != 0 {
		opts = append(opts, relay.WithMaxReconnects(cfg.MaxReconnectAttempts))
	}
	if cfg.HandshakeTimeout > 0 {
		opts = append(opts, relay.WithHandshakeTimeout(cfg.HandshakeTimeout))
	}

	if ag.publisher != nil {
		forward := func(ev event.Event) {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ag.publisher.Publish(pubCtx, ev); err != nil {
				ag.logger.Warn("republish relay event failed",
					"event_type", ev.Type, "error", err)
			}
		}
		for _, eventType := range []string{
			event.TypeStatsUpdate,
			event.TypeMarketUpdate,
			event.TypePriceUpdate,
			event.TypeAlert,
		} {
			opts = append(opts, relay.WithHandler(eventType, forward))
		}
	}

	rc, err := relay.New(cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("create relay client: %w", err)
	}
	ag.relay = rc
	return nil
}

func (ag *agent) buildServices() error {
	var (
		poll  *poller.Poller
		senti *sentiment.Service
	)

	if ag.cfg.Poller.Enabled {
		opts := []poller.Option{
			poller.WithConfig(poller.Config{
				HealthInterval:    ag.cfg.Poller.HealthInterval,
				MarketIntervalMin: ag.cfg.Poller.MarketIntervalMin,
				MarketIntervalMax: ag.cfg.Poller.MarketIntervalMax,
				MaxConcurrent:     ag.cfg.Poller.MaxConcurrent,
			}),
			poller.WithMonitor(ag.monitor),
			poller.WithLogger(ag.logger),
			poller.WithMetrics(ag.metrics),
		}
		if ag.publisher != nil {
			opts = append(opts, poller.WithPublisher(ag.publisher))
		}

		p, err := poller.New(ag.fetch, ag.providers, opts...)
		if err != nil {
			return fmt.Errorf("create poller: %w", err)
		}
		poll = p
		ag.services = append(ag.services, poll)
	}

	if ag.cfg.Sentiment.Enabled {
		opts := []sentiment.Option{
			sentiment.WithInterval(ag.cfg.Sentiment.Interval),
			sentiment.WithHistorySize(ag.cfg.Sentiment.HistorySize),
			sentiment.WithLogger(ag.logger),
		}
		if ag.cfg.Sentiment.Endpoint != "" {
			opts = append(opts, sentiment.WithEndpoint(ag.cfg.Sentiment.Endpoint))
		}
		if ag.cfg.Sentiment.Classifier.Enabled {
			classifier, err := sentiment.NewClassifier(sentiment.ClassifierConfig{
				APIKey:  ag.cfg.Sentiment.Classifier.APIKey,
				BaseURL: ag.cfg.Sentiment.Classifier.BaseURL,
				Model:   ag.cfg.Sentiment.Classifier.Model,
			})
			if err != nil {
				return fmt.Errorf("create headline classifier: %w", err)
			}
			opts = append(opts, sentiment.WithClassifier(classifier))
		}

		s, err := sentiment.New(ag.fetch, opts...)
		if err != nil {
			return fmt.Errorf("create sentiment service: %w", err)
		}
		senti = s
		ag.services = append(ag.services, senti)
	}

	if ag.cfg.Server.Enabled {
		opts := []server.Option{
			server.WithConfig(server.Config{
				Addr:            ag.cfg.Server.Addr,
				ReadTimeout:     ag.cfg.Server.ReadTimeout,
				WriteTimeout:    ag.cfg.Server.WriteTimeout,
				ShutdownTimeout: ag.cfg.Server.ShutdownTimeout,
			}),
			server.WithMonitor(ag.monitor),
			server.WithFailureTracker(ag.tracker),
			server.WithProviders(ag.providers),
			server.WithRequestLog(ag.requests),
			server.WithMetrics(ag.metrics),
			server.WithFetchClient(ag.fetch),
			server.WithLogger(ag.logger),
		}
		if poll != nil {
			opts = append(opts, server.WithMarket(poll))
		}
		if senti != nil {
			opts = append(opts, server.WithSentiment(senti))
		}
		// The operations API reports on its sibling services, not itself.
		opts = append(opts, server.WithServices(ag.services...))

		ag.services = append(ag.services, server.New(opts...))
	}

	return nil
}

// runWithSignalHandling starts all components and blocks until a
// shutdown signal arrives.
func (ag *agent) runWithSignalHandling(ctx context.Context, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := ag.start(signalCtx); err != nil {
		// Best-effort teardown of anything that did come up.
		_ = ag.shutdown(shutdownTimeout)
		return fmt.Errorf("start agent: %w", err)
	}
	slog.Info("cryptodtd started", "services", len(ag.services))

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := ag.shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("cryptodtd shutdown complete")
	return nil
}

func (ag *agent) start(ctx context.Context) error {
	if ag.publisher != nil {
		slog.Info("Connecting to NATS", "urls", ag.cfg.Bus.URLs)
		if err := ag.publisher.Connect(ctx); err != nil {
			return fmt.Errorf("connect bus publisher: %w", err)
		}
	}

	if ag.relay != nil {
		slog.Info("Connecting event relay", "url", ag.cfg.Relay.URL)
		if err := ag.relay.Connect(ctx); err != nil {
			return fmt.Errorf("connect relay: %w", err)
		}
	}

	for _, svc := range ag.services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		slog.Info("Service started", "name", svc.Name())
	}

	go ag.monitorLoop(ctx)
	return nil
}

// monitorLoop feeds component health into the shared monitor so the
// operations API aggregates transports and services alongside the
// per-provider statuses the poller reports.
func (ag *agent) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ag.publisher != nil {
				ag.monitor.Update("bus", ag.publisher.Health())
			}
			if ag.relay != nil {
				if ag.relay.IsConnected() {
					ag.monitor.UpdateHealthy("relay", "connected")
				} else {
					ag.monitor.UpdateDegraded("relay", ag.relay.State().String())
				}
			}
			for _, svc := range ag.services {
				ag.monitor.Update(svc.Name(), svc.Health())
			}
		}
	}
}

// shutdown stops everything in reverse dependency order: services first
// so nothing publishes into a closed transport, then the transports,
// then the fetch pipeline.
func (ag *agent) shutdown(timeout time.Duration) error {
	var errs []error

	for i := len(ag.services) - 1; i >= 0; i-- {
		svc := ag.services[i]
		if err := svc.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}

	if ag.relay != nil {
		ag.relay.Disconnect()
	}
	if ag.publisher != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := ag.publisher.Close(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("close bus publisher: %w", err))
		}
		cancel()
	}

	if ag.requests != nil {
		if err := ag.requests.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close request log: %w", err))
		}
	}
	if ag.tracker != nil {
		if err := ag.tracker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close failure tracker: %w", err))
		}
	}
	if ag.responses != nil {
		if err := ag.responses.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close response cache: %w", err))
		}
	}
	if ag.archive != nil {
		if err := ag.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close request archive: %w", err))
		}
	}

	return errors.Join(errs...)
}
