// Package server exposes the operations API: aggregate health, Prometheus
// metrics, provider and market snapshots, request/error logs, failure
// analytics, sentiment readings, and the proxy relay the fetch client uses
// as its escape tier. The surface is internal-facing; it binds to the
// configured address without TLS or authentication.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nimazasinich/crypto-dt-source-sub009/client"
	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
	"github.com/nimazasinich/crypto-dt-source-sub009/poller"
	"github.com/nimazasinich/crypto-dt-source-sub009/provider"
	"github.com/nimazasinich/crypto-dt-source-sub009/requestlog"
	"github.com/nimazasinich/crypto-dt-source-sub009/sentiment"
	"github.com/nimazasinich/crypto-dt-source-sub009/service"
)

// staleHealthAfter is how long a component may go silent before the
// aggregate degrades.
const staleHealthAfter = 5 * time.Minute

// MarketSource serves the latest market snapshots.
type MarketSource interface {
	Snapshots() []poller.Snapshot
}

// Config holds the listener settings.
type Config struct {
	Addr            string        // default :8090
	ReadTimeout     time.Duration // default 10s
	WriteTimeout    time.Duration // default 30s
	ShutdownTimeout time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the listener settings.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg.withDefaults() }
}

// WithMonitor attaches the health monitor behind /healthz.
func WithMonitor(m *health.Monitor) Option {
	return func(s *Server) { s.monitor = m }
}

// WithFailureTracker attaches the tracker behind /api/failures.
func WithFailureTracker(tr *health.Tracker) Option {
	return func(s *Server) { s.tracker = tr }
}

// WithProviders attaches the registry behind /api/providers.
func WithProviders(reg *provider.Registry) Option {
	return func(s *Server) { s.providers = reg }
}

// WithRequestLog attaches the logs behind /api/logs/*.
func WithRequestLog(log *requestlog.Log) Option {
	return func(s *Server) { s.reqlog = log }
}

// WithMetrics mounts the registry's handler at /metrics.
func WithMetrics(registry *metric.Registry) Option {
	return func(s *Server) { s.metrics = registry }
}

// WithMarket attaches the snapshot source behind /api/market.
func WithMarket(src MarketSource) Option {
	return func(s *Server) { s.market = src }
}

// WithSentiment attaches the sentiment service behind /api/sentiment.
func WithSentiment(svc *sentiment.Service) Option {
	return func(s *Server) { s.sentiment = svc }
}

// WithFetchClient attaches the fetch client that performs proxied
// requests. Without it POST /api/proxy answers 503.
func WithFetchClient(fetch *client.Client) Option {
	return func(s *Server) { s.fetch = fetch }
}

// WithServices registers components reported by /api/services.
func WithServices(svcs ...service.Service) Option {
	return func(s *Server) { s.services = append(s.services, svcs...) }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("service", "server")
		}
	}
}

// Server is the operations API listener. Every collaborator is optional;
// endpoints without one answer 404 or an empty collection.
type Server struct {
	*service.Base

	cfg       Config
	monitor   *health.Monitor
	tracker   *health.Tracker
	providers *provider.Registry
	reqlog    *requestlog.Log
	metrics   *metric.Registry
	market    MarketSource
	sentiment *sentiment.Service
	fetch     *client.Client
	services  []service.Service
	logger    *slog.Logger

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
}

// New creates the server. Start binds the listener.
func New(opts ...Option) *Server {
	s := &Server{
		cfg:    Config{}.withDefaults(),
		logger: slog.Default().With("service", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Base = service.NewBase("server",
		service.WithLogger(s.logger),
		service.WithHealthCheck(s.checkListener),
	)
	return s
}

// Addr returns the bound address, useful when the config port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", "bind listener")
	}

	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	if err := s.Base.Start(ctx); err != nil {
		_ = listener.Close()
		s.listener = nil
		s.httpSrv = nil
		return err
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server exited", "error", err)
		}
	}()

	s.logger.Info("ops server listening", "addr", listener.Addr().String())
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv != nil {
		if timeout <= 0 {
			timeout = s.cfg.ShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, closing hard", "error", err)
			_ = srv.Close()
		}
	}

	return s.Base.Stop(timeout)
}

// checkListener is the service health probe.
func (s *Server) checkListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv == nil {
		return errors.ErrNotStarted
	}
	return nil
}

// routes builds the router. Mounted endpoints depend on which
// collaborators were attached.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.logMiddleware)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", s.handleProviders)
		r.Get("/market", s.handleMarket)
		r.Get("/logs/requests", s.handleRequestLogs)
		r.Get("/logs/errors", s.handleErrorLogs)
		r.Get("/failures", s.handleFailures)
		r.Get("/services", s.handleServices)
		r.Get("/sentiment", s.handleSentiment)
		r.Post("/sentiment/classify", s.handleClassify)
		r.Post("/proxy", s.handleProxy)
	})

	return r
}
