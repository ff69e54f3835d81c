// Package cryptodt is a crypto data-source agent: it polls public
// market-data providers through a resilient fetch client, caches and
// audits every upstream exchange, and fans the resulting events out to
// dashboards over WebSocket and to backend consumers over NATS.
//
// # Architecture
//
// The agent is a pipeline of small, explicitly wired components:
//
//	┌─────────────────────────────────────┐
//	│        Pollers / Sentiment          │  provider probes,
//	│   (health, market, fear & greed)    │  market snapshots
//	└─────────────────────────────────────┘
//	           ↓ fetch via
//	┌─────────────────────────────────────┐
//	│         Resilient Client            │  cache → retry →
//	│  (escalating recovery pipeline)     │  mirror → proxy → stale
//	└─────────────────────────────────────┘
//	           ↓ emit to
//	┌─────────────────────────────────────┐
//	│         Relay + Bus                 │  WebSocket dashboard
//	│   (gorilla/websocket, NATS)         │  feed, crypto.events.*
//	└─────────────────────────────────────┘
//
// Every outbound request flows through the client's escalation ladder:
// serve fresh cache, try the network with jittered exponential backoff,
// rewrite the host onto a mirror, relay through a CORS proxy, degrade to
// stale cache, and only then report a structured failure. The request
// never surfaces a Go error to callers; the Result envelope carries the
// outcome, data source, and recovery suggestions instead.
//
// # Packages
//
// Fetch pipeline:
//   - client: resilient HTTP client with the recovery ladder
//   - pkg/cache: bounded TTL+LRU cache (memory or Redis backend)
//   - mirror: host-level mirror rewrite table
//   - requestlog: ring-buffered audit log with optional bbolt archive
//   - health: failure tracker and component health monitor
//
// Event fan-out:
//   - event: wire format shared by relay and bus
//   - relay: WebSocket client with heartbeat and auto-reconnect
//   - bus: NATS publisher with a failure-counting circuit breaker
//
// Services:
//   - poller: provider health probes and market snapshot polling
//   - sentiment: fear & greed index history plus headline classification
//   - server: operations API (health, logs, diagnostics, proxy relay)
//   - service: shared lifecycle base embedded by the services above
//
// Infrastructure:
//   - config: layered JSON configuration with CRYPTODT_* overrides
//   - errors: classified error handling (transient, invalid, fatal)
//   - metric: Prometheus metrics registry
//   - provider: built-in market data provider registry
//
// # Binary
//
// Build and run the agent:
//
//	go build -o bin/cryptodtd ./cmd/cryptodtd
//	./bin/cryptodtd --config configs/example.json
//
// With no config file the daemon runs on built-in defaults plus
// CRYPTODT_* environment overrides.
package cryptodt
