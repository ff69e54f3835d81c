// Package health provides health monitoring for upstream providers and
// internal components with thread-safe status tracking, aggregation, and
// per-endpoint failure records.
//
// The package feeds the ops API's health endpoints: pollers and the event
// relay report their state here, and the HTTP layer serves the aggregated
// view to dashboards and alerting.
//
// # Health States
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// The three-state model maps onto how upstream failures are classified.
// A provider answering with 429 or timing out is degraded (it will likely
// recover on its own), while one rejecting our API key is unhealthy and
// needs operator attention.
//
// # Core Components
//
// Status: individual component health state containing status level,
// descriptive message, timestamp, optional metrics, and hierarchical
// sub-statuses.
//
// Monitor: thread-safe tracking for multiple component statuses with
// staleness-aware aggregation.
//
// Tracker: per-endpoint failure records with bounded recent messages and
// time-based garbage collection.
//
// # Basic Usage
//
// Creating and tracking component health:
//
//	monitor := health.NewMonitor()
//
//	// Update component health
//	monitor.UpdateHealthy("coingecko", "probe succeeded")
//	monitor.UpdateDegraded("binance", "responses slower than usual")
//	monitor.UpdateUnhealthy("event-relay", "gave up after 5 reconnect attempts")
//
//	// Record a probe outcome directly; transient errors degrade,
//	// everything else goes unhealthy, and messages are sanitized.
//	monitor.UpdateFromError("kraken", probeErr)
//
//	// Check individual component health
//	if status, exists := monitor.Get("coingecko"); exists && status.IsHealthy() {
//	    log.Println("provider is healthy")
//	}
//
//	// Snapshot returns all statuses sorted by component name
//	for _, status := range monitor.Snapshot() {
//	    log.Printf("%s: %s - %s", status.Component, status.Status, status.Message)
//	}
//
// # System-Wide Aggregation
//
// AggregateHealth combines all monitored components into one status:
//
//	systemHealth := monitor.AggregateHealth("platform", 2*time.Minute)
//	if systemHealth.IsUnhealthy() {
//	    log.Printf("system unhealthy: %s", systemHealth.Message)
//	}
//
// Aggregation uses worst-case rules: any unhealthy component makes the
// system unhealthy; any degraded component (with no unhealthy) makes it
// degraded. The maxAge argument treats healthy statuses that have not
// been refreshed within the window as degraded, so a poller that silently
// stopped reporting cannot keep the system green. Pass 0 to disable the
// staleness check.
//
// # Failure Records
//
// The Tracker keeps a bounded failure history per endpoint for the ops
// API's diagnostics view:
//
//	tracker := health.NewTracker(ctx)
//	defer tracker.Close()
//
//	tracker.RecordFailure("coingecko/markets", err) // message is sanitized
//	tracker.RecordSuccess("coingecko/markets")      // clears the record
//
//	for _, rec := range tracker.All() {
//	    log.Printf("%s failed %d times since %d", rec.Endpoint, rec.Count, rec.FirstFailure)
//	}
//
// Each record holds the total count, first and last failure times (Unix
// milliseconds), and the last ten messages. A success probe clears the
// record entirely; records whose last failure is older than the retention
// window (one hour by default) are garbage collected in the background.
//
// # Security
//
// Error messages are sanitized before storage because provider URLs
// routinely carry API keys in query parameters:
//
//	// Original error with sensitive data
//	err := "failed to connect to https://api.example.com/v1?key=secret123"
//
//	// After sanitization
//	// "failed to connect to [URL]"
//
// Sanitization patterns:
//   - URLs: http://, https://, nats://, ws://, wss:// → [URL]
//   - File paths: /path/to/file, C:\path\to\file → [PATH]
//   - IP addresses: 192.168.1.100 → [IP]
//   - Ports: :8080 → [PORT]
//   - Credentials: password=X, token=X, key=X, secret=X → [REDACTED]
//
// Sanitization happens in UpdateFromError, FromError, and RecordFailure
// with no opt-out. Callers building their own messages from raw errors
// can use Sanitize directly.
//
// # Thread Safety
//
// All Monitor and Tracker operations are safe for concurrent use. Both
// use an RWMutex internally so reads proceed concurrently. Status values
// are immutable; WithMetrics and WithSubStatus return copies, and Get,
// Snapshot, and All return defensive copies of internal state.
//
// # Error Handling Philosophy
//
// The health package does not return errors from status operations
// because it represents the result of error handling, not a step in
// error propagation. FromError and UpdateFromError consume classified
// errors (see the errors package) and translate them into states:
// transient failures degrade, invalid and fatal failures go unhealthy.
package health
