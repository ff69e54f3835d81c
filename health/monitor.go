package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor tracks health of multiple components in a thread-safe manner
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update updates the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ensure the status has the correct component name and timestamp
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to update a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded is a convenience method to update a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// UpdateFromError records a probe outcome: healthy on nil, degraded for
// transient errors, unhealthy otherwise. Messages are sanitized.
func (m *Monitor) UpdateFromError(name string, err error) {
	m.Update(name, FromError(name, err))
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Snapshot returns all current statuses ordered by component name.
// The ops API serves this, so the order must be deterministic.
func (m *Monitor) Snapshot() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		result = append(result, status)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Component < result[j].Component
	})
	return result
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// AggregateHealth returns an aggregated health status for the entire system.
// Statuses not refreshed within maxAge are treated as degraded: a poller
// that stopped reporting should not keep the system green. A maxAge of 0
// disables the staleness check.
func (m *Monitor) AggregateHealth(systemName string, maxAge time.Duration) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		if maxAge > 0 && status.IsHealthy() && now.Sub(status.Timestamp) > maxAge {
			stale := NewDegraded(status.Component, "status stale: no update since last check window")
			stale.Timestamp = status.Timestamp
			status = stale
		}
		subStatuses = append(subStatuses, status)
	}
	sort.Slice(subStatuses, func(i, j int) bool {
		return subStatuses[i].Component < subStatuses[j].Component
	})

	return Aggregate(systemName, subStatuses)
}

// ListComponents returns a list of all component names being monitored
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}

// Clear removes all components from monitoring
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses = make(map[string]Status)
}
