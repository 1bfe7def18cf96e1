package health

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Monitor tracks the health of named parts of the refresh pipeline. The
// service health check feeds it one entry per tier loop plus one for the
// NATS link; the gateway reads the aggregate back out for /healthz.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records the latest status for a named component. The stored entry
// always carries the name it was filed under and a non-zero timestamp.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.statuses[name] = status
	m.mu.Unlock()
}

// UpdateHealthy records a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy records a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded records a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get retrieves the latest status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// GetAll returns a copy of every current status, keyed by component name
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.statuses)
}

// Remove drops a component from monitoring. Used when a tier is removed
// from the running set so its stale entry stops weighing on the aggregate.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	m.mu.Unlock()
}

// AggregateHealth rolls every tracked status into one, following the
// Aggregate rules: any unhealthy part makes the whole unhealthy, any
// degraded part degrades it, otherwise healthy.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Aggregate(systemName, slices.Collect(maps.Values(m.statuses)))
}

// ListComponents returns the names of every tracked component
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Keys(m.statuses))
}

// Count returns how many components are tracked
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// Clear drops every tracked component. The service calls this on shutdown
// so a stopped pipeline reports no stale per-tier health.
func (m *Monitor) Clear() {
	m.mu.Lock()
	clear(m.statuses)
	m.mu.Unlock()
}
