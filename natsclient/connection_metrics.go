package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/refreshkit/metric"
)

// connMetrics bridges connection state into the core NATS gauges and adds
// an operation error counter. All methods are nil-safe so call sites need
// no metrics-enabled checks.
type connMetrics struct {
	core   *metric.Metrics
	errors *prometheus.CounterVec
}

// newConnMetrics creates and registers connection metrics with the provided registry.
func newConnMetrics(registry *metric.MetricsRegistry) (*connMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &connMetrics{
		core: registry.CoreMetrics(),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "nats",
			Name:      "operation_errors_total",
			Help:      "Total number of NATS operation errors",
		}, []string{"operation"}),
	}

	if err := registry.RegisterCounterVec("nats", "operation_errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

// recordError records a failed NATS operation.
func (m *connMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

// recordStatus updates the connection gauge.
func (m *connMetrics) recordStatus(connected bool) {
	if m != nil {
		m.core.RecordNATSStatus(connected)
	}
}

// recordReconnect increments the reconnect counter.
func (m *connMetrics) recordReconnect() {
	if m != nil {
		m.core.RecordNATSReconnect()
	}
}

// recordCircuit updates the connection circuit breaker gauge
// (0=closed, 1=open, 2=half-open).
func (m *connMetrics) recordCircuit(state int) {
	if m != nil {
		m.core.RecordCircuitBreakerState(state)
	}
}

// updateStats samples connection health into the core gauges.
// Called periodically by the background poller. Fails gracefully if the
// connection is gone.
func (m *connMetrics) updateStats(conn *nats.Conn) {
	if m == nil {
		return
	}

	if conn == nil || !conn.IsConnected() {
		m.core.RecordNATSStatus(false)
		return
	}

	m.core.RecordNATSStatus(true)
	if rtt, err := conn.RTT(); err == nil {
		m.core.RecordNATSRTT(rtt)
	}
}

// startPoller starts a background goroutine that samples connection stats
// periodically. Returns a cancel function to stop the poller.
func (m *connMetrics) startPoller(ctx context.Context, interval time.Duration, conn func() *nats.Conn) context.CancelFunc {
	if m == nil {
		return func() {} // No-op if metrics disabled
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.updateStats(conn())
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
