package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every instrument the service exports.
const namespace = "refreshkit"

// Metrics contains all platform-level metrics (not domain-specific).
// Refresh-domain metrics (ticks, updates, fetch attempts, cache hit rates)
// are constructed by their owning packages and registered through the
// MetricsRegistry; this palette covers the concerns every service has.
type Metrics struct {
	// Service metrics
	ServiceStatus     *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	PanicsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

func newGaugeVec(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: newGaugeVec("service", "status",
			"Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)", "service"),
		ErrorsTotal: newCounterVec("errors", "total",
			"Total number of errors", "service", "type"),
		PanicsTotal: newCounterVec("panics", "total",
			"Total number of recovered panics", "component"),
		HealthCheckStatus: newGaugeVec("health", "status",
			"Health check status (0=unhealthy, 1=healthy)", "service"),

		NATSConnected: newGauge("nats", "connected",
			"NATS connection status (0=disconnected, 1=connected)"),
		NATSRTT: newGauge("nats", "rtt_milliseconds",
			"NATS round-trip time in milliseconds"),
		NATSReconnects: newCounter("nats", "reconnects_total",
			"Total number of NATS reconnections"),
		NATSCircuitBreaker: newGauge("nats", "circuit_breaker",
			"NATS connection circuit breaker status (0=closed, 1=open, 2=half-open)"),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordServiceStatus updates service status metric
func (m *Metrics) RecordServiceStatus(service string, status int) {
	m.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordError increments error counter
func (m *Metrics) RecordError(service, errorType string) {
	m.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordPanic increments the recovered panic counter
func (m *Metrics) RecordPanic(component string) {
	m.PanicsTotal.WithLabelValues(component).Inc()
}

// RecordHealthStatus updates health check status
func (m *Metrics) RecordHealthStatus(service string, healthy bool) {
	m.HealthCheckStatus.WithLabelValues(service).Set(boolToFloat(healthy))
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	m.NATSConnected.Set(boolToFloat(connected))
}

// RecordNATSRTT updates NATS round-trip time
func (m *Metrics) RecordNATSRTT(rtt time.Duration) {
	m.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates the connection circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(state int) {
	m.NATSCircuitBreaker.Set(float64(state))
}
