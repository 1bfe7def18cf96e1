package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/refreshkit/metric"
)

// gatewayMetrics tracks request volume, WebSocket client churn, slow-client
// drops, and the size of the served snapshot.
type gatewayMetrics struct {
	requests    *prometheus.CounterVec
	connections prometheus.Counter
	clients     prometheus.Gauge
	dropped     prometheus.Counter
	snapshot    prometheus.Gauge
}

func newGatewayMetrics(registry *metric.MetricsRegistry) (*gatewayMetrics, error) {
	m := &gatewayMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "gateway",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served, by route and status code",
		}, []string{"route", "code"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "gateway",
			Name:      "ws_connections_total",
			Help:      "Total WebSocket connections accepted, including closed ones",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refreshkit",
			Subsystem: "gateway",
			Name:      "ws_clients_connected",
			Help:      "WebSocket clients currently connected",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "gateway",
			Name:      "ws_dropped_total",
			Help:      "Total updates dropped because a client's send queue was full",
		}),
		snapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refreshkit",
			Subsystem: "gateway",
			Name:      "snapshot_size",
			Help:      "Tier/target pairs currently held in the snapshot",
		}),
	}

	if err := registry.RegisterCounterVec("gateway", "http_requests", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("gateway", "ws_connections", m.connections); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("gateway", "ws_clients", m.clients); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("gateway", "ws_dropped", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("gateway", "snapshot_size", m.snapshot); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *gatewayMetrics) recordRequest(route string, status int) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *gatewayMetrics) recordConnection(clientCount int) {
	m.connections.Inc()
	m.clients.Set(float64(clientCount))
}

func (m *gatewayMetrics) recordDisconnection(clientCount int) {
	m.clients.Set(float64(clientCount))
}

func (m *gatewayMetrics) recordDrop() {
	m.dropped.Inc()
}

func (m *gatewayMetrics) recordSnapshotSize(size int) {
	m.snapshot.Set(float64(size))
}
