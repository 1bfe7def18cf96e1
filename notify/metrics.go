package notify

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/types"
)

// publisherMetrics tracks publish volume, drops, failures, and queue depth.
type publisherMetrics struct {
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	errors    prometheus.Counter
	depth     prometheus.Gauge
}

func newPublisherMetrics(registry *metric.MetricsRegistry) (*publisherMetrics, error) {
	m := &publisherMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "notify",
			Name:      "published_total",
			Help:      "Total updates published to NATS, by tier",
		}, []string{"tier"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Total updates dropped before publish, by tier and reason (full, stopped)",
		}, []string{"tier", "reason"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "notify",
			Name:      "publish_errors_total",
			Help:      "Total failed NATS publishes",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refreshkit",
			Subsystem: "notify",
			Name:      "queue_depth",
			Help:      "Updates currently queued for publishing",
		}),
	}

	if err := registry.RegisterCounterVec("notify", "published", m.published); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("notify", "dropped", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("notify", "publish_errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("notify", "queue_depth", m.depth); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *publisherMetrics) recordPublish(tier types.Tier) {
	m.published.WithLabelValues(string(tier)).Inc()
}

func (m *publisherMetrics) recordDrop(tier types.Tier, reason string) {
	m.dropped.WithLabelValues(string(tier), reason).Inc()
}

func (m *publisherMetrics) recordError() {
	m.errors.Inc()
}

func (m *publisherMetrics) recordDepth(n int) {
	m.depth.Set(float64(n))
}
