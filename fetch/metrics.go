package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/types"
)

// fetchMetrics holds Prometheus metrics for the fetch attempt loop.
type fetchMetrics struct {
	attempts    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	suspensions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// newFetchMetrics creates and registers fetch metrics with the provided registry.
func newFetchMetrics(registry *metric.MetricsRegistry) (*fetchMetrics, error) {
	m := &fetchMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refreshkit",
				Subsystem: "fetch",
				Name:      "attempts_total",
				Help:      "Total transport attempts made, including retries",
			},
			[]string{"tier"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refreshkit",
				Subsystem: "fetch",
				Name:      "failures_total",
				Help:      "Total failed attempts by failure kind",
			},
			[]string{"tier", "kind"},
		),
		suspensions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refreshkit",
				Subsystem: "fetch",
				Name:      "suspensions_total",
				Help:      "Total fetches suspended by an open circuit breaker",
			},
			[]string{"tier"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "refreshkit",
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of complete fetch runs, all attempts included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tier"},
		),
	}

	if err := registry.RegisterCounterVec("fetcher", "attempts", m.attempts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("fetcher", "failures", m.failures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("fetcher", "suspensions", m.suspensions); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("fetcher", "duration", m.duration); err != nil {
		return nil, err
	}

	return m, nil
}

// recordAttempt counts one transport attempt for the tier.
func (m *fetchMetrics) recordAttempt(tier types.Tier) {
	m.attempts.WithLabelValues(tier.String()).Inc()
}

// recordFailure counts one failed attempt by kind.
func (m *fetchMetrics) recordFailure(tier types.Tier, kind FailureKind) {
	m.failures.WithLabelValues(tier.String(), string(kind)).Inc()
}

// recordSuspension counts one breaker-suspended fetch.
func (m *fetchMetrics) recordSuspension(tier types.Tier) {
	m.suspensions.WithLabelValues(tier.String()).Inc()
}

// recordDuration records the wall-clock time of a complete fetch run.
func (m *fetchMetrics) recordDuration(tier types.Tier, elapsed time.Duration) {
	m.duration.WithLabelValues(tier.String()).Observe(elapsed.Seconds())
}
