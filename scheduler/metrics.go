package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/types"
)

// schedulerMetrics tracks tick volume, update provenance, and tier state.
type schedulerMetrics struct {
	ticks     *prometheus.CounterVec
	updates   *prometheus.CounterVec
	resumes   *prometheus.CounterVec
	tierGauge *prometheus.GaugeVec
}

func newSchedulerMetrics(registry *metric.MetricsRegistry) (*schedulerMetrics, error) {
	m := &schedulerMetrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total refresh ticks processed, by tier",
		}, []string{"tier"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "scheduler",
			Name:      "updates_total",
			Help:      "Total updates delivered to listeners, by tier and source (fresh, cache, fallback, none)",
		}, []string{"tier", "source"}),
		resumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refreshkit",
			Subsystem: "scheduler",
			Name:      "resumes_total",
			Help:      "Total times a suspended tier resumed its cadence, by tier",
		}, []string{"tier"}),
		tierGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "refreshkit",
			Subsystem: "scheduler",
			Name:      "tier_state",
			Help:      "Current tier state (0=idle, 1=scheduled, 2=fetching, 3=suspended)",
		}, []string{"tier"}),
	}

	if err := registry.RegisterCounterVec("scheduler", "ticks", m.ticks); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("scheduler", "updates", m.updates); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("scheduler", "resumes", m.resumes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("scheduler", "tier_state", m.tierGauge); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *schedulerMetrics) recordTick(tier types.Tier) {
	m.ticks.WithLabelValues(string(tier)).Inc()
}

func (m *schedulerMetrics) recordUpdate(tier types.Tier, source string) {
	m.updates.WithLabelValues(string(tier), source).Inc()
}

func (m *schedulerMetrics) recordResume(tier types.Tier) {
	m.resumes.WithLabelValues(string(tier)).Inc()
}

func (m *schedulerMetrics) recordState(tier types.Tier, state State) {
	m.tierGauge.WithLabelValues(string(tier)).Set(float64(state))
}
