package scheduler

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/refreshkit/breaker"
	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/types"
)

func TestSchedulerMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	transport := alwaysReturn(`42`)

	f := newFixture(t, singleTierConfig(25*time.Millisecond, 10*time.Second), transport, nil,
		WithMetrics(registry))
	f.start(t)

	// First tick fetches, the rest hit the cache.
	require.Eventually(t, func() bool { return f.updates.count() >= 3 },
		2*time.Second, 5*time.Millisecond)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[*mf.Name] = mf
	}

	ticks := byName["refreshkit_scheduler_ticks_total"]
	require.NotNil(t, ticks, "ticks metric should exist")
	assert.GreaterOrEqual(t, *ticks.Metric[0].Counter.Value, float64(3))
	assert.Equal(t, "critical", metricLabel(ticks.Metric[0], "tier"))

	updates := byName["refreshkit_scheduler_updates_total"]
	require.NotNil(t, updates, "updates metric should exist")
	fresh := metricWithLabel(updates, "source", sourceFresh)
	require.NotNil(t, fresh, "fresh updates should be counted")
	assert.Equal(t, float64(1), *fresh.Counter.Value, "only the first tick fetched")
	cached := metricWithLabel(updates, "source", sourceCache)
	require.NotNil(t, cached, "cache updates should be counted")
	assert.GreaterOrEqual(t, *cached.Counter.Value, float64(2))

	state := byName["refreshkit_scheduler_tier_state"]
	require.NotNil(t, state, "tier state gauge should exist")
	assert.Contains(t, []float64{float64(StateScheduled), float64(StateFetching)},
		*state.Metric[0].Gauge.Value)
}

func TestSchedulerWithoutMetrics(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil,
		WithMetrics(nil))
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestSchedulerMetrics_Resume(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	// Reuse the registry's gathered view to confirm a suspend/resume cycle
	// is counted.
	resumed := resumeCycle(t, registry)
	require.True(t, resumed)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if *mf.Name != "refreshkit_scheduler_resumes_total" {
			continue
		}
		assert.Equal(t, float64(1), *mf.Metric[0].Counter.Value)
		assert.Equal(t, "critical", metricLabel(mf.Metric[0], "tier"))
		return
	}
	t.Fatal("resumes metric should exist after a resume")
}

// resumeCycle drives one suspension and one resume, returning true once a
// post-resume update arrived.
func resumeCycle(t *testing.T, registry *metric.MetricsRegistry) bool {
	t.Helper()

	gateway := breaker.NewStatic(breaker.Status{
		State:      breaker.StateOpen,
		ResetAfter: 30 * time.Millisecond,
	})
	transport := alwaysReturn(`1`)

	cfg := singleTierConfig(25*time.Millisecond, 10*time.Second)
	cfg.ResumeMargin = 10 * time.Millisecond
	f := newFixture(t, cfg, transport, gateway, WithMetrics(registry))
	f.start(t)

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateSuspended
	}, 2*time.Second, 5*time.Millisecond)

	gateway.Set(breaker.Status{State: breaker.StateClosed})

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)
	return true
}

// metricLabel extracts a label value from a gathered metric by name.
func metricLabel(m *dto.Metric, name string) string {
	for _, label := range m.Label {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

// metricWithLabel finds the series in a family carrying the given label value.
func metricWithLabel(mf *dto.MetricFamily, name, value string) *dto.Metric {
	for _, m := range mf.Metric {
		if metricLabel(m, name) == value {
			return m
		}
	}
	return nil
}
