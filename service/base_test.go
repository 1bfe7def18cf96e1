package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/refreshkit/config"
	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/natsclient"
)

// newService builds a service on the default config with a metrics
// registry attached, the way the supervisor wires them in production
func newService(name string, opts ...Option) *BaseService {
	opts = append([]Option{WithMetrics(metric.NewMetricsRegistry())}, opts...)
	return NewBaseServiceWithOptions(name, config.DefaultConfig(), opts...)
}

// startService starts s and registers a cleanup stop. Tests that assert
// on Stop itself call it explicitly; Stop is idempotent.
func startService(t *testing.T, s *BaseService) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(5 * time.Second) })
}

// disconnectedNATSClient builds a client without connecting it. Useful for
// option wiring tests; a started service would report it unhealthy.
func disconnectedNATSClient(t *testing.T) *natsclient.Client {
	t.Helper()
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	return client
}

// waitFor polls cond every 10ms until it returns true or timeout lapses
func waitFor(cond func() bool, timeout time.Duration) bool {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(timeout)
	for {
		if cond() {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-tick.C:
		}
	}
}

func TestService_Creation(t *testing.T) {
	service := newService("refresh-scheduler")

	assert.NotNil(t, service)
	assert.Equal(t, "refresh-scheduler", service.Name())
	assert.Equal(t, StatusStopped, service.Status())
	assert.False(t, service.IsHealthy())
}

// A short Stop timeout must still shut down cleanly; the monitors exit
// well inside it.
func TestService_Lifecycle(t *testing.T) {
	service := newService("refresh-scheduler", WithHealthInterval(50*time.Millisecond))

	require.NoError(t, service.Start(context.Background()))
	assert.Equal(t, StatusRunning, service.Status())

	time.Sleep(10 * time.Millisecond)

	require.NoError(t, service.Stop(100*time.Millisecond))
	assert.Equal(t, StatusStopped, service.Status())
}

// With no NATS client and no custom check, periodic health checks pass,
// the service settles healthy, and the change callback reports the flip.
func TestService_HealthMonitoring(t *testing.T) {
	service := newService("refresh-notifier", WithHealthInterval(50*time.Millisecond))

	healthChanges := make(chan bool, 10)
	service.OnHealthChange(func(healthy bool) { healthChanges <- healthy })

	startService(t, service)

	assert.True(t, waitFor(service.IsHealthy, 500*time.Millisecond), "service should become healthy")

	select {
	case healthy := <-healthChanges:
		assert.True(t, healthy, "first health change should be to healthy")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("health change callback never fired")
	}
}

// Cancelling the parent context must stop the service without an explicit
// Stop call.
func TestService_ContextCancellation(t *testing.T) {
	service := newService("refresh-scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, service.Start(ctx))

	cancel()

	assert.True(t, waitFor(func() bool {
		return service.Status() == StatusStopped
	}, 500*time.Millisecond), "service should stop after context cancel")
}

func TestService_GetStatus(t *testing.T) {
	service := newService("kpi-gateway")

	info := service.GetStatus()
	assert.Equal(t, "kpi-gateway", info.Name)
	assert.Equal(t, StatusStopped, info.Status)
	assert.Equal(t, int64(0), info.Uptime.Milliseconds())
	assert.Equal(t, int64(0), info.UpdatesDelivered)
}

// RecordUpdate feeds both the delivery counter and the activity timestamp
func TestService_RecordUpdate(t *testing.T) {
	service := NewBaseServiceWithOptions("refresh-notifier", config.DefaultConfig())

	before := service.GetStatus()
	assert.Equal(t, int64(0), before.UpdatesDelivered)

	service.RecordUpdate()
	service.RecordUpdate()
	service.RecordUpdate()

	after := service.GetStatus()
	assert.Equal(t, int64(3), after.UpdatesDelivered)
	assert.True(t, after.LastActivity.After(before.LastActivity))
}

func TestService_CustomHealthCheck(t *testing.T) {
	service := newService("refresh-fetcher", WithHealthInterval(50*time.Millisecond))

	var checks int64
	service.SetHealthCheck(func() error {
		atomic.AddInt64(&checks, 1)
		return nil
	})

	startService(t, service)

	called := waitFor(func() bool {
		return atomic.LoadInt64(&checks) > 0
	}, 500*time.Millisecond)
	assert.True(t, called, "custom health check should be called")
}

func TestService_FailingHealthCheck(t *testing.T) {
	service := newService("refresh-fetcher", WithHealthInterval(50*time.Millisecond))
	service.SetHealthCheck(func() error {
		return errors.New("upstream gateway unreachable")
	})

	startService(t, service)

	failed := waitFor(func() bool {
		return service.GetStatus().FailedHealthChecks > 0
	}, 500*time.Millisecond)
	assert.True(t, failed, "failed checks should be counted")
	assert.False(t, service.IsHealthy())
}

// Concurrent Start and Stop calls must leave the service in a coherent
// state rather than panicking or deadlocking.
func TestService_ConcurrentOperations(t *testing.T) {
	service := newService("refresh-scheduler")
	ctx := context.Background()

	for range 10 {
		go func() { _ = service.Start(ctx) }()
	}
	time.Sleep(50 * time.Millisecond)

	for range 10 {
		go func() { _ = service.Stop(5 * time.Second) }()
	}
	time.Sleep(50 * time.Millisecond)

	status := service.Status()
	assert.True(t, status == StatusRunning || status == StatusStopped)
}

func TestService_Restart(t *testing.T) {
	service := newService("refresh-scheduler")
	ctx := context.Background()

	for range 2 {
		require.NoError(t, service.Start(ctx))
		assert.Equal(t, StatusRunning, service.Status())

		require.NoError(t, service.Stop(5*time.Second))
		assert.Equal(t, StatusStopped, service.Status())
	}
}

func TestService_FunctionalOptions(t *testing.T) {
	cfg := config.DefaultConfig()

	t.Run("no dependencies", func(t *testing.T) {
		service := NewBaseServiceWithOptions("kpi-gateway", cfg)

		assert.NotNil(t, service)
		assert.Equal(t, "kpi-gateway", service.Name())
		assert.Equal(t, StatusStopped, service.Status())
		assert.Nil(t, service.nats)
		assert.Nil(t, service.metricsRegistry)
	})

	t.Run("NATS only", func(t *testing.T) {
		natsClient := disconnectedNATSClient(t)
		service := NewBaseServiceWithOptions("kpi-gateway", cfg, WithNATS(natsClient))

		assert.Equal(t, natsClient, service.nats)
		assert.Nil(t, service.metricsRegistry)
	})

	t.Run("metrics only", func(t *testing.T) {
		metricsRegistry := metric.NewMetricsRegistry()
		service := NewBaseServiceWithOptions("kpi-gateway", cfg, WithMetrics(metricsRegistry))

		assert.Nil(t, service.nats)
		assert.Equal(t, metricsRegistry, service.metricsRegistry)
	})

	t.Run("custom health check", func(t *testing.T) {
		called := false
		service := NewBaseServiceWithOptions("kpi-gateway", cfg,
			WithHealthCheck(func() error { called = true; return nil }))

		require.NotNil(t, service.healthCheckFunc)
		require.NoError(t, service.healthCheckFunc())
		assert.True(t, called)
	})

	t.Run("custom health interval", func(t *testing.T) {
		service := NewBaseServiceWithOptions("kpi-gateway", cfg, WithHealthInterval(5*time.Second))

		assert.Equal(t, 5*time.Second, service.healthInterval)
	})

	t.Run("health change callback", func(t *testing.T) {
		var healthStatus bool
		service := NewBaseServiceWithOptions("kpi-gateway", cfg,
			OnHealthChange(func(healthy bool) { healthStatus = healthy }))

		require.NotNil(t, service.onHealthChange)

		service.onHealthChange(true)
		assert.True(t, healthStatus)

		service.onHealthChange(false)
		assert.False(t, healthStatus)
	})

	t.Run("all options together", func(t *testing.T) {
		natsClient := disconnectedNATSClient(t)
		metricsRegistry := metric.NewMetricsRegistry()

		var healthStatus bool
		checked := false

		service := NewBaseServiceWithOptions("kpi-gateway", cfg,
			WithNATS(natsClient),
			WithMetrics(metricsRegistry),
			WithHealthCheck(func() error { checked = true; return nil }),
			WithHealthInterval(5*time.Second),
			OnHealthChange(func(healthy bool) { healthStatus = healthy }))

		assert.Equal(t, natsClient, service.nats)
		assert.Equal(t, metricsRegistry, service.metricsRegistry)
		assert.Equal(t, 5*time.Second, service.healthInterval)
		require.NotNil(t, service.healthCheckFunc)
		require.NotNil(t, service.onHealthChange)

		require.NoError(t, service.healthCheckFunc())
		assert.True(t, checked)

		service.onHealthChange(true)
		assert.True(t, healthStatus)
	})
}
