package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/refreshkit/config"
	pkgerrors "github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/scheduler"
	"github.com/c360/refreshkit/testutil"
	"github.com/c360/refreshkit/types"
)

// refreshTestConfig returns a config that runs the whole pipeline in-process:
// memory fallback, breaker disabled, no NATS surfaces, fast cadence and
// health checks so tests observe behavior quickly.
func refreshTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Service.HealthInterval = 50 * time.Millisecond
	cfg.Tiers = []types.TierConfig{{
		Tier:        types.TierCritical,
		Cadence:     25 * time.Millisecond,
		TTL:         time.Second,
		Targets:     []string{"revenue"},
		Timeout:     time.Second,
		MaxAttempts: 1,
	}}
	cfg.Breaker.Enabled = false
	cfg.Fallback = config.FallbackConfig{Backend: config.FallbackBackendMemory}
	cfg.Notify.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Gateway.Enabled = false
	return cfg
}

// freePort finds an available TCP port for tests that enable HTTP surfaces.
func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func TestNewRefreshService_Validation(t *testing.T) {
	transport := testutil.NewMockTransport()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRefreshService(nil, transport)
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)
	})

	t.Run("nil transport", func(t *testing.T) {
		_, err := NewRefreshService(refreshTestConfig(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := refreshTestConfig()
		cfg.Tiers = nil
		_, err := NewRefreshService(cfg, transport)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("valid", func(t *testing.T) {
		svc, err := NewRefreshService(refreshTestConfig(), transport)
		require.NoError(t, err)
		assert.Equal(t, "refreshkit", svc.Name())
		assert.Equal(t, StatusStopped, svc.Status())
	})
}

func TestRefreshService_Lifecycle(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`42`)

	svc, err := NewRefreshService(refreshTestConfig(), transport,
		WithMetrics(metric.NewMetricsRegistry()))
	require.NoError(t, err)

	collected := testutil.NewCollectingListener()
	svc.Subscribe(collected.Record)

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StatusRunning, svc.Status())

	// Updates reach listeners subscribed before Start
	collected.WaitForCount(t, 2, 2*time.Second)
	update, ok := collected.Last()
	require.True(t, ok)
	assert.Equal(t, types.TierCritical, update.Tier)
	assert.Equal(t, "revenue", update.Target)

	// Delivery accounting follows the update stream
	require.Eventually(t, func() bool {
		return svc.GetStatus().UpdatesDelivered >= 2
	}, 2*time.Second, 5*time.Millisecond)

	states := svc.TierStates()
	require.Contains(t, states, types.TierCritical)
	assert.NotEqual(t, scheduler.StateIdle, states[types.TierCritical])

	// Second Start is rejected while running
	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyStarted)

	require.NoError(t, svc.Stop(5*time.Second))
	assert.Equal(t, StatusStopped, svc.Status())
	assert.Nil(t, svc.TierStates())

	// No more updates after Stop
	count := collected.Count()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, count, collected.Count())

	// Second Stop is a no-op
	require.NoError(t, svc.Stop(5*time.Second))
}

func TestRefreshService_Restart(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`7`)

	svc, err := NewRefreshService(refreshTestConfig(), transport)
	require.NoError(t, err)

	collected := testutil.NewCollectingListener()
	svc.Subscribe(collected.Record)

	require.NoError(t, svc.Start(context.Background()))
	collected.WaitForCount(t, 1, 2*time.Second)
	require.NoError(t, svc.Stop(5*time.Second))

	// Listeners survive the restart
	collected.Reset()
	require.NoError(t, svc.Start(context.Background()))
	collected.WaitForCount(t, 1, 2*time.Second)

	require.NoError(t, svc.Stop(5*time.Second))
}

func TestRefreshService_KVBackendsRequireNATS(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`1`)

	t.Run("kv fallback", func(t *testing.T) {
		cfg := refreshTestConfig()
		cfg.Fallback = config.FallbackConfig{
			Backend: config.FallbackBackendKV,
			Bucket:  config.BucketConfig{Name: "refreshkit_fallback", History: 1},
		}

		svc, err := NewRefreshService(cfg, transport)
		require.NoError(t, err)

		err = svc.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)
		assert.Equal(t, StatusStopped, svc.Status())
	})

	t.Run("enabled breaker", func(t *testing.T) {
		cfg := refreshTestConfig()
		cfg.Breaker.Enabled = true
		cfg.Breaker.Bucket = config.BucketConfig{Name: "refreshkit_breaker", History: 5}
		cfg.Breaker.Key = "status"

		svc, err := NewRefreshService(cfg, transport)
		require.NoError(t, err)

		err = svc.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)
		assert.Equal(t, StatusStopped, svc.Status())
	})

	t.Run("enabled notify", func(t *testing.T) {
		cfg := refreshTestConfig()
		cfg.Notify.Enabled = true

		svc, err := NewRefreshService(cfg, transport)
		require.NoError(t, err)

		err = svc.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)
		assert.Equal(t, StatusStopped, svc.Status())
	})
}

func TestRefreshService_GatewayIntegration(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`1250.75`)

	cfg := refreshTestConfig()
	cfg.Gateway.Enabled = true
	cfg.Gateway.Port = freePort(t)

	svc, err := NewRefreshService(cfg, transport)
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(5 * time.Second) }()

	base := svc.GatewayAddress()
	require.NotEmpty(t, base)

	// The snapshot fills as refreshes land
	var snapshot map[string]types.Update
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/kpis")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		snapshot = nil
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return false
		}
		return len(snapshot) > 0
	}, 2*time.Second, 10*time.Millisecond)

	for _, update := range snapshot {
		assert.Equal(t, "revenue", update.Target)
	}

	// Health endpoint aggregates the monitor the service feeds
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, svc.Stop(5*time.Second))
	assert.Empty(t, svc.GatewayAddress())

	_, err = http.Get(base + "/kpis")
	assert.Error(t, err)
}

func TestRefreshService_MetricsServer(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`3`)

	cfg := refreshTestConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = freePort(t)

	svc, err := NewRefreshService(cfg, transport,
		WithMetrics(metric.NewMetricsRegistry()))
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(5 * time.Second) }()

	base := svc.MetricsAddress()
	require.NotEmpty(t, base)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + cfg.Metrics.Path)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop(5*time.Second))
	assert.Empty(t, svc.MetricsAddress())
}

func TestRefreshService_ApplyTiers(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`9`)

	svc, err := NewRefreshService(refreshTestConfig(), transport)
	require.NoError(t, err)

	t.Run("before start", func(t *testing.T) {
		err := svc.ApplyTiers([]types.TierConfig{testutil.TestTier(types.TierBackground, "users")})
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrNotStarted)
	})

	collected := testutil.NewCollectingListener()
	svc.Subscribe(collected.Record)

	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(5 * time.Second) }()

	collected.WaitForCount(t, 1, 2*time.Second)

	t.Run("replaces the running set", func(t *testing.T) {
		next := types.TierConfig{
			Tier:        types.TierBackground,
			Cadence:     25 * time.Millisecond,
			TTL:         time.Second,
			Targets:     []string{"users"},
			Timeout:     time.Second,
			MaxAttempts: 1,
		}
		require.NoError(t, svc.ApplyTiers([]types.TierConfig{next}))

		collected.WaitForUpdate(t, 2*time.Second, func(u types.Update) bool {
			return u.Tier == types.TierBackground && u.Target == "users"
		})

		states := svc.TierStates()
		assert.Len(t, states, 1)
		assert.Contains(t, states, types.TierBackground)
	})

	t.Run("rejects an invalid set", func(t *testing.T) {
		err := svc.ApplyTiers(nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))

		// The previous set keeps running
		assert.Contains(t, svc.TierStates(), types.TierBackground)
	})
}

func TestRefreshService_Health(t *testing.T) {
	transport := testutil.NewMockTransport().AlwaysReturn(`5`)

	svc, err := NewRefreshService(refreshTestConfig(), transport)
	require.NoError(t, err)

	// Stopped service reports unhealthy before any monitor entries exist
	status := svc.Health()
	assert.True(t, status.IsUnhealthy())

	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(5 * time.Second) }()

	// The periodic check feeds per-tier entries into the monitor
	require.Eventually(t, func() bool {
		_, ok := svc.Monitor().Get("tier:critical")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, waitFor(svc.IsHealthy, 2*time.Second), "service should become healthy")

	status = svc.Health()
	assert.True(t, status.IsHealthy(), "aggregate should be healthy, got %s: %s", status.Status, status.Message)

	require.NoError(t, svc.Stop(5*time.Second))

	// Monitor entries are cleared on shutdown
	assert.Zero(t, svc.Monitor().Count())
}
