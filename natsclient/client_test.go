package natsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newOfflineClient builds a client pointed at a URL nothing listens on.
// Circuit and status behavior is all client-side, so no server is needed.
func newOfflineClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	return client
}

// tripCircuit records enough failures to cross the default threshold
func tripCircuit(c *Client) {
	for range 5 {
		c.recordFailure()
	}
}

// startNATS runs a NATS server container, passing extra through as server
// arguments ("--js" enables JetStream)
func startNATS(ctx context.Context, t *testing.T, extra ...string) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.11.7-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForListeningPort("4222/tcp"),
			Cmd:          extra,
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, nat.Port("4222/tcp"))
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

// connectClient connects to a live server with reconnects disabled so a
// failed test does not hang on retry loops
func connectClient(ctx context.Context, t *testing.T, url string) *Client {
	t.Helper()

	client, err := NewClient(url, WithMaxReconnects(0))
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return client
}

func TestNewClient(t *testing.T) {
	client := newOfflineClient(t)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

// Circuit opens only once the failure threshold for the round is reached
func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client := newOfflineClient(t)

	// Four failures stay below the default threshold of five
	for range 4 {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	// Fifth failure opens the circuit
	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client := newOfflineClient(t)

	tripCircuit(client)
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
}

// Each circuit-open round doubles the backoff up to the ceiling
func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client := newOfflineClient(t)

	assert.Equal(t, time.Second, client.Backoff())

	tripCircuit(client)
	assert.Equal(t, 2*time.Second, client.Backoff())

	tripCircuit(client)
	assert.Equal(t, 4*time.Second, client.Backoff())

	// Keep failing; the backoff must stay at or below the one-minute cap
	for range 20 {
		tripCircuit(client)
	}
	assert.LessOrEqual(t, client.Backoff(), time.Minute)
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		initial ConnectionStatus
		action  func(*Client)
		want    ConnectionStatus
	}{
		{"disconnected to connecting", StatusDisconnected, func(c *Client) { c.setStatus(StatusConnecting) }, StatusConnecting},
		{"connecting to connected", StatusConnecting, func(c *Client) { c.setStatus(StatusConnected) }, StatusConnected},
		{"connected to reconnecting", StatusConnected, func(c *Client) { c.setStatus(StatusReconnecting) }, StatusReconnecting},
		{"any to circuit open", StatusConnected, tripCircuit, StatusCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newOfflineClient(t)
			client.setStatus(tt.initial)

			tt.action(client)

			assert.Equal(t, tt.want, client.Status())
		})
	}
}

// Status and circuit state are updated from connection callbacks and read
// from health checks concurrently, so hammer them together.
func TestConcurrentSafety(t *testing.T) {
	client := newOfflineClient(t)

	ops := []func(){
		func() { client.setStatus(StatusConnecting) },
		func() { client.setStatus(StatusConnected) },
		func() { _ = client.Status() },
		func() { client.recordFailure() },
		func() { client.resetCircuit() },
	}

	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				op()
			}
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the status must be a valid one
	assert.Contains(t, []ConnectionStatus{
		StatusDisconnected,
		StatusConnecting,
		StatusConnected,
		StatusReconnecting,
		StatusCircuitOpen,
	}, client.Status())
}

func TestIsHealthy(t *testing.T) {
	tests := []struct {
		name    string
		status  ConnectionStatus
		healthy bool
	}{
		{"connected is healthy", StatusConnected, true},
		{"disconnected is not healthy", StatusDisconnected, false},
		{"connecting is not healthy", StatusConnecting, false},
		{"reconnecting is not healthy", StatusReconnecting, false},
		{"circuit open is not healthy", StatusCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newOfflineClient(t)
			client.setStatus(tt.status)
			assert.Equal(t, tt.healthy, client.IsHealthy())
		})
	}
}

func TestWaitForConnection(t *testing.T) {
	t.Run("times out when not connected", func(t *testing.T) {
		client := newOfflineClient(t)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := client.WaitForConnection(ctx)
		assert.ErrorIs(t, err, ErrConnectionTimeout)
	})

	t.Run("returns immediately when connected", func(t *testing.T) {
		client := newOfflineClient(t)
		client.setStatus(StatusConnected)

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, client.WaitForConnection(ctx))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("returns when becomes connected", func(t *testing.T) {
		client := newOfflineClient(t)

		// Simulate the broker coming up after a delay
		go func() {
			time.Sleep(50 * time.Millisecond)
			client.setStatus(StatusConnected)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		require.NoError(t, client.WaitForConnection(ctx))
		assert.Equal(t, StatusConnected, client.Status())
	})
}

func TestKeyValueBuckets(t *testing.T) {
	bucketOps := []struct {
		name string
		call func(context.Context, *Client) error
	}{
		{"create", func(ctx context.Context, c *Client) error {
			_, err := c.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "refreshkit_fallback"})
			return err
		}},
		{"get", func(ctx context.Context, c *Client) error {
			_, err := c.GetKeyValueBucket(ctx, "refreshkit_fallback")
			return err
		}},
		{"delete", func(ctx context.Context, c *Client) error {
			return c.DeleteKeyValueBucket(ctx, "refreshkit_fallback")
		}},
		{"list", func(ctx context.Context, c *Client) error {
			_, err := c.ListKeyValueBuckets(ctx)
			return err
		}},
	}

	t.Run("operations return error when not connected", func(t *testing.T) {
		client := newOfflineClient(t)

		for _, op := range bucketOps {
			assert.Equal(t, ErrNotConnected, op.call(context.Background(), client), op.name)
		}
	})

	t.Run("operations return error when circuit open", func(t *testing.T) {
		client := newOfflineClient(t)

		tripCircuit(client)
		require.Equal(t, StatusCircuitOpen, client.Status())

		for _, op := range bucketOps {
			assert.Equal(t, ErrCircuitOpen, op.call(context.Background(), client), op.name)
		}
	})

	t.Run("operations work with real KV server", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		ctx := context.Background()
		client := connectClient(ctx, t, startNATS(ctx, t, "--js"))

		kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "snapshot_bucket"})
		require.NoError(t, err)
		require.NotNil(t, kv)

		// Store a snapshot and read it back
		_, err = kv.Put(ctx, "critical.revenue", []byte(`{"value":41250}`))
		require.NoError(t, err)

		entry, err := kv.Get(ctx, "critical.revenue")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"value":41250}`), entry.Value())

		// The snapshot survives re-opening the bucket by name
		reopened, err := client.GetKeyValueBucket(ctx, "snapshot_bucket")
		require.NoError(t, err)

		entry, err = reopened.Get(ctx, "critical.revenue")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"value":41250}`), entry.Value())

		buckets, err := client.ListKeyValueBuckets(ctx)
		require.NoError(t, err)
		assert.Contains(t, buckets, "snapshot_bucket")

		require.NoError(t, client.DeleteKeyValueBucket(ctx, "snapshot_bucket"))

		_, err = client.GetKeyValueBucket(ctx, "snapshot_bucket")
		assert.Error(t, err)
	})
}

func TestContextAwareMethods(t *testing.T) {
	t.Run("with invalid host", func(t *testing.T) {
		client, err := NewClient("nats://invalid-host:4222")
		require.NoError(t, err)

		ctx := context.Background()

		// No server behind the URL, so the connect must fail
		assert.Error(t, client.Connect(ctx))

		// Close succeeds even when never connected
		assert.NoError(t, client.Close(ctx))

		err = client.Publish(ctx, "kpi.updates", []byte("data"))
		assert.Equal(t, ErrNotConnected, err)

		err = client.Subscribe(ctx, "kpi.updates", func(_ context.Context, _ []byte) {})
		assert.Equal(t, ErrNotConnected, err)
	})

	t.Run("with real NATS server", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		ctx := context.Background()
		client := connectClient(ctx, t, startNATS(ctx, t))

		assert.True(t, client.IsHealthy())

		require.NoError(t, client.Publish(ctx, "kpi.updates", []byte(`{"target":"revenue"}`)))

		received := make(chan []byte, 1)
		err := client.Subscribe(ctx, "kpi.updates.critical", func(_ context.Context, data []byte) {
			received <- data
		})
		require.NoError(t, err)

		payload := []byte(`{"target":"revenue","state":"fresh"}`)
		require.NoError(t, client.Publish(ctx, "kpi.updates.critical", payload))

		select {
		case data := <-received:
			assert.Equal(t, payload, data)
		case <-time.After(1 * time.Second):
			t.Fatal("Message not received")
		}
	})
}

func TestRequestReply(t *testing.T) {
	t.Run("when not connected", func(t *testing.T) {
		client := newOfflineClient(t)

		_, err := client.Request(context.Background(), "kpi.fetch", []byte("revenue"))
		assert.Equal(t, ErrNotConnected, err)
	})

	t.Run("with real NATS server", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		ctx := context.Background()
		client := connectClient(ctx, t, startNATS(ctx, t))

		// Register a responder on the native connection
		conn := client.GetConnection()
		require.NotNil(t, conn)
		sub, err := conn.Subscribe("kpi.fetch", func(msg *nats.Msg) {
			_ = msg.Respond([]byte(`{"value": 42}`))
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		reply, err := client.Request(ctx, "kpi.fetch", []byte("revenue"))
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"value": 42}`), reply)

		// A subject nobody answers fails via context deadline or no-responders
		timeoutCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		_, err = client.Request(timeoutCtx, "kpi.nobody", []byte("x"))
		assert.Error(t, err)
	})
}

func TestConnectionOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(10),
		WithReconnectWait(5*time.Second),
		WithPingInterval(30*time.Second),
	)
	require.NoError(t, err)

	assert.NotNil(t, client.ConnectionOptions())
	assert.Equal(t, 10, client.MaxReconnects())
	assert.Equal(t, 5*time.Second, client.ReconnectWait())
	assert.Equal(t, 30*time.Second, client.PingInterval())
}

func TestGetStatus(t *testing.T) {
	client := newOfflineClient(t)

	for range 3 {
		client.recordFailure()
	}

	status := client.GetStatus()
	assert.Equal(t, int32(3), status.FailureCount)
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.NotZero(t, status.LastFailureTime)

	client.resetCircuit()
	assert.Equal(t, int32(0), client.GetStatus().FailureCount)
}

// End-to-end status flows without a server
func TestClientScenarios(t *testing.T) {
	scenarios := []struct {
		name     string
		setup    func(*Client)
		action   func(*Client)
		validate func(*testing.T, *Client)
	}{
		{
			name:   "successful connection flow",
			setup:  func(c *Client) { c.setStatus(StatusDisconnected) },
			action: func(c *Client) { c.setStatus(StatusConnecting); c.setStatus(StatusConnected); c.resetCircuit() },
			validate: func(t *testing.T, c *Client) {
				assert.Equal(t, StatusConnected, c.Status())
				assert.True(t, c.IsHealthy())
				assert.Equal(t, int32(0), c.Failures())
			},
		},
		{
			name:   "connection failure and circuit break",
			setup:  func(c *Client) { c.setStatus(StatusConnecting) },
			action: tripCircuit,
			validate: func(t *testing.T, c *Client) {
				assert.Equal(t, StatusCircuitOpen, c.Status())
				assert.False(t, c.IsHealthy())
				assert.Equal(t, int32(5), c.Failures())
			},
		},
		{
			name:   "reconnection after disconnect",
			setup:  func(c *Client) { c.setStatus(StatusConnected) },
			action: func(c *Client) { c.setStatus(StatusReconnecting); c.setStatus(StatusConnected); c.resetCircuit() },
			validate: func(t *testing.T, c *Client) {
				assert.Equal(t, StatusConnected, c.Status())
				assert.True(t, c.IsHealthy())
			},
		},
	}

	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			client := newOfflineClient(t)

			scenario.setup(client)
			scenario.action(client)
			scenario.validate(t, client)
		})
	}
}

// Two service instances racing to create the same bucket must both end up
// with a usable handle, so the "already exists" shapes have to be known.
func TestCreateKeyValueBucket_AlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bucket name already in use", errors.New("nats: bucket name already in use"), true},
		{"already exists", errors.New("bucket already exists"), true},
		{"stream name already in use", errors.New("nats: stream name already in use"), true},
		{"other error", errors.New("connection failed"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAlreadyExistsError(tt.err))
		})
	}
}
