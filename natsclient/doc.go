// Package natsclient wraps the NATS Go client with the reliability
// machinery the refresh pipeline depends on: a circuit breaker in front of
// connection attempts, reconnection with exponential backoff, background
// health monitoring, and a CAS-aware Key-Value layer for shared state.
//
// Every other package that talks to NATS goes through this one. The config
// manager syncs runtime configuration through KV buckets, the scheduler
// persists refresh state so restarts resume where they left off, refresh
// completions fan out as published events, and the CLI reaches running
// services over request/reply.
//
// # Connecting
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Connect dials synchronously; afterwards the underlying connection
// reconnects on its own within the configured limits. WaitForConnection
// blocks until the client is usable or the context expires, which is how
// services gate their startup:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := client.WaitForConnection(ctx); err != nil {
//	    return err
//	}
//
// # Circuit Breaker
//
// Connection attempts run through a circuit breaker. After a threshold of
// consecutive failures (default 5) the circuit opens and further attempts
// fail immediately with ErrCircuitOpen instead of hammering a server that
// is already down. The open circuit re-admits a probe after a backoff that
// doubles up to a ceiling (default 1 minute):
//
//	if err := client.Connect(ctx); errors.Is(err, natsclient.ErrCircuitOpen) {
//	    time.Sleep(client.Backoff())
//	    // try again later
//	}
//
// Threshold and ceiling are tunable:
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithCircuitBreakerThreshold(10),
//	    natsclient.WithMaxBackoff(30*time.Second),
//	)
//
// # Messaging
//
// Publish and Subscribe cover the fan-out side. Subscriptions hand each
// message to the handler with a bounded context:
//
//	err := client.Subscribe(ctx, "refresh.critical.*", func(msgCtx context.Context, data []byte) {
//	    // msgCtx carries a per-message timeout
//	})
//
//	err = client.Publish(ctx, "refresh.critical.revenue", []byte(`{"status":"fresh"}`))
//
// Request sends over core NATS and waits for a single reply, bounded by the
// context deadline. The CLI uses this to reach running services:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	reply, err := client.Request(ctx, "refresh.ops.force", []byte(`{"target":"revenue"}`))
//
// Responders are plain subscriptions on the native connection that call
// msg.Respond.
//
// # Key-Value State
//
// Refresh state and runtime configuration live in JetStream KV buckets.
// The KVStore wrapper adds compare-and-swap retry on top, so concurrent
// writers cannot silently overwrite each other:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket:  "refresh-state",
//	    History: 5,
//	})
//
//	kvStore := client.NewKVStore(bucket)
//
//	// The update function re-runs when another writer wins the race, so it
//	// must be a pure transform of its input.
//	err = kvStore.UpdateJSON(ctx, "state.critical.revenue", func(state map[string]any) error {
//	    state["status"] = "fresh"
//	    state["refreshed_at"] = time.Now().UTC().Format(time.RFC3339)
//	    return nil
//	})
//
//	entry, err := kvStore.Get(ctx, "state.critical.revenue")
//	if err == nil {
//	    fmt.Printf("rev=%d value=%s\n", entry.Revision, entry.Value)
//	}
//
// KV failures classify with IsKVNotFoundError and IsKVConflictError; a CAS
// loop that never wins surfaces as ErrKVMaxRetriesExceeded.
//
// # Health and Status
//
// Status reports the connection lifecycle: StatusDisconnected,
// StatusConnecting, StatusConnected, StatusReconnecting, StatusCircuitOpen.
// IsHealthy is shorthand for StatusConnected. GetStatus adds failure
// counts, reconnect totals, and the last measured round-trip time:
//
//	s := client.GetStatus()
//	log.Printf("status=%v failures=%d rtt=%v", s.Status, s.FailureCount, s.RTT)
//
// An optional background health check pings the server on an interval and
// reports transitions:
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithHealthInterval(10*time.Second),
//	    natsclient.WithHealthChangeCallback(func(healthy bool) {
//	        log.Printf("nats healthy=%t", healthy)
//	    }),
//	)
//
// # Metrics
//
// Passing a metrics registry instruments the connection: status, round-trip
// time, reconnect counts, circuit breaker state, and per-operation error
// counts. A background poller samples RTT while connected.
//
//	registry := metric.NewMetricsRegistry()
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithMetrics(registry),
//	)
//
// # Error Classification
//
// Callers branch on sentinel errors rather than string matching:
//
//	err := client.Publish(ctx, subject, data)
//	switch {
//	case errors.Is(err, natsclient.ErrCircuitOpen):
//	    // back off, the breaker will re-admit a probe
//	case errors.Is(err, natsclient.ErrNotConnected):
//	    // transient, the connection is being re-established
//	}
//
// # Authentication and TLS
//
//	// user/password
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithCredentials("refresh", secret),
//	)
//
//	// token
//	client, err = natsclient.NewClient(url,
//	    natsclient.WithToken(token),
//	)
//
//	// mutual TLS
//	client, err = natsclient.NewClient(url,
//	    natsclient.WithTLS("client.crt", "client.key", "ca.crt"),
//	)
//
// Credentials are wiped from client memory on Close.
//
// # Testing
//
// Integration tests boot a real NATS server through testcontainers instead
// of mocking the client:
//
//	func TestRefreshState(t *testing.T) {
//	    tc := natsclient.NewTestClient(t, natsclient.WithKV())
//
//	    bucket, err := tc.CreateKVBucket(ctx, "refresh-state")
//	    require.NoError(t, err)
//	    // drive the real thing
//	}
//
// NewSharedTestClient does the same without a testing.T for TestMain setups
// that share one container across a package.
//
// # Options
//
//	WithMaxReconnects(n int)               // reconnect attempts, -1 for unlimited
//	WithReconnectWait(d time.Duration)     // pause between reconnect attempts
//	WithTimeout(d time.Duration)           // dial timeout
//	WithDrainTimeout(d time.Duration)      // graceful shutdown bound
//	WithPingInterval(d time.Duration)      // server ping cadence
//	WithHealthInterval(d time.Duration)    // background health check cadence, 0 disables
//	WithCircuitBreakerThreshold(n int32)   // failures before the circuit opens
//	WithMaxBackoff(d time.Duration)        // circuit probe backoff ceiling
//	WithDisconnectCallback(fn func(error)) // fired on disconnect
//	WithReconnectCallback(fn func())       // fired on reconnect
//	WithConnectionLostCallback(fn func(error)) // fired when reconnects are exhausted
//	WithHealthChangeCallback(fn func(bool))    // fired on health transitions
//	WithCompression(enabled bool)          // wire compression
//	WithLogger(logger Logger)              // debug logging
//	WithMetrics(registry)                  // connection instrumentation
//	WithName(name string)                  // client name reported to the server
//
// The Client is safe for concurrent use. Connection state lives behind
// atomics, subscriptions can be created from any goroutine, and Close is
// idempotent.
package natsclient
