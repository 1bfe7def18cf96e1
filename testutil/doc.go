// Package testutil provides test doubles and fixtures for RefreshKit unit
// tests.
//
// # Overview
//
// The package contains in-memory stand-ins for the pipeline's external
// edges (upstream transport, NATS connection, JetStream KV bucket), a
// listener that collects delivered updates, and canned KPI fixtures. All
// doubles are safe for concurrent use from multiple goroutines.
//
// # Core Components
//
// MockTransport - scripted upstream transport:
//   - Per-target FIFO response queues plus a standing default
//   - Error injection per call or as the standing response
//   - Atomic call, in-flight, and max-overlap counters
//   - Optional per-call delay and a blocking gate for overlap tests
//
// MockNATSConn - in-memory NATS connection:
//   - Publish/Subscribe/Request with the real client's signatures
//   - Responder registry for request/reply
//   - Records published messages and request payloads for assertions
//   - Error injection for publish and request paths
//
// MockKV - in-memory JetStream key-value bucket:
//   - Get/Put/Delete/Watch subset with real jetstream sentinels
//   - Watchers replay the current entry, then the nil end-of-replay
//     marker, then live updates
//   - Error injection for get and put paths
//
// CollectingListener - update sink:
//   - Records updates in arrival order
//   - WaitForCount and WaitForUpdate polling helpers
//
// Fixtures:
//   - KPIPayloads / RawPayload: canned upstream response bodies per target
//   - NewUpdate / NewDegradedUpdate / NewSample: stamped domain values
//   - TestTier / TierSetBuilder: tier configurations scaled down for tests
//
// # Usage Examples
//
// Scripted transport:
//
//	transport := testutil.NewMockTransport().
//	    ScriptError("revenue", errors.New("upstream 503")).
//	    Script("revenue", testutil.KPIPayloads["revenue"])
//
//	// First call fails, second succeeds, and the counters show both ran
//	// without overlap.
//	assert.EqualValues(t, 2, transport.Calls())
//	assert.EqualValues(t, 1, transport.MaxInFlight())
//
// Holding a fetch open to assert single-flight behavior:
//
//	transport.Block()
//	// ...trigger two ticks...
//	transport.Release()
//	assert.EqualValues(t, 1, transport.MaxInFlight())
//
// Collecting scheduler output:
//
//	collected := testutil.NewCollectingListener()
//	sched.Subscribe(collected.Record)
//	collected.WaitForCount(t, 3, time.Second)
//	last, _ := collected.Last()
//	assert.False(t, last.Degraded)
//
// Watching a mock bucket:
//
//	kv := testutil.NewMockKV("breaker-status")
//	gateway, err := breaker.NewKVGateway(ctx, kv, "upstream")
//	require.NoError(t, err)
//
//	// Drive a state change through the same path a real watcher uses.
//	kv.Put(ctx, "upstream", statusJSON)
//
// Request/reply against the mock connection:
//
//	conn := testutil.NewMockNATSConn()
//	conn.RespondTo("refresh.ops.status", func(data []byte) ([]byte, error) {
//	    return []byte(`{"state":"running"}`), nil
//	})
//	reply, err := conn.Request(ctx, "refresh.ops.status", nil)
//
// # Mock vs Real Dependencies
//
// Use doubles for unit tests; integration tests run against real servers:
//
//	| Scenario                     | Use Mock         | Use Real (testcontainers) |
//	|------------------------------|------------------|---------------------------|
//	| Unit test (component logic)  | ✅ MockNATSConn  | ❌ Overkill               |
//	| Integration test (E2E path)  | ❌ Incomplete    | ✅ Real NATS              |
//	| KV watch pattern matching    | ❌ Exact keys only | ✅ Real bucket          |
//
// MockKV implements only the surface the pipeline exercises: Get, Put,
// Delete, Watch on exact keys, and Bucket. Calls outside that subset panic,
// which surfaces the gap at the call site instead of silently returning
// zero values.
//
// # Known Limitations
//
//  1. Wait helpers poll at 10ms intervals, adding latency per wait
//  2. MockNATSConn has no wildcard subject matching
//  3. MockKV.Watch matches exact keys only and ignores watch options
//  4. mockKeyWatcher drops updates beyond 64 undrained entries
//
// These are deliberate trade-offs: the doubles prioritize predictable
// behavior in unit tests over protocol completeness.
package testutil
