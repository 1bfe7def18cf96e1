// Package breaker exposes the externally managed circuit breaker that
// protects the upstream data source.
//
// # Overview
//
// The breaker state machine is owned by another system: something else
// trips it, times its cool-down, and closes it again. Refresh components
// never drive those transitions; they only read the breaker's published
// status before sending traffic upstream. This package defines that
// read-side contract:
//
//   - Status: a point-in-time view (state, failure count, reset countdown)
//   - Gateway: the non-blocking accessor refresh components consult
//   - Static / GatewayFunc: in-process gateways for tests and defaults
//   - KVGateway: production gateway watching a JetStream KV key
//
// # Status Protocol
//
// The breaker owner publishes a JSON document:
//
//	{
//	  "state": "open",
//	  "failure_count": 7,
//	  "last_failure_at": "2026-08-22T10:00:00Z",
//	  "reset_after": "30s"
//	}
//
// state is one of "closed", "open", "half_open". reset_after is how long,
// from the moment the document is read, until an open breaker will permit
// a half-open probe; it accepts duration strings or integer nanoseconds.
//
// A closed or half-open breaker allows requests. An open breaker blocks
// them, and callers that see it report suspension instead of attempting
// the upstream.
//
// # Gateways
//
// Production deployments watch the status key in JetStream KV:
//
//	gw, err := breaker.NewKVGateway(ctx, bucket, "upstream.breaker")
//	if err != nil {
//		return err
//	}
//	defer gw.Close()
//
//	if gw.Status().Allows() {
//		// safe to fetch
//	}
//
// Status() reads a locally cached copy maintained by the watcher, so it is
// safe to call on every fetch attempt.
//
// Tests and breaker-less deployments use Static:
//
//	gw := breaker.AlwaysClosed()
//	gw.Set(breaker.Status{State: breaker.StateOpen, ResetAfter: 10 * time.Second})
//
// # Fail-Open Semantics
//
// When no status can be read (key absent, deleted, or unparseable) the
// gateway reports a closed breaker. Suspending refreshes on a missing
// document would trade a working upstream for silence; letting the fetch
// proceed surfaces the true upstream state through the fetch path.
package breaker
