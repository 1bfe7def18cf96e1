// Package fetch runs bounded, breaker-gated fetches against upstream
// metrics endpoints.
//
// # Overview
//
// The Fetcher is the only component that talks to upstreams. It wraps a
// Transport (one attempt per call) in an attempt loop that enforces the
// per-attempt timeout, the total attempt budget, the inter-attempt backoff,
// and the circuit breaker gate. Everything above it (scheduling, caching,
// fallback) works purely with the Outcome values it produces.
//
// # Outcome Model
//
// A fetch never reports through an error. Every completed run terminates in
// exactly one of three outcomes:
//
//   - Success: the upstream answered; the outcome carries the raw value and
//     the time it was fetched.
//   - Failure: the attempt budget is spent. The outcome records the failure
//     kind (timeout, network, or server_error with the upstream status), the
//     last attempt's error, and when that attempt concluded.
//   - Suspended: the circuit breaker reported an open circuit before an
//     attempt could run. No attempt was consumed and the transport was not
//     touched.
//
// The error return of Fetch exists only for requests that are invalid on
// arrival and for context cancellation. A cancelled fetch reports nothing at
// all: teardown must not masquerade as upstream failure.
//
// # Retry Policy
//
// Failed attempts are classified before the loop decides whether to spend
// another attempt:
//
//   - Timeouts and network-level failures are transient and retry until the
//     budget runs out.
//   - Client-fault statuses (4xx) mean the request itself is wrong. They
//     never retry; the first such answer spends the whole budget.
//   - Server-fault statuses (5xx) retry by default, but the policy is
//     deployment-configurable through WithRetryServerFaults.
//
// The delay between attempts defaults to exponential backoff with jitter.
// WithBackoff swaps in any other shape, including a fixed delay via
// retry.Fixed.
//
// # Circuit Breaker Gate
//
// The breaker gateway is consulted before the first attempt and before every
// retry. This matters mid-loop: a circuit that opens after attempt two of
// three suspends the fetch instead of burning attempt three into a known-bad
// upstream. Suspension is not failure; the scheduler treats it as a signal
// to stand down until the breaker's reset window passes.
//
// # Quick Start
//
//	transport := fetch.TransportFunc(func(ctx context.Context, req fetch.Request) (json.RawMessage, error) {
//		// one attempt against the upstream; honor ctx
//		return callUpstream(ctx, req.Target)
//	})
//
//	fetcher, err := fetch.NewFetcher(transport, gateway,
//		fetch.WithLogger(logger),
//		fetch.WithMetrics(registry),
//	)
//	if err != nil {
//		return err
//	}
//
//	outcome, err := fetcher.Fetch(ctx, fetch.Request{
//		Target:      "revenue",
//		Tier:        types.TierCritical,
//		Timeout:     3 * time.Second,
//		MaxAttempts: 3,
//	})
//	if err != nil {
//		return err // invalid request or cancelled context
//	}
//	switch {
//	case outcome.IsSuccess():
//		store(outcome.Value, outcome.FetchedAt)
//	case outcome.IsFailure():
//		degrade(outcome.Kind, outcome.LastAttemptAt)
//	case outcome.IsSuspended():
//		standDown()
//	}
//
// # Observability
//
// With WithMetrics, the fetcher tracks attempts, failures by kind,
// suspensions, and run durations, all labeled by tier. Logging is quiet on
// the happy path (debug), warns on exhausted fetches, and notes suspensions
// at info.
package fetch
