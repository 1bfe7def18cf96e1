// Package retry provides bounded exponential backoff for transient failures.
//
// # Overview
//
// This package implements the attempt loop used by the fetch layer and the
// KV compare-and-swap helpers. Every loop is bounded: a fixed number of
// attempts, a capped backoff curve, and prompt abort on context
// cancellation. Callers that know an error will never succeed on retry wrap
// it with NonRetryable so the loop fails fast instead of burning the
// remaining attempts.
//
// # Core Functions
//
//   - Do: Execute a function with retry and exponential backoff
//   - DoWithResult: Same loop, returns both result and error
//   - NonRetryable / IsNonRetryable: Mark and detect errors that must not be retried
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Fixed(n, d): n attempts with a constant delay and no jitter
//   - Quick(): 10 attempts, 50ms-1s delay (component startup)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// # Usage Examples
//
// Retrying a fetch attempt, aborting early on a client fault:
//
//	payload, err := retry.DoWithResult(ctx, cfg, func() (json.RawMessage, error) {
//	    data, err := transport.Send(ctx, req)
//	    if err != nil && errors.IsClientFault(err) {
//	        return nil, retry.NonRetryable(err)
//	    }
//	    return data, err
//	})
//
// Connecting during startup with quick retries:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Custom configuration:
//
//	cfg := retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 200 * time.Millisecond,
//	    MaxDelay:     10 * time.Second,
//	    Multiplier:   2.0,
//	    AddJitter:    true,
//	}
//	err := retry.Do(ctx, cfg, operation)
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breaking (the breaker package owns that decision)
//   - No metrics collection (the fetcher instruments its own attempts)
//   - No error classification beyond the NonRetryable marker (caller decides)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// All retry operations respect context cancellation and stop retrying
// immediately when the context is cancelled, whether during an attempt or
// during a backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Jitter draws from math/rand/v2,
// which needs no locking at the call site.
package retry
