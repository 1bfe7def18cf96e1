package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/refreshkit/breaker"
	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/pkg/retry"
)

// Fetcher runs bounded, breaker-gated fetches against a Transport. It is
// safe for concurrent use; each Fetch call owns its own attempt loop and
// shares only the transport, gateway, and metrics.
type Fetcher struct {
	transport Transport
	gateway   breaker.Gateway
	logger    *slog.Logger
	metrics   *fetchMetrics

	// backoff shapes the inter-attempt delay. MaxAttempts is taken from
	// each request, never from here.
	backoff retry.Config

	// retryServerFaults controls whether 5xx statuses consume further
	// attempts. Client faults (4xx) are never retried regardless.
	retryServerFaults bool
}

// NewFetcher creates a fetcher over the given transport. A nil gateway is
// replaced with one that always allows fetches, so deployments without a
// circuit breaker need no extra wiring.
func NewFetcher(transport Transport, gateway breaker.Gateway, opts ...FetcherOption) (*Fetcher, error) {
	if transport == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Fetcher", "NewFetcher",
			"transport is required")
	}
	if gateway == nil {
		gateway = breaker.AlwaysClosed()
	}

	f := &Fetcher{
		transport: transport,
		gateway:   gateway,
		logger:    slog.Default(),
		backoff: retry.Config{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		retryServerFaults: true,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(f); err != nil {
			return nil, errors.WrapTransient(err, "Fetcher", "NewFetcher", "applying option")
		}
	}

	return f, nil
}

// Fetch runs the attempt loop for one request and reports how it ended.
//
// The circuit breaker gateway is consulted before every attempt, including
// retries. An open circuit suspends the fetch immediately: no attempt is
// consumed and the transport is not touched. Otherwise each attempt runs
// under the request timeout; transient failures wait out the backoff delay
// and try again until the attempt budget is spent, while non-retryable
// failures spend the whole budget at once.
//
// Every completed fetch terminates in an Outcome, never an error. The error
// return is non-nil only when the request itself is invalid or the context
// was cancelled mid-flight; a cancelled fetch reports nothing, so callers
// cannot mistake a torn-down attempt for a real result.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	attempts := 0

	cfg := f.backoff
	cfg.MaxAttempts = req.MaxAttempts

	outcome, retryErr := retry.DoWithResult(ctx, cfg, func() (Outcome, error) {
		// Checked before the first attempt and before every retry. The
		// open-circuit path must not consume an attempt.
		if status := f.gateway.Status(); !status.Allows() {
			return Suspended(ReasonCircuitOpen), retry.NonRetryable(errors.ErrCircuitOpen)
		}

		attempts++
		if f.metrics != nil {
			f.metrics.recordAttempt(req.Tier)
		}

		value, err := f.attempt(ctx, req)
		if err != nil {
			kind, status := classifyFailure(err)
			if f.metrics != nil {
				f.metrics.recordFailure(req.Tier, kind)
			}

			out := Failure(kind, time.Now())
			out.Status = status
			out.Err = err

			if !f.retryable(err) {
				return out, retry.NonRetryable(err)
			}

			f.logger.Debug("Fetch attempt failed",
				"target", req.Target,
				"tier", req.Tier.String(),
				"attempt", attempts,
				"max_attempts", req.MaxAttempts,
				"kind", string(kind),
				"error", err)
			return out, err
		}

		return Success(value, time.Now()), nil
	})

	if ctx.Err() != nil {
		// Teardown aborts the fetch outright. Nothing is reported: a
		// cancelled run must not look like a failure of the target.
		return Outcome{}, errors.WrapTransient(ctx.Err(), "Fetcher", "Fetch",
			fmt.Sprintf("fetch aborted for %s", req.Key()))
	}
	if retryErr != nil && outcome.Variant == VariantNone {
		// The retry layer rejected its configuration before any attempt ran
		return Outcome{}, errors.WrapInvalid(retryErr, "Fetcher", "Fetch",
			"retry configuration rejected")
	}

	outcome.Attempts = attempts
	f.observe(req, outcome, time.Since(start))
	return outcome, nil
}

// attempt runs a single transport call bounded by the request timeout.
func (f *Fetcher) attempt(ctx context.Context, req Request) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()
	return f.transport.Send(attemptCtx, req)
}

// retryable decides whether a failed attempt may consume another attempt.
// Client-fault statuses never improve on retry, so they always exhaust the
// budget immediately. Server-fault statuses follow the deployment policy.
func (f *Fetcher) retryable(err error) bool {
	if errors.IsServerFault(err) {
		return f.retryServerFaults
	}
	return errors.Classify(err) == errors.ErrorTransient
}

// observe records the terminal disposition of a fetch in logs and metrics.
func (f *Fetcher) observe(req Request, outcome Outcome, elapsed time.Duration) {
	if f.metrics != nil {
		f.metrics.recordDuration(req.Tier, elapsed)
	}

	switch outcome.Variant {
	case VariantSuccess:
		f.logger.Debug("Fetch succeeded",
			"target", req.Target,
			"tier", req.Tier.String(),
			"attempts", outcome.Attempts,
			"duration", elapsed)
	case VariantFailure:
		f.logger.Warn("Fetch failed",
			"target", req.Target,
			"tier", req.Tier.String(),
			"kind", string(outcome.Kind),
			"status", outcome.Status,
			"attempts", outcome.Attempts,
			"duration", elapsed,
			"error", outcome.Err)
	case VariantSuspended:
		if f.metrics != nil {
			f.metrics.recordSuspension(req.Tier)
		}
		f.logger.Info("Fetch suspended: circuit open",
			"target", req.Target,
			"tier", req.Tier.String(),
			"attempts_made", outcome.Attempts)
	}
}
