package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/types"
)

// Request describes one logical fetch: which target to refresh, on behalf of
// which tier, and the bounds the attempt loop must respect. Requests are
// immutable once handed to a Fetcher; the scheduler builds a fresh one for
// every tick.
type Request struct {
	Target      string        `json:"target"`       // Upstream target to refresh
	Tier        types.Tier    `json:"tier"`         // Tier the fetch runs on behalf of
	Timeout     time.Duration `json:"timeout"`      // Per-attempt transport timeout
	MaxAttempts int           `json:"max_attempts"` // Total transport attempts allowed
}

// Validate ensures the request is usable before any attempt runs
func (r Request) Validate() error {
	if r.Target == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Request", "Validate",
			"target cannot be empty")
	}
	if !r.Tier.Valid() {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Request", "Validate",
			fmt.Sprintf("target %s: tier name cannot be empty", r.Target))
	}
	if r.Timeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Request", "Validate",
			fmt.Sprintf("target %s: timeout must be positive, got %v", r.Target, r.Timeout))
	}
	if r.MaxAttempts < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Request", "Validate",
			fmt.Sprintf("target %s: max_attempts must be at least 1, got %d", r.Target, r.MaxAttempts))
	}
	return nil
}

// Key returns the canonical "<tier>/<target>" key for the request.
func (r Request) Key() string {
	return types.RefreshKey(r.Tier, r.Target)
}

// Transport performs a single attempt against an upstream metrics endpoint.
//
// The context carries the per-attempt timeout; implementations must honor it
// and return promptly once it expires. Errors drive the retry policy, so
// implementations should surface them with enough structure to classify:
// return *errors.StatusError for a non-success upstream status, wrap
// errors.ErrTimeout or context.DeadlineExceeded for attempts that ran out of
// time, and anything else is treated as a network-level failure.
//
// A Transport may be called concurrently for different targets. It must not
// retry internally: the attempt loop above it owns the retry budget.
type Transport interface {
	Send(ctx context.Context, req Request) (json.RawMessage, error)
}

// TransportFunc adapts a plain function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Send implements Transport
func (f TransportFunc) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}
