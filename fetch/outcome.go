package fetch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/c360/refreshkit/errors"
)

// Variant identifies which arm of an Outcome is populated
type Variant int

const (
	// VariantNone is the zero value: no fetch completed, nothing to report
	VariantNone Variant = iota
	// VariantSuccess carries a fetched value and its fetch time
	VariantSuccess
	// VariantFailure records exhausted or aborted attempts with a failure kind
	VariantFailure
	// VariantSuspended records a fetch stopped by an open circuit breaker
	VariantSuspended
)

// String returns the string representation of Variant
func (v Variant) String() string {
	switch v {
	case VariantNone:
		return "none"
	case VariantSuccess:
		return "success"
	case VariantFailure:
		return "failure"
	case VariantSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// FailureKind classifies why a fetch failed. The values double as metric
// label values, so they stay lowercase and stable.
type FailureKind string

const (
	// KindTimeout means the attempt exceeded its per-attempt deadline
	KindTimeout FailureKind = "timeout"
	// KindNetwork means the transport could not complete the exchange
	KindNetwork FailureKind = "network"
	// KindServer means the upstream answered with a non-success status
	KindServer FailureKind = "server_error"
)

// ReasonCircuitOpen is the suspension reason recorded when the circuit
// breaker gateway reports an open circuit.
const ReasonCircuitOpen = "circuit-open"

// Outcome is the terminal result of one logical fetch. Exactly one variant
// is populated; Variant says which. The fetch loop reports every completed
// run through an Outcome value rather than an error, so callers always have
// a concrete disposition to act on.
type Outcome struct {
	Variant  Variant
	Attempts int // Transport attempts actually made

	// Populated when Variant == VariantSuccess
	Value     json.RawMessage
	FetchedAt time.Time

	// Populated when Variant == VariantFailure
	Kind          FailureKind
	Status        int   // Upstream status when Kind == KindServer, else 0
	Err           error // Last attempt's error, kept for logging
	LastAttemptAt time.Time

	// Populated when Variant == VariantSuspended
	Reason string
}

// Success builds a successful outcome for a value fetched at the given time.
func Success(value json.RawMessage, fetchedAt time.Time) Outcome {
	return Outcome{
		Variant:   VariantSuccess,
		Value:     value,
		FetchedAt: fetchedAt,
	}
}

// Failure builds a failed outcome of the given kind. LastAttemptAt records
// when the final attempt concluded.
func Failure(kind FailureKind, lastAttemptAt time.Time) Outcome {
	return Outcome{
		Variant:       VariantFailure,
		Kind:          kind,
		LastAttemptAt: lastAttemptAt,
	}
}

// Suspended builds an outcome for a fetch stopped by the circuit breaker.
func Suspended(reason string) Outcome {
	return Outcome{
		Variant: VariantSuspended,
		Reason:  reason,
	}
}

// IsSuccess reports whether the fetch produced a value
func (o Outcome) IsSuccess() bool {
	return o.Variant == VariantSuccess
}

// IsFailure reports whether the fetch exhausted its attempts
func (o Outcome) IsFailure() bool {
	return o.Variant == VariantFailure
}

// IsSuspended reports whether the circuit breaker stopped the fetch
func (o Outcome) IsSuspended() bool {
	return o.Variant == VariantSuspended
}

// classifyFailure maps a transport error to the failure taxonomy. Upstream
// status errors keep their status code; deadline errors become timeouts;
// everything else is a network-level failure.
func classifyFailure(err error) (FailureKind, int) {
	var se *errors.StatusError
	if stderrors.As(err, &se) {
		return KindServer, se.Status
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, errors.ErrTimeout) {
		return KindTimeout, 0
	}
	return KindNetwork, 0
}
