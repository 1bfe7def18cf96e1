package breaker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/refreshkit/errors"
)

// State is the circuit breaker state as published by the breaker owner.
type State string

const (
	// StateClosed means the upstream is healthy and requests may proceed.
	StateClosed State = "closed"

	// StateOpen means the upstream is failing and requests must not be sent.
	StateOpen State = "open"

	// StateHalfOpen means the breaker is probing the upstream with limited
	// requests; callers may proceed.
	StateHalfOpen State = "half_open"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether the state is one of the known values.
func (s State) Valid() bool {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
		return true
	}
	return false
}

// Status is a point-in-time view of the circuit breaker protecting the
// upstream data source. The breaker itself lives outside this process;
// refresh components only read its published status.
type Status struct {
	// State is the breaker state at observation time.
	State State `json:"state"`

	// FailureCount is the number of consecutive upstream failures the
	// breaker has recorded.
	FailureCount int `json:"failure_count,omitempty"`

	// LastFailureAt is when the most recent failure was recorded.
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`

	// ResetAfter is how long, from observation time, until an open breaker
	// will permit a half-open probe. Zero when the breaker is not open.
	ResetAfter time.Duration `json:"reset_after,omitempty"`
}

// Allows reports whether a request may be sent upstream under this status.
// Closed and half-open both permit traffic; only open blocks it.
func (s Status) Allows() bool {
	return s.State != StateOpen
}

// UnmarshalJSON implements custom JSON unmarshaling for Status to support
// duration strings (e.g., "30s") in addition to nanosecond integers for
// the reset_after field.
func (s *Status) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type Alias Status

	aux := &struct {
		ResetAfter json.RawMessage `json:"reset_after,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.ResetAfter) > 0 {
		d, err := parseDurationField(aux.ResetAfter, "reset_after")
		if err != nil {
			return err
		}
		s.ResetAfter = d
	}

	return nil
}

// ParseStatus decodes a published breaker status document. Returns a
// classified invalid error when the payload cannot be decoded or names an
// unknown state.
func ParseStatus(data []byte) (Status, error) {
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, errors.WrapInvalid(err, "breaker", "ParseStatus", "decode status")
	}
	if !status.State.Valid() {
		return Status{}, errors.WrapInvalid(errors.ErrInvalidData, "breaker", "ParseStatus",
			fmt.Sprintf("unknown breaker state %q", status.State))
	}
	return status, nil
}

// Gateway exposes the externally managed circuit breaker to refresh
// components.
type Gateway interface {
	// Status returns the breaker's current view. Implementations must not
	// block: this is consulted before every fetch attempt.
	Status() Status
}

// GatewayFunc adapts a plain function to the Gateway interface.
type GatewayFunc func() Status

// Status implements Gateway.
func (f GatewayFunc) Status() Status {
	return f()
}

// Static is a Gateway with a settable status. It serves as the default
// always-closed gateway when no breaker is deployed, and as a controllable
// gateway in tests.
type Static struct {
	mu     sync.RWMutex
	status Status
}

// NewStatic creates a static gateway reporting the given status.
func NewStatic(status Status) *Static {
	return &Static{status: status}
}

// AlwaysClosed returns a gateway that reports a permanently closed breaker.
func AlwaysClosed() *Static {
	return NewStatic(Status{State: StateClosed})
}

// Status implements Gateway.
func (s *Static) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Set replaces the reported status.
func (s *Static) Set(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// parseDurationField parses a JSON duration field that can be either:
// - An integer (nanoseconds) for backward compatibility
// - A string (duration like "1h", "5m", "30s")
func parseDurationField(data json.RawMessage, fieldName string) (time.Duration, error) {
	// Try parsing as string first (most common case)
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		duration, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", fieldName, err)
		}
		return duration, nil
	}

	// Fall back to integer (nanoseconds) for backward compatibility
	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '30s') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
