// Package types contains shared domain types used across the refresh pipeline
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/refreshkit/errors"
)

// Tier represents a refresh-priority class. Each tier owns its own cadence,
// cache TTL, and target set, and schedules independently of every other tier.
type Tier string

// Built-in tiers. Deployments may define additional tiers; any non-empty
// name is valid.
const (
	TierCritical   Tier = "critical"
	TierBackground Tier = "background"
)

// String returns the tier name
func (t Tier) String() string {
	return string(t)
}

// Valid reports whether the tier carries a usable name
func (t Tier) Valid() bool {
	return t != ""
}

// TierConfig binds a tier to its refresh cadence, cache TTL, fetch bounds,
// and the targets it keeps fresh.
type TierConfig struct {
	Tier        Tier          `json:"tier"`         // Tier name (e.g. "critical", "background")
	Cadence     time.Duration `json:"cadence"`      // Interval between scheduled refresh ticks
	TTL         time.Duration `json:"ttl"`          // Freshness window for cached values
	Targets     []string      `json:"targets"`      // Upstream targets refreshed on each tick
	Timeout     time.Duration `json:"timeout"`      // Per-attempt fetch timeout
	MaxAttempts int           `json:"max_attempts"` // Total fetch attempts per target per tick
}

// Validate ensures the tier configuration is usable for scheduling
func (tc TierConfig) Validate() error {
	if !tc.Tier.Valid() {
		return errors.WrapInvalid(
			errors.ErrMissingConfig,
			"TierConfig",
			"Validate",
			"tier name cannot be empty",
		)
	}
	if tc.Cadence <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TierConfig", "Validate",
			fmt.Sprintf("tier %s: cadence must be positive, got %v", tc.Tier, tc.Cadence))
	}
	if tc.TTL <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TierConfig", "Validate",
			fmt.Sprintf("tier %s: ttl must be positive, got %v", tc.Tier, tc.TTL))
	}
	if len(tc.Targets) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "TierConfig", "Validate",
			fmt.Sprintf("tier %s: at least one target is required", tc.Tier))
	}
	for _, target := range tc.Targets {
		if target == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "TierConfig", "Validate",
				fmt.Sprintf("tier %s: targets cannot be empty strings", tc.Tier))
		}
	}
	if tc.Timeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TierConfig", "Validate",
			fmt.Sprintf("tier %s: timeout must be positive, got %v", tc.Tier, tc.Timeout))
	}
	if tc.MaxAttempts < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TierConfig", "Validate",
			fmt.Sprintf("tier %s: max_attempts must be at least 1, got %d", tc.Tier, tc.MaxAttempts))
	}
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for TierConfig to support
// duration strings (e.g., "5s", "1m") in addition to nanosecond integers.
func (tc *TierConfig) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type Alias TierConfig

	aux := &struct {
		Cadence json.RawMessage `json:"cadence,omitempty"`
		TTL     json.RawMessage `json:"ttl,omitempty"`
		Timeout json.RawMessage `json:"timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(tc),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Cadence) > 0 {
		cadence, err := parseDurationField(aux.Cadence, "cadence")
		if err != nil {
			return err
		}
		tc.Cadence = cadence
	}

	if len(aux.TTL) > 0 {
		ttl, err := parseDurationField(aux.TTL, "ttl")
		if err != nil {
			return err
		}
		tc.TTL = ttl
	}

	if len(aux.Timeout) > 0 {
		timeout, err := parseDurationField(aux.Timeout, "timeout")
		if err != nil {
			return err
		}
		tc.Timeout = timeout
	}

	return nil
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
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '5s') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
