package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/types"
)

// DefaultResumeMargin is added to the breaker's reported reset window before
// a suspended tier probes again.
const DefaultResumeMargin = time.Second

// Config holds the scheduler's tier set and suspension tuning.
type Config struct {
	// Tiers each get their own cadence, TTL, targets, and fetch bounds.
	Tiers []types.TierConfig `json:"tiers"`

	// ResumeMargin is the safety margin added to the breaker's ResetAfter
	// when arming the one-shot resume timer. Zero selects the default.
	ResumeMargin time.Duration `json:"resume_margin,omitempty"`
}

// DefaultConfig returns a single-tier configuration suitable for examples
// and tests.
func DefaultConfig() Config {
	return Config{
		Tiers: []types.TierConfig{
			{
				Tier:        types.TierCritical,
				Cadence:     5 * time.Second,
				TTL:         time.Minute,
				Targets:     []string{"revenue"},
				Timeout:     3 * time.Second,
				MaxAttempts: 3,
			},
		},
		ResumeMargin: DefaultResumeMargin,
	}
}

// Validate ensures the configuration can drive scheduling
func (c Config) Validate() error {
	if len(c.Tiers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "scheduler", "Validate",
			"at least one tier is required")
	}

	seen := make(map[types.Tier]bool, len(c.Tiers))
	for _, tierCfg := range c.Tiers {
		if err := tierCfg.Validate(); err != nil {
			return err
		}
		if seen[tierCfg.Tier] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "scheduler", "Validate",
				fmt.Sprintf("tier %s is configured twice", tierCfg.Tier))
		}
		seen[tierCfg.Tier] = true
	}

	if c.ResumeMargin < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "scheduler", "Validate",
			fmt.Sprintf("resume_margin cannot be negative, got %v", c.ResumeMargin))
	}
	return nil
}

// resumeMargin returns the configured margin or the default.
func (c Config) resumeMargin() time.Duration {
	if c.ResumeMargin > 0 {
		return c.ResumeMargin
	}
	return DefaultResumeMargin
}

// UnmarshalJSON implements custom JSON unmarshaling for Config to support
// duration strings (e.g., "1s") in addition to nanosecond integers.
func (c *Config) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type Alias Config

	aux := &struct {
		ResumeMargin json.RawMessage `json:"resume_margin,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.ResumeMargin) > 0 {
		margin, err := parseDurationField(aux.ResumeMargin, "resume_margin")
		if err != nil {
			return err
		}
		c.ResumeMargin = margin
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
