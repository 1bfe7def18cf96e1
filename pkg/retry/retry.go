// Package retry provides bounded retry with exponential backoff for fetch operations
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// NonRetryableError marks failures the loop must not repeat.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return fmt.Sprintf("non-retryable: %v", e.Err) }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps an error to indicate it should not be retried.
// The retry loop fails immediately on such errors instead of consuming
// the remaining attempts.
func NonRetryable(err error) error {
	if err != nil {
		err = &NonRetryableError{Err: err}
	}
	return err
}

// IsNonRetryable reports whether err was wrapped by NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config shapes the backoff curve for Do.
type Config struct {
	MaxAttempts  int           // Total attempts including the first (0 = run once)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Ceiling for the backoff curve
	Multiplier   float64       // Backoff multiplier (1.0 = fixed delay, typically 2.0)
	AddJitter    bool          // Randomize delays so herds of retriers spread out
}

// DefaultConfig returns the standard backoff curve for fetch operations.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// sanitize validates the config and fills unset fields with defaults.
func (cfg *Config) sanitize() error {
	switch {
	case cfg.InitialDelay < 0:
		return errors.New("retry: InitialDelay cannot be negative")
	case cfg.MaxDelay < 0:
		return errors.New("retry: MaxDelay cannot be negative")
	case cfg.Multiplier < 0:
		return errors.New("retry: Multiplier cannot be negative")
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	switch {
	case cfg.Multiplier == 0:
		cfg.Multiplier = 2.0
	case cfg.Multiplier > 1000:
		// Clamp so the backoff curve cannot overflow
		cfg.Multiplier = 1000
	}

	if cfg.MaxDelay < cfg.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return nil
}

// next advances the backoff curve, saturating at MaxDelay
func (cfg Config) next(delay time.Duration) time.Duration {
	scaled := float64(delay) * cfg.Multiplier
	if scaled >= float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(scaled)
}

// jittered adds up to 25% extra sleep to spread synchronized retriers
func (cfg Config) jittered(delay time.Duration) time.Duration {
	if cfg.AddJitter && delay >= 4 {
		return delay + rand.N(delay/4)
	}
	return delay
}

// Do executes fn, retrying failures with exponential backoff until it
// succeeds, the attempts are exhausted, the error is non-retryable, or the
// context is cancelled. Backoff sleeps are timer-driven and abort promptly
// on cancellation.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.sanitize(); err != nil {
		return err
	}

	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		// Non-retryable failures abort without consuming remaining attempts
		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, err)
		}

		if waitErr := wait(ctx, cfg.jittered(delay)); waitErr != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, waitErr)
		}
		delay = cfg.next(delay)
	}
}

// wait blocks for d or until ctx is cancelled
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DoWithResult runs fn under the same policy as Do, passing its value through.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() (err error) {
		out, err = fn()
		return err
	})
	return out, err
}

// Fixed returns a config with a constant inter-attempt delay and no jitter,
// the simplest useful retry shape.
func Fixed(attempts int, delay time.Duration) Config {
	return Config{MaxAttempts: attempts, InitialDelay: delay, MaxDelay: delay, Multiplier: 1.0}
}

// Quick returns a config tuned for fast retries during startup.
func Quick() Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 10
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxDelay = 1 * time.Second
	cfg.Multiplier = 1.5
	return cfg
}

// Persistent returns a config that keeps trying long enough for a critical
// resource to come back.
func Persistent() Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 30
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.MaxDelay = 10 * time.Second
	return cfg
}
