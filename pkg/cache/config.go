package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/refreshkit/errors"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled.
	Enabled bool `json:"enabled" schema:"editable,type:bool,description:Enable caching"`

	// DefaultTTL is the time-to-live applied to entries stored without an explicit TTL.
	DefaultTTL time.Duration `json:"default_ttl" schema:"editable,type:string,description:Default time-to-live for entries"`

	// CleanupInterval is how often to run the background sweep.
	CleanupInterval time.Duration `json:"cleanup_interval" schema:"editable,type:string,description:How often to sweep expired entries"`

	// StatsInterval is how often to update aggregate statistics.
	StatsInterval time.Duration `json:"stats_interval" schema:"editable,type:string,description:How often to update aggregate statistics"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 1 * time.Minute,
		StatsInterval:   30 * time.Second,
	}
}

func invalidConfig(format string, args ...any) error {
	return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
		fmt.Sprintf(format, args...))
}

// Validate checks the configuration. A disabled cache needs none.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch {
	case c.DefaultTTL <= 0:
		return invalidConfig("default_ttl must be positive, got %v", c.DefaultTTL)
	case c.CleanupInterval <= 0:
		return invalidConfig("cleanup_interval must be positive, got %v", c.CleanupInterval)
	case c.StatsInterval < 0:
		return invalidConfig("stats_interval must be positive when specified, got %v", c.StatsInterval)
	}
	return nil
}

// NewFromConfig creates a cache from configuration, a no-op cache when
// caching is disabled. Additional functional options layer on top of what
// the config specifies.
func NewFromConfig[V any](ctx context.Context, config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewFromConfig", "config validation failed")
	}
	if !config.Enabled {
		return NewNoop[V](), nil
	}

	if config.StatsInterval > 0 {
		options = append(options, WithStatsInterval[V](config.StatsInterval))
	}
	return NewTTL[V](ctx, config.DefaultTTL, config.CleanupInterval, options...)
}

// NewTTL creates a TTL cache. Stats are always collected; WithMetrics also
// exports them to Prometheus.
func NewTTL[V any](ctx context.Context, defaultTTL, cleanupInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	opts := applyOptions(options...)
	return newTTLCache[V](ctx, defaultTTL, cleanupInterval, opts)
}

// NewNoop creates a cache that stores nothing and always misses, for
// deployments that disable caching via configuration.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{}
}

type noopCache[V any] struct{}

func (c *noopCache[V]) Get(string) (V, bool) { var zero V; return zero, false }

func (c *noopCache[V]) Set(string, V) (bool, error) { return false, nil }

func (c *noopCache[V]) SetWithTTL(string, V, time.Duration) (bool, error) { return false, nil }

func (c *noopCache[V]) Delete(string) (bool, error) { return false, nil }

func (c *noopCache[V]) Clear() error { return nil }

func (c *noopCache[V]) Size() int { return 0 }

func (c *noopCache[V]) Keys() []string { return nil }

func (c *noopCache[V]) Sweep() int { return 0 }

func (c *noopCache[V]) Stats() *Statistics { return nil }

func (c *noopCache[V]) Close() error { return nil }

// UnmarshalJSON accepts durations as strings ("1h", "30s") or as int64
// nanoseconds, which older deployment files still use.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		DefaultTTL      json.RawMessage `json:"default_ttl,omitempty"`
		CleanupInterval json.RawMessage `json:"cleanup_interval,omitempty"`
		StatsInterval   json.RawMessage `json:"stats_interval,omitempty"`
		*plain
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	fields := []struct {
		raw  json.RawMessage
		name string
		dst  *time.Duration
	}{
		{aux.DefaultTTL, "default_ttl", &c.DefaultTTL},
		{aux.CleanupInterval, "cleanup_interval", &c.CleanupInterval},
		{aux.StatsInterval, "stats_interval", &c.StatsInterval},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		d, err := parseDurationField(f.raw, f.name)
		if err != nil {
			return err
		}
		*f.dst = d
	}
	return nil
}

// parseDurationField decodes one duration value in either accepted form.
func parseDurationField(data json.RawMessage, fieldName string) (time.Duration, error) {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		d, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", fieldName, err)
		}
		return d, nil
	}

	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '1h') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
