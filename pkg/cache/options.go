package cache

import (
	"time"

	"github.com/c360/refreshkit/metric"
)

// Option tunes a cache at construction time.
type Option[V any] func(*cacheOptions[V])

// cacheOptions collects constructor settings. Statistics are always on;
// Prometheus export only happens when WithMetrics supplies a registry.
type cacheOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string // component label on exported series
	evictCallback EvictCallback[V]
	statsInterval time.Duration // cadence for refreshing the size gauge
}

// WithMetrics exports the cache's counters through registry, labelled with
// prefix. A nil registry or empty prefix leaves export off.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback invokes callback with each evicted key and value.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) { opts.evictCallback = callback }
}

// WithStatsInterval overrides how often the size gauge is refreshed.
// Non-positive intervals are ignored.
func WithStatsInterval[V any](interval time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if interval > 0 {
			opts.statsInterval = interval
		}
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{statsInterval: 30 * time.Second}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
