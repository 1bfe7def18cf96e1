package fetch

import (
	"log/slog"

	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/pkg/retry"
)

// FetcherOption is a functional option for configuring the Fetcher
type FetcherOption func(*Fetcher) error

// WithLogger sets a custom structured logger for the fetcher
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) error {
		if logger != nil {
			f.logger = logger
		}
		return nil
	}
}

// WithMetrics enables fetch metrics collection using the provided registry.
// Attempts, failures by kind, suspensions, and durations are tracked per tier.
func WithMetrics(registry *metric.MetricsRegistry) FetcherOption {
	return func(f *Fetcher) error {
		if registry == nil {
			return nil // No metrics
		}

		metrics, err := newFetchMetrics(registry)
		if err != nil {
			return err
		}

		f.metrics = metrics
		return nil
	}
}

// WithBackoff replaces the inter-attempt delay shape. Only the delay fields
// are used; the attempt budget always comes from the request. retry.Fixed
// gives a constant delay, the default is exponential with jitter.
func WithBackoff(cfg retry.Config) FetcherOption {
	return func(f *Fetcher) error {
		f.backoff = cfg
		return nil
	}
}

// WithRetryServerFaults controls whether server-fault statuses (5xx) consume
// further attempts. Enabled by default; deployments fronting upstreams that
// return 5xx for permanent conditions can turn it off. Client faults (4xx)
// are never retried either way.
func WithRetryServerFaults(enabled bool) FetcherOption {
	return func(f *Fetcher) error {
		f.retryServerFaults = enabled
		return nil
	}
}
