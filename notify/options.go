package notify

import (
	"log/slog"

	"github.com/c360/refreshkit/metric"
)

// Option configures optional Publisher behavior.
type Option func(*Publisher) error

// WithLogger sets the logger used for publish and drop events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithMetrics enables publish, drop, error, and queue-depth metrics on the
// given registry. A nil registry leaves metrics disabled.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Publisher) error {
		if registry == nil {
			return nil
		}
		metrics, err := newPublisherMetrics(registry)
		if err != nil {
			return err
		}
		p.metrics = metrics
		return nil
	}
}
