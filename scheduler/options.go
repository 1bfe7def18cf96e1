package scheduler

import (
	"log/slog"

	"github.com/c360/refreshkit/metric"
)

// Option configures optional Scheduler behavior.
type Option func(*Scheduler) error

// WithLogger sets the logger used for tier lifecycle and update events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics enables tick, update, resume, and tier-state metrics on the
// given registry. A nil registry leaves metrics disabled.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Scheduler) error {
		if registry == nil {
			return nil
		}
		metrics, err := newSchedulerMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = metrics
		return nil
	}
}
