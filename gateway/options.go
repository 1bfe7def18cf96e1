package gateway

import (
	"log/slog"

	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/pkg/security"
)

// Option configures optional Server behavior.
type Option func(*Server) error

// WithLogger sets the logger used for lifecycle and client events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics enables request, client, drop, and snapshot metrics on the
// given registry. A nil registry leaves metrics disabled.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) error {
		if registry == nil {
			return nil
		}
		metrics, err := newGatewayMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = metrics
		return nil
	}
}

// WithSecurity applies TLS settings to the listener. With server TLS
// enabled the gateway serves HTTPS and WSS only.
func WithSecurity(cfg security.Config) Option {
	return func(s *Server) error {
		s.security = cfg
		return nil
	}
}

// WithServiceName sets the component name the aggregated health report is
// published under. Empty keeps the default.
func WithServiceName(name string) Option {
	return func(s *Server) error {
		if name != "" {
			s.name = name
		}
		return nil
	}
}
