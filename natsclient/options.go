package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/refreshkit/metric"
)

// Logger is the logging surface the client writes to. The default
// implementation routes through slog so client output lines up with the
// rest of the pipeline.
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), "component", "natsclient")
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "natsclient")
}

func (l *defaultLogger) Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "natsclient")
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// set adapts a plain field assignment to a ClientOption.
func set(fn func(*Client)) ClientOption {
	return func(c *Client) error {
		fn(c)
		return nil
	}
}

// WithMaxReconnects caps reconnection attempts. -1 reconnects forever.
func WithMaxReconnects(max int) ClientOption {
	return set(func(c *Client) { c.maxReconnects = max })
}

// WithReconnectWait sets the pause between reconnection attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return set(func(c *Client) { c.reconnectWait = d })
}

// WithPingInterval sets how often the connection is pinged.
func WithPingInterval(d time.Duration) ClientOption {
	return set(func(c *Client) { c.pingInterval = d })
}

// WithHealthInterval sets the cadence of the background health probe.
func WithHealthInterval(d time.Duration) ClientOption {
	return set(func(c *Client) { c.healthInterval = d })
}

// WithLogger replaces the client's logger. Nil restores the default.
func WithLogger(logger Logger) ClientOption {
	return set(func(c *Client) {
		if logger == nil {
			logger = &defaultLogger{}
		}
		c.logger = logger
	})
}

// WithDisconnectCallback registers a callback for disconnect events, on top
// of the client's own handling.
func WithDisconnectCallback(fn func(error)) ClientOption {
	return set(func(c *Client) { c.onDisconnect = fn })
}

// WithReconnectCallback registers a callback for reconnect events, on top
// of the client's own handling.
func WithReconnectCallback(fn func()) ClientOption {
	return set(func(c *Client) { c.onReconnect = fn })
}

// WithHealthChangeCallback registers a callback fired when the health probe
// flips between healthy and unhealthy.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return set(func(c *Client) { c.onHealthChange = fn })
}

// WithConnectionLostCallback registers a callback fired when the connection
// is gone for good (reconnect attempts exhausted).
func WithConnectionLostCallback(fn func(error)) ClientOption {
	return set(func(c *Client) { c.onConnectionLost = fn })
}

// WithCircuitBreakerThreshold sets how many consecutive failures open the
// circuit. Values below 1 fall back to the default of 5.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return set(func(c *Client) {
		if threshold < 1 {
			threshold = 5
		}
		c.circuitThreshold = threshold
	})
}

// WithMaxBackoff caps the circuit breaker's probe backoff. Values below one
// second fall back to one minute.
func WithMaxBackoff(d time.Duration) ClientOption {
	return set(func(c *Client) {
		if d < time.Second {
			d = time.Minute
		}
		c.maxBackoff = d
	})
}

// WithCredentials sets username and password authentication.
func WithCredentials(username, password string) ClientOption {
	return set(func(c *Client) {
		c.username = username
		c.password = password
	})
}

// WithToken sets token authentication.
func WithToken(token string) ClientOption {
	return set(func(c *Client) { c.token = token })
}

// WithTLS enables TLS. Cert and key enable mutual TLS; the CA file pins the
// server certificate.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return set(func(c *Client) {
		c.tlsCertFile = certFile
		c.tlsKeyFile = keyFile
		c.tlsCAFile = caFile
		c.tlsEnabled = true
	})
}

// WithName sets the connection name reported to the server.
func WithName(name string) ClientOption {
	return set(func(c *Client) { c.clientName = name })
}

// WithTimeout sets the connection timeout.
func WithTimeout(d time.Duration) ClientOption {
	return set(func(c *Client) { c.timeout = d })
}

// WithDrainTimeout bounds how long Close waits for in-flight messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return set(func(c *Client) { c.drainTimeout = d })
}

// WithCompression enables wire compression.
func WithCompression(enabled bool) ClientOption {
	return set(func(c *Client) { c.compression = enabled })
}

// WithMetrics enables connection metrics collection using the provided
// registry. Connection status, RTT, reconnects, and operation errors are
// reported through the core NATS palette.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}

		metrics, err := newConnMetrics(registry)
		if err != nil {
			return err
		}

		c.metrics = metrics
		return nil
	}
}
