// Package natsclient manages the shared NATS connection, guarding it with a
// circuit breaker and exposing JetStream and KV access to the rest of the
// refresh platform.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/refreshkit/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var connStatusNames = [...]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusCircuitOpen:  "circuit_open",
}

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(connStatusNames) {
		return "unknown"
	}
	return connStatusNames[s]
}

// Sentinel errors returned by connection-level operations
var (
	ErrNotConnected      = stderrors.New("not connected to NATS")
	ErrCircuitOpen       = stderrors.New("circuit breaker is open")
	ErrConnectionTimeout = stderrors.New("connection timeout")
)

// Status holds a point-in-time view of the connection for health reporting
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	Reconnects      int32
	RTT             time.Duration
}

// Client wraps a NATS connection with circuit breaking, health monitoring,
// and JetStream access. The refresh service holds one Client for its whole
// lifetime; the fetch transport, config manager, and notifier all share it.
type Client struct {
	url      string
	status   atomic.Value // ConnectionStatus
	failures atomic.Int32
	logger   Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Circuit breaker state. circuitFailures counts failures in the
	// current round and resets each time the circuit opens.
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	maxBackoff       time.Duration

	// Connection tuning
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication. Cleared from memory on Close.
	username string
	password string
	token    string

	// TLS
	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	clientName  string
	compression bool

	// Metrics
	metrics         *connMetrics
	metricsCancel   context.CancelFunc
	metricsInterval time.Duration

	// Callbacks
	onDisconnect     func(error)
	onReconnect      func()
	onHealthChange   func(bool)
	onConnectionLost func(error)

	// Health monitoring
	healthTicker   *time.Ticker
	healthInterval time.Duration
	healthDone     chan struct{}

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a NATS client for the given URL. The zero configuration
// reconnects forever with a 2s wait, which suits a long-running refresh
// daemon; tests usually override with WithMaxReconnects(0).
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           &defaultLogger{},
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		healthInterval:   10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
		metricsInterval:  30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	c.logger.Debugf("NATS client ready for %s (not yet connected)", url)

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// GetConnection returns the underlying NATS connection, or nil before Connect
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// IsHealthy reports whether the connection is established and usable
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the total failure count since the last successful connect
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the current circuit backoff duration
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// bumpBackoff doubles the stored backoff up to the configured ceiling and
// returns the value that was in effect before the bump.
func (c *Client) bumpBackoff() time.Duration {
	current := c.backoff.Load().(time.Duration)
	next := current * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)
	return current
}

// recordFailure counts a connection failure and opens the circuit once the
// threshold for the current round is reached.
func (c *Client) recordFailure() {
	totalFailures := c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	circuitFailures := c.circuitFailures.Add(1)

	c.logger.Debugf("Recorded failure %d (circuit failures: %d)", totalFailures, circuitFailures)

	if circuitFailures < c.circuitThreshold {
		return
	}

	currentStatus := c.Status()
	if currentStatus != StatusCircuitOpen {
		// Only one goroutine wins the transition to open
		if c.status.CompareAndSwap(currentStatus, StatusCircuitOpen) {
			waitFor := c.bumpBackoff()

			c.logger.Printf(
				"Circuit breaker opened after %d failures, backing off for %v",
				circuitFailures,
				waitFor,
			)

			c.metrics.recordCircuit(1)
			c.circuitFailures.Store(0)

			// Re-probe once the backoff elapses
			time.AfterFunc(waitFor, c.testCircuit)
		}
	} else {
		// Failures kept arriving while the circuit was already open,
		// so stretch the backoff for the next probe.
		c.bumpBackoff()
		c.logger.Printf("Circuit breaker still open, increased backoff to %v", c.Backoff())
		c.circuitFailures.Store(0)
	}
}

// resetCircuit clears failure state after a successful operation
func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	c.metrics.recordCircuit(0)

	// Leave the status alone unless we are coming out of an open circuit
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// testCircuit moves an open circuit back to disconnected so the next caller
// may attempt a fresh connection.
func (c *Client) testCircuit() {
	c.logger.Debugf("Testing circuit breaker - attempting to close circuit")

	if c.Status() == StatusCircuitOpen {
		c.logger.Debugf("Circuit breaker test: moving from open to disconnected")
		c.metrics.recordCircuit(2)
		c.setStatus(StatusDisconnected)
	}
}

// WaitForConnection polls until the connection is healthy or the context
// expires. Used at startup so the service does not begin refresh cycles
// against a dead broker.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnectionTimeout, ctx.Err())
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// Connection tuning accessors. These values are fixed at construction, so
// no locking is needed.

func (c *Client) MaxReconnects() int { return c.maxReconnects }

func (c *Client) ReconnectWait() time.Duration { return c.reconnectWait }

func (c *Client) PingInterval() time.Duration { return c.pingInterval }

// ConnectionOptions returns the nats.Option set this client connects with
func (c *Client) ConnectionOptions() []nats.Option {
	return c.buildConnectionOptions()
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}

	if c.compression {
		opts = append(opts, nats.Compression(true))
	}

	return opts
}

// GetStatus returns current status information for health reporting
func (c *Client) GetStatus() *Status {
	lastFailure := c.lastFailure.Load().(time.Time)

	status := &Status{
		Status:          c.Status(),
		FailureCount:    c.failures.Load(),
		LastFailureTime: lastFailure,
	}

	if conn, err := c.liveConn(); err == nil {
		if rtt, err := conn.RTT(); err == nil {
			status.RTT = rtt
		}
	}

	return status
}

// Connect establishes the connection and initializes JetStream. Respects
// the circuit breaker: while the circuit is open the attempt is refused
// immediately with ErrCircuitOpen.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debugf("Circuit breaker is open, skipping connection attempt")
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("Connecting to NATS at %s", c.url)

	opts := c.buildConnectionOptions()

	// nats.Connect has no context variant, so run it in a goroutine and
	// race it against ctx.
	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if js, err := jetstream.New(conn); err == nil {
			c.mu.Lock()
			c.js = js
			c.mu.Unlock()
		}

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			c.recordFailure()
			c.metrics.recordError("connect")

			// recordFailure may have opened the circuit
			if c.Status() == StatusCircuitOpen {
				return ErrCircuitOpen
			}
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		c.recordFailure()
		if c.Status() != StatusCircuitOpen {
			c.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.metrics.recordStatus(true)

	c.logger.Printf("Successfully connected to NATS at %s", c.url)

	if c.healthInterval > 0 {
		c.logger.Debugf("Starting health monitoring with interval %v", c.healthInterval)
		c.startHealthMonitoring()
	}

	if c.metrics != nil && c.metricsInterval > 0 {
		c.logger.Debugf("Starting connection stats polling with interval %v", c.metricsInterval)
		c.metricsCancel = c.metrics.startPoller(context.Background(), c.metricsInterval, c.GetConnection)
	}

	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}

	return nil
}

// Close drains and closes the connection. Safe to call more than once and
// on a client that never connected. Credentials are cleared from memory.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	// Stop background goroutines before taking the main lock
	c.stopHealthMonitoring()

	if c.metricsCancel != nil {
		c.metricsCancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
			c.logger.Errorf("Failed to unsubscribe: %v", err)
		}
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.drainConn(ctx, c.conn); err != nil {
			errs = append(errs, err)
		}
		c.conn.Close()
		c.conn = nil
	}

	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)
	c.metrics.recordStatus(false)

	return stderrors.Join(errs...)
}

// drainConn drains conn, bounded by the configured drain timeout and the
// caller's deadline, whichever is tighter. On timeout or cancellation the
// connection is force-closed by the caller.
func (c *Client) drainConn(ctx context.Context, conn *nats.Conn) error {
	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() { drainDone <- conn.Drain() }()

	select {
	case err := <-drainDone:
		if err != nil {
			c.logger.Errorf("Drain error: %v", err)
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-time.After(drainTimeout):
		c.logger.Errorf("Drain timeout after %v, force closing", drainTimeout)
		return errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", drainTimeout),
			"Client", "Close", "drain timeout")
	case <-ctx.Done():
		c.logger.Errorf("Context cancelled during drain, force closing")
		return errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain")
	}
}

// liveConn snapshots the connection if it is currently usable
func (c *Client) liveConn() (*nats.Conn, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// RTT returns the round-trip time to the NATS server
func (c *Client) RTT() (time.Duration, error) {
	conn, err := c.liveConn()
	if err != nil {
		return 0, err
	}
	return conn.RTT()
}

// Subscribe subscribes to a NATS subject with context propagation.
// Each message handler receives a context derived from the parent context
// with a 30-second timeout for message processing.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		handler(msgCtx, msg.Data)
	})
	if err != nil {
		c.metrics.recordError("subscribe")
		return err
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Publish publishes a message to a NATS subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := c.liveConn()
	if err != nil {
		return err
	}

	if err := conn.Publish(subject, data); err != nil {
		c.metrics.recordError("publish")
		return err
	}
	return nil
}

// Request sends a request and waits for a single reply. The deadline comes
// from the context, so callers control the per-request timeout.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn, err := c.liveConn()
	if err != nil {
		return nil, err
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		c.metrics.recordError("request")
		return nil, err
	}
	return msg.Data, nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream context")
	}

	return c.js, nil
}

// kvGuard refuses bucket operations while disconnected or circuit-open
func (c *Client) kvGuard() (jetstream.JetStream, error) {
	if c.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if c.Status() != StatusConnected {
		return nil, ErrNotConnected
	}

	js, err := c.JetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}
	return js, nil
}

// CreateKeyValueBucket creates a KV bucket, or returns the existing one if
// the name is already in use. Snapshot and breaker persistence buckets are
// created through here at service startup.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.kvGuard()
	if err != nil {
		return nil, err
	}

	// Prefer an existing bucket so restarts keep their snapshots
	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		c.logger.Printf("Using existing KV bucket: %s", cfg.Bucket)
		c.resetCircuit()
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		// Another instance may have created it between the lookup and
		// the create
		if isAlreadyExistsError(err) {
			c.logger.Printf(
				"KV bucket %s already exists (race condition), attempting to get existing bucket",
				cfg.Bucket,
			)
			bucket, err = js.KeyValue(ctx, cfg.Bucket)
			if err != nil {
				c.recordFailure()
				c.metrics.recordError("create_kv_bucket")
				return nil, errors.Wrap(err, "Client", "CreateKeyValueBucket",
					fmt.Sprintf("access existing bucket %s", cfg.Bucket))
			}
			c.logger.Printf("Successfully accessed existing KV bucket: %s", cfg.Bucket)
			c.resetCircuit()
			return bucket, nil
		}
		c.recordFailure()
		c.metrics.recordError("create_kv_bucket")
		return nil, err
	}

	c.logger.Printf("Created new KV bucket: %s", cfg.Bucket)
	c.resetCircuit()
	return bucket, nil
}

// GetKeyValueBucket gets an existing KV bucket
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.kvGuard()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		c.recordFailure()
		c.metrics.recordError("get_kv_bucket")
		return nil, err
	}

	c.resetCircuit()
	return bucket, nil
}

// DeleteKeyValueBucket deletes a KV bucket
func (c *Client) DeleteKeyValueBucket(ctx context.Context, name string) error {
	js, err := c.kvGuard()
	if err != nil {
		return err
	}

	if err := js.DeleteKeyValue(ctx, name); err != nil {
		c.recordFailure()
		c.metrics.recordError("delete_kv_bucket")
		return err
	}

	c.resetCircuit()
	return nil
}

// kvStreamPrefix is how JetStream names the backing stream of a KV bucket
const kvStreamPrefix = "KV_"

// ListKeyValueBuckets lists all KV bucket names on the server
func (c *Client) ListKeyValueBuckets(ctx context.Context) ([]string, error) {
	js, err := c.kvGuard()
	if err != nil {
		return nil, err
	}

	names := []string{}
	streamsCh := js.ListStreams(ctx)

	for stream := range streamsCh.Info() {
		if stream == nil {
			continue
		}
		if strings.HasPrefix(stream.Config.Name, kvStreamPrefix) {
			names = append(names, strings.TrimPrefix(stream.Config.Name, kvStreamPrefix))
		}
	}

	if err := streamsCh.Err(); err != nil {
		c.recordFailure()
		return nil, err
	}

	c.resetCircuit()
	return names, nil
}

// OnHealthChange sets a callback for health status changes
func (c *Client) OnHealthChange(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHealthChange = fn
}

// WithHealthCheck enables health monitoring with a specified interval
func (c *Client) WithHealthCheck(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthInterval = interval
}

// notifyHealth fires the health-change callback asynchronously if one is
// registered
func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()

	if fn != nil {
		go fn(healthy)
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)
	c.metrics.recordStatus(false)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.metrics.recordStatus(true)
	c.metrics.recordReconnect()

	c.mu.RLock()
	onReconnect := c.onReconnect
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
	c.notifyHealth(true)
}

// handleClosed fires when the connection is permanently gone, either after
// Close or once reconnection attempts are exhausted.
func (c *Client) handleClosed(conn *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.metrics.recordStatus(false)
	c.notifyHealth(false)

	c.mu.RLock()
	onConnectionLost := c.onConnectionLost
	c.mu.RUnlock()

	if onConnectionLost != nil && !c.closed.Load() {
		go onConnectionLost(conn.LastError())
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	// May fire for subscription-level errors, so this is not counted as a
	// connection failure
	c.logger.Errorf("NATS error: %v", err)
}

// startHealthMonitoring runs a ticker that verifies the connection with an
// RTT probe and flips status on change.
func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	c.mu.Lock()
	c.healthTicker = time.NewTicker(c.healthInterval)
	c.healthDone = make(chan struct{})
	ticker := c.healthTicker
	done := c.healthDone
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		lastHealthy := c.IsHealthy()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				lastHealthy = c.checkConnection(lastHealthy)
			}
		}
	}()
}

// checkConnection probes the connection with an RTT round trip, reconciles
// the status, and fires the health callback on a flip. Returns the health
// observed so the monitor can track changes across ticks.
func (c *Client) checkConnection(lastHealthy bool) bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return lastHealthy
	}

	healthy := conn.IsConnected()
	if healthy {
		if _, err := conn.RTT(); err != nil {
			healthy = false
		}
	}

	switch {
	case healthy && c.Status() != StatusConnected:
		c.setStatus(StatusConnected)
	case !healthy && c.Status() == StatusConnected:
		c.setStatus(StatusReconnecting)
	}

	if healthy != lastHealthy && c.onHealthChange != nil {
		c.onHealthChange(healthy)
	}
	return healthy
}

func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthTicker != nil {
		c.healthTicker.Stop()
		c.healthTicker = nil
	}
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}

// alreadyExistsPatterns are the shapes the server reports when a bucket or
// its backing stream was created by a racing instance
var alreadyExistsPatterns = []string{
	"bucket name already in use",
	"already exists",
	"stream name already in use",
}

// isAlreadyExistsError checks if an error indicates a KV bucket already exists
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	for _, pattern := range alreadyExistsPatterns {
		if strings.Contains(err.Error(), pattern) {
			return true
		}
	}
	return false
}
