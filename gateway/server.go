package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/health"
	"github.com/c360/refreshkit/pkg/security"
	"github.com/c360/refreshkit/pkg/tlsutil"
	"github.com/c360/refreshkit/types"
)

// Defaults for the listen port, keepalive cadence, and per-client queue depth.
const (
	DefaultPort         = 8080
	DefaultPingInterval = 30 * time.Second
	DefaultSendBuffer   = 16
)

// DefaultServiceName labels the aggregated health report when no service
// name is configured.
const DefaultServiceName = "refreshkit"

// stopTimeout bounds how long Stop waits for the HTTP server and the
// per-client goroutines to exit.
const stopTimeout = 5 * time.Second

// writeWait bounds a single WebSocket write. A client that cannot accept a
// frame within this window is treated as gone.
const writeWait = 10 * time.Second

// Config tunes the gateway's listen port and WebSocket behavior.
type Config struct {
	// Port is the HTTP listen port. Zero selects the default.
	Port int `json:"port,omitempty"`

	// PingInterval is the WebSocket keepalive cadence. A client that fails
	// to answer two consecutive pings is disconnected. Zero selects the
	// default.
	PingInterval time.Duration `json:"ping_interval,omitempty"`

	// SendBuffer bounds each client's outbound update queue. A client that
	// falls this far behind starts losing updates rather than slowing the
	// refresh loop. Zero selects the default.
	SendBuffer int `json:"send_buffer,omitempty"`

	// AllowedOrigins lists browser origins permitted to call the gateway
	// cross-origin, for both CORS headers and WebSocket upgrades. Use
	// ["*"] for development only. Empty means same-origin clients and
	// non-browser clients only.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// Validate ensures the configuration can drive the read surface
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "gateway", "Validate",
			fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.PingInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "gateway", "Validate",
			fmt.Sprintf("ping_interval cannot be negative, got %s", c.PingInterval))
	}
	if c.SendBuffer < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "gateway", "Validate",
			fmt.Sprintf("send_buffer cannot be negative, got %d", c.SendBuffer))
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "gateway", "Validate",
				"allowed_origins cannot contain an empty origin")
		}
	}
	return nil
}

// port returns the configured port or the default.
func (c Config) port() int {
	if c.Port > 0 {
		return c.Port
	}
	return DefaultPort
}

// pingInterval returns the configured cadence or the default.
func (c Config) pingInterval() time.Duration {
	if c.PingInterval > 0 {
		return c.PingInterval
	}
	return DefaultPingInterval
}

// sendBuffer returns the configured depth or the default.
func (c Config) sendBuffer() int {
	if c.SendBuffer > 0 {
		return c.SendBuffer
	}
	return DefaultSendBuffer
}

// Server is the HTTP and WebSocket read surface over the refresh pipeline.
// It keeps the latest update per tier/target pair in an in-memory snapshot
// fed through Record, and serves that snapshot three ways: as aggregated
// health on /healthz, as JSON on /kpis, and as a replay-then-stream feed on
// /ws.
//
// The snapshot belongs to the pipeline, not to the HTTP lifecycle: Record
// works before Start and between Stop and a restart, and accumulated state
// survives both.
type Server struct {
	cfg      Config
	monitor  *health.Monitor
	name     string
	security security.Config
	logger   *slog.Logger
	metrics  *gatewayMetrics
	upgrader websocket.Upgrader

	mu      sync.Mutex // serializes Start and Stop
	started bool
	server  *http.Server
	wg      sync.WaitGroup

	// stateMu guards the snapshot and the client set. Registration and
	// broadcast both hold it, which is what keeps a connecting client from
	// missing updates between its replay and its first live frame.
	stateMu  sync.RWMutex
	snapshot map[string]types.Update
	clients  map[*wsClient]struct{}
	closing  bool
	shutdown chan struct{}
	runCtx   context.Context
}

// New creates a Server reporting health from the given monitor.
func New(cfg Config, monitor *health.Monitor, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if monitor == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "New",
			"health monitor is required")
	}

	s := &Server{
		cfg:      cfg,
		monitor:  monitor,
		name:     DefaultServiceName,
		logger:   slog.Default(),
		snapshot: make(map[string]types.Update),
		clients:  make(map[*wsClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, errors.WrapTransient(err, "Server", "New", "applying option")
		}
	}

	return s, nil
}

// Start launches the HTTP server. The supplied context is the session root:
// cancelling it disconnects WebSocket clients and stops fan-out, while the
// listener itself is released by Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start",
			"gateway already running")
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Start",
			"context cannot be nil")
	}

	tlsEnabled := s.security.TLS.Server.Enabled
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.port()),
		Handler: s.routes(),
	}
	if tlsEnabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(s.security.TLS.Server)
		if err != nil {
			return errors.WrapFatal(err, "Server", "Start", "load TLS config")
		}
		server.TLSConfig = tlsConfig
	}

	s.stateMu.Lock()
	s.closing = false
	s.shutdown = make(chan struct{})
	s.runCtx = ctx
	s.stateMu.Unlock()

	s.server = server
	s.wg.Add(1)
	go s.runServer(server, tlsEnabled)

	s.started = true
	s.logger.Info("Gateway started",
		"port", s.cfg.port(),
		"tls", tlsEnabled,
		"ping_interval", s.cfg.pingInterval())
	return nil
}

// Stop disconnects every WebSocket client, releases the listener, and waits
// for the server goroutines to exit. The snapshot is kept so a restarted
// server resumes serving the same data.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Server", "Stop",
			"gateway not running")
	}

	// Refuse new registrations before tearing anything down, so no client
	// goroutine can start after the wait below begins.
	s.stateMu.Lock()
	alreadyClosing := s.closing
	s.closing = true
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	shutdown := s.shutdown
	s.stateMu.Unlock()

	if !alreadyClosing {
		close(shutdown)
	}
	for _, c := range clients {
		s.unregister(c)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Gateway HTTP shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		return errors.WrapTransient(errors.ErrTimeout, "Server", "Stop",
			"waiting for the gateway goroutines to exit")
	}

	s.server = nil
	s.started = false
	s.logger.Info("Gateway stopped")
	return nil
}

// routes builds the request mux. The snapshot endpoints answer GET only;
// the root serves a small index the same way the metrics server does.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/kpis", s.handleKPIs)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// runServer blocks in ListenAndServe until Stop shuts the server down.
func (s *Server) runServer(server *http.Server, tlsEnabled bool) {
	defer s.wg.Done()

	var err error
	if tlsEnabled {
		// Cert and key files are empty because TLSConfig is already set
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}

	// http.ErrServerClosed is the normal Stop path
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error("Gateway HTTP server failed", "error", err)
	}
}

// Record stores an update as the latest value for its tier/target pair and
// fans it out to every connected WebSocket client. It matches the
// scheduler's listener signature, so wiring is just
//
//	sched.Subscribe(gw.Record)
//
// Record never blocks: a client whose send queue is full loses this update
// and catches up on the pair's next tick.
func (s *Server) Record(update types.Update) {
	s.stateMu.Lock()
	s.snapshot[update.Key()] = update
	size := len(s.snapshot)
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.recordSnapshotSize(size)
	}

	for _, c := range clients {
		select {
		case c.send <- update:
		default:
			if s.metrics != nil {
				s.metrics.recordDrop()
			}
			s.logger.Debug("Dropped update for slow WebSocket client",
				"tier", update.Tier,
				"target", update.Target,
				"remote", c.conn.RemoteAddr())
		}
	}
}

// Lookup returns the latest update recorded for the pair. A pair nothing
// has arrived for yet reports ErrCacheMiss.
func (s *Server) Lookup(tier types.Tier, target string) (types.Update, error) {
	s.stateMu.RLock()
	update, ok := s.snapshot[types.RefreshKey(tier, target)]
	s.stateMu.RUnlock()

	if !ok {
		return types.Update{}, errors.WrapTransient(errors.ErrCacheMiss, "Server", "Lookup",
			fmt.Sprintf("no update recorded for %s/%s", tier, target))
	}
	return update, nil
}

// Snapshot returns a copy of the latest update per tier/target pair, keyed
// the same way the cache and fallback store key them.
func (s *Server) Snapshot() map[string]types.Update {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	snapshot := make(map[string]types.Update, len(s.snapshot))
	for key, update := range s.snapshot {
		snapshot[key] = update
	}
	return snapshot
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return len(s.clients)
}

// Address returns the server's base URL.
func (s *Server) Address() string {
	scheme := "http"
	if s.security.TLS.Server.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, s.cfg.port())
}
