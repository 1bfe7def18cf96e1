package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/refreshkit/config"
	"github.com/c360/refreshkit/health"
	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/natsclient"
)

// Status is a service lifecycle state
type Status int

// Lifecycle states, in start order
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

var statusNames = [...]string{"stopped", "starting", "running", "stopping"}

// String renders the status for logs and the info endpoint
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Info is a point-in-time snapshot of one service's runtime state
type Info struct {
	Name               string        `json:"name"`
	Status             Status        `json:"status"`
	Uptime             time.Duration `json:"uptime"`
	StartTime          time.Time     `json:"start_time"`
	UpdatesDelivered   int64         `json:"updates_delivered"`
	LastActivity       time.Time     `json:"last_activity"`
	HealthChecks       int64         `json:"health_checks"`
	FailedHealthChecks int64         `json:"failed_health_checks"`
}

// HealthCheckFunc probes one service-specific dependency. A nil error
// means healthy.
type HealthCheckFunc func() error

// Option configures a BaseService at construction
type Option func(*BaseService)

// WithNATS attaches the shared NATS client. Its connection health folds
// into the service health check.
func WithNATS(client *natsclient.Client) Option {
	return func(s *BaseService) { s.nats = client }
}

// WithMetrics attaches the metrics registry so lifecycle transitions show
// up as service status gauges.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *BaseService) { s.metricsRegistry = registry }
}

// WithLogger overrides the default logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *BaseService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthCheck installs a service-specific probe run on every health
// check tick
func WithHealthCheck(fn HealthCheckFunc) Option {
	return func(s *BaseService) { s.healthCheckFunc = fn }
}

// WithHealthInterval overrides how often the health check runs
func WithHealthInterval(interval time.Duration) Option {
	return func(s *BaseService) { s.healthInterval = interval }
}

// OnHealthChange registers a callback invoked whenever health flips
func OnHealthChange(fn func(bool)) Option {
	return func(s *BaseService) { s.onHealthChange = fn }
}

// BaseService provides lifecycle, health monitoring, and activity tracking
// shared by every service in the process
type BaseService struct {
	name            string
	config          *config.Config
	nats            *natsclient.Client
	metricsRegistry *metric.MetricsRegistry
	logger          *slog.Logger

	status    atomic.Value // Status
	startTime atomic.Value // time.Time
	healthy   atomic.Bool

	// Activity counters
	updatesDelivered   atomic.Int64
	healthChecks       atomic.Int64
	failedHealthChecks atomic.Int64
	lastActivity       atomic.Value // time.Time

	healthCheckFunc HealthCheckFunc

	healthTicker   *time.Ticker
	healthInterval time.Duration

	onHealthChange func(bool)

	done      chan struct{}
	waitGroup sync.WaitGroup
	mu        sync.RWMutex
}

// NewBaseServiceWithOptions creates a new base service using functional options
func NewBaseServiceWithOptions(name string, cfg *config.Config, opts ...Option) *BaseService {
	service := &BaseService{
		name:           name,
		config:         cfg,
		healthInterval: 30 * time.Second,
		logger:         slog.Default().With("service", name),
	}

	// Options can override the defaults above
	for _, opt := range opts {
		opt(service)
	}

	service.setStatus(StatusStopped)
	service.startTime.Store(time.Time{})
	service.lastActivity.Store(time.Time{})

	return service
}

// setStatus stores the lifecycle status and mirrors it to the metrics
// registry when one is attached
func (s *BaseService) setStatus(status Status) {
	s.status.Store(status)
	s.recordStatusMetric(status)
}

func (s *BaseService) recordStatusMetric(status Status) {
	if s.metricsRegistry != nil {
		s.metricsRegistry.CoreMetrics().RecordServiceStatus(s.name, int(status))
	}
}

// Name returns the service name used in logs, metrics, and health reports
func (s *BaseService) Name() string {
	return s.name
}

// Status returns the current lifecycle state
func (s *BaseService) Status() Status {
	return s.status.Load().(Status)
}

// IsHealthy reports the result of the most recent health check
func (s *BaseService) IsHealthy() bool {
	return s.healthy.Load()
}

// Health folds the check results and lifecycle state into a standard
// health report
func (s *BaseService) Health() health.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.healthy.Load() {
		// BaseService only knows that checks failed; embedders override
		// Health() when they can name the failing part
		return health.NewUnhealthy(s.name,
			fmt.Sprintf("Service is unhealthy (failed checks: %d)", s.failedHealthChecks.Load()))
	}

	status := s.Status()
	if report, ok := statusReports[status]; ok {
		return report.build(s.name, report.message)
	}
	return health.NewUnhealthy(s.name, fmt.Sprintf("Unknown status: %v", status))
}

// statusReports maps each lifecycle state to its health rendering. Starting
// and stopping read as degraded so a rolling restart never looks dead.
var statusReports = map[Status]struct {
	build   func(component, message string) health.Status
	message string
}{
	StatusRunning:  {health.NewHealthy, "Service operating normally"},
	StatusStarting: {health.NewDegraded, "Service is starting"},
	StatusStopping: {health.NewDegraded, "Service is stopping"},
	StatusStopped:  {health.NewUnhealthy, "Service is stopped"},
}

// Start transitions the service to running and begins its health and
// context monitors. Starting an already-running service is a no-op.
func (s *BaseService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusRunning || st == StatusStarting {
		return nil
	}

	s.setStatus(StatusStarting)
	s.done = make(chan struct{})

	now := time.Now()
	s.startTime.Store(now)
	s.lastActivity.Store(now)

	if s.healthInterval > 0 {
		s.healthTicker = time.NewTicker(s.healthInterval)
		s.waitGroup.Add(1)
		go s.healthMonitor()

		// First check runs after a short delay so embedders finish
		// bringing up their own parts before being probed
		time.AfterFunc(200*time.Millisecond, s.performHealthCheck)
	}

	s.waitGroup.Add(1)
	go s.contextMonitor(ctx)

	s.setStatus(StatusRunning)
	return nil
}

// Stop shuts the service down, waiting up to timeout for its goroutines
func (s *BaseService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusStopped || st == StatusStopping {
		return nil
	}
	s.setStatus(StatusStopping)

	if s.done != nil {
		select {
		case <-s.done:
			// Already closed by a racing shutdown
		default:
			close(s.done)
		}
	}
	if s.healthTicker != nil {
		s.healthTicker.Stop()
	}

	if timeout == 0 {
		timeout = 5 * time.Second
	}
	s.waitWithTimeout(timeout)

	s.setStatus(StatusStopped)
	s.healthy.Store(false)
	return nil
}

// waitWithTimeout blocks until the service goroutines exit or the deadline
// passes. Goroutines still alive at the deadline are abandoned.
func (s *BaseService) waitWithTimeout(timeout time.Duration) {
	finished := make(chan struct{})
	go func() {
		s.waitGroup.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(timeout):
	}
}

// SetHealthCheck replaces the custom health check after construction
func (s *BaseService) SetHealthCheck(fn HealthCheckFunc) {
	s.mu.Lock()
	s.healthCheckFunc = fn
	s.mu.Unlock()
}

// OnHealthChange replaces the health-flip callback after construction
func (s *BaseService) OnHealthChange(callback func(bool)) {
	s.mu.Lock()
	s.onHealthChange = callback
	s.mu.Unlock()
}

// RecordUpdate notes that one refresh update was delivered to listeners.
// It feeds the UpdatesDelivered counter and the last-activity timestamp.
func (s *BaseService) RecordUpdate() {
	s.updatesDelivered.Add(1)
	s.lastActivity.Store(time.Now())
}

// GetStatus snapshots the service counters and uptime
func (s *BaseService) GetStatus() Info {
	startTime := s.startTime.Load().(time.Time)

	var uptime time.Duration
	if !startTime.IsZero() && s.Status() == StatusRunning {
		uptime = time.Since(startTime)
	}

	return Info{
		Name:               s.name,
		Status:             s.Status(),
		Uptime:             uptime,
		StartTime:          startTime,
		UpdatesDelivered:   s.updatesDelivered.Load(),
		LastActivity:       s.lastActivity.Load().(time.Time),
		HealthChecks:       s.healthChecks.Load(),
		FailedHealthChecks: s.failedHealthChecks.Load(),
	}
}

// RegisterMetrics allows services to register their own domain-specific
// metrics. BaseService has none; embedders override.
func (s *BaseService) RegisterMetrics(_ metric.MetricsRegistrar) error {
	return nil
}

// healthMonitor re-probes health on every ticker fire until shutdown
func (s *BaseService) healthMonitor() {
	defer s.waitGroup.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.healthTicker.C:
			s.performHealthCheck()
		}
	}
}

// runChecks runs the embedder's probe first, then the built-in NATS
// connectivity check.
func (s *BaseService) runChecks() error {
	if s.healthCheckFunc != nil {
		if err := s.healthCheckFunc(); err != nil {
			return err
		}
	}
	if s.nats != nil && !s.nats.IsHealthy() {
		return natsclient.ErrNotConnected
	}
	return nil
}

func (s *BaseService) performHealthCheck() {
	s.healthChecks.Add(1)

	err := s.runChecks()
	if err != nil {
		s.failedHealthChecks.Add(1)
	}

	isHealthy := err == nil
	wasHealthy := s.healthy.Swap(isHealthy)

	if wasHealthy != isHealthy && s.onHealthChange != nil {
		go s.onHealthChange(isHealthy)
	}
}

// contextMonitor watches the parent context for cancellation
func (s *BaseService) contextMonitor(ctx context.Context) {
	defer s.waitGroup.Done()

	select {
	case <-ctx.Done():
		s.performGracefulShutdown()
	case <-s.done:
		// Stopped via Stop()
	}
}

// performGracefulShutdown transitions the service to stopped after its
// parent context is cancelled. The CAS guards against racing a concurrent
// Stop(): whoever wins the Running -> Stopping transition owns teardown.
func (s *BaseService) performGracefulShutdown() {
	if !s.status.CompareAndSwap(StatusRunning, StatusStopping) {
		return
	}
	s.recordStatusMetric(StatusStopping)

	if s.healthTicker != nil {
		s.healthTicker.Stop()
	}

	s.setStatus(StatusStopped)
	s.healthy.Store(false)
}

// Service is the lifecycle contract the process supervisor drives
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Status() Status
	IsHealthy() bool
	GetStatus() Info
	Health() health.Status
	RegisterMetrics(registrar metric.MetricsRegistrar) error
}
