// Package service provides service lifecycle management and pipeline
// composition for RefreshKit.
//
// The package has two layers:
//
// # Core Service Types
//
// BaseService: Foundation for services with standardized lifecycle management:
//   - Lifecycle states: Stopped → Starting → Running → Stopping
//   - Health monitoring with periodic checks
//   - Metrics integration with CoreMetrics registry
//   - Context-based cancellation and graceful shutdown
//   - Dependency injection through functional options
//
// RefreshService: The composed refresh pipeline behind one Start/Stop pair:
//   - Builds cache, fallback store, breaker gateway, fetcher, and scheduler
//     from one configuration
//   - Brings up the notify publisher, HTTP gateway, and metrics server when
//     enabled
//   - Feeds a health monitor that the gateway's /healthz aggregates
//   - Supports runtime tier replacement without restarting the pipeline
//
// # Service Patterns
//
// Embedding BaseService gives a service the standard lifecycle:
//
//	type MyService struct {
//	    *BaseService
//	    // service-specific fields
//	}
//
//	func NewMyService(cfg *config.Config, opts ...Option) (*MyService, error) {
//	    svc := &MyService{
//	        BaseService: NewBaseServiceWithOptions("my-service", cfg, opts...),
//	    }
//	    svc.SetHealthCheck(svc.healthCheck)
//	    return svc, nil
//	}
//
// Embedders call the base lifecycle first on the way up and last on the way
// down, and never while holding the shared mutex:
//
//	func (s *MyService) Start(ctx context.Context) error {
//	    if err := s.BaseService.Start(ctx); err != nil {
//	        return err
//	    }
//	    s.mu.Lock()
//	    defer s.mu.Unlock()
//	    // bring up service-specific parts
//	    return nil
//	}
//
//	func (s *MyService) Stop(timeout time.Duration) error {
//	    s.mu.Lock()
//	    // tear down service-specific parts
//	    s.mu.Unlock()
//	    return s.BaseService.Stop(timeout)
//	}
//
// # Health Monitoring
//
// Services install a custom check through SetHealthCheck; the base runs it
// on the configured interval and keeps the healthy flag current:
//
//	svc.SetHealthCheck(func() error {
//	    if !upstreamReachable() {
//	        return fmt.Errorf("upstream unreachable")
//	    }
//	    return nil
//	})
//
// A service carrying a NATS client is additionally checked against the
// connection state. RefreshService's check also feeds per-tier entries into
// its health.Monitor, which the gateway serves on /healthz.
//
// # Metrics Integration
//
// Services record lifecycle transitions with CoreMetrics:
//   - refreshkit_service_status - Current service status (gauge)
//
// RefreshService passes its registry to every component it builds, so the
// cache, fetcher, scheduler, publisher, and gateway all publish under their
// own subsystems from one Start call.
//
// # Error Handling
//
// Services follow RefreshKit error handling patterns:
//   - Configuration errors: Return during construction
//   - Startup errors: Return from Start after rolling back partial state
//   - Runtime errors: Log and update health status
//   - Shutdown errors: Collect, report the first, keep tearing down
//
// Use project error wrapping for context:
//
//	import "github.com/c360/refreshkit/errors"
//
//	if err := validateConfig(cfg); err != nil {
//	    return errors.WrapInvalid(err, "my-service", "NewMyService", "validate config")
//	}
//
// # Graceful Shutdown
//
// RefreshService stops in reverse dependency order:
//  1. Scheduler, so no new fetches or updates are produced
//  2. Notify publisher and gateway, draining their queues and connections
//  3. Metrics server
//  4. Stores and the breaker watcher
//
// # Example
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//	    "os/signal"
//	    "syscall"
//	    "time"
//
//	    "github.com/c360/refreshkit/config"
//	    "github.com/c360/refreshkit/metric"
//	    "github.com/c360/refreshkit/service"
//	)
//
//	func main() {
//	    cfg := config.DefaultConfig()
//
//	    svc, err := service.NewRefreshService(cfg, transport,
//	        service.WithMetrics(metric.NewMetricsRegistry()))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := svc.Start(context.Background()); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    sig := make(chan os.Signal, 1)
//	    signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
//	    <-sig
//
//	    if err := svc.Stop(30 * time.Second); err != nil {
//	        log.Printf("Shutdown error: %v", err)
//	    }
//	}
package service
