package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/refreshkit/breaker"
	"github.com/c360/refreshkit/config"
	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/fallback"
	"github.com/c360/refreshkit/fetch"
	"github.com/c360/refreshkit/gateway"
	"github.com/c360/refreshkit/health"
	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/notify"
	"github.com/c360/refreshkit/pkg/cache"
	"github.com/c360/refreshkit/pkg/retry"
	"github.com/c360/refreshkit/scheduler"
	"github.com/c360/refreshkit/types"
)

// RefreshService composes the whole refresh pipeline from one configuration:
// cache, fallback store, breaker gateway, fetcher, scheduler, and the three
// outward surfaces (notify publisher, gateway server, metrics server). It
// owns their lifecycles; callers only supply the transport that reaches the
// upstream KPI backend.
type RefreshService struct {
	*BaseService

	transport fetch.Transport
	monitor   *health.Monitor

	// Pipeline components, built in Start and discarded in Stop.
	sampleCache cache.Cache[types.Sample]
	snapshots   fallback.Store
	circuit     breaker.Gateway
	fetcher     *fetch.Fetcher
	sched       *scheduler.Scheduler
	publisher   *notify.Publisher
	gateway     *gateway.Server
	metrics     *metric.Server

	// Listeners subscribed before Start, attached when the scheduler exists.
	listeners []scheduler.Listener
}

// NewRefreshService creates the composed service. The config is validated up
// front; the transport is the deployment's only custom part. BaseService
// options apply as usual: pass WithNATS to enable the KV-backed pieces and
// the notify publisher, WithMetrics to instrument everything. Collectors
// register on the first Start and stay registered, so an in-process restart
// needs a service without a registry attached; restarting the process is the
// usual path.
func NewRefreshService(cfg *config.Config, transport fetch.Transport, opts ...Option) (*RefreshService, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "RefreshService", "New",
			"config is required")
	}
	if transport == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "RefreshService", "New",
			"transport is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "RefreshService", "New", "validating config")
	}

	if cfg.Service.HealthInterval > 0 {
		opts = append([]Option{WithHealthInterval(cfg.Service.HealthInterval)}, opts...)
	}

	r := &RefreshService{
		BaseService: NewBaseServiceWithOptions(cfg.Service.Name, cfg, opts...),
		transport:   transport,
		monitor:     health.NewMonitor(),
	}
	r.SetHealthCheck(r.healthCheck)
	return r, nil
}

// Start brings the pipeline up leaf-first: stores and gateways before the
// fetcher, consumers before the scheduler, the scheduler last so no update
// is produced without its listeners in place.
func (r *RefreshService) Start(ctx context.Context) error {
	if err := r.BaseService.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.sched != nil {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "RefreshService", "Start",
			"refresh pipeline already running")
	}
	err := r.startPipeline(ctx)
	r.mu.Unlock()

	if err != nil {
		// Tear down whatever came up before the failure.
		_ = r.Stop(0)
		return err
	}

	r.logger.Info("Refresh service started",
		"tiers", len(r.config.Tiers),
		"gateway", r.config.Gateway.Enabled,
		"notify", r.config.Notify.Enabled,
		"metrics", r.config.Metrics.Enabled)
	return nil
}

// startPipeline constructs and starts every component. Caller holds r.mu.
func (r *RefreshService) startPipeline(ctx context.Context) error {
	cfg := r.config

	sampleCache, err := cache.NewFromConfig(ctx, cfg.Cache,
		cache.WithMetrics[types.Sample](r.metricsRegistry, "cache"))
	if err != nil {
		return errors.WrapInvalid(err, "RefreshService", "Start", "building cache")
	}
	r.sampleCache = sampleCache

	snapshots, err := r.buildFallbackStore(ctx)
	if err != nil {
		return err
	}
	r.snapshots = snapshots

	circuit, err := r.buildBreakerGateway(ctx)
	if err != nil {
		return err
	}
	r.circuit = circuit

	fetcher, err := fetch.NewFetcher(r.transport, circuit,
		fetch.WithLogger(r.logger),
		fetch.WithMetrics(r.metricsRegistry),
		fetch.WithBackoff(retry.Config{
			InitialDelay: cfg.Fetch.InitialDelay,
			MaxDelay:     cfg.Fetch.MaxDelay,
			Multiplier:   cfg.Fetch.Multiplier,
			AddJitter:    true,
		}),
		fetch.WithRetryServerFaults(cfg.Fetch.RetryServerFaults))
	if err != nil {
		return errors.WrapInvalid(err, "RefreshService", "Start", "building fetcher")
	}
	r.fetcher = fetcher

	sched, err := scheduler.New(
		scheduler.Config{Tiers: cfg.Tiers, ResumeMargin: cfg.Scheduler.ResumeMargin},
		fetcher, sampleCache, snapshots, circuit,
		scheduler.WithLogger(r.logger),
		scheduler.WithMetrics(r.metricsRegistry))
	if err != nil {
		return errors.WrapInvalid(err, "RefreshService", "Start", "building scheduler")
	}

	if cfg.Notify.Enabled {
		if r.nats == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "RefreshService", "Start",
				"notify is enabled but no NATS client was provided")
		}
		publisher, err := notify.New(
			notify.Config{Prefix: cfg.Notify.Prefix, QueueSize: cfg.Notify.QueueSize},
			r.nats,
			notify.WithLogger(r.logger),
			notify.WithMetrics(r.metricsRegistry))
		if err != nil {
			return errors.WrapInvalid(err, "RefreshService", "Start", "building notify publisher")
		}
		if err := publisher.Start(ctx); err != nil {
			return err
		}
		r.publisher = publisher
		sched.Subscribe(publisher.Enqueue)
	}

	if cfg.Gateway.Enabled {
		gw, err := gateway.New(
			gateway.Config{
				Port:           cfg.Gateway.Port,
				PingInterval:   cfg.Gateway.PingInterval,
				SendBuffer:     cfg.Gateway.SendBuffer,
				AllowedOrigins: cfg.Gateway.AllowedOrigins,
			},
			r.monitor,
			gateway.WithLogger(r.logger),
			gateway.WithMetrics(r.metricsRegistry),
			gateway.WithSecurity(cfg.Security),
			gateway.WithServiceName(cfg.Service.Name))
		if err != nil {
			return errors.WrapInvalid(err, "RefreshService", "Start", "building gateway")
		}
		if err := gw.Start(ctx); err != nil {
			return err
		}
		r.gateway = gw
		sched.Subscribe(gw.Record)
	}

	if cfg.Metrics.Enabled && r.metricsRegistry != nil {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, r.metricsRegistry, cfg.Security)
		r.metrics = server
		go func() {
			if err := server.Start(); err != nil {
				r.logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	sched.Subscribe(func(types.Update) { r.RecordUpdate() })
	for _, listener := range r.listeners {
		sched.Subscribe(listener)
	}

	// Scheduler last: everything that wants its updates is wired.
	if err := sched.Start(ctx); err != nil {
		return err
	}
	r.sched = sched
	return nil
}

// buildFallbackStore selects the snapshot backend from configuration.
// Caller holds r.mu.
func (r *RefreshService) buildFallbackStore(ctx context.Context) (fallback.Store, error) {
	cfg := r.config.Fallback
	switch cfg.Backend {
	case "", config.FallbackBackendMemory:
		return fallback.NewMemoryStore(), nil
	case config.FallbackBackendFile:
		store, err := fallback.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, errors.WrapInvalid(err, "RefreshService", "Start", "opening fallback directory")
		}
		return store, nil
	case config.FallbackBackendKV:
		bucket, err := r.keyValueBucket(ctx, cfg.Bucket, "last-known-good KPI snapshots")
		if err != nil {
			return nil, err
		}
		return fallback.NewKVStore(bucket, fallback.WithLogger(r.logger))
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "RefreshService", "Start",
			fmt.Sprintf("unknown fallback backend %q", cfg.Backend))
	}
}

// buildBreakerGateway wires the upstream circuit state source. A disabled
// breaker reads as permanently closed. Caller holds r.mu.
func (r *RefreshService) buildBreakerGateway(ctx context.Context) (breaker.Gateway, error) {
	cfg := r.config.Breaker
	if !cfg.Enabled {
		return breaker.AlwaysClosed(), nil
	}

	bucket, err := r.keyValueBucket(ctx, cfg.Bucket, "upstream circuit breaker status")
	if err != nil {
		return nil, err
	}
	return breaker.NewKVGateway(ctx, bucket, cfg.Key, breaker.WithLogger(r.logger))
}

// keyValueBucket creates or opens a JetStream KV bucket. Creation is
// idempotent, so a bucket the upstream platform already owns is simply
// opened.
func (r *RefreshService) keyValueBucket(ctx context.Context, cfg config.BucketConfig, description string) (jetstream.KeyValue, error) {
	if r.nats == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "RefreshService", "Start",
			fmt.Sprintf("bucket %q requires a NATS client", cfg.Name))
	}
	bucket, err := r.nats.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Name,
		Description: description,
		TTL:         cfg.TTL,
		History:     uint8(cfg.History),
		MaxBytes:    cfg.MaxBytes,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "RefreshService", "Start",
			fmt.Sprintf("opening bucket %q", cfg.Name))
	}
	return bucket, nil
}

// Stop tears the pipeline down in reverse: the scheduler first so every tier
// timer and in-flight fetch is cancelled, then the surfaces, then the
// stores. Stop never leaves a timer running, even when components report
// errors on the way down.
func (r *RefreshService) Stop(timeout time.Duration) error {
	r.mu.Lock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.sched != nil {
		record(r.sched.Stop())
		r.sched = nil
	}
	if r.publisher != nil {
		record(r.publisher.Stop())
		r.publisher = nil
	}
	if r.gateway != nil {
		record(r.gateway.Stop())
		r.gateway = nil
	}
	if r.metrics != nil {
		record(r.metrics.Stop())
		r.metrics = nil
	}
	if closer, ok := r.circuit.(*breaker.KVGateway); ok {
		record(closer.Close())
	}
	r.circuit = nil
	r.fetcher = nil
	if r.sampleCache != nil {
		record(r.sampleCache.Close())
		r.sampleCache = nil
	}
	r.snapshots = nil
	r.monitor.Clear()

	r.mu.Unlock()

	if err := r.BaseService.Stop(timeout); err != nil {
		record(err)
	}

	if firstErr != nil {
		return firstErr
	}
	r.logger.Info("Refresh service stopped")
	return nil
}

// Subscribe registers a listener for every update the pipeline produces.
// Safe before Start; the listener attaches when the scheduler comes up and
// survives restarts.
func (r *RefreshService) Subscribe(listener scheduler.Listener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	if r.sched != nil {
		r.sched.Subscribe(listener)
	}
	r.mu.Unlock()
}

// ApplyTiers replaces the running tier set without restarting the rest of
// the pipeline. Listeners, metrics, cache contents, and snapshots all carry
// over; only the refresh loops are rebuilt. The boot configuration is not
// rewritten: a full restart returns to the configured tiers.
func (r *RefreshService) ApplyTiers(tiers []types.TierConfig) error {
	r.mu.RLock()
	sched := r.sched
	r.mu.RUnlock()

	if sched == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "RefreshService", "ApplyTiers",
			"refresh pipeline is not running")
	}
	if err := sched.ApplyTiers(tiers); err != nil {
		return err
	}
	r.logger.Info("Tier set replaced", "tiers", len(tiers))
	return nil
}

// Health reports the service's aggregated health, combining the base
// lifecycle view with per-tier and connection statuses.
func (r *RefreshService) Health() health.Status {
	base := r.BaseService.Health()
	if r.monitor.Count() == 0 {
		return base
	}
	// The base lifecycle view wins when it is worse than the aggregate.
	if base.IsUnhealthy() {
		return base
	}
	return r.monitor.AggregateHealth(r.name)
}

// Monitor returns the health monitor backing the gateway's /healthz.
func (r *RefreshService) Monitor() *health.Monitor {
	return r.monitor
}

// TierStates reports each tier's position in its refresh cycle, or nil when
// the pipeline is not running.
func (r *RefreshService) TierStates() map[types.Tier]scheduler.State {
	r.mu.RLock()
	sched := r.sched
	r.mu.RUnlock()
	if sched == nil {
		return nil
	}
	return sched.TierStates()
}

// GatewayAddress returns the base URL of the read surface, or "" when the
// gateway is disabled or the service is stopped.
func (r *RefreshService) GatewayAddress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gateway == nil {
		return ""
	}
	return r.gateway.Address()
}

// MetricsAddress returns the metrics endpoint URL, or "" when metrics are
// disabled or the service is stopped.
func (r *RefreshService) MetricsAddress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.metrics == nil {
		return ""
	}
	return r.metrics.Address()
}

// healthCheck feeds the monitor the gateway aggregates and reports whether
// the pipeline is functioning. Suspended tiers degrade the report; they do
// not fail it, because suspended is the correct response to an open
// circuit.
func (r *RefreshService) healthCheck() error {
	r.mu.RLock()
	sched := r.sched
	r.mu.RUnlock()

	if sched == nil {
		return fmt.Errorf("refresh pipeline not running")
	}

	for tier, state := range sched.TierStates() {
		name := "tier:" + string(tier)
		switch state {
		case scheduler.StateScheduled, scheduler.StateFetching:
			r.monitor.UpdateHealthy(name, "Refreshing on cadence")
		case scheduler.StateSuspended:
			r.monitor.UpdateDegraded(name, "Suspended while the upstream circuit is open")
		case scheduler.StateIdle:
			r.monitor.UpdateUnhealthy(name, "Refresh loop is not running")
		}
	}

	if r.nats != nil {
		if r.nats.IsHealthy() {
			r.monitor.UpdateHealthy("nats", "Connected")
		} else {
			r.monitor.UpdateDegraded("nats", "Connection unavailable; serving cache and fallback only")
		}
	}

	return nil
}
