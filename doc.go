// Package refreshkit keeps dashboard KPIs fresh behind an unreliable
// upstream. It layers tiered refresh scheduling, caching, fallback
// snapshots, and circuit-breaker awareness so consumers always see the
// best value available, clearly marked fresh or degraded.
//
// # Philosophy: Serve Something, Mark It Honestly
//
// A dashboard that shows nothing is worse than one that shows
// yesterday's number with a staleness badge. RefreshKit is built around
// that trade:
//
//   - Every refresh cycle produces an update, even when the upstream is
//     down. Failures degrade the data, they never silence the tier.
//   - Degraded values carry their provenance: consumers can always tell
//     a fresh fetch from a cached value from a fallback snapshot.
//   - The upstream is protected, not hammered. A shared circuit breaker
//     suspends refresh loops while the backend recovers, and tiers probe
//     their way back instead of stampeding.
//
// RefreshKit does NOT contain:
//   - KPI computation or business logic (it moves values, it does not
//     derive them)
//   - Dashboard rendering (the gateway serves data, not pixels)
//   - Upstream-specific protocols (transports are a small interface)
//
// # Architecture
//
// One scheduler drives per-tier refresh loops; every loop funnels
// through the same fetch, cache, and fallback machinery:
//
//	┌─────────────────────────────────────┐
//	│           Scheduler                 │  Per-tier cadences,
//	│   (tiers, suspend/resume, fan-out)  │  ordered delivery
//	└─────────────────┬───────────────────┘
//	                  ↓ drives
//	┌─────────────────────────────────────┐
//	│            Fetcher                  │  Bounded attempts, retry
//	│  (transport + breaker + taxonomy)   │  backoff, failure kinds
//	└──────┬──────────────────────┬───────┘
//	       ↓ fresh                ↓ failed
//	┌─────────────┐       ┌──────────────┐
//	│ Cache + TTL │       │   Fallback   │  Last known good,
//	│  (serve hot)│       │  (snapshots) │  served degraded
//	└─────────────┘       └──────────────┘
//	       ↓ updates fan out ↓
//	┌─────────────────────────────────────┐
//	│      Gateway  ·  Notify  ·  Logs    │  WebSocket + HTTP,
//	│        (delivery surfaces)          │  NATS subjects
//	└─────────────────────────────────────┘
//
// # Packages
//
// Pipeline:
//   - scheduler: tiered refresh loops, suspension, live reconfiguration
//   - fetch: bounded fetch attempts with retry and failure taxonomy
//   - breaker: circuit state shared through NATS KV
//   - fallback: last-known-good snapshot stores (memory, file, NATS KV)
//   - types: tiers, samples, updates, refresh keys
//
// Delivery:
//   - gateway: WebSocket broadcast and HTTP snapshot endpoints
//   - notify: update publication on NATS subjects
//
// Infrastructure:
//   - service: lifecycle base and the composed RefreshService
//   - config: file loading, validation, live updates via NATS KV
//   - natsclient: NATS connection management
//   - metric: Prometheus metrics registry and exposition server
//   - errors: structured error handling
//   - health: health check system
//
// Utilities:
//   - pkg/cache: TTL caches
//   - pkg/retry: retry policies
//   - pkg/security: TLS configuration for the HTTP surfaces
//
// # Usage
//
// Compose the service from a config and a transport:
//
//	cfg := config.DefaultConfig()
//
//	natsClient, _ := natsclient.NewClient("nats://localhost:4222")
//	natsClient.Connect(ctx)
//
//	svc, err := service.NewRefreshService(cfg, transport,
//	    service.WithNATS(natsClient),
//	    service.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	svc.Subscribe(func(update types.Update) {
//	    // every refresh outcome lands here, degraded or not
//	})
//
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop(30 * time.Second)
//
// # Design Principles
//
// Ordered delivery:
//   - One goroutine owns each tier's cycle
//   - At most one fetch in flight per tier
//   - Listeners hear outcomes in the order they were produced
//
// Bounded everything:
//   - Fetches carry timeouts and attempt limits
//   - Notify and gateway queues drop rather than block the pipeline
//   - Shutdown takes a deadline and reports what it could not finish
//
// Testability:
//   - Explicit dependencies (no globals)
//   - Transports and clocks injectable, testutil fakes provided
//   - Integration tests with testcontainers
package refreshkit
