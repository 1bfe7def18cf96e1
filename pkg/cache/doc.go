// Package cache provides a generic, thread-safe TTL cache with per-entry
// expiry, built-in statistics tracking, and optional Prometheus metrics
// integration.
//
// # Overview
//
// The cache is the read-through layer in front of upstream fetches: values
// are stored with a time-to-live and served until that deadline passes.
// Expiry is enforced two ways:
//   - Lazily: a Get on an entry past its deadline removes it and reports a miss,
//     even if no sweep has run yet.
//   - Eagerly: a background goroutine sweeps expired entries on a fixed interval.
//
// A disabled (noop) variant is available for deployments that want every
// read to go upstream.
//
// # Quick Start
//
// TTL cache with a default expiry:
//
//	cache, err := cache.NewTTL[*Sample](ctx, 60*time.Second, 10*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cache.Close()
//
//	cache.Set("critical/revenue", sample)
//	value, ok := cache.Get("critical/revenue")
//
// Per-entry TTL override (entries with different lifetimes share one cache):
//
//	cache.SetWithTTL("critical/revenue", sample, 60*time.Second)
//	cache.SetWithTTL("background/signups", sample, 10*time.Minute)
//
// From configuration, with metrics:
//
//	cache, err := cache.NewFromConfig[*Sample](ctx, cfg,
//		cache.WithMetrics[*Sample](registry, "refresh_cache"),
//		cache.WithEvictionCallback[*Sample](func(key string, value *Sample) {
//			log.Printf("expired: %s", key)
//		}),
//	)
//
// # Expiration Model
//
// Each entry records an absolute expiry deadline at Set time. An entry is
// readable only while the deadline is in the future; once it passes, the
// entry behaves as absent everywhere:
//
//   - Get returns a miss and removes the entry.
//   - Keys omits it.
//   - Sweep purges it and fires the eviction callback.
//
// Sweep can also be invoked directly to force a purge:
//
//	purged := cache.Sweep()
//
// Size counts entries still held in the map, including expired ones the
// sweep has not reached yet. Keys does not.
//
// # Statistics and Metrics
//
// Every cache keeps atomic counters of hits, misses, sets, deletes, and
// evictions, exposed through Stats together with derived figures like the
// hit ratio. The counters exist regardless of configuration, so tests and
// debugging never need a Prometheus registry.
//
// WithMetrics additionally exports the same events as Prometheus series
// under the cache subsystem, labelled with the component name passed to
// the option. Dashboards read those; code reads Stats.
//
// # Concurrency
//
// All operations are safe for concurrent use. Reads share an RWMutex,
// writes serialize on it, and statistics update atomically. Eviction
// callbacks always run outside the lock, so a callback may call back into
// the cache.
//
// # Context and Cleanup
//
// The TTL cache runs a background sweep goroutine. Pass a context that will
// be canceled when cleanup should stop, or call Close:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	cache, _ := cache.NewTTL[V](ctx, ttl, cleanupInterval)
//	defer cache.Close()
//
// The noop cache creates no goroutines.
package cache
