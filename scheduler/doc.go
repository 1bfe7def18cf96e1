// Package scheduler drives tiered KPI refresh cycles with cache
// short-circuiting, fallback degradation, and circuit-breaker-aware
// suspension.
//
// # Overview
//
// A Scheduler owns one refresh loop per configured tier. Tiers are fully
// independent: each has its own cadence, TTL, target list, and fetch
// bounds, and a slow or suspended tier never delays another. All tiers
// share one cache, one fallback store, and one fetcher.
//
// # Tier Lifecycle
//
// Each tier moves through four states:
//
//   - idle: not running (before Start, after Stop)
//   - scheduled: cadence timer armed, waiting for the next tick
//   - fetching: a refresh is in flight
//   - suspended: circuit open, cadence disarmed, one-shot resume timer armed
//
// On every tick the tier consults the cache first. A live entry is served
// to listeners without touching the transport. On a miss the fetcher runs
// with the tier's timeout and attempt budget; success updates the cache
// and the fallback store, failure serves the last snapshot as degraded
// data, and an open circuit suspends the tier.
//
// # Suspension and Resume
//
// When the fetcher reports an open circuit the tier disarms its cadence
// timer entirely and arms a one-shot timer for the breaker's reset window
// plus a safety margin. When the one-shot fires, the tier probes the
// breaker: still open re-arms the one-shot, closed resumes with an
// immediate refresh and then the normal cadence.
//
// # Updates
//
// Listeners registered with Subscribe receive a types.Update for every
// completed target refresh, whatever its source. The Degraded flag tells
// consumers whether the value came from a live fetch or cache (false) or
// from a fallback snapshot (true). A failure with no snapshot still
// produces an update, with a nil value, so a dashboard can show the tile
// as failed rather than silently freezing.
//
// # Quick Start
//
//	fetcher, err := fetch.NewFetcher(transport, gate)
//	if err != nil {
//		return err
//	}
//	sched, err := scheduler.New(scheduler.Config{
//		Tiers: []types.TierConfig{{
//			Tier:        types.TierCritical,
//			Cadence:     5 * time.Second,
//			TTL:         time.Minute,
//			Targets:     []string{"revenue", "orders"},
//			Timeout:     3 * time.Second,
//			MaxAttempts: 3,
//		}},
//	}, fetcher, sampleCache, snapshots, gate)
//	if err != nil {
//		return err
//	}
//	sched.Subscribe(func(u types.Update) {
//		render(u)
//	})
//	if err := sched.Start(ctx); err != nil {
//		return err
//	}
//	defer sched.Stop()
//
// Stop cancels every timer and in-flight fetch as a group; an aborted
// fetch never writes to the cache or the fallback store.
package scheduler
