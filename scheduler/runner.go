package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/c360/refreshkit/fetch"
	"github.com/c360/refreshkit/types"
)

// Update sources, used as log fields and metric label values.
const (
	sourceFresh    = "fresh"
	sourceCache    = "cache"
	sourceFallback = "fallback"
	sourceNone     = "none"
)

// tierRunner drives one tier's refresh loop. A single goroutine owns the
// whole cycle, so at most one fetch is ever in flight for the tier and
// outcomes reach listeners in the order they were produced.
type tierRunner struct {
	cfg   types.TierConfig
	sched *Scheduler

	mu    sync.Mutex
	state State
}

func newTierRunner(cfg types.TierConfig, sched *Scheduler) *tierRunner {
	return &tierRunner{cfg: cfg, sched: sched}
}

// run is the tier's goroutine body. It refreshes once immediately so a new
// session paints without waiting out a full cadence, then follows the
// recurring timer until the context is cancelled.
func (r *tierRunner) run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Cadence)
	defer ticker.Stop()
	defer r.setState(StateIdle)

	r.setState(StateScheduled)
	if !r.runTick(ctx, ticker) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.runTick(ctx, ticker) {
				return
			}
		}
	}
}

// runTick processes one tick. If the tick suspends the tier, the recurring
// timer is disarmed and the runner parks in the one-shot resume loop until
// the breaker allows traffic again. Returns false when the runner should
// exit.
func (r *tierRunner) runTick(ctx context.Context, ticker *time.Ticker) bool {
	if !r.tick(ctx) {
		return ctx.Err() == nil
	}

	ticker.Stop()
	select {
	case <-ticker.C:
		// Drop a tick that queued while we were fetching; the resume
		// loop owns timing until the cadence restarts.
	default:
	}

	if !r.suspendLoop(ctx) {
		return false
	}
	ticker.Reset(r.cfg.Cadence)
	return true
}

// tick refreshes every target of the tier in order. Returns true when a
// target suspended the tier; the remaining targets are skipped because the
// breaker guards the shared backend, not a single target.
func (r *tierRunner) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if r.sched.metrics != nil {
		r.sched.metrics.recordTick(r.cfg.Tier)
	}

	for _, target := range r.cfg.Targets {
		if ctx.Err() != nil {
			return false
		}
		if r.refreshTarget(ctx, target) {
			return true
		}
	}

	if ctx.Err() == nil {
		r.setState(StateScheduled)
	}
	return false
}

// refreshTarget serves one target: cache first, then a bounded fetch, then
// the fallback snapshot. Returns true when the fetch reported an open
// circuit.
func (r *tierRunner) refreshTarget(ctx context.Context, target string) bool {
	key := types.RefreshKey(r.cfg.Tier, target)

	// A live cached value short-circuits the tick: listeners still hear
	// from the tier, but no transport call is made.
	if sample, ok := r.sched.cache.Get(key); ok {
		r.emit(types.Update{
			Tier:      r.cfg.Tier,
			Target:    target,
			Value:     sample.Value,
			FetchedAt: sample.FetchedAt,
		}, sourceCache)
		return false
	}

	r.setState(StateFetching)

	outcome, err := r.sched.fetcher.Fetch(ctx, fetch.Request{
		Target:      target,
		Tier:        r.cfg.Tier,
		Timeout:     r.cfg.Timeout,
		MaxAttempts: r.cfg.MaxAttempts,
	})
	if err != nil {
		// An aborted fetch writes nothing and emits nothing. The only
		// other cause is a rejected request, which is worth a log line
		// because tier validation should have caught it.
		if ctx.Err() == nil {
			r.sched.logger.Error("Fetch rejected",
				"tier", r.cfg.Tier,
				"target", target,
				"error", err)
		}
		return false
	}

	switch {
	case outcome.IsSuccess():
		r.applySuccess(ctx, target, key, outcome)
	case outcome.IsFailure():
		r.applyFailure(ctx, target, key, outcome)
	case outcome.IsSuspended():
		return true
	}
	return false
}

// applySuccess records the fresh value in the cache and the fallback store,
// then notifies listeners. Store errors are logged but never block the
// update: the fetched value is already in hand.
func (r *tierRunner) applySuccess(ctx context.Context, target, key string, outcome fetch.Outcome) {
	sample := types.Sample{Value: outcome.Value, FetchedAt: outcome.FetchedAt}
	if _, err := r.sched.cache.SetWithTTL(key, sample, r.cfg.TTL); err != nil {
		r.sched.logger.Warn("Cache write failed",
			"tier", r.cfg.Tier,
			"target", target,
			"error", err)
	}
	if err := r.sched.snapshots.Save(ctx, key, outcome.Value); err != nil {
		r.sched.logger.Warn("Fallback save failed",
			"tier", r.cfg.Tier,
			"target", target,
			"error", err)
	}

	r.emit(types.Update{
		Tier:      r.cfg.Tier,
		Target:    target,
		Value:     outcome.Value,
		FetchedAt: outcome.FetchedAt,
	}, sourceFresh)
}

// applyFailure serves the last known good value as degraded data. When no
// snapshot exists the update still fires, with a nil value, so consumers
// can distinguish "stale" from "never seen".
func (r *tierRunner) applyFailure(ctx context.Context, target, key string, outcome fetch.Outcome) {
	r.sched.logger.Warn("Serving degraded data",
		"tier", r.cfg.Tier,
		"target", target,
		"kind", outcome.Kind,
		"attempts", outcome.Attempts)

	snapshot, ok, err := r.sched.snapshots.Load(ctx, key)
	if err != nil {
		r.sched.logger.Warn("Fallback load failed",
			"tier", r.cfg.Tier,
			"target", target,
			"error", err)
		ok = false
	}

	if ok {
		r.emit(types.Update{
			Tier:      r.cfg.Tier,
			Target:    target,
			Value:     snapshot.Value,
			FetchedAt: snapshot.SavedAt,
			Degraded:  true,
		}, sourceFallback)
		return
	}

	r.emit(types.Update{
		Tier:      r.cfg.Tier,
		Target:    target,
		FetchedAt: outcome.LastAttemptAt,
		Degraded:  true,
	}, sourceNone)
}

// suspendLoop holds the tier while the circuit is open. The cadence timer
// stays disarmed; a one-shot timer set to the breaker's reset window plus a
// safety margin decides when to probe again. If the breaker is still open
// when it fires, only the one-shot is re-armed. Returns false on teardown.
func (r *tierRunner) suspendLoop(ctx context.Context) bool {
	// The wait is computed from the status observed at suspension time, and
	// refreshed on every failed probe in case the breaker published a new
	// reset window.
	status := r.sched.gateway.Status()
	r.setState(StateSuspended)
	r.sched.logger.Info("Tier suspended",
		"tier", r.cfg.Tier,
		"reset_after", status.ResetAfter)

	for {
		wait := status.ResetAfter + r.sched.resumeMargin
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		status = r.sched.gateway.Status()
		if !status.Allows() {
			r.sched.logger.Debug("Circuit still open, staying suspended",
				"tier", r.cfg.Tier)
			continue
		}

		if r.sched.metrics != nil {
			r.sched.metrics.recordResume(r.cfg.Tier)
		}
		r.sched.logger.Info("Tier resumed", "tier", r.cfg.Tier)
		r.setState(StateScheduled)

		// Refresh immediately rather than waiting out a cadence the
		// tier already sat through. The probe itself can find the
		// circuit open again, in which case we park again.
		if r.tick(ctx) {
			status = r.sched.gateway.Status()
			r.setState(StateSuspended)
			continue
		}
		return ctx.Err() == nil
	}
}

func (r *tierRunner) emit(update types.Update, source string) {
	if r.sched.metrics != nil {
		r.sched.metrics.recordUpdate(r.cfg.Tier, source)
	}
	r.sched.logger.Debug("Update emitted",
		"tier", update.Tier,
		"target", update.Target,
		"source", source,
		"degraded", update.Degraded)
	r.sched.notify(update)
}

func (r *tierRunner) setState(state State) {
	r.mu.Lock()
	changed := r.state != state
	r.state = state
	r.mu.Unlock()

	if !changed {
		return
	}
	if r.sched.metrics != nil {
		r.sched.metrics.recordState(r.cfg.Tier, state)
	}
}

func (r *tierRunner) currentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
