package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/refreshkit/breaker"
	pkgerrors "github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/fallback"
	"github.com/c360/refreshkit/fetch"
	"github.com/c360/refreshkit/pkg/cache"
	"github.com/c360/refreshkit/pkg/retry"
	"github.com/c360/refreshkit/types"
)

// stubTransport scripts per-call transport behavior and records call timing.
type stubTransport struct {
	mu        sync.Mutex
	calls     int
	firstCall time.Time
	fn        func(ctx context.Context, call int, req fetch.Request) (json.RawMessage, error)
}

func (s *stubTransport) Send(ctx context.Context, req fetch.Request) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	if call == 1 {
		s.firstCall = time.Now()
	}
	fn := s.fn
	s.mu.Unlock()
	return fn(ctx, call, req)
}

func (s *stubTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubTransport) firstCallAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstCall
}

func alwaysReturn(value string) *stubTransport {
	return &stubTransport{
		fn: func(_ context.Context, _ int, _ fetch.Request) (json.RawMessage, error) {
			return json.RawMessage(value), nil
		},
	}
}

func alwaysFail(err error) *stubTransport {
	return &stubTransport{
		fn: func(_ context.Context, _ int, _ fetch.Request) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// collector gathers updates delivered to a subscribed listener.
type collector struct {
	mu      sync.Mutex
	updates []types.Update
}

func (c *collector) add(update types.Update) {
	c.mu.Lock()
	c.updates = append(c.updates, update)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *collector) snapshot() []types.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Update, len(c.updates))
	copy(out, c.updates)
	return out
}

func (c *collector) forTier(tier types.Tier) []types.Update {
	var out []types.Update
	for _, u := range c.snapshot() {
		if u.Tier == tier {
			out = append(out, u)
		}
	}
	return out
}

func (c *collector) forTarget(target string) []types.Update {
	var out []types.Update
	for _, u := range c.snapshot() {
		if u.Target == target {
			out = append(out, u)
		}
	}
	return out
}

// fixture wires a scheduler to real pipeline components: a live fetcher over
// the stub transport, a TTL cache, and an in-memory fallback store.
type fixture struct {
	sched     *Scheduler
	cache     cache.Cache[types.Sample]
	snapshots fallback.Store
	updates   *collector
}

func newFixture(t *testing.T, cfg Config, transport fetch.Transport, gateway breaker.Gateway, opts ...Option) *fixture {
	t.Helper()

	if gateway == nil {
		gateway = breaker.AlwaysClosed()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fetcher, err := fetch.NewFetcher(transport, gateway,
		fetch.WithLogger(logger),
		fetch.WithBackoff(retry.Config{
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
		}))
	require.NoError(t, err)

	sampleCache, err := cache.NewTTL[types.Sample](context.Background(), 5*time.Minute, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sampleCache.Close() })

	snapshots := fallback.NewMemoryStore()

	opts = append([]Option{WithLogger(logger)}, opts...)
	sched, err := New(cfg, fetcher, sampleCache, snapshots, gateway, opts...)
	require.NoError(t, err)

	f := &fixture{
		sched:     sched,
		cache:     sampleCache,
		snapshots: snapshots,
		updates:   &collector{},
	}
	sched.Subscribe(f.updates.add)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sched.Start(context.Background()))
	t.Cleanup(func() { _ = f.sched.Stop() })
}

func singleTierConfig(cadence, ttl time.Duration, targets ...string) Config {
	if len(targets) == 0 {
		targets = []string{"revenue"}
	}
	return Config{
		Tiers: []types.TierConfig{{
			Tier:        types.TierCritical,
			Cadence:     cadence,
			TTL:         ttl,
			Targets:     targets,
			Timeout:     time.Second,
			MaxAttempts: 3,
		}},
	}
}

func TestNew_Validation(t *testing.T) {
	transport := alwaysReturn(`1`)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher, err := fetch.NewFetcher(transport, nil, fetch.WithLogger(logger))
	require.NoError(t, err)

	sampleCache, err := cache.NewTTL[types.Sample](context.Background(), time.Minute, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sampleCache.Close() })

	snapshots := fallback.NewMemoryStore()
	cfg := singleTierConfig(time.Second, time.Minute)

	t.Run("requires a fetcher", func(t *testing.T) {
		_, err := New(cfg, nil, sampleCache, snapshots, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))
		assert.Contains(t, err.Error(), "fetcher is required")
	})

	t.Run("requires a cache", func(t *testing.T) {
		_, err := New(cfg, fetcher, nil, snapshots, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("requires a fallback store", func(t *testing.T) {
		_, err := New(cfg, fetcher, sampleCache, nil, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("rejects an empty tier set", func(t *testing.T) {
		_, err := New(Config{}, fetcher, sampleCache, snapshots, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("rejects duplicate tiers", func(t *testing.T) {
		dup := cfg
		dup.Tiers = append([]types.TierConfig{}, cfg.Tiers[0], cfg.Tiers[0])
		_, err := New(dup, fetcher, sampleCache, snapshots, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configured twice")
	})

	t.Run("nil gateway defaults to closed", func(t *testing.T) {
		sched, err := New(cfg, fetcher, sampleCache, snapshots, nil)
		require.NoError(t, err)
		require.NotNil(t, sched)
	})

	t.Run("nil options are ignored", func(t *testing.T) {
		sched, err := New(cfg, fetcher, sampleCache, snapshots, nil, nil, WithLogger(nil))
		require.NoError(t, err)
		require.NotNil(t, sched)
	})
}

func TestScheduler_FirstTickRefreshesImmediately(t *testing.T) {
	transport := alwaysReturn(`42`)
	// Hour-long cadence: the only activity is the immediate first refresh.
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)

	update := f.updates.snapshot()[0]
	assert.Equal(t, types.TierCritical, update.Tier)
	assert.Equal(t, "revenue", update.Target)
	assert.JSONEq(t, `42`, string(update.Value))
	assert.False(t, update.Degraded)
	assert.Equal(t, 1, transport.callCount())
}

func TestScheduler_CacheShortCircuitsWithinTTL(t *testing.T) {
	transport := alwaysReturn(`42`)
	// TTL far beyond the test horizon: every tick after the first must be
	// served from cache without touching the transport.
	f := newFixture(t, singleTierConfig(25*time.Millisecond, 10*time.Second), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 5 },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, transport.callCount(), "only the first tick should reach the transport")

	updates := f.updates.snapshot()
	first := updates[0]
	for i, update := range updates {
		assert.JSONEq(t, `42`, string(update.Value), "update %d", i)
		assert.False(t, update.Degraded, "update %d", i)
		assert.True(t, update.FetchedAt.Equal(first.FetchedAt),
			"cache hits must carry the original fetch time, update %d", i)
	}
}

func TestScheduler_RefetchesAfterTTLExpiry(t *testing.T) {
	transport := &stubTransport{
		fn: func(_ context.Context, call int, _ fetch.Request) (json.RawMessage, error) {
			return json.RawMessage(fmt.Sprintf(`%d`, call)), nil
		},
	}
	f := newFixture(t, singleTierConfig(25*time.Millisecond, 60*time.Millisecond), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return transport.callCount() >= 2 },
		2*time.Second, 5*time.Millisecond)

	// Both fetched generations must have reached listeners.
	require.Eventually(t, func() bool {
		seen := map[string]bool{}
		for _, u := range f.updates.snapshot() {
			seen[string(u.Value)] = true
		}
		return seen["1"] && seen["2"]
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_SuccessUpdatesFallback(t *testing.T) {
	transport := alwaysReturn(`42`)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)

	snapshot, ok, err := f.snapshots.Load(context.Background(),
		types.RefreshKey(types.TierCritical, "revenue"))
	require.NoError(t, err)
	require.True(t, ok, "a successful fetch must persist a fallback snapshot")
	assert.JSONEq(t, `42`, string(snapshot.Value))
}

func TestScheduler_ServesFallbackOnFailure(t *testing.T) {
	transport := alwaysFail(pkgerrors.ErrNetwork)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)

	// Seed the last known good value, as if written by an earlier session.
	key := types.RefreshKey(types.TierCritical, "revenue")
	require.NoError(t, f.snapshots.Save(context.Background(), key, json.RawMessage(`37`)))
	seeded, ok, err := f.snapshots.Load(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)

	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, transport.callCount(), "the attempt budget should be exhausted")

	update := f.updates.snapshot()[0]
	assert.True(t, update.Degraded)
	assert.JSONEq(t, `37`, string(update.Value))
	assert.True(t, update.FetchedAt.Equal(seeded.SavedAt),
		"a degraded update must carry the snapshot's save time")
	assert.Equal(t, 1, f.updates.count(), "one tick produces exactly one update")
}

func TestScheduler_FailureWithoutSnapshot(t *testing.T) {
	transport := alwaysFail(pkgerrors.ErrNetwork)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)

	update := f.updates.snapshot()[0]
	assert.True(t, update.Degraded)
	assert.Nil(t, update.Value, "no snapshot means no value, never a fabricated one")
	assert.False(t, update.FetchedAt.IsZero(), "the update still carries the attempt time")
}

func TestScheduler_SuspendsWhileCircuitOpen(t *testing.T) {
	gateway := breaker.NewStatic(breaker.Status{
		State:      breaker.StateOpen,
		ResetAfter: 50 * time.Millisecond,
	})
	transport := alwaysReturn(`1`)

	cfg := singleTierConfig(20*time.Millisecond, 10*time.Second)
	cfg.ResumeMargin = 20 * time.Millisecond
	f := newFixture(t, cfg, transport, gateway)
	f.start(t)

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateSuspended
	}, 2*time.Second, 5*time.Millisecond)

	// Sit through two resume windows. The circuit never closes, so the
	// one-shot keeps re-arming and the transport is never touched.
	time.Sleep(160 * time.Millisecond)

	assert.Equal(t, 0, transport.callCount(), "an open circuit must not consume attempts")
	state, ok := f.sched.TierState(types.TierCritical)
	require.True(t, ok)
	assert.Equal(t, StateSuspended, state)
	assert.Empty(t, f.updates.snapshot())
}

func TestScheduler_ResumesAfterResetWindow(t *testing.T) {
	resetAfter := 60 * time.Millisecond
	gateway := breaker.NewStatic(breaker.Status{
		State:      breaker.StateOpen,
		ResetAfter: resetAfter,
	})
	transport := alwaysReturn(`7`)

	cfg := singleTierConfig(25*time.Millisecond, 10*time.Second)
	cfg.ResumeMargin = 20 * time.Millisecond
	f := newFixture(t, cfg, transport, gateway)

	started := time.Now()
	f.start(t)

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateSuspended
	}, 2*time.Second, 5*time.Millisecond)

	// The breaker owner closes the circuit while the tier is parked.
	gateway.Set(breaker.Status{State: breaker.StateClosed})

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, transport.firstCallAt().Sub(started), resetAfter,
		"no fetch may happen before the reset window has passed")

	update := f.updates.snapshot()[0]
	assert.False(t, update.Degraded)
	assert.JSONEq(t, `7`, string(update.Value))

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateScheduled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_SuspensionSkipsRemainingTargets(t *testing.T) {
	gateway := breaker.NewStatic(breaker.Status{
		State:      breaker.StateOpen,
		ResetAfter: time.Hour,
	})
	transport := alwaysReturn(`1`)

	cfg := singleTierConfig(time.Hour, 10*time.Second, "alpha", "beta")
	f := newFixture(t, cfg, transport, gateway)

	// Alpha is already cached, so the tick serves it before beta's fetch
	// hits the open circuit.
	_, err := f.cache.SetWithTTL(types.RefreshKey(types.TierCritical, "alpha"),
		types.Sample{Value: json.RawMessage(`5`), FetchedAt: time.Now()}, 10*time.Second)
	require.NoError(t, err)

	f.start(t)

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateSuspended
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, transport.callCount())
	alpha := f.updates.forTarget("alpha")
	require.Len(t, alpha, 1, "the cached target is served before the tier suspends")
	assert.JSONEq(t, `5`, string(alpha[0].Value))
	assert.Empty(t, f.updates.forTarget("beta"), "targets after the suspension are skipped")
}

func TestScheduler_TargetsRefreshInOrder(t *testing.T) {
	transport := &stubTransport{
		fn: func(_ context.Context, _ int, req fetch.Request) (json.RawMessage, error) {
			return json.RawMessage(fmt.Sprintf(`%q`, req.Target)), nil
		},
	}
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute, "alpha", "beta"), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 2 },
		2*time.Second, 5*time.Millisecond)

	updates := f.updates.snapshot()
	assert.Equal(t, "alpha", updates[0].Target)
	assert.Equal(t, "beta", updates[1].Target)
	assert.Equal(t, 2, transport.callCount())
}

func TestScheduler_SingleFetchInFlightPerTier(t *testing.T) {
	var current, peak atomic.Int32
	transport := &stubTransport{
		fn: func(ctx context.Context, _ int, _ fetch.Request) (json.RawMessage, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			defer current.Add(-1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(40 * time.Millisecond):
			}
			return json.RawMessage(`1`), nil
		},
	}

	// Cadence far below fetch duration and a TTL that expires immediately:
	// every tick wants a fetch, but they must serialize.
	cfg := singleTierConfig(10*time.Millisecond, time.Millisecond)
	cfg.Tiers[0].MaxAttempts = 1
	f := newFixture(t, cfg, transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return transport.callCount() >= 3 },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), peak.Load(), "a tier must never run two fetches at once")
}

func TestScheduler_TiersScheduleIndependently(t *testing.T) {
	transport := &stubTransport{
		fn: func(ctx context.Context, _ int, req fetch.Request) (json.RawMessage, error) {
			if req.Tier == types.TierBackground {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(80 * time.Millisecond):
				}
			}
			return json.RawMessage(`1`), nil
		},
	}

	cfg := Config{
		Tiers: []types.TierConfig{
			{
				Tier:        types.TierCritical,
				Cadence:     15 * time.Millisecond,
				TTL:         time.Millisecond,
				Targets:     []string{"fast"},
				Timeout:     time.Second,
				MaxAttempts: 1,
			},
			{
				Tier:        types.TierBackground,
				Cadence:     30 * time.Millisecond,
				TTL:         time.Millisecond,
				Targets:     []string{"slow"},
				Timeout:     time.Second,
				MaxAttempts: 1,
			},
		},
	}
	f := newFixture(t, cfg, transport, nil)
	f.start(t)

	// The critical tier keeps its cadence while the background tier is
	// stuck in a slow fetch.
	require.Eventually(t, func() bool {
		return len(f.updates.forTier(types.TierCritical)) >= 5
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopCancelsInFlightFetch(t *testing.T) {
	transport := &stubTransport{
		fn: func(ctx context.Context, _ int, _ fetch.Request) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	cfg := singleTierConfig(time.Hour, time.Minute)
	cfg.Tiers[0].Timeout = 10 * time.Second
	f := newFixture(t, cfg, transport, nil)
	f.start(t)

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateFetching
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.sched.Stop())

	// The aborted fetch must leave no trace: no update, no cache entry,
	// no fallback snapshot.
	assert.Empty(t, f.updates.snapshot())

	key := types.RefreshKey(types.TierCritical, "revenue")
	_, found := f.cache.Get(key)
	assert.False(t, found)
	_, ok, err := f.snapshots.Load(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	state, _ := f.sched.TierState(types.TierCritical)
	assert.Equal(t, StateIdle, state)
}

func TestScheduler_LifecycleErrors(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)

	err := f.sched.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrNotStarted)

	require.NoError(t, f.sched.Start(context.Background()))
	err = f.sched.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyStarted)

	require.NoError(t, f.sched.Stop())

	// A stopped scheduler can be started again.
	require.NoError(t, f.sched.Start(context.Background()))
	require.NoError(t, f.sched.Stop())
}

func TestScheduler_ContextCancelTearsDown(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(20*time.Millisecond, time.Millisecond), transport, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.sched.Start(ctx))
	t.Cleanup(func() { _ = f.sched.Stop() })

	require.Eventually(t, func() bool { return f.updates.count() >= 1 },
		2*time.Second, 5*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateIdle
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_SubscribeDuringRun(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(20*time.Millisecond, time.Millisecond), transport, nil)
	f.sched.Subscribe(nil) // ignored
	f.start(t)

	require.Eventually(t, func() bool { return f.updates.count() >= 2 },
		2*time.Second, 5*time.Millisecond)

	late := &collector{}
	f.sched.Subscribe(late.add)

	require.Eventually(t, func() bool { return late.count() >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_TierStates(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)

	state, ok := f.sched.TierState(types.TierCritical)
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)

	_, ok = f.sched.TierState(types.Tier("unknown"))
	assert.False(t, ok)

	states := f.sched.TierStates()
	require.Len(t, states, 1)
	assert.Contains(t, states, types.TierCritical)

	f.start(t)
	require.Eventually(t, func() bool {
		state, _ := f.sched.TierState(types.TierCritical)
		return state == StateScheduled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_ApplyTiersWhileRunning(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(20*time.Millisecond, time.Millisecond), transport, nil)
	f.start(t)

	require.Eventually(t, func() bool { return len(f.updates.forTier(types.TierCritical)) >= 1 },
		2*time.Second, 5*time.Millisecond)

	err := f.sched.ApplyTiers([]types.TierConfig{{
		Tier:        types.TierBackground,
		Cadence:     20 * time.Millisecond,
		TTL:         time.Millisecond,
		Targets:     []string{"users"},
		Timeout:     time.Second,
		MaxAttempts: 3,
	}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.updates.forTier(types.TierBackground)) >= 1 },
		2*time.Second, 5*time.Millisecond)

	// The replaced tier's runner is gone; its update count stays put.
	states := f.sched.TierStates()
	require.Len(t, states, 1)
	assert.Contains(t, states, types.TierBackground)

	before := len(f.updates.forTier(types.TierCritical))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, len(f.updates.forTier(types.TierCritical)))
}

func TestScheduler_ApplyTiersRejectsInvalidSet(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(20*time.Millisecond, time.Millisecond), transport, nil)
	f.start(t)

	err := f.sched.ApplyTiers(nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))

	// The running set is untouched and keeps delivering.
	before := f.updates.count()
	require.Eventually(t, func() bool { return f.updates.count() > before },
		2*time.Second, 5*time.Millisecond)

	_, ok := f.sched.TierState(types.TierCritical)
	assert.True(t, ok)
}

func TestScheduler_ApplyTiersBeforeStart(t *testing.T) {
	transport := alwaysReturn(`1`)
	f := newFixture(t, singleTierConfig(time.Hour, time.Minute), transport, nil)

	err := f.sched.ApplyTiers([]types.TierConfig{{
		Tier:        types.TierBackground,
		Cadence:     time.Hour,
		TTL:         time.Minute,
		Targets:     []string{"users"},
		Timeout:     time.Second,
		MaxAttempts: 3,
	}})
	require.NoError(t, err)

	_, ok := f.sched.TierState(types.TierCritical)
	assert.False(t, ok)

	f.start(t)
	require.Eventually(t, func() bool { return len(f.updates.forTier(types.TierBackground)) >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scheduled", StateScheduled.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "suspended", StateSuspended.String())
	assert.Equal(t, "unknown", State(99).String())
}
