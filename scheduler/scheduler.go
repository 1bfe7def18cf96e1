package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/refreshkit/breaker"
	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/fallback"
	"github.com/c360/refreshkit/fetch"
	"github.com/c360/refreshkit/pkg/cache"
	"github.com/c360/refreshkit/types"
)

// stopTimeout bounds how long Stop waits for tier runners to drain.
const stopTimeout = 5 * time.Second

// State describes where a tier currently sits in its refresh cycle.
type State int

const (
	// StateIdle means the tier is not running (before Start, after Stop).
	StateIdle State = iota
	// StateScheduled means the cadence timer is armed and waiting.
	StateScheduled
	// StateFetching means a refresh is in flight for the tier.
	StateFetching
	// StateSuspended means the circuit is open and only the one-shot
	// resume timer is armed.
	StateSuspended
)

// String returns the state name for logs and health reports.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Listener receives every update a tier produces: fresh values, cached
// values, and degraded fallbacks alike. Listeners run on the tier's own
// goroutine, in tick order, so they must return quickly; anything slow
// belongs behind a buffer (see the notify package).
type Listener func(update types.Update)

// Fetcher runs one bounded fetch for a target. *fetch.Fetcher satisfies
// this; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Outcome, error)
}

// Scheduler owns the refresh cycle for a set of tiers. Each tier runs on
// its own timer and goroutine; they share the cache, the fallback store,
// and the fetcher, but never block one another.
//
// A Scheduler is scoped to one dashboard session: construct it with the
// session's tiers, Start it, and Stop it on teardown. Stop cancels every
// timer and in-flight fetch as a group.
type Scheduler struct {
	cfg          Config
	fetcher      Fetcher
	cache        cache.Cache[types.Sample]
	snapshots    fallback.Store
	gateway      breaker.Gateway
	logger       *slog.Logger
	metrics      *schedulerMetrics
	resumeMargin time.Duration

	listenerMu sync.RWMutex
	listeners  []Listener

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runners map[types.Tier]*tierRunner
}

// New creates a Scheduler for the configured tiers. The fetcher, cache, and
// fallback store are required; a nil gateway disables suspension resume
// probing by treating the circuit as always closed, which only makes sense
// when the fetcher's gateway is also always closed.
func New(cfg Config, fetcher Fetcher, sampleCache cache.Cache[types.Sample], snapshots fallback.Store, gateway breaker.Gateway, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New",
			"fetcher is required")
	}
	if sampleCache == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New",
			"cache is required")
	}
	if snapshots == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scheduler", "New",
			"fallback store is required")
	}
	if gateway == nil {
		gateway = breaker.AlwaysClosed()
	}

	s := &Scheduler{
		cfg:          cfg,
		fetcher:      fetcher,
		cache:        sampleCache,
		snapshots:    snapshots,
		gateway:      gateway,
		logger:       slog.Default(),
		resumeMargin: cfg.resumeMargin(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, errors.WrapTransient(err, "Scheduler", "New", "applying option")
		}
	}

	s.runners = make(map[types.Tier]*tierRunner, len(cfg.Tiers))
	for _, tierCfg := range cfg.Tiers {
		s.runners[tierCfg.Tier] = newTierRunner(tierCfg, s)
	}

	return s, nil
}

// Start launches one runner per tier. Each tier refreshes immediately and
// then follows its own cadence. The supplied context is the session root:
// cancelling it tears the scheduler down the same way Stop does.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Scheduler", "Start",
			"scheduler already running")
	}

	s.runCtx = ctx
	s.launchRunners()

	s.started = true
	s.logger.Info("Scheduler started", "tiers", len(s.runners))
	return nil
}

// launchRunners derives a fresh cancellable context from the session root
// and starts one goroutine per runner. Caller holds s.mu.
func (s *Scheduler) launchRunners() {
	runCtx, cancel := context.WithCancel(s.runCtx)
	s.cancel = cancel

	for _, runner := range s.runners {
		s.wg.Add(1)
		go func(r *tierRunner) {
			defer s.wg.Done()
			r.run(runCtx)
		}(runner)
	}
}

// drainRunners cancels the current runner group and waits for it to exit.
// Caller holds s.mu.
func (s *Scheduler) drainRunners(op string) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		return errors.WrapTransient(errors.ErrTimeout, "Scheduler", op,
			"waiting for tier runners to drain")
	}
}

// Stop cancels all tier timers and in-flight fetches as a group and waits
// for the runners to drain. An aborted fetch writes nothing to the cache or
// the fallback store.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Scheduler", "Stop",
			"scheduler not running")
	}

	if err := s.drainRunners("Stop"); err != nil {
		return err
	}

	s.started = false
	s.logger.Info("Scheduler stopped")
	return nil
}

// ApplyTiers replaces the tier set. A stopped scheduler just swaps its
// configuration; a running one drains the current runners, then relaunches
// with the new set. Listeners and metrics carry over. Replacement is
// all-or-nothing: an invalid tier set leaves the current one running.
func (s *Scheduler) ApplyTiers(tiers []types.TierConfig) error {
	next := Config{Tiers: tiers, ResumeMargin: s.cfg.ResumeMargin}
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		if err := s.drainRunners("ApplyTiers"); err != nil {
			return err
		}
	}

	s.cfg = next
	s.runners = make(map[types.Tier]*tierRunner, len(next.Tiers))
	for _, tierCfg := range next.Tiers {
		s.runners[tierCfg.Tier] = newTierRunner(tierCfg, s)
	}

	if s.started {
		s.launchRunners()
		s.logger.Info("Scheduler tiers replaced", "tiers", len(s.runners))
	}
	return nil
}

// Subscribe registers a listener for all tiers. Subscribing after Start is
// safe; the listener sees updates from the next tick onward.
func (s *Scheduler) Subscribe(listener Listener) {
	if listener == nil {
		return
	}
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, listener)
	s.listenerMu.Unlock()
}

// notify delivers an update to every listener. Called from tier goroutines;
// the listener slice is copied under the read lock so Subscribe never
// blocks delivery.
func (s *Scheduler) notify(update types.Update) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	for _, listener := range listeners {
		listener(update)
	}
}

// TierState reports the current state of one tier.
func (s *Scheduler) TierState(tier types.Tier) (State, bool) {
	s.mu.Lock()
	runner, ok := s.runners[tier]
	s.mu.Unlock()
	if !ok {
		return StateIdle, false
	}
	return runner.currentState(), true
}

// TierStates reports the current state of every configured tier.
func (s *Scheduler) TierStates() map[types.Tier]State {
	s.mu.Lock()
	runners := make(map[types.Tier]*tierRunner, len(s.runners))
	for tier, runner := range s.runners {
		runners[tier] = runner
	}
	s.mu.Unlock()

	states := make(map[types.Tier]State, len(runners))
	for tier, runner := range runners {
		states[tier] = runner.currentState()
	}
	return states
}
