// Package testutil provides test doubles and fixtures for the refresh
// pipeline: a scripted transport, an in-memory KV bucket, an in-memory NATS
// connection, and an update-collecting listener.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/refreshkit/fetch"
	"github.com/c360/refreshkit/types"
)

// scripted is one queued transport result: a payload or an error.
type scripted struct {
	value json.RawMessage
	err   error
}

// MockTransport is a scripted fetch.Transport. Each target carries a FIFO
// queue of results; a call pops the head, falling back to the standing
// response when the queue is empty. Calls can be delayed or parked behind a
// gate, and atomic counters expose how many calls ran and how many
// overlapped, so tests can assert that a tier never had two fetches in
// flight.
type MockTransport struct {
	mu        sync.Mutex
	queues    map[string][]scripted
	perTarget map[string]int
	standing  *scripted
	delay     time.Duration
	gate      chan struct{}

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewMockTransport creates a transport with no scripted responses. Calls
// fail until a response is scripted or a standing response is set.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		queues:    make(map[string][]scripted),
		perTarget: make(map[string]int),
	}
}

// Script queues a successful response for target. Chainable.
func (m *MockTransport) Script(target, value string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[target] = append(m.queues[target], scripted{value: json.RawMessage(value)})
	return m
}

// ScriptError queues a failing response for target. Chainable.
func (m *MockTransport) ScriptError(target string, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[target] = append(m.queues[target], scripted{err: err})
	return m
}

// AlwaysReturn sets the standing response used when a target's queue is
// empty. Chainable.
func (m *MockTransport) AlwaysReturn(value string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standing = &scripted{value: json.RawMessage(value)}
	return m
}

// AlwaysFail sets the standing error used when a target's queue is empty.
// Chainable.
func (m *MockTransport) AlwaysFail(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standing = &scripted{err: err}
	return m
}

// SetDelay makes every call wait d before responding. Zero disables the
// delay.
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Block parks subsequent calls at a gate until Release is called. Calls
// still count as in flight while parked, which is how overlap tests hold a
// fetch open.
func (m *MockTransport) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release opens the gate installed by Block, letting parked and future
// calls proceed.
func (m *MockTransport) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Send implements fetch.Transport.
func (m *MockTransport) Send(ctx context.Context, req fetch.Request) (json.RawMessage, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	m.calls.Add(1)

	m.mu.Lock()
	m.perTarget[req.Target]++
	gate := m.gate
	delay := m.delay
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if queue := m.queues[req.Target]; len(queue) > 0 {
		next := queue[0]
		m.queues[req.Target] = queue[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.value, nil
	}
	if m.standing != nil {
		if m.standing.err != nil {
			return nil, m.standing.err
		}
		return m.standing.value, nil
	}
	return nil, fmt.Errorf("no scripted response for target %q", req.Target)
}

// Calls returns the total number of Send invocations.
func (m *MockTransport) Calls() int64 {
	return m.calls.Load()
}

// CallsFor returns the number of Send invocations for one target.
func (m *MockTransport) CallsFor(target string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perTarget[target]
}

// InFlight returns the number of calls currently inside Send.
func (m *MockTransport) InFlight() int64 {
	return m.inFlight.Load()
}

// MaxInFlight returns the highest overlap observed across all calls.
func (m *MockTransport) MaxInFlight() int64 {
	return m.maxInFlight.Load()
}

// CollectingListener records every update it receives, in arrival order.
// Its Record method is assignable wherever the scheduler accepts a
// listener, so wiring is one line:
//
//	collected := testutil.NewCollectingListener()
//	sched.Subscribe(collected.Record)
type CollectingListener struct {
	mu      sync.Mutex
	updates []types.Update
}

// NewCollectingListener creates an empty listener.
func NewCollectingListener() *CollectingListener {
	return &CollectingListener{}
}

// Record appends an update. Safe for concurrent use.
func (l *CollectingListener) Record(update types.Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, update)
}

// Updates returns a copy of everything recorded so far, oldest first.
func (l *CollectingListener) Updates() []types.Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]types.Update, len(l.updates))
	copy(result, l.updates)
	return result
}

// Count returns the number of updates recorded so far.
func (l *CollectingListener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

// Last returns the most recent update, or false if none arrived yet.
func (l *CollectingListener) Last() (types.Update, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.updates) == 0 {
		return types.Update{}, false
	}
	return l.updates[len(l.updates)-1], true
}

// Reset discards everything recorded so far.
func (l *CollectingListener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = nil
}

// WaitForCount polls until at least count updates have been recorded,
// failing the test after timeout.
func (l *CollectingListener) WaitForCount(t *testing.T, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if l.Count() >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d updates (got %d)", count, l.Count())
}

// WaitForUpdate polls until an update matching the predicate arrives,
// returning the first match. Fails the test after timeout.
func (l *CollectingListener) WaitForUpdate(t *testing.T, timeout time.Duration, match func(types.Update) bool) types.Update {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, update := range l.Updates() {
			if match(update) {
				return update
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for matching update (recorded %d)", l.Count())
	return types.Update{}
}
