package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// MockKV is an in-memory stand-in for a JetStream key-value bucket. It
// implements the Get/Put/Delete/Watch/Bucket subset that the snapshot store,
// the breaker gateway, and the config manager use; the rest of the interface
// is inherited from the nil embedded field and panics if called, which is
// the desired behavior for a unit test that strayed off the supported
// surface.
//
// Semantics follow the real bucket where tests depend on them: Get on a
// missing key returns jetstream.ErrKeyNotFound, Get on a deleted key returns
// jetstream.ErrKeyDeleted, and watchers receive the current entry, then a
// nil end-of-replay marker, then live updates as Put and Delete land.
//
// Watch matches exact keys only. Every consumer in this module watches a
// single key, so wildcard support would be dead weight here; integration
// tests that need real pattern matching run against a real bucket.
type MockKV struct {
	jetstream.KeyValue

	mu       sync.Mutex
	name     string
	revision uint64
	entries  map[string]*mockKVEntry
	watchers []*mockKeyWatcher
	getErr   error
	putErr   error
}

// NewMockKV creates an empty mock bucket with the given name.
func NewMockKV(bucket string) *MockKV {
	return &MockKV{
		name:    bucket,
		entries: make(map[string]*mockKVEntry),
	}
}

// Bucket returns the bucket name.
func (kv *MockKV) Bucket() string {
	return kv.name
}

// Get returns the latest entry for key.
func (kv *MockKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.getErr != nil {
		return nil, kv.getErr
	}

	entry, ok := kv.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	if entry.op == jetstream.KeyValueDelete {
		return nil, jetstream.ErrKeyDeleted
	}
	return entry, nil
}

// Put stores value under key and delivers the new entry to watchers.
func (kv *MockKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.putErr != nil {
		return 0, kv.putErr
	}

	kv.revision++
	entry := &mockKVEntry{
		bucket:   kv.name,
		key:      key,
		value:    append([]byte(nil), value...),
		revision: kv.revision,
		created:  time.Now(),
		op:       jetstream.KeyValuePut,
	}
	kv.entries[key] = entry
	kv.notifyLocked(entry)
	return kv.revision, nil
}

// Delete records a delete marker for key and delivers it to watchers. Like
// the real bucket, deleting a missing key succeeds: a delete is just a
// marker write, not a read-modify-write.
func (kv *MockKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.revision++
	entry := &mockKVEntry{
		bucket:   kv.name,
		key:      key,
		revision: kv.revision,
		created:  time.Now(),
		op:       jetstream.KeyValueDelete,
	}
	kv.entries[key] = entry
	kv.notifyLocked(entry)
	return nil
}

// Watch returns a watcher for the exact key. The current entry (if any) is
// replayed first, followed by a nil end-of-replay marker, matching the real
// watcher's delivery order. Watch options are accepted and ignored: their
// contents are opaque outside the jetstream package, and every consumer
// here tolerates the replay-then-marker sequence.
func (kv *MockKV) Watch(ctx context.Context, keys string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	w := &mockKeyWatcher{
		key:     keys,
		updates: make(chan jetstream.KeyValueEntry, 64),
	}
	if entry, ok := kv.entries[keys]; ok {
		w.updates <- entry
	}
	w.updates <- nil
	kv.watchers = append(kv.watchers, w)
	return w, nil
}

// SetGetError makes every subsequent Get fail with err. Pass nil to clear.
func (kv *MockKV) SetGetError(err error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.getErr = err
}

// SetPutError makes every subsequent Put fail with err. Pass nil to clear.
func (kv *MockKV) SetPutError(err error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.putErr = err
}

// StoredKeys returns the keys currently holding a live (non-deleted) value.
func (kv *MockKV) StoredKeys() []string {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	keys := make([]string, 0, len(kv.entries))
	for key, entry := range kv.entries {
		if entry.op == jetstream.KeyValuePut {
			keys = append(keys, key)
		}
	}
	return keys
}

func (kv *MockKV) notifyLocked(entry *mockKVEntry) {
	for _, w := range kv.watchers {
		if w.key == entry.key {
			w.deliver(entry)
		}
	}
}

// mockKVEntry implements jetstream.KeyValueEntry for values held by MockKV.
type mockKVEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	op       jetstream.KeyValueOp
}

func (e *mockKVEntry) Bucket() string                  { return e.bucket }
func (e *mockKVEntry) Key() string                     { return e.key }
func (e *mockKVEntry) Value() []byte                   { return e.value }
func (e *mockKVEntry) Revision() uint64                { return e.revision }
func (e *mockKVEntry) Created() time.Time              { return e.created }
func (e *mockKVEntry) Delta() uint64                   { return 0 }
func (e *mockKVEntry) Operation() jetstream.KeyValueOp { return e.op }

// mockKeyWatcher implements jetstream.KeyWatcher over a buffered channel.
// Updates that arrive when the buffer is full are dropped rather than
// blocking a Put; a test that overruns 64 undrained updates has a bug.
type mockKeyWatcher struct {
	key string

	mu      sync.Mutex
	updates chan jetstream.KeyValueEntry
	stopped bool
}

// Updates returns the watcher's delivery channel.
func (w *mockKeyWatcher) Updates() <-chan jetstream.KeyValueEntry {
	return w.updates
}

// Stop closes the delivery channel. Safe to call more than once.
func (w *mockKeyWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.updates)
	return nil
}

func (w *mockKeyWatcher) deliver(entry jetstream.KeyValueEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	select {
	case w.updates <- entry:
	default:
	}
}
