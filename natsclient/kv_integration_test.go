//go:build integration

package natsclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore boots a container-backed client and wraps a fresh bucket in
// a store with the given options.
func newTestStore(t *testing.T, bucket string, opts ...func(*KVOptions)) (*Client, *KVStore) {
	t.Helper()

	client := NewTestClient(t, WithKV()).Client
	kv, err := client.CreateKeyValueBucket(context.Background(), jetstream.KeyValueConfig{
		Bucket: bucket,
	})
	require.NoError(t, err)
	return client, client.NewKVStore(kv, opts...)
}

func TestKVStore_BasicOperations(t *testing.T) {
	_, store := newTestStore(t, "snapshot-store")
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		rev, err := store.Put(ctx, "background.signups", []byte(`{"value":87}`))
		require.NoError(t, err)
		assert.Greater(t, rev, uint64(0))

		entry, err := store.Get(ctx, "background.signups")
		require.NoError(t, err)
		assert.Equal(t, "background.signups", entry.Key)
		assert.Equal(t, `{"value":87}`, string(entry.Value))
		assert.Equal(t, rev, entry.Revision)
	})

	t.Run("create new key", func(t *testing.T) {
		rev, err := store.Create(ctx, "background.churn_rate", []byte(`{"value":0.034}`))
		require.NoError(t, err)
		assert.Greater(t, rev, uint64(0))

		entry, err := store.Get(ctx, "background.churn_rate")
		require.NoError(t, err)
		assert.Equal(t, `{"value":0.034}`, string(entry.Value))
	})

	t.Run("update with revision", func(t *testing.T) {
		rev1, err := store.Put(ctx, "standard.conversion", []byte(`{"value":0.051}`))
		require.NoError(t, err)

		rev2, err := store.Update(ctx, "standard.conversion", []byte(`{"value":0.049}`), rev1)
		require.NoError(t, err)
		assert.Greater(t, rev2, rev1)

		entry, err := store.Get(ctx, "standard.conversion")
		require.NoError(t, err)
		assert.Equal(t, `{"value":0.049}`, string(entry.Value))
		assert.Equal(t, rev2, entry.Revision)
	})

	t.Run("delete key", func(t *testing.T) {
		_, err := store.Put(ctx, "standard.retired_metric", []byte(`{"value":0}`))
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "standard.retired_metric"))

		_, err = store.Get(ctx, "standard.retired_metric")
		assert.Equal(t, ErrKVKeyNotFound, err)
	})
}

func TestKVStore_UpdateWithRetry(t *testing.T) {
	client, store := newTestStore(t, "config-sections")
	ctx := context.Background()

	t.Run("clean update", func(t *testing.T) {
		_, err := store.Put(ctx, "tiers", []byte(`{"cadence":"30s"}`))
		require.NoError(t, err)

		err = store.UpdateWithRetry(ctx, "tiers", func(current []byte) ([]byte, error) {
			assert.Equal(t, `{"cadence":"30s"}`, string(current))
			return []byte(`{"cadence":"15s"}`), nil
		})
		require.NoError(t, err)

		entry, err := store.Get(ctx, "tiers")
		require.NoError(t, err)
		assert.Equal(t, `{"cadence":"15s"}`, string(entry.Value))
	})

	t.Run("retries past a racing writer", func(t *testing.T) {
		_, err := store.Put(ctx, "breaker", []byte(`{"state":"closed"}`))
		require.NoError(t, err)

		// The first attempt loses the CAS race on purpose
		calls := 0
		err = store.UpdateWithRetry(ctx, "breaker", func(_ []byte) ([]byte, error) {
			calls++
			if calls == 1 {
				_, _ = store.Put(ctx, "breaker", []byte(`{"state":"open"}`))
			}
			return []byte(`{"state":"half-open"}`), nil
		})
		require.NoError(t, err)
		assert.Greater(t, calls, 1)

		entry, err := store.Get(ctx, "breaker")
		require.NoError(t, err)
		assert.Equal(t, `{"state":"half-open"}`, string(entry.Value))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		_, err := store.Put(ctx, "fallback", []byte(`{"backend":"memory"}`))
		require.NoError(t, err)

		limited := client.NewKVStore(store.bucket, func(opts *KVOptions) {
			opts.MaxRetries = 1
			opts.RetryDelay = time.Millisecond
		})

		// Every attempt loses: a competing put lands before each CAS write
		attempts := 0
		err = limited.UpdateWithRetry(ctx, "fallback", func(_ []byte) ([]byte, error) {
			attempts++
			_, _ = store.Put(ctx, "fallback", []byte(`{"backend":"kv"}`))
			return []byte(`{"backend":"file"}`), nil
		})

		assert.Equal(t, ErrKVMaxRetriesExceeded, err)
		assert.Equal(t, 2, attempts)
	})
}

func TestKVStore_UpdateJSON(t *testing.T) {
	_, store := newTestStore(t, "tier-config")
	ctx := context.Background()

	t.Run("mutates existing document", func(t *testing.T) {
		seed, _ := json.Marshal(map[string]any{"enabled": true, "port": 8090})
		_, err := store.Put(ctx, "gateway", seed)
		require.NoError(t, err)

		err = store.UpdateJSON(ctx, "gateway", func(current map[string]any) error {
			assert.Equal(t, true, current["enabled"])
			assert.Equal(t, float64(8090), current["port"])

			current["enabled"] = false
			current["version"] = 2
			return nil
		})
		require.NoError(t, err)

		entry, err := store.Get(ctx, "gateway")
		require.NoError(t, err)
		var result map[string]any
		require.NoError(t, json.Unmarshal(entry.Value, &result))
		assert.Equal(t, false, result["enabled"])
		assert.Equal(t, float64(2), result["version"])
	})

	t.Run("creates missing document", func(t *testing.T) {
		// A section nobody has published starts as an empty map
		err := store.UpdateJSON(ctx, "notify", func(current map[string]any) error {
			assert.Empty(t, current)
			current["enabled"] = true
			current["version"] = 1
			return nil
		})
		require.NoError(t, err)

		entry, err := store.Get(ctx, "notify")
		require.NoError(t, err)
		var result map[string]any
		require.NoError(t, json.Unmarshal(entry.Value, &result))
		assert.Equal(t, true, result["enabled"])
		assert.Equal(t, float64(1), result["version"])
	})
}

// Server-side failures must surface as the package's sentinel errors, not as
// raw jetstream errors callers would have to know about.
func TestKVStore_ErrorDetection(t *testing.T) {
	_, store := newTestStore(t, "snapshot-errors")
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "critical.never_fetched")
		assert.True(t, IsKVNotFoundError(err))
		assert.Equal(t, ErrKVKeyNotFound, err)
	})

	t.Run("create on existing key", func(t *testing.T) {
		_, err := store.Create(ctx, "critical.revenue", []byte(`{"value":41250}`))
		require.NoError(t, err)

		_, err = store.Create(ctx, "critical.revenue", []byte(`{"value":41300}`))
		assert.True(t, IsKVConflictError(err))
		assert.Equal(t, ErrKVKeyExists, err)
	})

	t.Run("stale revision", func(t *testing.T) {
		rev, err := store.Put(ctx, "critical.active_users", []byte(`{"value":1200}`))
		require.NoError(t, err)

		_, err = store.Update(ctx, "critical.active_users", []byte(`{"value":1250}`), rev+999)
		assert.True(t, IsKVConflictError(err))
		assert.Equal(t, ErrKVRevisionMismatch, err)
	})
}

func TestKVStore_Watch(t *testing.T) {
	_, store := newTestStore(t, "snapshot-watch")
	ctx := context.Background()

	watcher, err := store.Watch(ctx, "critical.*")
	require.NoError(t, err)
	defer watcher.Stop()

	_, err = store.Put(ctx, "critical.revenue", []byte(`{"value":41250}`))
	require.NoError(t, err)
	_, err = store.Put(ctx, "critical.active_users", []byte(`{"value":1200}`))
	require.NoError(t, err)

	// The watcher delivers a nil marker once initial values are done
	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case entry := <-watcher.Updates():
			if entry != nil {
				seen[entry.Key()] = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for watch updates, saw %v", seen)
		}
	}

	assert.True(t, seen["critical.revenue"])
	assert.True(t, seen["critical.active_users"])
}

func TestKVStore_Options(t *testing.T) {
	client, store := newTestStore(t, "kv-tuning")

	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, DefaultKVOptions(), store.options)
	})

	t.Run("tuned", func(t *testing.T) {
		tuned := client.NewKVStore(store.bucket, func(opts *KVOptions) {
			opts.MaxRetries = 5
			opts.RetryDelay = 50 * time.Millisecond
			opts.Timeout = 10 * time.Second
		})

		assert.Equal(t, 5, tuned.options.MaxRetries)
		assert.Equal(t, 50*time.Millisecond, tuned.options.RetryDelay)
		assert.Equal(t, 10*time.Second, tuned.options.Timeout)
	})
}

func TestKVStore_Timeout(t *testing.T) {
	client, store := newTestStore(t, "kv-deadline")
	ctx := context.Background()

	t.Run("expired deadline fails the call", func(t *testing.T) {
		// 1ns is spent before the request ever reaches the server
		instant := client.NewKVStore(store.bucket, func(opts *KVOptions) {
			opts.Timeout = time.Nanosecond
		})

		_, err := instant.Get(ctx, "critical.revenue")
		require.Error(t, err)
		assert.NotEqual(t, ErrKVKeyNotFound, err)
	})

	t.Run("normal operations fit the default window", func(t *testing.T) {
		_, err := store.Put(ctx, "critical.revenue", []byte(`{"value":41250}`))
		require.NoError(t, err)

		entry, err := store.Get(ctx, "critical.revenue")
		require.NoError(t, err)
		assert.Equal(t, `{"value":41250}`, string(entry.Value))
	})
}

func TestKVErrorHelpers(t *testing.T) {
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.False(t, IsKVNotFoundError(ErrKVKeyExists))
	assert.False(t, IsKVNotFoundError(nil))

	assert.True(t, IsKVConflictError(ErrKVRevisionMismatch))
	assert.True(t, IsKVConflictError(ErrKVKeyExists))
	assert.False(t, IsKVConflictError(ErrKVKeyNotFound))
	assert.False(t, IsKVConflictError(nil))
}
