package natsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/refreshkit/pkg/retry"
	"github.com/nats-io/nats.go/jetstream"
)

// KVEntry is a value read from a bucket together with the revision needed
// for compare-and-swap writes.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operation behavior.
type KVOptions struct {
	MaxRetries            int           // CAS retry attempts beyond the first try
	RetryDelay            time.Duration // Initial delay between retries
	Timeout               time.Duration // Bound on each operation (and on a whole retry loop)
	MaxValueSize          int           // Largest value accepted by UpdateWithRetry
	UseExponentialBackoff bool          // Double the delay after each conflict
	MaxRetryDelay         time.Duration // Backoff ceiling
}

// DefaultKVOptions returns defaults tuned for contended buckets.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries:            10,
		RetryDelay:            10 * time.Millisecond,
		Timeout:               5 * time.Second,
		MaxValueSize:          1024 * 1024,
		UseExponentialBackoff: true,
		MaxRetryDelay:         time.Second,
	}
}

// KVStore layers CAS-aware operations over a JetStream bucket. State
// documents are small and contended, so writes default to retried
// compare-and-swap rather than blind puts.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  Logger
}

// NewKVStore wraps a bucket in a KVStore sharing the client's logger.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

func (kv *KVStore) logf(format string, args ...any) {
	if kv.logger != nil {
		kv.logger.Printf(format, args...)
	}
}

// opContext bounds ctx with the configured per-operation timeout when one
// is set.
func (kv *KVStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout == 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, kv.options.Timeout)
}

// Get retrieves a value with the revision needed for CAS writes.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.opContext(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	switch {
	case IsKVNotFoundError(err):
		return nil, ErrKVKeyNotFound
	case err != nil:
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put writes a key without a revision check. Last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.opContext(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	kv.logf("KV Put: key=%s, revision=%d", key, rev)
	return rev, nil
}

// Create writes a key only if it does not exist yet.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.opContext(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	switch {
	case IsKVConflictError(err):
		return 0, ErrKVKeyExists
	case err != nil:
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}
	kv.logf("KV Create: key=%s, revision=%d", key, rev)
	return rev, nil
}

// Update writes a key only if its current revision matches.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.opContext(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	switch {
	case IsKVConflictError(err):
		return 0, ErrKVRevisionMismatch
	case err != nil:
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}
	kv.logf("KV Update: key=%s, oldRev=%d, newRev=%d", key, revision, rev)
	return rev, nil
}

func (kv *KVStore) retryConfig() retry.Config {
	// MaxRetries counts retries, retry.Config counts attempts
	cfg := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     kv.options.MaxRetryDelay,
		Multiplier:   1.0,
		AddJitter:    true,
	}
	if kv.options.UseExponentialBackoff {
		cfg.Multiplier = 2.0
	}
	return cfg
}

// loadForUpdate reads the current value and revision, mapping a missing key
// to a nil value at revision 0 so the write path creates it.
func (kv *KVStore) loadForUpdate(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("kv get failed during update: %w", err)
	}
	return entry.Value, entry.Revision, nil
}

// writeAt creates the key when revision is 0, otherwise updates it with a
// revision check. Conflicts come back unwrapped so the retry loop can
// recognize them.
func (kv *KVStore) writeAt(ctx context.Context, key string, value []byte, revision uint64) error {
	if revision == 0 {
		if _, err := kv.bucket.Create(ctx, key, value); err != nil {
			if IsKVConflictError(err) {
				return err
			}
			return fmt.Errorf("kv create failed: %w", err)
		}
		return nil
	}

	if _, err := kv.bucket.Update(ctx, key, value, revision); err != nil {
		if IsKVConflictError(err) {
			return err
		}
		return fmt.Errorf("kv update failed: %w", err)
	}
	return nil
}

// UpdateWithRetry applies updateFn to the current value and writes the
// result with a revision check, retrying with backoff while other writers
// win the race. A missing key is presented to updateFn as nil and created
// on write. Errors from updateFn itself and oversized results are not
// retried.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	// One timeout bounds the whole loop, not each attempt
	ctx, cancel := kv.opContext(ctx)
	defer cancel()

	cfg := kv.retryConfig()
	attempt := 0

	err := retry.Do(ctx, cfg, func() error {
		attempt++

		current, revision, err := kv.loadForUpdate(ctx, key)
		if err != nil {
			return err
		}

		next, err := updateFn(current)
		if err != nil {
			// The caller's transform failed; running it again on the same
			// input would fail the same way
			return retry.NonRetryable(fmt.Errorf("update function error: %w", err))
		}
		if kv.options.MaxValueSize > 0 && len(next) > kv.options.MaxValueSize {
			return retry.NonRetryable(fmt.Errorf("value size validation failed: size %d exceeds maximum %d",
				len(next), kv.options.MaxValueSize))
		}

		err = kv.writeAt(ctx, key, next, revision)
		if err != nil && IsKVConflictError(err) {
			kv.logf("KV write conflict (retrying): key=%s, attempt=%d/%d",
				key, attempt, cfg.MaxAttempts)
		}
		return err
	})

	if err != nil && IsKVConflictError(err) {
		return ErrKVMaxRetriesExceeded
	}
	return err
}

// UpdateJSON runs UpdateWithRetry over a JSON object value. updateFn
// mutates the decoded map in place; a missing key starts from an empty map.
func (kv *KVStore) UpdateJSON(ctx context.Context, key string,
	updateFn func(current map[string]any) error) error {

	return kv.UpdateWithRetry(ctx, key, func(currentBytes []byte) ([]byte, error) {
		current := make(map[string]any)
		if len(currentBytes) > 0 {
			if err := json.Unmarshal(currentBytes, &current); err != nil {
				// Stored bytes are not JSON; retrying cannot fix that
				return nil, retry.NonRetryable(fmt.Errorf("unmarshal current: %w", err))
			}
		}

		if err := updateFn(current); err != nil {
			return nil, err
		}

		return json.Marshal(current)
	})
}

// Delete removes a key from the bucket.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.opContext(ctx)
	defer cancel()

	err := kv.bucket.Delete(ctx, key)
	switch {
	case IsKVNotFoundError(err):
		return ErrKVKeyNotFound
	case err != nil:
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	kv.logf("KV Delete: key=%s", key)
	return nil
}

// Watch creates a watcher for keys matching pattern. No timeout is applied
// since watchers are long-lived.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}
	return watcher, nil
}

// NATS reports KV failures as strings, so the classification helpers match
// both our sentinels and the raw server messages.

// IsKVNotFoundError reports whether err means the key does not exist.
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVKeyNotFound) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "key not found") ||
		strings.Contains(errMsg, "10037")
}

// IsKVConflictError reports whether err means another writer got there
// first, either the key already exists or the revision moved.
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVRevisionMismatch) || errors.Is(err, ErrKVKeyExists) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "wrong last sequence") ||
		strings.Contains(errMsg, "10071") ||
		strings.Contains(errMsg, "key exists") ||
		strings.Contains(errMsg, "10058")
}

// Well-known KV errors.
var (
	ErrKVKeyNotFound        = errors.New("kv: key not found")
	ErrKVKeyExists          = errors.New("kv: key already exists")
	ErrKVRevisionMismatch   = errors.New("kv: revision mismatch (concurrent update)")
	ErrKVMaxRetriesExceeded = errors.New("kv: max retries exceeded")
)
