package fallback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/refreshkit/errors"
)

const defaultKVTimeout = 5 * time.Second

// KVStore persists snapshots in a JetStream key-value bucket, giving the
// fallback layer the same durability and replication story as the rest of
// the NATS deployment.
//
// Keys are base64url-encoded before they hit the bucket, so tier/target
// strings need not conform to the KV key charset. The original key is kept
// inside the stored snapshot for inspection.
type KVStore struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
	logger  *slog.Logger
}

// KVOption configures a KVStore
type KVOption func(*KVStore)

// WithTimeout bounds each Save and Load round-trip. Zero disables the bound.
func WithTimeout(d time.Duration) KVOption {
	return func(s *KVStore) {
		s.timeout = d
	}
}

// WithLogger sets a custom structured logger for the store
func WithLogger(logger *slog.Logger) KVOption {
	return func(s *KVStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewKVStore creates a snapshot store over the given bucket.
func NewKVStore(bucket jetstream.KeyValue, opts ...KVOption) (*KVStore, error) {
	if bucket == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "KVStore", "NewKVStore",
			"bucket is required")
	}

	s := &KVStore{
		bucket:  bucket,
		timeout: defaultKVTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Save writes the snapshot under the encoded key, overwriting any previous
// revision. Last writer wins; a tier never has two fetches in flight, so
// there is exactly one writer per key.
func (s *KVStore) Save(ctx context.Context, key string, value json.RawMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}

	snapshot := Snapshot{
		Key:     key,
		Value:   value,
		SavedAt: time.Now(),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "Save", "encoding snapshot")
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	rev, err := s.bucket.Put(ctx, encodeKVKey(key), data)
	if err != nil {
		return errors.WrapTransient(err, "KVStore", "Save", "writing snapshot")
	}

	s.logger.Debug("Saved fallback snapshot",
		"key", key,
		"revision", rev,
		"bytes", len(data))
	return nil
}

// Load reads the most recent snapshot for key. Absent and deleted keys are
// clean misses; an entry that no longer parses is reported as corrupted.
func (s *KVStore) Load(ctx context.Context, key string) (Snapshot, bool, error) {
	if err := validateKey(key); err != nil {
		return Snapshot{}, false, err
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	entry, err := s.bucket.Get(ctx, encodeKVKey(key))
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) || stderrors.Is(err, jetstream.ErrKeyDeleted) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errors.WrapTransient(err, "KVStore", "Load", "reading snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(entry.Value(), &snapshot); err != nil {
		return Snapshot{}, false, errors.WrapInvalid(errors.ErrDataCorrupted, "KVStore", "Load",
			"snapshot entry does not parse")
	}

	return snapshot, true, nil
}

func (s *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// encodeKVKey maps an arbitrary snapshot key onto the KV key charset.
func encodeKVKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
