package fallback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360/refreshkit/errors"
)

// Snapshot is the durable last-known-good record for one tier/target key.
// SavedAt is when the snapshot was persisted; consumers treat its age as a
// staleness signal, but the store never expires snapshots on its own.
type Snapshot struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	SavedAt time.Time       `json:"saved_at"`
}

// Store persists last-known-good snapshots so a failed refresh can still
// surface the most recent real value.
//
// Save is called only after a successful fetch; failed fetches never write.
// That discipline lives in the caller, which keeps the store a plain
// persistence layer: whatever was saved last is what Load returns, however
// many failures happened since.
type Store interface {
	// Save persists the value under key, stamped with the current time.
	// Each save overwrites the previous snapshot for the key.
	Save(ctx context.Context, key string, value json.RawMessage) error

	// Load returns the most recent snapshot for key. The bool reports
	// whether one was ever saved; a clean miss is (Snapshot{}, false, nil).
	Load(ctx context.Context, key string) (Snapshot, bool, error)
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "fallback", "validateKey",
			"key cannot be empty")
	}
	return nil
}
