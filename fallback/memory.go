package fallback

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. It does not survive a
// restart, so it only satisfies the durability contract for tests and
// short-lived sessions; production deployments use FileStore or KVStore.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
	}
}

// Save stores the value under key, replacing any previous snapshot.
func (s *MemoryStore) Save(_ context.Context, key string, value json.RawMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}

	snapshot := Snapshot{
		Key:     key,
		Value:   append(json.RawMessage(nil), value...),
		SavedAt: time.Now(),
	}

	s.mu.Lock()
	s.snapshots[key] = snapshot
	s.mu.Unlock()
	return nil
}

// Load returns the most recent snapshot for key, if one was ever saved.
func (s *MemoryStore) Load(_ context.Context, key string) (Snapshot, bool, error) {
	if err := validateKey(key); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	snapshot, ok := s.snapshots[key]
	s.mu.RUnlock()

	if !ok {
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Len reports how many keys have snapshots recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
