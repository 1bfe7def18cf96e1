package fallback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/c360/refreshkit/errors"
)

// FileStore persists one JSON snapshot file per key under a directory.
// Writes go through a temp file plus rename, so readers never observe a
// half-written snapshot even across a crash mid-save.
type FileStore struct {
	dir string
}

// NewFileStore creates the snapshot directory if needed and returns a store
// over it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FileStore", "NewFileStore",
			"directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapTransient(err, "FileStore", "NewFileStore",
			"creating snapshot directory")
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the snapshot atomically: marshal, write to a temp file in the
// same directory, then rename over the final path.
func (s *FileStore) Save(_ context.Context, key string, value json.RawMessage) error {
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
		return errors.WrapInvalid(err, "FileStore", "Save", "encoding snapshot")
	}

	tmp, err := os.CreateTemp(s.dir, "snapshot-*")
	if err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "creating temp file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "FileStore", "Save", "writing snapshot")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "FileStore", "Save", "closing temp file")
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapTransient(err, "FileStore", "Save", "replacing snapshot")
	}
	return nil
}

// Load reads the snapshot for key. A missing file is a clean miss. A file
// that no longer parses is removed and reported as corrupted; the next
// successful save rebuilds it.
func (s *FileStore) Load(_ context.Context, key string) (Snapshot, bool, error) {
	if err := validateKey(key); err != nil {
		return Snapshot{}, false, err
	}

	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errors.WrapTransient(err, "FileStore", "Load", "reading snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		_ = os.Remove(path)
		return Snapshot{}, false, errors.WrapInvalid(errors.ErrDataCorrupted, "FileStore", "Load",
			"snapshot file does not parse")
	}

	return snapshot, true, nil
}

// path maps a key to its snapshot file. Keys are hashed so arbitrary
// tier/target strings never escape the directory or collide with the
// filesystem's naming rules.
func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}
