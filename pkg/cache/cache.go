package cache

import (
	"time"

	"github.com/c360/refreshkit/errors"
)

// Cache is the read-through cache contract used by the refresh pipeline,
// parameterized by the stored value type.
type Cache[V any] interface {
	// Get returns the live value for key. Expired entries read as misses
	// and are dropped on access.
	Get(key string) (V, bool)

	// Set stores value under the cache's default TTL. The bool reports
	// whether a new entry was created rather than an existing one updated.
	Set(key string, value V) (bool, error)

	// SetWithTTL stores value with its own TTL. A ttl <= 0 falls back to
	// the cache default.
	SetWithTTL(key string, value V, ttl time.Duration) (bool, error)

	// Delete removes key, reporting whether it was present.
	Delete(key string) (bool, error)

	// Clear removes every entry.
	Clear() error

	// Size counts current entries, including expired ones not yet swept.
	Size() int

	// Keys lists the non-expired keys.
	Keys() []string

	// Sweep removes all expired entries and returns the number purged.
	// TTL caches also run this periodically in the background.
	Sweep() int

	// Stats exposes the cache's running counters.
	Stats() *Statistics

	// Close stops background goroutines.
	Close() error
}

// EvictCallback observes entries as they leave the cache, whether by
// expiry, Delete, or Clear.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
