package types

import (
	"encoding/json"
	"time"
)

// Sample is a fetched value paired with the time it was fetched. The cache
// stores whole samples so a cache hit can report the value's real fetch time
// rather than the time it happened to be read back.
type Sample struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Update is delivered to listeners whenever a tier completes a tick for a
// target, whatever the path: cache hit, fresh fetch, or fallback.
//
// Degraded marks values whose freshness could not be confirmed. A degraded
// update carries the most recent fallback snapshot, or a nil Value when no
// snapshot was ever recorded; the pipeline never substitutes a fabricated
// value for a missing result.
type Update struct {
	Tier      Tier            `json:"tier"`
	Target    string          `json:"target"`
	Value     json.RawMessage `json:"value,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
	Degraded  bool            `json:"degraded"`
}

// Key returns the canonical storage key for the update's tier/target pair.
func (u Update) Key() string {
	return RefreshKey(u.Tier, u.Target)
}

// RefreshKey builds the "<tier>/<target>" key under which a pair's cache
// entry and fallback snapshot are stored. Tiers and targets share the cache
// and fallback store; this keying is what keeps them from colliding.
func RefreshKey(tier Tier, target string) string {
	return string(tier) + "/" + target
}
