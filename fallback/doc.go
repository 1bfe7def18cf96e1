// Package fallback persists last-known-good snapshots so a failed refresh
// can still show the most recent real value.
//
// # Overview
//
// When every fetch attempt for a target fails, the refresh pipeline does not
// fabricate a value and does not go silent: it serves the last value that
// was actually fetched, flagged as degraded. This package owns that record.
// A Snapshot pairs the value with the time it was saved; consumers use the
// age as a staleness signal, and the store itself never expires anything.
//
// # Write Discipline
//
// Save runs only after a successful fetch. Failures never write, so however
// many failures pile up, Load always reflects the most recent success. The
// store does not police this; the scheduler is the only writer and follows
// the discipline, which keeps the store a plain persistence layer.
//
// # Stores
//
// Three implementations cover the deployment spectrum:
//
//   - MemoryStore: process-local, for tests and short-lived sessions.
//   - FileStore: one JSON file per key with temp-file-plus-rename writes,
//     for single-host deployments that must survive restarts.
//   - KVStore: a JetStream key-value bucket, for deployments that already
//     run NATS and want snapshots replicated with everything else.
//
// All three are keyed by the canonical "<tier>/<target>" string, so tiers
// sharing a store never collide.
package fallback
