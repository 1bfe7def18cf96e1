package natsclient

import "time"

// Preset bundles over the base TestOptions.

func presetTimeouts(cfg *testConfig, op, start time.Duration) {
	cfg.timeout = op
	cfg.startTimeout = start
}

// WithFastStartup tunes the container for the quickest possible boot. Unit
// tests that only need plain pub/sub should start here.
func WithFastStartup() TestOption {
	return func(cfg *testConfig) { presetTimeouts(cfg, 2*time.Second, 10*time.Second) }
}

// WithIntegrationDefaults enables JetStream with timeouts sized for
// integration suites.
func WithIntegrationDefaults() TestOption {
	return func(cfg *testConfig) {
		presetTimeouts(cfg, 5*time.Second, 30*time.Second)
		cfg.jetstream = true
	}
}

// WithE2EDefaults enables JetStream and KV with generous timeouts for
// end-to-end runs that drive the whole pipeline.
func WithE2EDefaults() TestOption {
	return func(cfg *testConfig) {
		presetTimeouts(cfg, 10*time.Second, 60*time.Second)
		cfg.jetstream = true
	}
}

// WithRefreshBuckets pre-creates the KV buckets the refresh daemon uses, so
// a test can hand the client straight to the snapshot store and the breaker
// gateway without bucket bootstrap of its own.
func WithRefreshBuckets() TestOption {
	return func(cfg *testConfig) {
		presetTimeouts(cfg, 5*time.Second, 30*time.Second)
		cfg.jetstream = true
		cfg.kvBuckets = append(cfg.kvBuckets, "fallback-snapshots", "breaker-status")
	}
}

// WithMinimalFeatures strips the server down to plain pub/sub
func WithMinimalFeatures() TestOption {
	return func(cfg *testConfig) {
		presetTimeouts(cfg, 1*time.Second, 5*time.Second)
		cfg.jetstream = false
	}
}
