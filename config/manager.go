package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/refreshkit/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// configSections lists the top-level sections that live under their own KV
// key, in the order PushToKV writes them. The "version" key is managed
// separately for sync control.
var configSections = []string{
	"service",
	"security",
	"nats",
	"tiers",
	"fetch",
	"breaker",
	"fallback",
	"cache",
	"scheduler",
	"metrics",
	"gateway",
	"notify",
}

// sectionFields maps each section name to its field in Config. Both the KV
// unmarshal path and the KV push path go through this table, so adding a
// section means one new entry here plus its name in configSections.
var sectionFields = map[string]func(*Config) any{
	"service":   func(c *Config) any { return &c.Service },
	"security":  func(c *Config) any { return &c.Security },
	"nats":      func(c *Config) any { return &c.NATS },
	"tiers":     func(c *Config) any { return &c.Tiers },
	"fetch":     func(c *Config) any { return &c.Fetch },
	"breaker":   func(c *Config) any { return &c.Breaker },
	"fallback":  func(c *Config) any { return &c.Fallback },
	"cache":     func(c *Config) any { return &c.Cache },
	"scheduler": func(c *Config) any { return &c.Scheduler },
	"metrics":   func(c *Config) any { return &c.Metrics },
	"gateway":   func(c *Config) any { return &c.Gateway },
	"notify":    func(c *Config) any { return &c.Notify },
}

// versionZero is what a missing or unreadable KV version reads as; any
// file version beats it.
const versionZero = "0.0.0"

// Update represents a configuration change notification
type Update struct {
	Path   string      // Changed section (e.g., "tiers")
	Config *SafeConfig // Full latest configuration
}

// Manager keeps the running config in sync with a NATS KV bucket. File
// config seeds the bucket, operators edit the bucket, and subscribers
// hear about section changes over channels.
type Manager struct {
	config      *SafeConfig              // Current configuration
	kv          jetstream.KeyValue       // KV bucket holding one key per section
	kvStore     *natsclient.KVStore      // CAS wrapper for bucket writes
	watchers    []jetstream.KeyWatcher   // One watcher per section
	subscribers map[string][]chan Update // Pattern -> channels
	mu          sync.RWMutex             // Protects subscribers map
	logger      *slog.Logger

	shutdownCh chan struct{}  // Closed to stop watcher goroutines
	wg         sync.WaitGroup // Tracks watcher goroutines
	stopped    atomic.Bool
}

// NewConfigManager binds cfg to the refreshkit_config bucket, creating the
// bucket if this is the first service instance to come up.
func NewConfigManager(cfg *Config, natsClient *natsclient.Client, logger *slog.Logger) (*Manager, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config cannot be nil")
	case natsClient == nil:
		return nil, fmt.Errorf("nats client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	kv, err := natsClient.CreateKeyValueBucket(context.Background(), jetstream.KeyValueConfig{
		Bucket:      "refreshkit_config",
		Description: "RefreshKit runtime configuration",
		History:     5, // Keep last 5 versions
	})
	if err != nil {
		return nil, fmt.Errorf("create/get KV bucket: %w", err)
	}

	return &Manager{
		config:      NewSafeConfig(cfg),
		kv:          kv,
		kvStore:     natsClient.NewKVStore(kv),
		subscribers: make(map[string][]chan Update),
		logger:      logger,
	}, nil
}

// GetConfig returns the current configuration
func (cm *Manager) GetConfig() *SafeConfig {
	return cm.config
}

// OnChange subscribes to configuration changes matching pattern. The
// current config is delivered immediately so subscribers need no separate
// bootstrap read. Patterns are either exact section names ("tiers"),
// prefix wildcards ("f*"), or "*" for everything.
func (cm *Manager) OnChange(pattern string) <-chan Update {
	ch := make(chan Update, 1) // Buffered so the initial send cannot block

	cm.mu.Lock()
	cm.subscribers[pattern] = append(cm.subscribers[pattern], ch)
	cm.mu.Unlock()

	// A concurrent watcher update may beat this send to the buffer, in
	// which case the subscriber sees that newer config instead.
	select {
	case ch <- Update{Path: pattern, Config: cm.config}:
	default:
	}

	return ch
}

// Start reconciles file and KV config, then begins watching every section
// for operator edits.
func (cm *Manager) Start(ctx context.Context) error {
	cm.shutdownCh = make(chan struct{})

	cm.initialSync(ctx)

	return cm.startWatchers(ctx)
}

// initialSync decides which side of the file/KV pair wins at startup.
// First boot seeds the bucket from the file; after that the semver under
// the "version" key arbitrates. Sync failures are logged rather than
// fatal since the service can always run on its file config.
func (cm *Manager) initialSync(ctx context.Context) {
	keys, err := cm.kv.Keys(ctx)
	if err != nil {
		cm.logger.Warn("Failed to check KV config existence", "error", err)
	}

	if len(keys) == 0 {
		cm.logger.Info("First boot detected, pushing config to KV")
		if err := cm.PushToKV(ctx); err != nil {
			cm.logger.Error("Failed to push initial config to KV", "error", err)
		}
		return
	}

	fileVersion := cm.config.Get().Version
	kvVersion := cm.getKVVersion(ctx)

	cmp, err := CompareVersions(fileVersion, kvVersion)
	switch {
	case err != nil:
		cm.logger.Warn("Failed to compare versions, syncing from KV",
			"file_version", fileVersion, "kv_version", kvVersion, "error", err)
		cm.syncFromKVLogged(ctx)

	case cmp > 0:
		cm.logger.Info("File version is newer than KV, updating KV",
			"file_version", fileVersion, "kv_version", kvVersion)
		if err := cm.PushToKV(ctx); err != nil {
			cm.logger.Error("Failed to update KV with newer config", "error", err)
		}

	case cmp < 0:
		cm.logger.Warn("File version is older than KV, using KV config",
			"file_version", fileVersion, "kv_version", kvVersion,
			"hint", "bump file version to update KV")
		cm.syncFromKVLogged(ctx)

	default:
		// Equal versions: operators may have edited sections without
		// bumping the version, so KV still wins
		cm.logger.Info("File and KV versions match, syncing from KV", "version", fileVersion)
		cm.syncFromKVLogged(ctx)
	}
}

// syncFromKVLogged wraps syncFromKV with the only error handling startup
// wants: log it and keep going.
func (cm *Manager) syncFromKVLogged(ctx context.Context) {
	if err := cm.syncFromKV(ctx); err != nil {
		cm.logger.Warn("Failed to sync from KV on startup", "error", err)
	}
}

// startWatchers opens one KV watcher per section, spawning the goroutine
// that feeds subscriber channels as each watcher comes up.
func (cm *Manager) startWatchers(ctx context.Context) error {
	cm.watchers = make([]jetstream.KeyWatcher, 0, len(configSections))

	for _, section := range configSections {
		// UpdatesOnly: existing values were already applied by initialSync
		watcher, err := cm.kv.Watch(ctx, section, jetstream.UpdatesOnly())
		if err != nil {
			cm.logger.Debug("Failed to create watcher", "section", section, "error", err)
			continue
		}
		cm.watchers = append(cm.watchers, watcher)

		cm.wg.Add(1)
		go cm.processWatcher(ctx, watcher)
	}

	if len(cm.watchers) == 0 {
		return fmt.Errorf("failed to create any watchers")
	}
	return nil
}

// Stop halts all watchers and closes subscriber channels. Waits up to
// timeout for watcher goroutines to drain before giving up.
func (cm *Manager) Stop(timeout time.Duration) error {
	if !cm.stopped.CompareAndSwap(false, true) {
		return nil // Already stopped
	}

	if cm.shutdownCh != nil {
		close(cm.shutdownCh)
	}
	for _, watcher := range cm.watchers {
		_ = watcher.Stop()
	}

	cm.awaitWatchers(timeout)
	cm.closeSubscribers()
	return nil
}

// awaitWatchers blocks until the watcher goroutines exit or timeout
// elapses.
func (cm *Manager) awaitWatchers(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		cm.logger.Warn("Manager shutdown timeout", "timeout", timeout)
	}
}

// closeSubscribers closes every subscriber channel. Runs only after the
// watcher goroutines are done, so nothing sends on a closed channel.
func (cm *Manager) closeSubscribers() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, channels := range cm.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	cm.subscribers = make(map[string][]chan Update)
}

// processWatcher forwards entries from one section watcher until shutdown
func (cm *Manager) processWatcher(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer cm.wg.Done()

	updates := watcher.Updates()
	for {
		select {
		case <-ctx.Done():
			return

		case <-cm.shutdownCh:
			return

		case entry, ok := <-updates:
			if !ok {
				// Watcher stopped underneath us
				return
			}
			// UpdatesOnly should never deliver nil, but guard anyway
			if entry != nil {
				cm.handleUpdate(entry.Key(), entry.Value())
			}
		}
	}
}

// handleUpdate applies one KV entry and fans the result out to matching
// subscribers.
func (cm *Manager) handleUpdate(key string, value []byte) {
	if cm.stopped.Load() {
		return
	}

	if err := cm.updateConfig(key, value); err != nil {
		cm.logger.Error("Failed to update configuration", "key", key, "error", err)
		return
	}

	cm.notifySubscribers(key)
}

// notifySubscribers sends the post-update config to every channel whose
// pattern matches key. Sends never block: a subscriber that stops
// draining its channel misses updates instead of stalling the watcher.
func (cm *Manager) notifySubscribers(key string) {
	update := Update{Path: key, Config: cm.config}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for pattern, channels := range cm.subscribers {
		if !cm.matchesPattern(key, pattern) {
			continue
		}
		for _, ch := range channels {
			if cm.stopped.Load() {
				return
			}
			select {
			case ch <- update:
			default:
			}
		}
	}
}

// matchesPattern checks if a key matches a subscription pattern
func (cm *Manager) matchesPattern(key, pattern string) bool {
	if pattern == key {
		return true
	}

	// "fallback.*" matches anything nested under the prefix
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(key, prefix+".")
	}

	// "fall*" matches on whatever precedes the wildcard; a bare "*"
	// matches every section
	if prefix, _, ok := strings.Cut(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}

	return false
}

// applySection decodes raw JSON into the named section of a config copy.
// The live configuration is not touched; callers decide whether to keep
// the result.
func (cm *Manager) applySection(section string, value []byte) (*Config, error) {
	field, ok := sectionFields[section]
	if !ok {
		return nil, fmt.Errorf("unknown config section: %s", section)
	}

	cfg := cm.config.Get()
	if err := json.Unmarshal(value, field(cfg)); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", section, err)
	}
	return cfg, nil
}

// marshalSection marshals the named section of a config for KV storage
func marshalSection(cfg *Config, section string) ([]byte, error) {
	field, ok := sectionFields[section]
	if !ok {
		return nil, fmt.Errorf("unknown config section: %s", section)
	}
	return json.Marshal(field(cfg))
}

// updateConfig validates and applies a single KV entry to the live config
func (cm *Manager) updateConfig(key string, value []byte) error {
	// Sections cannot be deleted, only replaced
	if len(value) == 0 {
		cm.logger.Debug("Ignoring section deletion", "key", key)
		return nil
	}

	if len(value) > maxConfigSize {
		return fmt.Errorf("config value too large: %d bytes > %d", len(value), maxConfigSize)
	}
	if err := validateJSONDepth(value); err != nil {
		return fmt.Errorf("invalid JSON structure in KV update: %w", err)
	}

	// Unknown top-level keys (including "version") are ignored
	if _, ok := sectionFields[key]; !ok {
		return nil
	}

	cfg, err := cm.applySection(key, value)
	if err != nil {
		return err
	}

	// Update validates before swapping, so a bad section leaves the
	// current config live
	return cm.config.Update(cfg)
}

// PushToKV writes the version key and every non-empty section to the KV
// bucket. Runs on first boot and whenever the file config wins the
// version comparison.
func (cm *Manager) PushToKV(ctx context.Context) error {
	cfg := cm.config.Get()

	if err := cm.pushVersion(ctx, cfg.Version); err != nil {
		return err
	}

	for _, section := range configSections {
		data, err := marshalSection(cfg, section)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", section, err)
		}
		// Empty {} or [] sections stay out of the bucket
		if len(data) <= 2 {
			continue
		}
		if _, err := cm.kvStore.Put(ctx, section, data); err != nil {
			return fmt.Errorf("push %s: %w", section, err)
		}
	}

	return nil
}

func (cm *Manager) pushVersion(ctx context.Context, version string) error {
	if version == "" {
		cm.logger.Warn("Config version is empty, not pushing to KV")
		return nil
	}

	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}

	cm.logger.Info("Pushing version to KV", "version", version)
	if _, err := cm.kvStore.Put(ctx, "version", data); err != nil {
		return fmt.Errorf("push version: %w", err)
	}
	return nil
}

// getKVVersion reads the semver under the "version" key. A missing or
// unparseable version reads as 0.0.0, which makes any file version win.
func (cm *Manager) getKVVersion(ctx context.Context) string {
	entry, err := cm.kv.Get(ctx, "version")
	if err != nil {
		return versionZero
	}

	var version string
	if err := json.Unmarshal(entry.Value(), &version); err != nil {
		cm.logger.Warn("Failed to parse version from KV, treating as 0.0.0", "error", err)
		return versionZero
	}
	return version
}

// syncFromKV loads every section key from the bucket and applies it to
// the live config. Individual section failures are logged and skipped so
// one bad section cannot block the rest.
func (cm *Manager) syncFromKV(ctx context.Context) error {
	keys, err := cm.kv.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list KV keys: %w", err)
	}

	for _, key := range keys {
		if _, ok := sectionFields[key]; !ok {
			cm.logger.Debug("Skipping non-section key during sync", "key", key)
			continue
		}
		if err := cm.applyKVEntry(ctx, key); err != nil {
			cm.logger.Warn("Failed to apply KV config during sync", "key", key, "error", err)
		}
	}

	cm.logger.Info("Synced configuration from KV", "keys", len(keys))
	return nil
}

// applyKVEntry reads one section key and applies it to the live config.
func (cm *Manager) applyKVEntry(ctx context.Context, key string) error {
	entry, err := cm.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	return cm.updateConfig(key, entry.Value())
}
