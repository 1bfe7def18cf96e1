package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/c360/refreshkit/pkg/cache"
	"github.com/c360/refreshkit/pkg/security"
	"github.com/c360/refreshkit/types"
)

// Fallback backend constants
const (
	FallbackBackendMemory = "memory" // In-process map (lost on restart)
	FallbackBackendFile   = "file"   // One JSON file per target under a directory
	FallbackBackendKV     = "kv"     // NATS JetStream KV bucket (survives restarts, shared)
)

// Config represents the complete application configuration.
// One section per runtime concern: identity, transport, refresh tiers,
// fetch pipeline, breaker, fallback, cache, scheduler, and the three
// outward surfaces (metrics, gateway, notify).
type Config struct {
	Version   string             `json:"version"` // Semantic version (e.g., "1.0.0") for KV sync control
	Service   ServiceConfig      `json:"service"`
	Security  security.Config    `json:"security,omitempty"` // TLS for the HTTP surfaces
	NATS      NATSConfig         `json:"nats"`
	Tiers     []types.TierConfig `json:"tiers"`
	Fetch     FetchConfig        `json:"fetch,omitempty"`
	Breaker   BreakerConfig      `json:"breaker,omitempty"`
	Fallback  FallbackConfig     `json:"fallback,omitempty"`
	Cache     cache.Config       `json:"cache,omitempty"`
	Scheduler SchedulerConfig    `json:"scheduler,omitempty"`
	Metrics   MetricsConfig      `json:"metrics,omitempty"`
	Gateway   GatewayConfig      `json:"gateway,omitempty"`
	Notify    NotifyConfig       `json:"notify,omitempty"`
}

// SafeConfig guards a Config behind an RWMutex. Readers get deep copies,
// so a snapshot taken before a hot reload stays coherent while the
// scheduler or gateway is still working from it.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg for concurrent use. A nil cfg becomes an empty
// config rather than a latent panic.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update swaps in cfg after validating it. The swap happens entirely or
// not at all; a config that fails validation leaves the current one live.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone deep-copies the configuration via a JSON round trip. Every section
// is plain data with json tags, so the round trip is lossless. If either
// half fails the caller gets a shallow copy instead of nil.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	if data, err := json.Marshal(c); err == nil {
		var clone Config
		if json.Unmarshal(data, &clone) == nil {
			return &clone
		}
	}

	copied := *c
	return &copied
}

// ServiceConfig defines service identity and logging
type ServiceConfig struct {
	Name        string `json:"name"`                  // Service name, used in NATS subjects and metric labels
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
	InstanceID  string `json:"instance_id,omitempty"` // e.g., "west-1", "dev-local"
	LogLevel    string `json:"log_level,omitempty"`   // debug, info, warn, error
	LogFormat   string `json:"log_format,omitempty"`  // text, json

	// HealthInterval controls how often the service health probe runs
	HealthInterval time.Duration `json:"health_interval,omitempty"`
}

// NATSConfig carries everything needed to reach the NATS cluster
type NATSConfig struct {
	URLs          []string        `json:"urls,omitempty"`
	MaxReconnects int             `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration   `json:"reconnect_wait,omitempty"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	Token         string          `json:"token,omitempty"`
	TLS           NATSTLSConfig   `json:"tls,omitempty"`
	JetStream     JetStreamConfig `json:"jetstream,omitempty"`
}

// NATSTLSConfig holds client certificate paths for the NATS connection
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// JetStreamConfig toggles JetStream and scopes it to a domain
type JetStreamConfig struct {
	Enabled bool   `json:"enabled"`
	Domain  string `json:"domain,omitempty"`
}

// FetchConfig defines retry backoff for the fetch pipeline.
// Per-tier attempt counts and timeouts live on the tier itself.
type FetchConfig struct {
	InitialDelay      time.Duration `json:"initial_delay,omitempty"` // First retry delay
	MaxDelay          time.Duration `json:"max_delay,omitempty"`     // Backoff ceiling
	Multiplier        float64       `json:"multiplier,omitempty"`    // Exponential factor
	RetryServerFaults bool          `json:"retry_server_faults"`     // Retry upstream 5xx-class errors
}

// BreakerConfig defines where the upstream circuit state is read from.
// The breaker is owned by the upstream platform; this service only
// watches the bucket and obeys.
type BreakerConfig struct {
	Enabled bool         `json:"enabled"`
	Bucket  BucketConfig `json:"bucket,omitempty"`
	Key     string       `json:"key,omitempty"` // Key holding the status document
}

// FallbackConfig selects the last-known-good store backend
type FallbackConfig struct {
	Backend string       `json:"backend,omitempty"` // memory, file, kv
	Dir     string       `json:"dir,omitempty"`     // Directory for the file backend
	Bucket  BucketConfig `json:"bucket,omitempty"`  // Bucket for the kv backend
}

// SchedulerConfig holds scheduler tuning that is not per-tier
type SchedulerConfig struct {
	ResumeMargin time.Duration `json:"resume_margin,omitempty"` // Safety margin added to breaker reset probes
}

// MetricsConfig defines the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// GatewayConfig defines the HTTP/WebSocket read surface
type GatewayConfig struct {
	Enabled        bool          `json:"enabled"`
	Port           int           `json:"port,omitempty"`
	PingInterval   time.Duration `json:"ping_interval,omitempty"`   // WebSocket keepalive
	SendBuffer     int           `json:"send_buffer,omitempty"`     // Per-client outbound queue depth
	AllowedOrigins []string      `json:"allowed_origins,omitempty"` // Browser origins beyond same-host
}

// NotifyConfig defines NATS update publication
type NotifyConfig struct {
	Enabled   bool   `json:"enabled"`
	Prefix    string `json:"prefix,omitempty"`     // Subject prefix, e.g. "refresh" -> refresh.<tier>.<target>
	QueueSize int    `json:"queue_size,omitempty"` // Bounded publish queue depth
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	// Validate and normalize service name
	if c.Service.Name == "" {
		return errors.New("service.name is required")
	}

	// Normalize name to lowercase
	c.Service.Name = strings.ToLower(c.Service.Name)

	// Validate name is NATS-subject compatible
	if !isValidNATSSubjectPart(c.Service.Name) {
		return fmt.Errorf(
			"service.name '%s' is not valid for NATS subjects (must be alphanumeric with dots, dashes, underscores)",
			c.Service.Name,
		)
	}

	// Validate Security Configuration
	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	// Validate Tiers
	if len(c.Tiers) == 0 {
		return errors.New("at least one tier is required")
	}
	seen := make(map[types.Tier]bool, len(c.Tiers))
	for i, tier := range c.Tiers {
		if err := tier.Validate(); err != nil {
			return fmt.Errorf("tiers[%d]: %w", i, err)
		}
		if seen[tier.Tier] {
			return fmt.Errorf("tiers[%d]: duplicate tier %q", i, tier.Tier)
		}
		seen[tier.Tier] = true
	}

	// Validate Fetch backoff
	if c.Fetch.InitialDelay < 0 {
		return errors.New("fetch.initial_delay cannot be negative")
	}
	if c.Fetch.MaxDelay < 0 {
		return errors.New("fetch.max_delay cannot be negative")
	}
	if c.Fetch.Multiplier < 0 {
		return errors.New("fetch.multiplier cannot be negative")
	}

	// Validate Breaker
	if c.Breaker.Enabled {
		if c.Breaker.Bucket.Name == "" {
			return errors.New("breaker.bucket.name is required when the breaker is enabled")
		}
		if c.Breaker.Key == "" {
			return errors.New("breaker.key is required when the breaker is enabled")
		}
	}

	// Validate Fallback
	switch c.Fallback.Backend {
	case "", FallbackBackendMemory:
		// Nothing extra required
	case FallbackBackendFile:
		if c.Fallback.Dir == "" {
			return errors.New("fallback.dir is required for the file backend")
		}
	case FallbackBackendKV:
		if c.Fallback.Bucket.Name == "" {
			return errors.New("fallback.bucket.name is required for the kv backend")
		}
	default:
		return fmt.Errorf("fallback.backend %q is not valid (must be memory, file, or kv)", c.Fallback.Backend)
	}

	// Validate Cache
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration: %w", err)
	}

	// Validate Scheduler
	if c.Scheduler.ResumeMargin < 0 {
		return errors.New("scheduler.resume_margin cannot be negative")
	}

	// Validate ports
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d is out of range", c.Gateway.Port)
	}

	// Validate Notify
	if c.Notify.Enabled {
		if c.Notify.Prefix == "" {
			return errors.New("notify.prefix is required when notify is enabled")
		}
		if !isValidNATSSubjectPart(c.Notify.Prefix) {
			return fmt.Errorf(
				"notify.prefix '%s' is not valid for NATS subjects (must be alphanumeric with dots, dashes, underscores)",
				c.Notify.Prefix,
			)
		}
	}

	return nil
}

// isValidNATSSubjectPart reports whether s can appear as one token of a
// NATS subject: letters, digits, dots, dashes, and underscores only.
func isValidNATSSubjectPart(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.'
	}) == -1
}

// statConfigFile checks that a path named in the config actually exists,
// labeling the error with the config field it came from.
func statConfigFile(field, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// validateSecurity checks the TLS portions of the security section.
func (c *Config) validateSecurity() error {
	server := c.Security.TLS.Server
	if server.Enabled {
		if server.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if server.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if err := statConfigFile("tls.server.cert_file", server.CertFile); err != nil {
			return err
		}
		if err := statConfigFile("tls.server.key_file", server.KeyFile); err != nil {
			return err
		}
		if server.MinVersion != "" {
			if err := validateTLSVersion(server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	client := c.Security.TLS.Client
	for i, caFile := range client.CAFiles {
		if err := statConfigFile(fmt.Sprintf("tls.client.ca_files[%d]", i), caFile); err != nil {
			return err
		}
	}

	if client.InsecureSkipVerify {
		_, _ = fmt.Fprintf(
			os.Stderr,
			"WARNING: insecure_skip_verify is set, server certificates will not be verified. Development use only!\n",
		)
	}

	if client.MinVersion != "" {
		if err := validateTLSVersion(client.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}

	return nil
}

// validateTLSVersion rejects anything other than the two versions the
// tlsutil loaders understand.
func validateTLSVersion(version string) error {
	if version != "1.2" && version != "1.3" {
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
	return nil
}

// BucketConfig sizes and names a single KV bucket
type BucketConfig struct {
	Name     string        `json:"name,omitempty"`      // Override default name if needed
	TTL      time.Duration `json:"ttl"`                 // 0 = no expiration
	History  int           `json:"history"`             // Number of versions to keep
	MaxBytes int64         `json:"max_bytes,omitempty"` // Size limit (0 = unlimited)
	Replicas int           `json:"replicas,omitempty"`  // Replication factor
}

// Loader assembles a Config from layered JSON files. Later layers win,
// environment variables win over files, and defaults fill whatever no
// layer mentions.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader returns a Loader with no layers and validation off.
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "REFRESHKIT",
	}
}

// AddLayer appends a configuration file layer
func (l *Loader) AddLayer(path string) { l.layers = append(l.layers, path) }

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) { l.validation = enable }

// LoadFile replaces any configured layers with the single file at path
// and loads it.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, file layers, and environment overrides, in that
// order of increasing precedence.
func (l *Loader) Load() (*Config, error) {
	cfg := l.getDefaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration without loading any layers
func DefaultConfig() *Config {
	return NewLoader().getDefaults()
}

// getDefaults returns default configuration
func (l *Loader) getDefaults() *Config {
	return &Config{
		Version: "1.0.0",
		Service: ServiceConfig{
			Name:           "refreshkit",
			Environment:    "dev",
			LogLevel:       "info",
			LogFormat:      "text",
			HealthInterval: 30 * time.Second,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: JetStreamConfig{
				Enabled: true,
			},
		},
		Tiers: []types.TierConfig{
			{
				Tier:        types.TierCritical,
				Cadence:     5 * time.Second,
				TTL:         time.Minute,
				Targets:     []string{"revenue"},
				Timeout:     3 * time.Second,
				MaxAttempts: 3,
			},
		},
		Fetch: FetchConfig{
			InitialDelay:      100 * time.Millisecond,
			MaxDelay:          5 * time.Second,
			Multiplier:        2.0,
			RetryServerFaults: true,
		},
		Breaker: BreakerConfig{
			Bucket: BucketConfig{
				Name:    "refreshkit_breaker",
				History: 5,
			},
			Key: "status",
		},
		Fallback: FallbackConfig{
			Backend: FallbackBackendMemory,
			Bucket: BucketConfig{
				Name:    "refreshkit_fallback",
				History: 1,
			},
		},
		Cache: cache.Config{
			Enabled:         true,
			DefaultTTL:      time.Minute,
			CleanupInterval: time.Minute,
		},
		Scheduler: SchedulerConfig{
			ResumeMargin: time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Gateway: GatewayConfig{
			Enabled:      true,
			Port:         8080,
			PingInterval: 30 * time.Second,
			SendBuffer:   16,
		},
		Notify: NotifyConfig{
			Enabled:   true,
			Prefix:    "refresh",
			QueueSize: 256,
		},
	}
}

// loadRawJSON reads one layer file into a map. Map form keeps "field
// absent" distinguishable from "field zero", which struct unmarshaling
// throws away and the merge step depends on.
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	l.parseDurations(rawConfig)

	return rawConfig, nil
}

// configToMap round-trips a Config into map form for merging.
func configToMap(cfg *Config) (map[string]any, bool) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}

// configFromMap converts a merged map back into a Config.
func configFromMap(m map[string]any) (*Config, bool) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false
	}
	return &cfg, true
}

// mergeFromMap overlays the fields present in override onto base. Any
// conversion failure returns base unchanged so a bad layer cannot wipe
// out the layers before it.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	baseMap, ok := configToMap(base)
	if !ok {
		return base
	}

	merged, ok := configFromMap(l.deepMergeMaps(baseMap, override))
	if !ok {
		return base
	}
	return merged
}

// deepMergeMaps merges override into base recursively. Nested maps merge
// key by key; everything else is replaced wholesale, including arrays.
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		baseMap, baseOk := base[k].(map[string]any)
		overrideMap, overrideOk := v.(map[string]any)
		if baseOk && overrideOk {
			result[k] = l.deepMergeMaps(baseMap, overrideMap)
			continue
		}
		result[k] = v
	}

	return result
}

// parseDurations converts duration strings to nanoseconds for sections whose
// types live outside this package and only accept plain time.ParseDuration
// strings. Long-lived TTLs may use a day suffix (e.g., "14d").
func (l *Loader) parseDurations(data map[string]any) {
	// Tier cadence, TTL, and timeout
	if tiers, ok := data["tiers"].([]any); ok {
		for _, entry := range tiers {
			tier, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for _, field := range []string{"cadence", "ttl", "timeout"} {
				if s, ok := tier[field].(string); ok {
					if d, err := parseDurationWithDays(s); err == nil {
						tier[field] = d.Nanoseconds()
					}
				}
			}
		}
	}

	// Cache TTLs and intervals
	if cacheMap, ok := data["cache"].(map[string]any); ok {
		for _, field := range []string{"default_ttl", "cleanup_interval", "stats_interval"} {
			if s, ok := cacheMap[field].(string); ok {
				if d, err := parseDurationWithDays(s); err == nil {
					cacheMap[field] = d.Nanoseconds()
				}
			}
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	days, ok := strings.CutSuffix(s, "d")
	if !ok {
		return time.ParseDuration(s)
	}
	n, err := strconv.Atoi(days)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

// mergeConfigs merges two already-parsed configs through the same map
// machinery Load uses. Mostly useful in tests; Load itself merges raw
// layer maps to preserve field presence.
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	if override == nil {
		return base
	}

	baseMap, ok := configToMap(base)
	if !ok {
		return base
	}
	overrideMap, ok := configToMap(override)
	if !ok {
		return base
	}

	// Struct zero values serialize as JSON null; strip them so they do
	// not clobber real values in base
	l.removeNilValues(overrideMap)

	merged, ok := configFromMap(l.deepMergeMaps(baseMap, overrideMap))
	if !ok {
		return base
	}
	return merged
}

// removeNilValues strips nil entries from a map, recursing into nested maps
func (l *Loader) removeNilValues(m map[string]any) {
	for k, v := range m {
		switch nested := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			l.removeNilValues(nested)
		}
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	// Service overrides
	if val := l.getenv("_SERVICE_NAME"); val != "" {
		cfg.Service.Name = val
	}
	if val := l.getenv("_SERVICE_ENVIRONMENT"); val != "" {
		cfg.Service.Environment = val
	}
	if val := l.getenv("_SERVICE_INSTANCE_ID"); val != "" {
		cfg.Service.InstanceID = val
	}
	if val := l.getenv("_SERVICE_LOG_LEVEL"); val != "" {
		cfg.Service.LogLevel = val
	}
	if val := l.getenv("_SERVICE_LOG_FORMAT"); val != "" {
		cfg.Service.LogFormat = val
	}

	// NATS overrides
	if val := l.getenv("_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := l.getenv("_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := l.getenv("_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := l.getenv("_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}

	// Surface overrides
	if val := l.getenv("_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if val := l.getenv("_GATEWAY_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if val := l.getenv("_NOTIFY_PREFIX"); val != "" {
		cfg.Notify.Prefix = val
	}

	// Fallback overrides
	if val := l.getenv("_FALLBACK_BACKEND"); val != "" {
		cfg.Fallback.Backend = val
	}
	if val := l.getenv("_FALLBACK_DIR"); val != "" {
		cfg.Fallback.Dir = val
	}
}

// getenv reads a prefixed environment variable, rejecting values that fail
// basic sanity checks (oversized or containing null bytes).
func (l *Loader) getenv(suffix string) string {
	key := l.envPrefix + suffix
	val := os.Getenv(key)
	if val == "" {
		return ""
	}
	if err := validateEnvVar(key, val); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "WARNING: ignoring %s: %v\n", key, err)
		return ""
	}
	return val
}

// SaveToFile writes the configuration as indented JSON, refusing paths
// that fail the same safety checks loading applies.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// GetServiceName returns the configured service name
func (c *Config) GetServiceName() string {
	return c.Service.Name
}

// GetInstanceID returns the instance identifier, falling back to the
// service name when no explicit instance_id is set.
func (c *Config) GetInstanceID() string {
	if c.Service.InstanceID != "" {
		return c.Service.InstanceID
	}
	return c.Service.Name
}

// String renders the config as indented JSON
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// CompareVersions compares two semver strings, returning -1, 0, or 1 as
// v1 is older than, equal to, or newer than v2. The KV sync path uses
// this to decide whether a file config should seed the bucket.
func CompareVersions(v1, v2 string) (int, error) {
	a, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}
	b, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}

	for i := range a {
		switch {
		case a[i] > b[i]:
			return 1, nil
		case a[i] < b[i]:
			return -1, nil
		}
	}
	return 0, nil
}

// parseSemVer splits "major.minor.patch" (optionally v-prefixed) into its
// numeric parts.
func parseSemVer(version string) ([3]int, error) {
	var out [3]int

	if version == "" {
		return out, errors.New("version cannot be empty")
	}

	version = strings.TrimPrefix(version, "v")

	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}

	labels := [3]string{"major", "minor", "patch"}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return out, fmt.Errorf("invalid %s version '%s': %w", labels[i], part, err)
		}
		out[i] = n
	}

	return out, nil
}

// The UnmarshalJSON implementations below exist so duration fields accept
// strings like "30s" or "14d" in addition to nanosecond integers. Each
// shadows its duration fields with json.RawMessage and hands them to
// applyDurationField after the rest of the struct decodes normally.

func (s *ServiceConfig) UnmarshalJSON(data []byte) error {
	type Alias ServiceConfig
	aux := &struct {
		HealthInterval json.RawMessage `json:"health_interval,omitempty"`
		*Alias
	}{Alias: (*Alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return applyDurationField(aux.HealthInterval, "health_interval", &s.HealthInterval)
}

func (n *NATSConfig) UnmarshalJSON(data []byte) error {
	type Alias NATSConfig
	aux := &struct {
		ReconnectWait json.RawMessage `json:"reconnect_wait,omitempty"`
		*Alias
	}{Alias: (*Alias)(n)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return applyDurationField(aux.ReconnectWait, "reconnect_wait", &n.ReconnectWait)
}

func (f *FetchConfig) UnmarshalJSON(data []byte) error {
	type Alias FetchConfig
	aux := &struct {
		InitialDelay json.RawMessage `json:"initial_delay,omitempty"`
		MaxDelay     json.RawMessage `json:"max_delay,omitempty"`
		*Alias
	}{Alias: (*Alias)(f)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := applyDurationField(aux.InitialDelay, "initial_delay", &f.InitialDelay); err != nil {
		return err
	}
	return applyDurationField(aux.MaxDelay, "max_delay", &f.MaxDelay)
}

func (s *SchedulerConfig) UnmarshalJSON(data []byte) error {
	type Alias SchedulerConfig
	aux := &struct {
		ResumeMargin json.RawMessage `json:"resume_margin,omitempty"`
		*Alias
	}{Alias: (*Alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return applyDurationField(aux.ResumeMargin, "resume_margin", &s.ResumeMargin)
}

func (g *GatewayConfig) UnmarshalJSON(data []byte) error {
	type Alias GatewayConfig
	aux := &struct {
		PingInterval json.RawMessage `json:"ping_interval,omitempty"`
		*Alias
	}{Alias: (*Alias)(g)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return applyDurationField(aux.PingInterval, "ping_interval", &g.PingInterval)
}

func (b *BucketConfig) UnmarshalJSON(data []byte) error {
	type Alias BucketConfig
	aux := &struct {
		TTL json.RawMessage `json:"ttl,omitempty"`
		*Alias
	}{Alias: (*Alias)(b)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return applyDurationField(aux.TTL, "ttl", &b.TTL)
}

// applyDurationField parses raw into dst when the field was present in the
// JSON. An absent field leaves dst alone so defaults survive merging.
func applyDurationField(raw json.RawMessage, field string, dst *time.Duration) error {
	if len(raw) == 0 {
		return nil
	}
	d, err := parseDurationField(raw, field)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// parseDurationField parses a JSON duration field that can be either:
// - An integer (nanoseconds) for backward compatibility
// - A string (duration like "1h", "5m", "30s", or "14d" for long TTLs)
func parseDurationField(data json.RawMessage, fieldName string) (time.Duration, error) {
	// Try parsing as string first (most common case)
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		duration, err := parseDurationWithDays(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", fieldName, err)
		}
		return duration, nil
	}

	// Fall back to integer (nanoseconds) for backward compatibility
	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '5s') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
