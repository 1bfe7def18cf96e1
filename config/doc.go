// Package config loads, validates and serves the refresh daemon's
// configuration, and keeps it current at runtime through NATS KV.
//
// Configuration comes from three places, lowest precedence first: JSON file
// layers merged last-wins, environment variable overrides, and a shared KV
// bucket carrying fleet-wide settings. Files and environment are read once
// at boot. The KV bucket stays watched for as long as the process runs, so
// operators can retune fetch backoff or tier cadence without a restart.
//
// # File Layers
//
// A Loader merges any number of JSON files, later layers overriding earlier
// ones key by key:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/refreshkit/refresh.json")
//	loader.AddLayer("/etc/refreshkit/refresh.prod.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Merging is recursive over objects, so a layer can override one field of a
// section without restating the rest:
//
//	refresh.json:
//	  {"service": {"name": "kpi-refresh", "log_level": "debug"}}
//
//	refresh.prod.json:
//	  {"service": {"environment": "prod"}}
//
//	merged:
//	  {"service": {"name": "kpi-refresh", "environment": "prod", "log_level": "debug"}}
//
// Setting a key to null in a later layer removes it from the merged result.
// Duration fields accept Go duration strings ("5s", "1h") plus a day suffix
// ("14d") for long retention windows, or raw nanosecond integers.
//
// # Environment Overrides
//
// Selected values can be overridden per deployment without editing files:
//
//	export REFRESHKIT_SERVICE_NAME="kpi-refresh-west"
//	export REFRESHKIT_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
// Overrides are sanitized before use; values that are too long or carry
// control characters are rejected.
//
// # Live Updates over KV
//
// A Manager mirrors the configuration into a NATS KV bucket, watches it for
// changes, and fans updates out to subscribers:
//
//	manager, err := config.NewConfigManager(cfg, natsClient, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := manager.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Stop(5 * time.Second)
//
//	for update := range manager.OnChange("tiers") {
//		log.Printf("tier definitions changed: %s", update.Path)
//	}
//
// On first boot against an empty bucket the manager seeds it from the local
// configuration; afterwards the bucket is authoritative and local state
// follows it.
//
// # Safe Concurrent Access
//
// SafeConfig hands out deep copies under a read-write lock, so a refresh
// loop can read settings while an operator pushes new ones:
//
//	safe := manager.GetConfig()
//	cfg := safe.Get() // deep copy, callers may mutate freely
//
//	cfg.Scheduler.ResumeMargin = 2 * time.Second
//	if err := safe.Update(cfg); err != nil {
//		log.Printf("update rejected: %v", err)
//	}
//
// Update validates before anything takes effect; a rejected update leaves
// the previous configuration in place.
//
// # Validation and Safety
//
// Loading enforces limits meant for files that arrive from outside the
// binary: a 10MB size cap, a 100-level JSON nesting cap, path validation
// that refuses traversal outside the allowed roots, and a regular-file
// check that rejects symlinks and device nodes.
//
// # Configuration Structure
//
// The main Config struct contains:
//
//	type Config struct {
//	    Service   ServiceConfig      // Service identity and logging
//	    NATS      NATSConfig         // Message bus connection
//	    Tiers     []types.TierConfig // Refresh tier definitions
//	    Fetch     FetchConfig        // Retry and backoff tuning
//	    Breaker   BreakerConfig      // Circuit breaker persistence
//	    Fallback  FallbackConfig     // Last-known-good storage
//	    Cache     cache.Config       // In-memory KPI cache
//	    Scheduler SchedulerConfig    // Tier scheduling behavior
//	    Metrics   MetricsConfig      // Prometheus endpoint
//	    Gateway   GatewayConfig      // HTTP/WebSocket read surface
//	    Notify    NotifyConfig       // Refresh completion events
//	}
package config
