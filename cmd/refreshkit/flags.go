package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	NATSURL         string
	FetchPrefix     string
	MetricsPort     int
	GatewayPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("REFRESHKIT_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: REFRESHKIT_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("REFRESHKIT_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: REFRESHKIT_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("REFRESHKIT_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: REFRESHKIT_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("REFRESHKIT_LOG_FORMAT", "json"),
		"Log format: json, text (env: REFRESHKIT_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("REFRESHKIT_DEBUG", false),
		"Enable debug mode (env: REFRESHKIT_DEBUG)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("REFRESHKIT_NATS_URL", ""),
		"NATS server URL, overrides config (env: REFRESHKIT_NATS_URL)")

	flag.StringVar(&cfg.FetchPrefix, "fetch-prefix",
		getEnv("REFRESHKIT_FETCH_PREFIX", "kpi.fetch"),
		"Subject prefix for upstream fetch requests (env: REFRESHKIT_FETCH_PREFIX)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("REFRESHKIT_METRICS_PORT", 0),
		"Metrics server port, overrides config when set (env: REFRESHKIT_METRICS_PORT)")

	flag.IntVar(&cfg.GatewayPort, "gateway-port",
		getEnvInt("REFRESHKIT_GATEWAY_PORT", 0),
		"Gateway server port, overrides config when set (env: REFRESHKIT_GATEWAY_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("REFRESHKIT_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: REFRESHKIT_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	// Custom usage
	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	// Validate config file exists when one is named
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	// Validate log format
	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.FetchPrefix == "" {
		return fmt.Errorf("fetch prefix cannot be empty")
	}

	// Validate port overrides
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.GatewayPort < 0 || cfg.GatewayPort > 65535 {
		return fmt.Errorf("invalid gateway port: %d", cfg.GatewayPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Resilient KPI Refresh Daemon

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with custom config
  %s --config=/path/to/config.json

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Run with environment variables
  export REFRESHKIT_CONFIG=/etc/refreshkit/config.json
  export REFRESHKIT_LOG_LEVEL=debug
  %s

  # Validate configuration only
  %s --config=/path/to/config.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
