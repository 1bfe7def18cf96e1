// Package main implements the entry point for the RefreshKit daemon.
// RefreshKit keeps dashboard KPIs fresh behind an unreliable upstream:
// tiered refresh loops, cache and fallback serving, circuit-breaker
// awareness, and live delivery over NATS and WebSocket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/refreshkit/config"
	"github.com/c360/refreshkit/metric"
	"github.com/c360/refreshkit/natsclient"
	"github.com/c360/refreshkit/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "refreshkit"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	metricsRegistry := metric.NewMetricsRegistry()

	// Connect to NATS: the transport, the KV buckets, and notify all ride it
	natsClient, err := connectToNATS(ctx, cfg, cliCfg, metricsRegistry)
	if err != nil {
		return err
	}
	defer func() { _ = natsClient.Close(ctx) }()

	configManager, err := setupConfigManager(ctx, cfg, natsClient, logger)
	if err != nil {
		return err
	}
	defer func() { _ = configManager.Stop(5 * time.Second) }()

	transport := newNATSTransport(natsClient, cliCfg.FetchPrefix)

	svc, err := service.NewRefreshService(cfg, transport,
		service.WithNATS(natsClient),
		service.WithMetrics(metricsRegistry),
		service.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create refresh service: %w", err)
	}

	return runWithSignalHandling(ctx, svc, configManager, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting RefreshKit (resilient KPI refresh)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads the config file (or defaults), applies CLI
// overrides, and validates the result
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	if cliCfg.ConfigPath == "" {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cliCfg.NATSURL != "" {
		cfg.NATS.URLs = []string{cliCfg.NATSURL}
	}
	if cliCfg.MetricsPort > 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}
	if cliCfg.GatewayPort > 0 {
		cfg.Gateway.Port = cliCfg.GatewayPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// connectToNATS builds the client from config and waits for it to be ready
func connectToNATS(
	ctx context.Context,
	cfg *config.Config,
	cliCfg *CLIConfig,
	registry *metric.MetricsRegistry,
) (*natsclient.Client, error) {
	natsURL := "nats://localhost:4222"
	if len(cfg.NATS.URLs) > 0 {
		natsURL = cfg.NATS.URLs[0]
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Service.Name),
		natsclient.WithMetrics(registry),
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile))
	}

	natsClient, err := natsclient.NewClient(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", natsURL)
	if err := natsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return natsClient, nil
}

// setupConfigManager creates and starts the config manager
func setupConfigManager(
	ctx context.Context,
	cfg *config.Config,
	natsClient *natsclient.Client,
	logger *slog.Logger,
) (*config.Manager, error) {
	configManager, err := config.NewConfigManager(cfg, natsClient, logger)
	if err != nil {
		return nil, fmt.Errorf("create config manager: %w", err)
	}

	if err := configManager.Start(ctx); err != nil {
		return nil, fmt.Errorf("start config manager: %w", err)
	}

	return configManager, nil
}

// watchTierUpdates pumps tier changes from the config bucket into the
// running service. The subscription's initial snapshot is the boot config,
// so it is drained before the loop: replacing the tier set with itself
// would only restart the refresh loops for nothing.
func watchTierUpdates(ctx context.Context, svc *service.RefreshService, configManager *config.Manager) {
	updates := configManager.OnChange("tiers")

	select {
	case <-updates:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			tiers := update.Config.Get().Tiers
			if err := svc.ApplyTiers(tiers); err != nil {
				slog.Warn("Rejected tier update", "error", err)
				continue
			}
			slog.Info("Applied tier update", "tiers", len(tiers))
		}
	}
}

// runWithSignalHandling starts the service and blocks until shutdown
func runWithSignalHandling(
	ctx context.Context,
	svc *service.RefreshService,
	configManager *config.Manager,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start refresh service: %w", err)
	}

	go watchTierUpdates(signalCtx, svc, configManager)

	if addr := svc.GatewayAddress(); addr != "" {
		slog.Info("Gateway serving", "address", addr)
	}
	if addr := svc.MetricsAddress(); addr != "" {
		slog.Info("Metrics serving", "address", addr)
	}
	slog.Info("RefreshKit started")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := svc.Stop(shutdownTimeout); err != nil {
		slog.Error("Error stopping refresh service", "error", err)
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("RefreshKit shutdown complete")
	return nil
}
