package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigSystem_Integration tests the config system for thread safety and panic prevention
func TestConfigSystem_Integration(t *testing.T) {
	// Create a valid config
	baseConfig := DefaultConfig()
	baseConfig.Service.Name = "integration-test"

	// Test SafeConfig in high-concurrency scenario
	safeConfig := NewSafeConfig(baseConfig)

	const numWorkers = 50
	const iterations = 100
	var wg sync.WaitGroup
	errors := make(chan error, numWorkers)

	// Start concurrent readers
	for i := 0; i < numWorkers/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				cfg := safeConfig.Get()

				// Section marshaling must always see a coherent snapshot
				data, err := marshalSection(cfg, "tiers")
				if err != nil {
					errors <- fmt.Errorf("marshal tiers: %w", err)
					return
				}
				if len(data) <= 2 {
					errors <- fmt.Errorf("tiers section unexpectedly empty")
					return
				}

				// Verify config integrity
				if cfg.Service.Name != "integration-test" && cfg.Service.Name != "updated-test" {
					errors <- fmt.Errorf("Config corruption detected")
					return
				}
			}
		}()
	}

	// Start concurrent writers
	for i := 0; i < numWorkers/2; i++ {
		wg.Add(1)
		go func(_ int) {
			defer wg.Done()
			for j := 0; j < iterations/10; j++ {
				newConfig := DefaultConfig()
				newConfig.Service.Name = "updated-test"

				if err := safeConfig.Update(newConfig); err != nil {
					errors <- err
					return
				}
			}
		}(i)
	}

	// Wait for completion with timeout
	done := make(chan bool)
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errors)
		for err := range errors {
			t.Fatalf("Integration test failed: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Integration test timed out")
	}
}

// TestLoader_LayeredMerge verifies that later layers win field by field while
// untouched fields survive from earlier layers
func TestLoader_LayeredMerge(t *testing.T) {
	tmpDir := t.TempDir()

	baseJSON := `{
		"service": {
			"name": "kpi-refresh",
			"environment": "dev",
			"log_level": "info"
		},
		"tiers": [
			{
				"tier": "critical",
				"cadence": "5s",
				"ttl": "60s",
				"targets": ["revenue"],
				"timeout": "3s",
				"max_attempts": 3
			}
		],
		"notify": {
			"enabled": true,
			"prefix": "refresh",
			"queue_size": 256
		}
	}`
	basePath := filepath.Join(tmpDir, "base.json")
	require.NoError(t, os.WriteFile(basePath, []byte(baseJSON), 0644))

	overrideJSON := `{
		"service": {
			"environment": "prod"
		},
		"notify": {
			"prefix": "kpi"
		},
		"fetch": {
			"initial_delay": "250ms"
		}
	}`
	overridePath := filepath.Join(tmpDir, "override.json")
	require.NoError(t, os.WriteFile(overridePath, []byte(overrideJSON), 0644))

	loader := NewLoader()
	loader.AddLayer(basePath)
	loader.AddLayer(overridePath)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	// Later layer wins
	assert.Equal(t, "prod", cfg.Service.Environment)
	assert.Equal(t, "kpi", cfg.Notify.Prefix)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.InitialDelay)

	// Earlier layer survives where the override is silent
	assert.Equal(t, "kpi-refresh", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
	require.Len(t, cfg.Tiers, 1)
	assert.Equal(t, 5*time.Second, cfg.Tiers[0].Cadence)

	// Defaults survive where no layer touched them
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, 5*time.Second, cfg.Fetch.MaxDelay)
}

// TestLoader_DurationForms verifies that every duration field accepts plain
// duration strings, day suffixes, and raw integer nanoseconds
func TestLoader_DurationForms(t *testing.T) {
	testConfig := `{
		"service": {
			"name": "kpi-refresh",
			"health_interval": "45s"
		},
		"nats": {
			"reconnect_wait": 3000000000
		},
		"tiers": [
			{
				"tier": "critical",
				"cadence": "90s",
				"ttl": 120000000000,
				"targets": ["revenue"],
				"timeout": "3s",
				"max_attempts": 3
			},
			{
				"tier": "background",
				"cadence": "12h",
				"ttl": "14d",
				"targets": ["churn_trend"],
				"timeout": "30s",
				"max_attempts": 2
			}
		],
		"scheduler": {
			"resume_margin": "1500ms"
		},
		"gateway": {
			"enabled": true,
			"ping_interval": "20s"
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(configFile, []byte(testConfig), 0644))

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Service.HealthInterval)
	assert.Equal(t, 3*time.Second, cfg.NATS.ReconnectWait)

	require.Len(t, cfg.Tiers, 2)
	assert.Equal(t, 90*time.Second, cfg.Tiers[0].Cadence)
	assert.Equal(t, 2*time.Minute, cfg.Tiers[0].TTL)
	assert.Equal(t, 12*time.Hour, cfg.Tiers[1].Cadence)
	assert.Equal(t, 14*24*time.Hour, cfg.Tiers[1].TTL)

	assert.Equal(t, 1500*time.Millisecond, cfg.Scheduler.ResumeMargin)
	assert.Equal(t, 20*time.Second, cfg.Gateway.PingInterval)
}
