package types_test

import (
	"encoding/json"
	"testing"
	"time"

	pkgerrors "github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/types"
)

func validTierConfig() types.TierConfig {
	return types.TierConfig{
		Tier:        types.TierCritical,
		Cadence:     5 * time.Second,
		TTL:         60 * time.Second,
		Targets:     []string{"kpi/revenue"},
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
	}
}

func TestTierConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*types.TierConfig)
		expectError bool
	}{
		{"valid config", func(*types.TierConfig) {}, false},
		{"custom tier name", func(tc *types.TierConfig) { tc.Tier = "hourly" }, false},
		{"empty tier", func(tc *types.TierConfig) { tc.Tier = "" }, true},
		{"zero cadence", func(tc *types.TierConfig) { tc.Cadence = 0 }, true},
		{"negative cadence", func(tc *types.TierConfig) { tc.Cadence = -time.Second }, true},
		{"zero ttl", func(tc *types.TierConfig) { tc.TTL = 0 }, true},
		{"no targets", func(tc *types.TierConfig) { tc.Targets = nil }, true},
		{"blank target", func(tc *types.TierConfig) { tc.Targets = []string{"kpi/revenue", ""} }, true},
		{"zero timeout", func(tc *types.TierConfig) { tc.Timeout = 0 }, true},
		{"zero attempts", func(tc *types.TierConfig) { tc.MaxAttempts = 0 }, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := validTierConfig()
			test.mutate(&cfg)

			err := cfg.Validate()
			if test.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !pkgerrors.IsInvalid(err) {
					t.Errorf("validation errors should classify as invalid, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTierConfigUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    types.TierConfig
		expectError bool
	}{
		{
			name:  "duration strings",
			input: `{"tier":"critical","cadence":"5s","ttl":"1m","targets":["kpi/revenue"],"timeout":"2s","max_attempts":3}`,
			expected: types.TierConfig{
				Tier:        types.TierCritical,
				Cadence:     5 * time.Second,
				TTL:         time.Minute,
				Targets:     []string{"kpi/revenue"},
				Timeout:     2 * time.Second,
				MaxAttempts: 3,
			},
		},
		{
			name:  "integer nanoseconds",
			input: `{"tier":"background","cadence":60000000000,"ttl":300000000000,"targets":["kpi/uptime"],"timeout":5000000000,"max_attempts":2}`,
			expected: types.TierConfig{
				Tier:        types.TierBackground,
				Cadence:     time.Minute,
				TTL:         5 * time.Minute,
				Targets:     []string{"kpi/uptime"},
				Timeout:     5 * time.Second,
				MaxAttempts: 2,
			},
		},
		{
			name:        "bad duration string",
			input:       `{"tier":"critical","cadence":"soon","targets":["a"]}`,
			expectError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var cfg types.TierConfig
			err := json.Unmarshal([]byte(test.input), &cfg)
			if test.expectError {
				if err == nil {
					t.Fatal("expected unmarshal error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Cadence != test.expected.Cadence || cfg.TTL != test.expected.TTL ||
				cfg.Timeout != test.expected.Timeout {
				t.Errorf("durations mismatch: got %+v, want %+v", cfg, test.expected)
			}
			if cfg.Tier != test.expected.Tier || cfg.MaxAttempts != test.expected.MaxAttempts {
				t.Errorf("fields mismatch: got %+v, want %+v", cfg, test.expected)
			}
		})
	}
}

func TestRefreshKey(t *testing.T) {
	if got := types.RefreshKey(types.TierCritical, "kpi/revenue"); got != "critical/kpi/revenue" {
		t.Errorf("unexpected key: %s", got)
	}

	u := types.Update{Tier: types.TierBackground, Target: "kpi/uptime"}
	if got := u.Key(); got != "background/kpi/uptime" {
		t.Errorf("unexpected update key: %s", got)
	}

	// Distinct tiers watching the same target must not collide
	if types.RefreshKey(types.TierCritical, "x") == types.RefreshKey(types.TierBackground, "x") {
		t.Error("keys for different tiers should differ")
	}
}
