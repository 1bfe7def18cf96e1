package testutil

import (
	"encoding/json"
	"time"

	"github.com/c360/refreshkit/types"
)

// TestTier returns a tier configuration with cadences scaled down far
// enough that scheduling tests complete in tens of milliseconds. Targets
// default to "revenue" when none are given.
func TestTier(tier types.Tier, targets ...string) types.TierConfig {
	if len(targets) == 0 {
		targets = []string{"revenue"}
	}
	return types.TierConfig{
		Tier:        tier,
		Cadence:     25 * time.Millisecond,
		TTL:         100 * time.Millisecond,
		Targets:     targets,
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 1,
	}
}

// TierSetBuilder assembles tier slices for scheduler and service tests.
// Method chaining keeps multi-tier setups to a few lines:
//
//	tiers := testutil.NewTierSet().
//	    AddTier("critical", 25*time.Millisecond, 100*time.Millisecond, "revenue", "users").
//	    AddTier("background", 50*time.Millisecond, 200*time.Millisecond, "churn").
//	    Build()
type TierSetBuilder struct {
	tiers []types.TierConfig
}

// NewTierSet creates an empty builder.
func NewTierSet() *TierSetBuilder {
	return &TierSetBuilder{}
}

// Add appends a fully specified tier configuration.
func (b *TierSetBuilder) Add(cfg types.TierConfig) *TierSetBuilder {
	b.tiers = append(b.tiers, cfg)
	return b
}

// AddTier appends a tier with the given cadence, TTL, and targets. Timeout
// and attempt bounds come from TestTier's defaults.
func (b *TierSetBuilder) AddTier(tier types.Tier, cadence, ttl time.Duration, targets ...string) *TierSetBuilder {
	cfg := TestTier(tier, targets...)
	cfg.Cadence = cadence
	cfg.TTL = ttl
	return b.Add(cfg)
}

// Build returns the assembled tier slice.
func (b *TierSetBuilder) Build() []types.TierConfig {
	tiers := make([]types.TierConfig, len(b.tiers))
	copy(tiers, b.tiers)
	return tiers
}

// BuildJSON returns the assembled tiers as JSON, the shape pushed into the
// config bucket's tiers section.
func (b *TierSetBuilder) BuildJSON() ([]byte, error) {
	return json.Marshal(b.Build())
}
