package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/types"
)

func TestConfig_Validate(t *testing.T) {
	valid := singleTierConfig(5*time.Second, time.Minute)

	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, valid.Validate())
	})

	t.Run("default config passes", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	t.Run("empty tier set rejected", func(t *testing.T) {
		err := Config{}.Validate()
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("tier validation propagates", func(t *testing.T) {
		cfg := valid
		cfg.Tiers = []types.TierConfig{{Tier: types.TierCritical}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cadence must be positive")
	})

	t.Run("duplicate tiers rejected", func(t *testing.T) {
		cfg := valid
		cfg.Tiers = append([]types.TierConfig{}, valid.Tiers[0], valid.Tiers[0])
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configured twice")
	})

	t.Run("negative resume margin rejected", func(t *testing.T) {
		cfg := valid
		cfg.ResumeMargin = -time.Second
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resume_margin")
	})
}

func TestConfig_ResumeMarginDefault(t *testing.T) {
	cfg := singleTierConfig(time.Second, time.Minute)
	assert.Equal(t, DefaultResumeMargin, cfg.resumeMargin())

	cfg.ResumeMargin = 2 * time.Second
	assert.Equal(t, 2*time.Second, cfg.resumeMargin())
}

func TestConfig_UnmarshalJSON(t *testing.T) {
	t.Run("duration strings", func(t *testing.T) {
		data := `{
			"tiers": [{
				"tier": "critical",
				"cadence": "5s",
				"ttl": "1m",
				"targets": ["revenue", "orders"],
				"timeout": "3s",
				"max_attempts": 3
			}],
			"resume_margin": "2s"
		}`

		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(data), &cfg))
		require.NoError(t, cfg.Validate())

		require.Len(t, cfg.Tiers, 1)
		assert.Equal(t, types.TierCritical, cfg.Tiers[0].Tier)
		assert.Equal(t, 5*time.Second, cfg.Tiers[0].Cadence)
		assert.Equal(t, time.Minute, cfg.Tiers[0].TTL)
		assert.Equal(t, []string{"revenue", "orders"}, cfg.Tiers[0].Targets)
		assert.Equal(t, 3*time.Second, cfg.Tiers[0].Timeout)
		assert.Equal(t, 3, cfg.Tiers[0].MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.ResumeMargin)
	})

	t.Run("integer nanoseconds", func(t *testing.T) {
		data := `{"tiers": [], "resume_margin": 1000000000}`

		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(data), &cfg))
		assert.Equal(t, time.Second, cfg.ResumeMargin)
	})

	t.Run("invalid duration string", func(t *testing.T) {
		data := `{"tiers": [], "resume_margin": "soon"}`

		var cfg Config
		err := json.Unmarshal([]byte(data), &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resume_margin")
	})
}
