package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/refreshkit/types"
)

// KPIPayloads holds upstream response bodies keyed by target name. Shapes
// mirror what a metrics endpoint returns: the metric identity plus the
// computed value and aggregation window.
var KPIPayloads = map[string]string{
	"revenue": `{"metric":"revenue","value":125400.50,"currency":"USD","window":"24h"}`,
	"users":   `{"metric":"active_users","value":8342,"window":"24h"}`,
	"churn":   `{"metric":"churn_rate","value":0.023,"window":"30d"}`,
	"latency": `{"metric":"p99_latency_ms","value":412,"window":"1h"}`,
	"orders":  `{"metric":"orders","value":1193,"window":"24h"}`,
}

// RawPayload returns the canned payload for a target, or a minimal
// placeholder body for targets outside the canned set.
func RawPayload(target string) json.RawMessage {
	if payload, ok := KPIPayloads[target]; ok {
		return json.RawMessage(payload)
	}
	return json.RawMessage(fmt.Sprintf(`{"metric":%q,"value":0}`, target))
}

// NewUpdate builds a fresh (non-degraded) update stamped with the current
// time.
func NewUpdate(tier types.Tier, target, value string) types.Update {
	return types.Update{
		Tier:      tier,
		Target:    target,
		Value:     json.RawMessage(value),
		FetchedAt: time.Now(),
	}
}

// NewDegradedUpdate builds a degraded update carrying a fallback value. An
// empty value produces a nil payload, the shape delivered when no snapshot
// was ever recorded.
func NewDegradedUpdate(tier types.Tier, target, value string) types.Update {
	update := types.Update{
		Tier:      tier,
		Target:    target,
		FetchedAt: time.Now(),
		Degraded:  true,
	}
	if value != "" {
		update.Value = json.RawMessage(value)
	}
	return update
}

// NewSample builds a cache sample stamped with the current time.
func NewSample(value string) types.Sample {
	return types.Sample{
		Value:     json.RawMessage(value),
		FetchedAt: time.Now(),
	}
}
