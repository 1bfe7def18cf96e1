package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/refreshkit/errors"
)

// ValidateSection checks whether raw JSON is an acceptable replacement for
// the named section, without applying or persisting it. The candidate is
// decoded into a copy of the current configuration and the whole config is
// validated, so cross-section constraints are enforced too.
func (cm *Manager) ValidateSection(ctx context.Context, section string, raw json.RawMessage) error {
	// Check for cancellation
	select {
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(),
			"Manager", "ValidateSection", "validation cancelled")
	default:
	}

	if len(raw) > maxConfigSize {
		return errors.WrapInvalid(
			fmt.Errorf("section value too large: %d bytes > %d", len(raw), maxConfigSize),
			"Manager", "ValidateSection", "check section size")
	}
	if err := validateJSONDepth(raw); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("invalid JSON structure: %w", err),
			"Manager", "ValidateSection", "check JSON depth")
	}

	cfg, err := cm.applySection(section, raw)
	if err != nil {
		return errors.WrapInvalid(err,
			"Manager", "ValidateSection", fmt.Sprintf("decode section %s", section))
	}

	if err := cfg.Validate(); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("configuration validation failed: %w", err),
			"Manager", "ValidateSection", fmt.Sprintf("validate section %s", section))
	}

	return nil
}

// ValidateAndPersistSection validates a section update and persists it to KV.
// The watch loop applies persisted updates, so every subscriber (this
// instance included) picks the change up through the same path.
func (cm *Manager) ValidateAndPersistSection(ctx context.Context, section string, raw json.RawMessage) error {
	if err := cm.ValidateSection(ctx, section, raw); err != nil {
		return err
	}

	if _, err := cm.kvStore.Put(ctx, section, raw); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("failed to persist config to KV: %w", err),
			"Manager", "ValidateAndPersistSection", "persist to KV")
	}

	cm.logger.Info("Configuration section validated and persisted",
		"section", section)

	return nil
}
