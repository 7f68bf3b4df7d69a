package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	// Simulate running with no config file at all.
	cfg := &Config{}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() zero-config unexpected error: %v", err)
	}
	if cfg.Store.WorkerCount != 1 {
		t.Errorf("default worker count = %d, want 1", cfg.Store.WorkerCount)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Errorf("error = %q, want to contain 'LogLevel'", err.Error())
	}
}

func TestValidate_InvalidTTLPreset(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Approval.DefaultTTLPreset = "forever"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid TTL preset, got nil")
	}
	if !strings.Contains(err.Error(), "DefaultTTLPreset") {
		t.Errorf("error = %q, want to contain 'DefaultTTLPreset'", err.Error())
	}
}

func TestValidate_TieringThresholdsMustBeMonotone(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tiering.Enabled = true
	cfg.Tiering.BaselineJITThreshold = 500
	cfg.Tiering.OptimizedJITThreshold = 100

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for non-monotone tiering thresholds, got nil")
	}
	if !strings.Contains(err.Error(), "tiering") {
		t.Errorf("error = %q, want to contain 'tiering'", err.Error())
	}
}

func TestValidate_TieringThresholdsIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tiering.Enabled = false
	cfg.Tiering.BaselineJITThreshold = 500
	cfg.Tiering.OptimizedJITThreshold = 100

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error when tiering disabled: %v", err)
	}
}

func TestValidate_WorkerCountMustBePositive(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Store.WorkerCount = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for negative worker count, got nil")
	}
}

func TestValidate_MaxTraversalDepthMustBePositive(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Relationship.MaxTraversalDepth = -2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for negative max traversal depth, got nil")
	}
}
