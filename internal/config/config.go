// Package config provides configuration types for the IPE engine.
//
// It covers the knobs the engine itself owns: the policy store's worker
// pool, the tiering manager's promotion thresholds, the VM's stack cap, and
// the approval/relationship stores' TTL and traversal-depth defaults.
// Transport/server concerns belong to whatever embeds the engine, not here.
package config

// Config is the top-level configuration for an IPE engine instance.
type Config struct {
	// Store configures the policy data store's update worker pool.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Tiering configures the adaptive execution tiering manager.
	Tiering TieringConfig `yaml:"tiering" mapstructure:"tiering"`

	// VM configures the bytecode interpreter.
	VM VMConfig `yaml:"vm" mapstructure:"vm"`

	// Approval configures the approval key-value store's TTL defaults.
	Approval ApprovalConfig `yaml:"approval" mapstructure:"approval"`

	// Relationship configures the relationship store's traversal bounds.
	Relationship RelationshipConfig `yaml:"relationship" mapstructure:"relationship"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn" (or "warning"), "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables verbose logging and permissive defaults (tiering
	// disabled for deterministic evaluation during local development).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// StoreConfig configures the policy data store.
type StoreConfig struct {
	// WorkerCount is the number of background validation workers that
	// compile and apply policy updates.
	// Defaults to 1 if not specified or 0.
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count" validate:"omitempty,min=1"`
}

// TieringConfig configures the adaptive tiering manager's promotion
// thresholds.
type TieringConfig struct {
	// Enabled turns on background JIT compilation of hot policies.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// BaselineJITThreshold is the evaluation count at which a policy is
	// promoted from Interpreter to BaselineJIT.
	// Defaults to 100 if not specified or 0.
	BaselineJITThreshold uint64 `yaml:"baseline_jit_threshold" mapstructure:"baseline_jit_threshold" validate:"omitempty,min=1"`

	// OptimizedJITThreshold is the evaluation count at which a policy is
	// promoted from BaselineJIT to OptimizedJIT, subject also to the
	// latency threshold below.
	// Defaults to 10000 if not specified or 0.
	OptimizedJITThreshold uint64 `yaml:"optimized_jit_threshold" mapstructure:"optimized_jit_threshold" validate:"omitempty,min=1"`

	// OptimizedJITLatencyNs is the average latency (nanoseconds) above
	// which a policy meeting OptimizedJITThreshold is promoted further.
	// Defaults to 20000 if not specified or 0.
	OptimizedJITLatencyNs uint64 `yaml:"optimized_jit_latency_ns" mapstructure:"optimized_jit_latency_ns" validate:"omitempty,min=1"`

	// PromotionCooldown is the minimum duration between promotions for a
	// single policy (e.g. "10s").
	// Defaults to "10s" if not specified.
	PromotionCooldown string `yaml:"promotion_cooldown" mapstructure:"promotion_cooldown" validate:"omitempty"`
}

// VMConfig configures the bytecode interpreter.
type VMConfig struct {
	// MaxStackSize bounds the interpreter's operand stack, guarding
	// against runaway or malicious bytecode.
	// Defaults to 1024 if not specified or 0.
	MaxStackSize int `yaml:"max_stack_size" mapstructure:"max_stack_size" validate:"omitempty,min=1"`
}

// ApprovalConfig configures the approval store's TTL defaults.
type ApprovalConfig struct {
	// DefaultTTLPreset selects one of the named TTL presets applied when
	// an approval is granted without an explicit TTL.
	// Valid values: "default", "temporary", "short_lived", "long_lived".
	// Defaults to "default" if not specified.
	DefaultTTLPreset string `yaml:"default_ttl_preset" mapstructure:"default_ttl_preset" validate:"omitempty,oneof=default temporary short_lived long_lived"`
}

// RelationshipConfig configures the relationship store's transitive
// traversal.
type RelationshipConfig struct {
	// MaxTraversalDepth bounds the breadth-first search used by
	// transitive relationship queries.
	// Defaults to 10 if not specified or 0.
	MaxTraversalDepth int `yaml:"max_traversal_depth" mapstructure:"max_traversal_depth" validate:"omitempty,min=1"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Store.WorkerCount == 0 {
		c.Store.WorkerCount = 1
	}

	if c.Tiering.BaselineJITThreshold == 0 {
		c.Tiering.BaselineJITThreshold = 100
	}
	if c.Tiering.OptimizedJITThreshold == 0 {
		c.Tiering.OptimizedJITThreshold = 10000
	}
	if c.Tiering.OptimizedJITLatencyNs == 0 {
		c.Tiering.OptimizedJITLatencyNs = 20000
	}
	if c.Tiering.PromotionCooldown == "" {
		c.Tiering.PromotionCooldown = "10s"
	}

	if c.VM.MaxStackSize == 0 {
		c.VM.MaxStackSize = 1024
	}

	if c.Approval.DefaultTTLPreset == "" {
		c.Approval.DefaultTTLPreset = "default"
	}

	if c.Relationship.MaxTraversalDepth == 0 {
		c.Relationship.MaxTraversalDepth = 10
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
		if c.DevMode {
			c.LogLevel = "debug"
		}
	}
}

// SetDevDefaults applies permissive defaults for development mode: tiering
// is disabled so evaluation stays on the deterministic interpreter path,
// and logging is verbose. Applied BEFORE validation so required fields
// stay satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
	c.Tiering.Enabled = false
}
