// Package config provides configuration loading for the IPE engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for ipe.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching a binary of the same base name with no extension.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("ipe")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: IPE_STORE_WORKER_COUNT
	viper.SetEnvPrefix("IPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an ipe config file with
// an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".ipe"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "ipe"))
		}
	} else {
		paths = append(paths, "/etc/ipe")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for ipe.yaml or
// .yml. Returns the full path of the first match, or empty string if none
// found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "ipe"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every config key for environment variable
// support, enabling overrides like IPE_STORE_WORKER_COUNT.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("store.worker_count")

	_ = viper.BindEnv("tiering.enabled")
	_ = viper.BindEnv("tiering.baseline_jit_threshold")
	_ = viper.BindEnv("tiering.optimized_jit_threshold")
	_ = viper.BindEnv("tiering.optimized_jit_latency_ns")
	_ = viper.BindEnv("tiering.promotion_cooldown")

	_ = viper.BindEnv("vm.max_stack_size")

	_ = viper.BindEnv("approval.default_ttl_preset")

	_ = viper.BindEnv("relationship.max_traversal_depth")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, applies dev-mode defaults (cfg.SetDevDefaults), validates
// the result (cfg.Validate), and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
