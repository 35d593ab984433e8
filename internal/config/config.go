// Package config loads and validates storyloom configuration.
// Configuration is YAML with code-level defaults; a handful of
// STORYLOOM_* environment variables override file values for
// deployment-sensitive settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all storyloom configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// State directory for the database and logs.
	StateDir string `yaml:"state_dir"`

	// Story graph store configuration
	Store StoreConfig `yaml:"store"`

	// Coherence engine configuration
	Coherence CoherenceConfig `yaml:"coherence"`

	// Minion coordinator configuration
	Minion MinionConfig `yaml:"minion"`

	// Logic kernel configuration
	Logic LogicConfig `yaml:"logic"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// LogicConfig configures the datalog contradiction kernel.
type LogicConfig struct {
	// RulesPath optionally points at a rules file overriding the embedded
	// contradiction rules. When set, the rule watcher hot-reloads it.
	RulesPath string `yaml:"rules_path"`

	// WatchRules enables the fsnotify rule watcher.
	WatchRules bool `yaml:"watch_rules"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name:      "storyloom",
		Version:   "0.1.0",
		StateDir:  ".storyloom",
		Store:     DefaultStoreConfig(),
		Coherence: DefaultCoherenceConfig(),
		Minion:    DefaultMinionConfig(),
		Logic:     LogicConfig{},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads the config file at path, layered over defaults, then applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config as YAML to path, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies STORYLOOM_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STORYLOOM_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("STORYLOOM_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("STORYLOOM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("STORYLOOM_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("STORYLOOM_RULES_PATH"); v != "" {
		c.Logic.RulesPath = v
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if err := c.Coherence.Validate(); err != nil {
		return fmt.Errorf("coherence config: %w", err)
	}
	if err := c.Minion.Validate(); err != nil {
		return fmt.Errorf("minion config: %w", err)
	}
	return nil
}

// DatabasePath resolves the store path, defaulting under the state dir.
func (c Config) DatabasePath() string {
	if c.Store.DatabasePath != "" {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.StateDir, "story.db")
}
