// Package config handles loading and saving espalier configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config: ~/.config/espalier/config.yaml
//   - State:  ~/.local/state/espalier/ (view state cache)
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EngineConfig tunes the synchronization engine.
type EngineConfig struct {
	// Workers is the materializer worker count. More than one only
	// helps with a reentrant provider.
	Workers int `yaml:"workers,omitempty"`
	// EagerRecursion marks materialized descendants dirty on recursive
	// invalidation instead of the lazy re-check during descent.
	EagerRecursion bool `yaml:"eager_recursion,omitempty"`
	// UpdateBuffer is the capacity of the materializer update stream.
	UpdateBuffer int `yaml:"update_buffer,omitempty"`
}

// WatchConfig tunes the file watcher feeding the dispatcher.
type WatchConfig struct {
	DebounceMS   int  `yaml:"debounce_ms,omitempty"`
	PollMS       int  `yaml:"poll_ms,omitempty"`
	ForcePolling bool `yaml:"force_polling,omitempty"`
	// Clipboard enables the clipboard change source.
	Clipboard bool `yaml:"clipboard,omitempty"`
}

// Config is the top-level espalier configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine,omitempty"`
	Watch  WatchConfig  `yaml:"watch,omitempty"`
	// StateDir overrides the view-state directory.
	StateDir string `yaml:"state_dir,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{Workers: 1},
		Watch:  WatchConfig{DebounceMS: 200, Clipboard: false},
	}
}

// ConfigDir returns the espalier config directory, honoring
// XDG_CONFIG_HOME.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "espalier"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "espalier"), nil
}

// ResolveStateDir returns the view-state directory, honoring
// XDG_STATE_HOME and the StateDir override.
func (c *Config) ResolveStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "espalier"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "espalier"), nil
}

// Load reads the config file, returning defaults when it is absent.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return Default(), nil
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = 1
	}
	return cfg, nil
}

// Save writes the config back to its canonical location.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}
