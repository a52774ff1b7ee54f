// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for gemlite.
//
// Supports both TOML and JSON formats with sensible defaults and
// environment variable overrides.
//
// Configuration file locations (in order of precedence):
//   - ~/.gemlite/config.toml
//   - ~/.gemlite/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/gemlite/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gemlite configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend connection settings
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Datastore paths per group selector
	Datastores DatastoreConfig `toml:"datastores" json:"datastores"`

	// Local persistence settings
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// BackendConfig contains gemini-lite backend settings.
type BackendConfig struct {
	// BaseURL is the backend base URL, e.g. "http://127.0.0.1:8000"
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the per-request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// DatastoreConfig maps group selectors to Vertex datastore paths.
// The "both" selector sends gp2 and gp3 together.
type DatastoreConfig struct {
	GP2Path string `toml:"gp2_path" json:"gp2_path"`
	GP3Path string `toml:"gp3_path" json:"gp3_path"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	// Dir is where conversation metadata and the auth key live
	// (empty = ~/.gemlite)
	Dir string `toml:"dir" json:"dir"`
	// CacheDB is the message-cache SQLite path
	// (empty = <dir>/messages.db)
	CacheDB string `toml:"cache_db" json:"cache_db"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: "0.1.0",
		Backend: BackendConfig{
			BaseURL:     "http://127.0.0.1:8000",
			TimeoutSecs: 120,
		},
		Datastores: DatastoreConfig{},
		Storage:    StorageConfig{},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the gemlite configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemlite"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s). Tries TOML first,
// then JSON, and falls back to defaults. Environment overrides are
// applied last in every path.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := configPath("config.toml")
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, err
			}
			return finalize(cfg)
		}
	}

	jsonPath, err := configPath("config.json")
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, err
			}
			return finalize(cfg)
		}
	}

	return finalize(cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from an explicit file, picking the
// decoder by extension. Used by the --config flag.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch filepath.Ext(path) {
	case ".toml":
		err = LoadTOML(cfg, path)
	case ".json":
		err = LoadJSON(cfg, path)
	default:
		err = fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return finalize(cfg)
}

// =============================================================================
// OVERRIDES, DEFAULTS, VALIDATION
// =============================================================================

// ApplyEnvOverrides applies GEMLITE_* environment variables on top of
// the loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GEMLITE_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("GEMLITE_DATASTORE_GP2"); v != "" {
		c.Datastores.GP2Path = v
	}
	if v := os.Getenv("GEMLITE_DATASTORE_GP3"); v != "" {
		c.Datastores.GP3Path = v
	}
	if v := os.Getenv("GEMLITE_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
}

// SetDefaults fills derived and missing fields after load.
func (c *Config) SetDefaults() {
	if c.Backend.TimeoutSecs <= 0 {
		c.Backend.TimeoutSecs = 120
	}
	if c.Storage.Dir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Storage.Dir = dir
		}
	}
	if c.Storage.CacheDB == "" && c.Storage.Dir != "" {
		c.Storage.CacheDB = filepath.Join(c.Storage.Dir, "messages.db")
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url %q is not a valid URL", c.Backend.BaseURL)
	}
	if c.Backend.TimeoutSecs <= 0 {
		return fmt.Errorf("backend.timeout_secs must be positive")
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the TOML config file.
func Save(cfg *Config) error {
	path, err := configPath("config.toml")
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}

	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}
