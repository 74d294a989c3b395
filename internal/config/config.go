// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the zeroclawd daemon configuration: listen address,
// memory backend selection, health state-file path, supervisor backoff and
// the SOP catalogue directory. Environment variables override file-based values,
// matching the teacher's layering order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	zcerrors "github.com/joyshmitz/zeroclaw/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BackendType selects the memory backend implementation.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendBolt   BackendType = "bolt"
)

// LogConfig mirrors internal/log.Config in YAML-friendly form.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// BackendConfig selects and configures the memory backend.
type BackendConfig struct {
	Type BackendType `yaml:"type"`
	// Path is the bbolt database file path. Required when Type is "bolt".
	Path string `yaml:"path,omitempty"`
}

// HealthConfig configures the health-state flusher.
type HealthConfig struct {
	StatePath string `yaml:"state_path"`
}

// Config is the complete zeroclawd daemon configuration.
type Config struct {
	// Listen is reported in zeroclawd's startup log only; the MCP server
	// is served over stdio whatever its value.
	Listen string `yaml:"listen,omitempty"`

	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Health  HealthConfig  `yaml:"health"`

	// CatalogDir is a directory of SOP definitions; every *.yaml / *.yml
	// file directly under it is loaded.
	CatalogDir string `yaml:"catalog_dir"`

	// SupervisorInitialBackoff and SupervisorMaxBackoff bound the Component
	// Supervisor's restart delay for every supervised component.
	SupervisorInitialBackoff time.Duration `yaml:"supervisor_initial_backoff,omitempty"`
	SupervisorMaxBackoff     time.Duration `yaml:"supervisor_max_backoff,omitempty"`
}

// Default returns a Config with the teacher's conservative zero-config
// defaults: in-memory backend, no catalogue directory, JSON logging.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Backend: BackendConfig{
			Type: BackendMemory,
		},
		Health: HealthConfig{
			StatePath: "./zeroclaw-state/daemon_state.json",
		},
		SupervisorInitialBackoff: time.Second,
		SupervisorMaxBackoff:     30 * time.Second,
	}
}

// Load reads configuration from configPath (if non-empty), applies defaults
// to any zero-valued fields, overrides with environment variables and
// validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &zcerrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to load from %s", configPath), Cause: err}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &zcerrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// applyDefaults fills zero-valued fields so a minimal config file (e.g. just
// catalog_dir) still produces a fully usable Config.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Backend.Type == "" {
		c.Backend.Type = d.Backend.Type
	}
	if c.Health.StatePath == "" {
		c.Health.StatePath = d.Health.StatePath
	}
	if c.SupervisorInitialBackoff == 0 {
		c.SupervisorInitialBackoff = d.SupervisorInitialBackoff
	}
	if c.SupervisorMaxBackoff == 0 {
		c.SupervisorMaxBackoff = d.SupervisorMaxBackoff
	}
}

// loadFromEnv overrides file-based values with environment variables, which
// always win.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("ZEROCLAW_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ZEROCLAW_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ZEROCLAW_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("ZEROCLAW_BACKEND"); v != "" {
		c.Backend.Type = BackendType(strings.ToLower(v))
	}
	if v := os.Getenv("ZEROCLAW_BACKEND_PATH"); v != "" {
		c.Backend.Path = v
	}
	if v := os.Getenv("ZEROCLAW_CATALOG_DIR"); v != "" {
		c.CatalogDir = v
	}
	if v := os.Getenv("ZEROCLAW_HEALTH_STATE_PATH"); v != "" {
		c.Health.StatePath = v
	}
	if v := os.Getenv("ZEROCLAW_SUPERVISOR_INITIAL_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SupervisorInitialBackoff = d
		}
	}
	if v := os.Getenv("ZEROCLAW_SUPERVISOR_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SupervisorMaxBackoff = d
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Backend.Type {
	case BackendMemory:
		// no further constraints
	case BackendBolt:
		if c.Backend.Path == "" {
			errs = append(errs, "backend.path is required when backend.type is \"bolt\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.type must be one of [memory, bolt], got %q", c.Backend.Type))
	}

	if c.SupervisorInitialBackoff <= 0 {
		errs = append(errs, "supervisor_initial_backoff must be positive")
	}
	if c.SupervisorMaxBackoff < c.SupervisorInitialBackoff {
		errs = append(errs, "supervisor_max_backoff must be >= supervisor_initial_backoff")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}

// ParseBool mirrors the teacher's permissive env-var boolean parsing: it
// returns true for the forms strconv.ParseBool accepts as true ("1", "t",
// "T", "true", "TRUE", "True") and false for anything else.
func ParseBool(val string) bool {
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return false
}
