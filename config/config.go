// Package config loads the agentsession configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".agentsession.yaml"

// Config holds the settings from .agentsession.yaml.
type Config struct {
	CLIPath        string   `yaml:"cli_path"`
	Model          string   `yaml:"model"`
	PermissionMode string   `yaml:"permission_mode"`
	RecordDir      string   `yaml:"record_dir"`
	LogDir         string   `yaml:"log_dir"`
	ExtraArgs      []string `yaml:"extra_args"`
	Approval       Approval `yaml:"approval"`
}

// Approval configures the tool permission round trip.
type Approval struct {
	// Enabled defaults to true when unset.
	Enabled      *bool         `yaml:"enabled"`
	SafeTools    []string      `yaml:"safe_tools"`
	Timeout      time.Duration `yaml:"timeout"`
	DetailBudget int           `yaml:"detail_budget"`
}

// IsEnabled reports whether approvals are requested through the hook.
func (a Approval) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

var permissionModes = map[string]bool{
	"default":           true,
	"acceptEdits":       true,
	"plan":              true,
	"bypassPermissions": true,
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		CLIPath:        "claude",
		PermissionMode: "default",
		Approval: Approval{
			Timeout:      120 * time.Second,
			DetailBudget: 400,
		},
	}
}

// Load reads FileName from dir. Returns the defaults if the file doesn't
// exist.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads the configuration at path. Returns the defaults if the
// file doesn't exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate checks values that would otherwise fail late, when the agent
// starts.
func (c *Config) Validate() error {
	if c.PermissionMode != "" && !permissionModes[c.PermissionMode] {
		return fmt.Errorf("unknown permission_mode %q", c.PermissionMode)
	}
	if c.Approval.Timeout < 0 {
		return fmt.Errorf("approval.timeout must not be negative")
	}
	if c.Approval.DetailBudget < 0 {
		return fmt.Errorf("approval.detail_budget must not be negative")
	}
	return nil
}
