// Package config loads the shell configuration from
// ~/.config/pipesh/config.yaml, with PIPESH_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPrompt is printed before every read.
const DefaultPrompt = "> "

// EnvPrefix prefixes every environment override. Keys follow the field
// path, e.g. PIPESH_LOG_LEVEL or PIPESH_AUDIT_ENABLED.
const EnvPrefix = "PIPESH"

// Config holds the global pipesh configuration.
type Config struct {
	Prompt string      `yaml:"prompt"`
	Log    LogConfig   `yaml:"log"`
	Audit  AuditConfig `yaml:"audit"`
	Jobs   JobsConfig  `yaml:"jobs"`
}

// LogConfig controls the operational log. An empty Path disables it.
type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// AuditConfig controls the per-line audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// JobsConfig controls where detached jobs leave their pid files.
type JobsConfig struct {
	Dir string `yaml:"dir"`
}

var validLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Prompt: DefaultPrompt,
		Log: LogConfig{
			Level: "warn",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "pipesh", "audit.jsonl"),
		},
		Jobs: JobsConfig{
			Dir: defaultJobsDir(home),
		},
	}
}

func defaultJobsDir(home string) string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "pipesh", "jobs")
	}
	return filepath.Join(home, ".local", "share", "pipesh", "jobs")
}

// Load reads the config from the standard location, then applies
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from path, then applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	cfg.Log.Path = expandHome(cfg.Log.Path)
	cfg.Jobs.Dir = expandHome(cfg.Jobs.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Prompt == "" {
		return fmt.Errorf("config: prompt must not be empty")
	}
	level := strings.ToLower(c.Log.Level)
	for _, l := range validLevels {
		if level == l {
			return nil
		}
	}
	return fmt.Errorf("config: log.level %q: must be one of %s", c.Log.Level, strings.Join(validLevels, ", "))
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pipesh", "config.yaml")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}
