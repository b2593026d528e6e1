// Package config provides configuration types and defaults for activesave.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/activesave/internal/keys"
	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/tracing"
)

// Cache backends.
const (
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Config holds all configuration options for activesave.
type Config struct {
	// Scope is the namespace scope used when a command does not pass --scope.
	Scope string `mapstructure:"scope" yaml:"scope"`
	// BaseURL resolves relative form actions.
	BaseURL    string           `mapstructure:"base_url" yaml:"base_url"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Submit     SubmitConfig     `mapstructure:"submit" yaml:"submit"`
	Unload     UnloadConfig     `mapstructure:"unload" yaml:"unload"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	Tracing    tracing.Config   `mapstructure:"tracing" yaml:"tracing"`
	Flags      map[string]bool  `mapstructure:"flags" yaml:"flags"`
	Debug      bool             `mapstructure:"debug" yaml:"debug"`
	LogFile    string           `mapstructure:"log_file" yaml:"log_file"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
}

// CacheConfig selects where namespaces are stored.
type CacheConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "sqlite" (default), "leveldb" or "memory"
	Path    string `mapstructure:"path" yaml:"path"`
	// TTL bounds how long a namespace stays in the in-memory read cache.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// SubmitConfig configures form submission.
type SubmitConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StatusHeader string        `mapstructure:"status_header" yaml:"status_header"`
}

// UnloadConfig configures the unload workflow.
type UnloadConfig struct {
	// Timeout bounds how long unload waits for in-flight submissions.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ValidationConfig toggles required/data-rule checks before submission.
type ValidationConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ConfigDir returns ~/.config/activesave or empty string if home dir unavailable.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "activesave")
}

// DefaultCachePath returns the default sqlite database location.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".activesave", "cache.db")
}

// DefaultTracesFilePath returns ~/.config/activesave/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		Scope: keys.DefaultScope,
		Cache: CacheConfig{
			Backend: BackendSQLite,
			Path:    DefaultCachePath(),
			TTL:     10 * time.Minute,
		},
		Submit: SubmitConfig{
			Timeout:      30 * time.Second,
			StatusHeader: "X-Responded-JSON",
		},
		Unload: UnloadConfig{
			Timeout: 5 * time.Second,
		},
		Validation: ValidationConfig{Enabled: true},
		Tracing:    tr,
		Flags:      map[string]bool{},
		LogLevel:   "debug",
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := ValidateCache(c.Cache); err != nil {
		return err
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url is invalid: %w", err)
		}
		if !u.IsAbs() {
			return fmt.Errorf("base_url must be absolute, got %q", c.BaseURL)
		}
	}
	if c.Submit.Timeout < 0 {
		return fmt.Errorf("submit.timeout must not be negative, got %v", c.Submit.Timeout)
	}
	if c.Unload.Timeout < 0 {
		return fmt.Errorf("unload.timeout must not be negative, got %v", c.Unload.Timeout)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(cache CacheConfig) error {
	switch cache.Backend {
	case BackendSQLite, BackendLevelDB:
		if cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %q backend", cache.Backend)
		}
	case BackendMemory, "":
	default:
		return fmt.Errorf("cache.backend must be \"sqlite\", \"leveldb\", or \"memory\", got %q", cache.Backend)
	}
	if cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %v", cache.TTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tr tracing.Config) error {
	if tr.SampleRate < 0.0 || tr.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tr.SampleRate)
	}
	switch tr.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tr.Exporter)
	}
	if tr.Enabled && tr.Exporter == "file" && tr.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# activesave configuration

# Scope for cache namespaces when a form does not override it
scope: global

# Base URL that relative form actions resolve against
# base_url: https://app.example.com/

cache:
  backend: sqlite        # "sqlite" (default), "leveldb", or "memory"
  # path: ~/.activesave/cache.db
  ttl: 10m               # how long namespaces stay in the in-memory read cache

submit:
  timeout: 30s
  status_header: X-Responded-JSON   # optional {"status": N} reported by the server

unload:
  timeout: 5s            # how long unload waits for submissions when await-unload is on

validation:
  enabled: true          # check required and data-rule attributes before submitting

# Feature flags
# flags:
#   allow-duplicate-submissions: false
#   await-unload: false

# Debug logging (enable with --debug or debug: true)
# log_file: debug.log
# log_level: debug       # "debug", "info", "warn", or "error"

# Tracing
# tracing:
#   enabled: true
#   exporter: file       # "none", "file", "stdout", or "otlp"
#   file_path: ~/.config/activesave/traces/traces.jsonl
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
