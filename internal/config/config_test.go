package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/activesave/internal/tracing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, "global", cfg.Scope)
	require.Equal(t, BackendSQLite, cfg.Cache.Backend)
	require.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 30*time.Second, cfg.Submit.Timeout)
	require.Equal(t, "X-Responded-JSON", cfg.Submit.StatusHeader)
	require.Equal(t, 5*time.Second, cfg.Unload.Timeout)
	require.True(t, cfg.Validation.Enabled)
	require.False(t, cfg.Tracing.Enabled)
	require.NotNil(t, cfg.Flags)
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigTemplate_Decodes(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(DefaultConfigTemplate())))

	cfg := Defaults()
	cfg.Cache.TTL = 0
	cfg.Submit.Timeout = 0
	require.NoError(t, v.Unmarshal(&cfg))

	require.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 30*time.Second, cfg.Submit.Timeout)
	require.Equal(t, 5*time.Second, cfg.Unload.Timeout)
	require.Equal(t, "sqlite", cfg.Cache.Backend)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "memory backend needs no path", mutate: func(c *Config) { c.Cache = CacheConfig{Backend: BackendMemory} }},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: "cache.backend"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Cache.Path = "" }, wantErr: "cache.path is required"},
		{name: "leveldb without path", mutate: func(c *Config) { c.Cache = CacheConfig{Backend: BackendLevelDB} }, wantErr: "cache.path is required"},
		{name: "negative ttl", mutate: func(c *Config) { c.Cache.TTL = -time.Second }, wantErr: "cache.ttl"},
		{name: "relative base url", mutate: func(c *Config) { c.BaseURL = "/app" }, wantErr: "base_url must be absolute"},
		{name: "absolute base url", mutate: func(c *Config) { c.BaseURL = "https://example.com/app/" }},
		{name: "negative submit timeout", mutate: func(c *Config) { c.Submit.Timeout = -1 }, wantErr: "submit.timeout"},
		{name: "negative unload timeout", mutate: func(c *Config) { c.Unload.Timeout = -1 }, wantErr: "unload.timeout"},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "warn log level", mutate: func(c *Config) { c.LogLevel = "warn" }},
		{name: "bad sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = 1.5 }, wantErr: "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Cache.Path = "/tmp/cache.db"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateTracing(t *testing.T) {
	require.NoError(t, ValidateTracing(tracing.Config{}))
	require.NoError(t, ValidateTracing(tracing.Config{Enabled: true, Exporter: "otlp"}))
	require.ErrorContains(t, ValidateTracing(tracing.Config{Exporter: "zipkin"}), "tracing.exporter")
	require.ErrorContains(t, ValidateTracing(tracing.Config{Enabled: true, Exporter: "file"}), "file_path is required")
	require.NoError(t, ValidateTracing(tracing.Config{Enabled: false, Exporter: "file"}))
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
