package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "/rest/v1", cfg.Supabase.CollectionPath)
	assert.Equal(t, "*", cfg.Supabase.Select)
	assert.Equal(t, 1000, cfg.Supabase.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Supabase.Timeout)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "assets", cfg.AssetsDir)
	assert.Equal(t, 3, cfg.Download.Retries)
	assert.Equal(t, 1500*time.Millisecond, cfg.Download.Backoff)
	assert.Equal(t, time.Duration(0), cfg.Download.Delay)
	assert.False(t, cfg.Download.Force)
	assert.Equal(t, 1, cfg.Download.Parallel)
	assert.Empty(t, cfg.Web.BindAddress)
	assert.Empty(t, cfg.Tables)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SUPABASE_KEY", "secret")
	t.Setenv("SUPABASE_PAGE_SIZE", "250")
	t.Setenv("TABLES", "RoleConfig,SkillConfig")
	t.Setenv("DOWNLOAD_BACKOFF", "2s")
	t.Setenv("DOWNLOAD_FORCE", "true")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Supabase.Key)
	assert.Equal(t, 250, cfg.Supabase.PageSize)
	assert.Equal(t, []string{"RoleConfig", "SkillConfig"}, cfg.Tables)
	assert.Equal(t, 2*time.Second, cfg.Download.Backoff)
	assert.True(t, cfg.Download.Force)
	assert.Equal(t, "127.0.0.1:9090", cfg.Web.BindAddress)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("DOWNLOAD_RETRIES", "many")

	_, err := LoadConfig()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "env", cfgErr.Field)
}

func TestRequireSupabase(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing key", func(c *Config) { c.Supabase.Key = "" }, "SUPABASE_KEY"},
		{"missing url", func(c *Config) { c.Supabase.URL = " " }, "SUPABASE_URL"},
		{"zero page size", func(c *Config) { c.Supabase.PageSize = 0 }, "SUPABASE_PAGE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Supabase.URL = "https://example.supabase.co"
			cfg.Supabase.Key = "key"
			cfg.Supabase.PageSize = 1000
			tt.mutate(cfg)

			err := cfg.RequireSupabase()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}

func TestConfigurationError_Error(t *testing.T) {
	err := &ConfigurationError{Field: "manifest", Reason: "missing"}
	assert.Equal(t, "configuration error for manifest: missing", err.Error())

	cause := errors.New("boom")
	wrapped := &ConfigurationError{Field: "env", Reason: "bad", Err: cause}
	assert.Equal(t, "configuration error for env: bad: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}
