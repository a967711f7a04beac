package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.MaxUploadMB)
	assert.Equal(t, "tabula.db", cfg.Database.Path)
	assert.Equal(t, "csv", cfg.Artifacts.Format)
	assert.Equal(t, 3000, cfg.Limits.MaxChunkChars)
	assert.Equal(t, 8000, cfg.Limits.MaxPromptChars)
	assert.Equal(t, 5, cfg.Limits.PromptSampleRows)
	assert.Equal(t, time.Second, cfg.Generation.BackoffUnit)
	assert.Equal(t, 60*time.Second, cfg.Generation.RateLimitCooldown)
	assert.InDelta(t, 0.1, cfg.Generation.Temperature, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabula.toml")
	content := `
[server]
port = 9100

[artifacts]
format = "xlsx"

[generation]
backoff_unit = "250ms"
requests_per_minute = 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "xlsx", cfg.Artifacts.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.BackoffUnit)
	assert.Equal(t, 30, cfg.Generation.RequestsPerMinute)
	// untouched sections keep their defaults
	assert.Equal(t, 8000, cfg.Limits.MaxPromptChars)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	dir := t.TempDir()
	low := filepath.Join(dir, "system.toml")
	high := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(low, []byte("[server]\nport = 7000\nmax_upload_mb = 5\n"), DefaultFilePermissions))
	require.NoError(t, os.WriteFile(high, []byte("[server]\nport = 7001\n"), DefaultFilePermissions))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{low, filepath.Join(dir, "missing.toml"), high})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.MaxUploadMB)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TABULA_LIMITS_MAX_PROMPT_CHARS", "12000")

	cfg, err := LoadWithViper(New())
	require.NoError(t, err)
	assert.Equal(t, 12000, cfg.Limits.MaxPromptChars)
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, DefaultDirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(""), DefaultFilePermissions))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	found := findProjectConfig()
	require.NotEmpty(t, found)
	assert.Equal(t, ProjectConfigName, filepath.Base(found))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		require.NoError(t, err)
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"unknown artifact format", func(c *Config) { c.Artifacts.Format = "parquet" }, true},
		{"zero retention keeps forever", func(c *Config) { c.Artifacts.RetentionHours = 0 }, false},
		{"negative retention", func(c *Config) { c.Artifacts.RetentionHours = -1 }, true},
		{"zero chunk budget", func(c *Config) { c.Limits.MaxChunkChars = 0 }, true},
		{"zero rpm is unlimited", func(c *Config) { c.Generation.RequestsPerMinute = 0 }, false},
		{"negative rpm", func(c *Config) { c.Generation.RequestsPerMinute = -5 }, true},
		{"zero backoff allowed", func(c *Config) { c.Generation.BackoffUnit = 0 }, false},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 3 }, true},
		{"zero max tokens", func(c *Config) { c.Generation.MaxTokens = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
