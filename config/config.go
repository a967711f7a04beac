// Package config loads tabula's service configuration from TOML files,
// TABULA_ environment variables and built-in defaults.
package config

import "time"

// Config represents the tabula service configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server" json:"server" yaml:"server" toml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts" json:"artifacts" yaml:"artifacts" toml:"artifacts"`
	Limits     LimitsConfig     `mapstructure:"limits" json:"limits" yaml:"limits" toml:"limits"`
	Generation GenerationConfig `mapstructure:"generation" json:"generation" yaml:"generation" toml:"generation"`
	Log        LogConfig        `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
}

// ServerConfig configures the HTTP collaborator
type ServerConfig struct {
	Port           int      `mapstructure:"port" json:"port" yaml:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb" toml:"max_upload_mb"`
}

// DatabaseConfig configures the SQLite ledger. An empty path disables it.
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
}

// ArtifactsConfig configures where result tables are written
type ArtifactsConfig struct {
	Dir            string `mapstructure:"dir" json:"dir" yaml:"dir" toml:"dir"`
	Format         string `mapstructure:"format" json:"format" yaml:"format" toml:"format"`                            // csv or xlsx
	RetentionHours int    `mapstructure:"retention_hours" json:"retention_hours" yaml:"retention_hours" toml:"retention_hours"` // 0 = keep forever
}

// LimitsConfig holds the pre-flight sizing budgets
type LimitsConfig struct {
	MaxChunkChars    int `mapstructure:"max_chunk_chars" json:"max_chunk_chars" yaml:"max_chunk_chars" toml:"max_chunk_chars"`
	MaxPromptChars   int `mapstructure:"max_prompt_chars" json:"max_prompt_chars" yaml:"max_prompt_chars" toml:"max_prompt_chars"`
	PromptSampleRows int `mapstructure:"prompt_sample_rows" json:"prompt_sample_rows" yaml:"prompt_sample_rows" toml:"prompt_sample_rows"`
	PreviewRows      int `mapstructure:"preview_rows" json:"preview_rows" yaml:"preview_rows" toml:"preview_rows"`
}

// GenerationConfig tunes calls to the generation service
type GenerationConfig struct {
	BackoffUnit       time.Duration `mapstructure:"backoff_unit" json:"backoff_unit" yaml:"backoff_unit" toml:"backoff_unit"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown" json:"rate_limit_cooldown" yaml:"rate_limit_cooldown" toml:"rate_limit_cooldown"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute" toml:"requests_per_minute"` // 0 = unlimited
	Temperature       float64       `mapstructure:"temperature" json:"temperature" yaml:"temperature" toml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	BlockPrivateIP    bool          `mapstructure:"block_private_ip" json:"block_private_ip" yaml:"block_private_ip" toml:"block_private_ip"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" json:"json" yaml:"json" toml:"json"`
}

// File and directory permissions
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// DefaultServerPort is the default HTTP port.
const DefaultServerPort = 8000

// Generation defaults, shared by SetDefaults and pipelines built without a
// loaded config.
const (
	DefaultBackoffUnit       = time.Second
	DefaultRateLimitCooldown = 60 * time.Second
	DefaultTemperature       = 0.1
	DefaultMaxTokens         = 4096
)
