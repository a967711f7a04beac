package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"http://127.0.0.1",
	})
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("database.path", "tabula.db")

	v.SetDefault("artifacts.dir", "")
	v.SetDefault("artifacts.format", "csv")
	v.SetDefault("artifacts.retention_hours", 24)

	v.SetDefault("limits.max_chunk_chars", 3000)
	v.SetDefault("limits.max_prompt_chars", 8000)
	v.SetDefault("limits.prompt_sample_rows", 5)
	v.SetDefault("limits.preview_rows", 10)

	v.SetDefault("generation.backoff_unit", DefaultBackoffUnit)
	v.SetDefault("generation.rate_limit_cooldown", DefaultRateLimitCooldown)
	v.SetDefault("generation.requests_per_minute", 0)
	v.SetDefault("generation.temperature", DefaultTemperature)
	v.SetDefault("generation.max_tokens", DefaultMaxTokens)
	v.SetDefault("generation.block_private_ip", false)

	v.SetDefault("log.json", false)
}
