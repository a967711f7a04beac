package config

import "github.com/teranos/tabula/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.Newf("server.max_upload_mb must be > 0, got %d", c.Server.MaxUploadMB)
	}

	switch c.Artifacts.Format {
	case "csv", "xlsx":
	default:
		return errors.Newf("artifacts.format must be csv or xlsx, got %q", c.Artifacts.Format)
	}
	// 0 = keep forever
	if c.Artifacts.RetentionHours < 0 {
		return errors.Newf("artifacts.retention_hours must be >= 0, got %d", c.Artifacts.RetentionHours)
	}

	if c.Limits.MaxChunkChars <= 0 {
		return errors.Newf("limits.max_chunk_chars must be > 0, got %d", c.Limits.MaxChunkChars)
	}
	if c.Limits.MaxPromptChars <= 0 {
		return errors.Newf("limits.max_prompt_chars must be > 0, got %d", c.Limits.MaxPromptChars)
	}
	if c.Limits.PromptSampleRows <= 0 {
		return errors.Newf("limits.prompt_sample_rows must be > 0, got %d", c.Limits.PromptSampleRows)
	}
	if c.Limits.PreviewRows <= 0 {
		return errors.Newf("limits.preview_rows must be > 0, got %d", c.Limits.PreviewRows)
	}

	if c.Generation.BackoffUnit < 0 {
		return errors.Newf("generation.backoff_unit must be >= 0, got %s", c.Generation.BackoffUnit)
	}
	if c.Generation.RateLimitCooldown < 0 {
		return errors.Newf("generation.rate_limit_cooldown must be >= 0, got %s", c.Generation.RateLimitCooldown)
	}
	// 0 = unlimited
	if c.Generation.RequestsPerMinute < 0 {
		return errors.Newf("generation.requests_per_minute must be >= 0, got %d", c.Generation.RequestsPerMinute)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return errors.Newf("generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature)
	}
	if c.Generation.MaxTokens <= 0 {
		return errors.Newf("generation.max_tokens must be > 0, got %d", c.Generation.MaxTokens)
	}

	return nil
}
