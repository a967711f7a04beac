// Package processing defines the immutable configuration of one pipeline run.
package processing

import (
	"strings"
	"time"

	"github.com/teranos/tabula/errors"
)

// Provider names understood by the generation dialect factory.
const (
	ProviderOpenAI     = "openai"
	ProviderCustom     = "custom"
	ProviderOpenRouter = "openrouter"
	ProviderLocal      = "local"
	ProviderAnthropic  = "anthropic"
)

// Defaults applied when a spec omits the field.
const (
	DefaultProvider   = ProviderCustom
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 // seconds
)

// Bounds enforced by Validate.
const (
	MinChunkSize  = 1
	MaxChunkSize  = 1000
	MinMaxRetries = 1
	MaxMaxRetries = 10
	MinTimeout    = 5
	MaxTimeout    = 300
)

// ErrInvalidSpec marks every validation failure of a Spec.
var ErrInvalidSpec = errors.Sentinel("invalid processing spec", errors.ErrConfig)

// OutputField is the contract one output column must satisfy.
type OutputField struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	Description string `json:"description" yaml:"description" toml:"description"`
}

// Spec configures one pipeline run. Treat it as read-only once validated.
type Spec struct {
	ChunkSize       int           `json:"chunk_size" yaml:"chunk_size" toml:"chunk_size"`
	ProcessingLogic string        `json:"processing_logic" yaml:"processing_logic" toml:"processing_logic"`
	OutputSchema    []OutputField `json:"output_schema" yaml:"output_schema" toml:"output_schema"`
	Provider        string        `json:"llm_provider" yaml:"llm_provider" toml:"llm_provider"`
	Model           string        `json:"llm_model" yaml:"llm_model" toml:"llm_model"`
	APIKey          string        `json:"api_key" yaml:"api_key" toml:"api_key"`
	APIBaseURL      string        `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty" toml:"api_base_url,omitempty"`
	MaxRetries      int           `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	Timeout         int           `json:"timeout" yaml:"timeout" toml:"timeout"` // seconds
}

// ApplyDefaults fills zero-valued optional fields.
func (s *Spec) ApplyDefaults() {
	if strings.TrimSpace(s.Provider) == "" {
		s.Provider = DefaultProvider
	}
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	s.ProcessingLogic = strings.TrimSpace(s.ProcessingLogic)
}

// Validate reports the first invalid field. The error is marked errors.ErrConfig.
func (s *Spec) Validate() error {
	if s.ChunkSize < MinChunkSize || s.ChunkSize > MaxChunkSize {
		return invalid("chunk_size must be between %d and %d, got %d", MinChunkSize, MaxChunkSize, s.ChunkSize)
	}
	if strings.TrimSpace(s.ProcessingLogic) == "" {
		return invalid("processing_logic cannot be empty")
	}
	if len(s.OutputSchema) == 0 {
		return invalid("output_schema needs at least one field")
	}
	seen := make(map[string]bool, len(s.OutputSchema))
	for i, f := range s.OutputSchema {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return invalid("output_schema[%d].name cannot be blank", i)
		}
		if seen[name] {
			return invalid("output_schema has duplicate field %q", name)
		}
		seen[name] = true
	}
	if strings.TrimSpace(s.Model) == "" {
		return invalid("llm_model cannot be empty")
	}
	if s.Provider != ProviderLocal && strings.TrimSpace(s.APIKey) == "" {
		return invalid("api_key cannot be empty for provider %q", s.Provider)
	}
	if s.Provider == ProviderCustom && strings.TrimSpace(s.APIBaseURL) == "" {
		return invalid("api_base_url is required when llm_provider is %q", ProviderCustom)
	}
	if s.MaxRetries < MinMaxRetries || s.MaxRetries > MaxMaxRetries {
		return invalid("max_retries must be between %d and %d, got %d", MinMaxRetries, MaxMaxRetries, s.MaxRetries)
	}
	if s.Timeout < MinTimeout || s.Timeout > MaxTimeout {
		return invalid("timeout must be between %d and %d seconds, got %d", MinTimeout, MaxTimeout, s.Timeout)
	}
	return nil
}

// ColumnNames returns the output schema names in declaration order.
func (s *Spec) ColumnNames() []string {
	names := make([]string, len(s.OutputSchema))
	for i, f := range s.OutputSchema {
		names[i] = strings.TrimSpace(f.Name)
	}
	return names
}

// CallTimeout is the per-call generation timeout.
func (s *Spec) CallTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Redacted returns a copy safe to log or persist.
func (s Spec) Redacted() Spec {
	if s.APIKey != "" {
		s.APIKey = "***"
	}
	s.OutputSchema = append([]OutputField(nil), s.OutputSchema...)
	return s
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidSpec, format, args...)
}
