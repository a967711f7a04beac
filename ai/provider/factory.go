// Package provider selects the generation-service dialect for a run.
package provider

import (
	"go.uber.org/zap"

	"github.com/teranos/tabula/ai/anthropic"
	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/ai/openai"
	"github.com/teranos/tabula/internal/httpclient"
	"github.com/teranos/tabula/processing"
)

// Well-known endpoints for the OpenAI-compatible providers.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	LocalBaseURL      = "http://localhost:11434/v1"
)

// Options carry the request parameters that are not part of a spec.
type Options struct {
	Temperature float64
	MaxTokens   int
	HTTPClient  *httpclient.SaferClient
	Logger      *zap.SugaredLogger
}

// New returns the Sender for spec.Provider. Unrecognised providers fall
// back to the OpenAI-compatible dialect at the spec's base URL.
func New(spec *processing.Spec, opts Options) llm.Sender {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	params := llm.Params{
		Model:       spec.Model,
		APIKey:      spec.APIKey,
		BaseURL:     spec.APIBaseURL,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	switch spec.Provider {
	case processing.ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{Params: params, HTTPClient: opts.HTTPClient, Logger: logger})
	case processing.ProviderOpenRouter:
		params.BaseURL = orDefault(params.BaseURL, OpenRouterBaseURL)
	case processing.ProviderLocal:
		params.BaseURL = orDefault(params.BaseURL, LocalBaseURL)
	case processing.ProviderOpenAI, processing.ProviderCustom:
	default:
		logger.Warnw("unknown provider, using OpenAI-compatible dialect",
			"provider", spec.Provider, "base_url", params.BaseURL)
	}

	return openai.NewClient(openai.Config{
		Provider:   spec.Provider,
		Params:     params,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Descriptor summarises one supported provider.
type Descriptor struct {
	Name           string `json:"name"`
	Dialect        string `json:"dialect"`
	DefaultBaseURL string `json:"default_base_url,omitempty"`
	RequiresAPIKey bool   `json:"requires_api_key"`
	RequiresURL    bool   `json:"requires_base_url"`
}

// Catalog lists the providers New understands.
func Catalog() []Descriptor {
	return []Descriptor{
		{Name: processing.ProviderOpenAI, Dialect: "openai", DefaultBaseURL: openai.DefaultBaseURL, RequiresAPIKey: true},
		{Name: processing.ProviderCustom, Dialect: "openai", RequiresAPIKey: true, RequiresURL: true},
		{Name: processing.ProviderOpenRouter, Dialect: "openai", DefaultBaseURL: OpenRouterBaseURL, RequiresAPIKey: true},
		{Name: processing.ProviderLocal, Dialect: "openai", DefaultBaseURL: LocalBaseURL},
		{Name: processing.ProviderAnthropic, Dialect: "anthropic", DefaultBaseURL: anthropic.BaseURL, RequiresAPIKey: true},
	}
}
