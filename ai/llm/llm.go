// Package llm holds the contract shared by every generation-service dialect.
package llm

import "context"

// Usage is the token accounting reported by a service, when it reports any.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Reply is one completion.
type Reply struct {
	Text  string
	Usage *Usage
}

// Sender makes a single attempt against a generation service. Retrying is
// the caller's business.
type Sender interface {
	Send(ctx context.Context, prompt string) (*Reply, error)
	// Provider names the dialect for logs and the call ledger.
	Provider() string
	Model() string
}

// Params are the request parameters shared by all dialects.
type Params struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}
