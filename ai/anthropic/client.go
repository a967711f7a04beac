// Package anthropic speaks the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/internal/httpclient"
)

const (
	// BaseURL is the Anthropic API endpoint
	BaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required Anthropic API version header
	APIVersion = "2023-06-01"

	// DefaultMaxTokens applies when the caller sets none; the API requires one.
	DefaultMaxTokens = 4096

	maxReplyBytes = 8 << 20
)

// Client represents an Anthropic API client
type Client struct {
	params     llm.Params
	baseURL    string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// Config holds Anthropic client configuration
type Config struct {
	llm.Params
	HTTPClient *httpclient.SaferClient
	Logger     *zap.SugaredLogger
}

// NewClient creates a new Anthropic API client
func NewClient(cfg Config) *Client {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.New(0, httpclient.Options{})
	}
	return &Client{params: cfg.Params, baseURL: baseURL, httpClient: hc, logger: logger}
}

// MessagesRequest represents a request to the Anthropic Messages API
type MessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// MessagesResponse represents the response from the Messages API
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider implements llm.Sender.
func (c *Client) Provider() string { return "anthropic" }

// Model implements llm.Sender.
func (c *Client) Model() string { return c.params.Model }

// Send posts prompt as a single user turn and joins the text blocks of the reply.
func (c *Client) Send(ctx context.Context, prompt string) (*llm.Reply, error) {
	reqBody, err := json.Marshal(MessagesRequest{
		Model:       c.params.Model,
		MaxTokens:   c.params.MaxTokens,
		Temperature: c.params.Temperature,
		Messages:    []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create request"), errors.ErrConfig)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.params.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	c.logger.Debugw("messages request", "model", c.params.Model, "prompt", prompt)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransport("anthropic", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, llm.ClassifyTransport("anthropic", errors.Wrap(err, "failed to read response"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, llm.ClassifyStatus("anthropic", resp.StatusCode, respBody)
	}

	var msgResp MessagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "anthropic returned undecodable body"), errors.ErrTransientService)
	}

	var content strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	c.logger.Debugw("messages reply", "reply", content.String(), "stop_reason", msgResp.StopReason)

	return &llm.Reply{
		Text: content.String(),
		Usage: &llm.Usage{
			PromptTokens:     msgResp.Usage.InputTokens,
			CompletionTokens: msgResp.Usage.OutputTokens,
			TotalTokens:      msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		},
	}, nil
}
