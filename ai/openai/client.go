// Package openai speaks the OpenAI chat-completions dialect. OpenRouter,
// Ollama and most self-hosted gateways accept the same request shape.
package openai

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
	// DefaultBaseURL is the OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// maxReplyBytes bounds a single completion body.
	maxReplyBytes = 8 << 20
)

// Client sends single-attempt chat completions.
type Client struct {
	provider   string
	params     llm.Params
	baseURL    string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// Config holds client configuration.
type Config struct {
	// Provider labels the dialect in logs and errors (openai, custom, openrouter, local).
	Provider string
	llm.Params
	HTTPClient *httpclient.SaferClient
	Logger     *zap.SugaredLogger // nil = nop logger
}

// NewClient creates a client. An empty BaseURL selects DefaultBaseURL.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.New(0, httpclient.Options{})
	}

	return &Client{
		provider:   cfg.Provider,
		params:     cfg.Params,
		baseURL:    baseURL,
		httpClient: hc,
		logger:     logger,
	}
}

// ChatCompletionRequest is the request body of /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the subset of the reply we read.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Choice is a completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token usage as reported by the service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider implements llm.Sender.
func (c *Client) Provider() string { return c.provider }

// Model implements llm.Sender.
func (c *Client) Model() string { return c.params.Model }

// Send posts prompt as a single user message.
func (c *Client) Send(ctx context.Context, prompt string) (*llm.Reply, error) {
	body, err := json.Marshal(ChatCompletionRequest{
		Model:       c.params.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create request"), errors.ErrConfig)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.params.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.params.APIKey)
	}
	if c.provider == "openrouter" {
		req.Header.Set("X-Title", "tabula")
	}

	c.logger.Debugw("chat completion request", "provider", c.provider, "model", c.params.Model, "prompt", prompt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyTransport(c.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, llm.ClassifyTransport(c.provider, errors.Wrap(err, "failed to read response"))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llm.ClassifyStatus(c.provider, resp.StatusCode, respBody)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s returned undecodable body", c.provider), errors.ErrTransientService)
	}
	if chatResp.Error != nil {
		return nil, llm.ClassifyStatus(c.provider, resp.StatusCode, []byte(chatResp.Error.Message))
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.Mark(errors.Newf("no choices in %s reply", c.provider), errors.ErrTransientService)
	}

	text := chatResp.Choices[0].Message.Content
	c.logger.Debugw("chat completion reply", "provider", c.provider, "reply", text)

	reply := &llm.Reply{Text: text}
	if u := chatResp.Usage; u != nil {
		reply.Usage = &llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return reply, nil
}
