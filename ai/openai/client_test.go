package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/internal/httpclient"
)

func newTestClient(t *testing.T, provider string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		Provider: provider,
		Params: llm.Params{
			Model:       "gpt-4o-mini",
			APIKey:      "test-key",
			BaseURL:     server.URL + "/v1/",
			Temperature: 0.1,
			MaxTokens:   512,
		},
		HTTPClient: httpclient.WrapClient(server.Client()),
	})
}

func TestSend_Success(t *testing.T) {
	client := newTestClient(t, "custom", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Title"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)
		assert.Equal(t, 512, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[0].Content)

		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: "a,b\n1,2"}}},
			Usage:   &Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
		})
	})

	reply, err := client.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", reply.Text)
	require.NotNil(t, reply.Usage)
	assert.Equal(t, 12, reply.Usage.TotalTokens)
	assert.Equal(t, "custom", client.Provider())
	assert.Equal(t, "gpt-4o-mini", client.Model())
}

func TestSend_OpenRouterTitle(t *testing.T) {
	client := newTestClient(t, "openrouter", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tabula", r.Header.Get("X-Title"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	})

	reply, err := client.Send(context.Background(), "p")
	require.NoError(t, err)
	assert.Nil(t, reply.Usage)
}

func TestSend_NoKeyNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		Provider:   "local",
		Params:     llm.Params{Model: "llama3", BaseURL: server.URL},
		HTTPClient: httpclient.WrapClient(server.Client()),
	})
	_, err := client.Send(context.Background(), "p")
	require.NoError(t, err)
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, errors.ErrRateLimited},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
		}, errors.ErrTransientService},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}, errors.ErrTransientService},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}, errors.ErrTransientService},
		{"error object with 200", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded: free-models-per-min"}}`))
		}, errors.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, "openai", tt.handler)
			_, err := client.Send(context.Background(), "p")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %s: %v", errors.Category(err), err)
		})
	}
}

func TestSend_Timeout(t *testing.T) {
	client := newTestClient(t, "openai", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransientService))
	assert.True(t, llm.IsTimeout(err))
}

func TestSend_BlockedDestination(t *testing.T) {
	client := NewClient(Config{
		Params:     llm.Params{Model: "m", APIKey: "k", BaseURL: "http://169.254.169.254/v1"},
		HTTPClient: httpclient.New(time.Second, httpclient.Options{BlockPrivateIP: true}),
	})

	_, err := client.Send(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}
