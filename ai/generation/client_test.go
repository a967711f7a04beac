package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/ai/openai"
	"github.com/teranos/tabula/ai/tracker"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/internal/httpclient"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/telemetry"
)

// scriptedSender replays one result per attempt.
type scriptedSender struct {
	mu      sync.Mutex
	results []error
	replies []string
	calls   int
}

func (s *scriptedSender) Provider() string { return "fake" }
func (s *scriptedSender) Model() string    { return "fake-model" }

func (s *scriptedSender) Send(ctx context.Context, prompt string) (*llm.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return nil, s.results[i]
	}
	text := "a,b\n1,2"
	if i < len(s.replies) {
		text = s.replies[i]
	}
	return &llm.Reply{Text: text, Usage: &llm.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}}, nil
}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

type memoryRecorder struct {
	calls []tracker.Call
}

func (m *memoryRecorder) Track(ctx context.Context, call tracker.Call) error {
	m.calls = append(m.calls, call)
	return nil
}

func transient(msg string) error {
	return errors.Mark(errors.New(msg), errors.ErrTransientService)
}

func newClient(sender llm.Sender, maxRetries int, opts ...Option) (*Client, *recordingSleeper) {
	s := &recordingSleeper{}
	cfg := Config{
		MaxRetries:        maxRetries,
		BackoffUnit:       time.Second,
		RateLimitCooldown: 60 * time.Second,
	}
	return New(sender, cfg, append([]Option{WithSleeper(s.sleep)}, opts...)...), s
}

func TestCall_FirstAttemptSucceeds(t *testing.T) {
	sender := &scriptedSender{}
	c, sleeper := newClient(sender, 3)

	res, err := c.Call(context.Background(), 0, "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", res.Text)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, sleeper.waits)
}

func TestCall_BackoffDoublesAndSkipsFinalWait(t *testing.T) {
	sender := &scriptedSender{results: []error{transient("1"), transient("2"), transient("3"), transient("4")}}
	c, sleeper := newClient(sender, 4)

	res, err := c.Call(context.Background(), 4, "prompt", nil)
	require.Error(t, err)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 4, sender.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.waits)

	assert.True(t, errors.Is(err, errors.ErrChunkExhausted))
	assert.Equal(t, "chunk_exhausted", errors.Category(err))
	assert.Contains(t, err.Error(), "chunk 5: retry budget exhausted after 4 attempts")
}

func TestCall_RateLimitAddsCooldown(t *testing.T) {
	limited := errors.Mark(errors.New("429"), errors.ErrRateLimited)
	sender := &scriptedSender{results: []error{limited, limited}}
	metrics := telemetry.NewMetrics()
	c, sleeper := newClient(sender, 3, WithMetrics(metrics))

	res, err := c.Call(context.Background(), 0, "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{61 * time.Second, 62 * time.Second}, sleeper.waits)
}

func TestCall_RateLimitOnFinalAttemptDoesNotWait(t *testing.T) {
	limited := errors.Mark(errors.New("429"), errors.ErrRateLimited)
	sender := &scriptedSender{results: []error{limited}}
	c, sleeper := newClient(sender, 1)

	_, err := c.Call(context.Background(), 0, "prompt", nil)
	require.Error(t, err)
	assert.Empty(t, sleeper.waits)
}

func TestCall_RejectedReplyIsRetried(t *testing.T) {
	sender := &scriptedSender{replies: []string{"bad", "bad", "good"}}
	c, sleeper := newClient(sender, 3)

	var seen []string
	accept := func(reply string) error {
		seen = append(seen, reply)
		if reply != "good" {
			return errors.New("missing columns")
		}
		return nil
	}

	res, err := c.Call(context.Background(), 0, "prompt", accept)
	require.NoError(t, err)
	assert.Equal(t, "good", res.Text)
	assert.Equal(t, []string{"bad", "bad", "good"}, seen)
	assert.Len(t, sleeper.waits, 2)
}

func TestCall_RejectionsExhaustBudget(t *testing.T) {
	sender := &scriptedSender{}
	c, _ := newClient(sender, 2)

	_, err := c.Call(context.Background(), 1, "prompt", func(string) error {
		return errors.New("missing columns: score")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResponseFormat))
	assert.True(t, errors.Is(err, errors.ErrChunkExhausted))
	assert.Contains(t, err.Error(), "missing columns: score")
}

func TestCall_ConfigErrorStopsEarly(t *testing.T) {
	sender := &scriptedSender{results: []error{errors.Wrap(httpclient.ErrBlocked, "private IP address 10.0.0.1")}}
	c, sleeper := newClient(sender, 5)

	res, err := c.Call(context.Background(), 0, "prompt", nil)
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, "config", errors.Category(err))
}

func TestCall_UnauthorizedStopsEarly(t *testing.T) {
	sender := &scriptedSender{results: []error{llm.ClassifyStatus("fake", http.StatusUnauthorized, []byte("invalid api key"))}}
	c, sleeper := newClient(sender, 4)

	res, err := c.Call(context.Background(), 2, "prompt", nil)
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, sender.calls)
	assert.Empty(t, sleeper.waits)
	assert.True(t, errors.Is(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "chunk 3: retry budget exhausted after 1 attempts")
}

func TestCall_UnclassifiedErrorStopsEarly(t *testing.T) {
	sender := &scriptedSender{results: []error{errors.New("marshal request: unsupported value")}}
	c, sleeper := newClient(sender, 3)

	res, err := c.Call(context.Background(), 0, "prompt", nil)
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, sleeper.waits)
	assert.True(t, errors.Is(err, errors.ErrChunkExhausted))
}

func TestCall_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &scriptedSender{results: []error{transient("1"), transient("2")}}
	c := New(sender, Config{MaxRetries: 3, BackoffUnit: time.Hour})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := c.Call(ctx, 0, "prompt", nil)
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCall_TracksEveryAttempt(t *testing.T) {
	sender := &scriptedSender{results: []error{transient("503")}}
	rec := &memoryRecorder{}
	c, _ := newClient(sender, 3, WithTracker(rec))

	ctx := logger.WithRunID(context.Background(), "run-42")
	_, err := c.Call(ctx, 2, "héllo", nil)
	require.NoError(t, err)

	require.Len(t, rec.calls, 2)
	first, second := rec.calls[0], rec.calls[1]

	assert.Equal(t, "run-42", first.RunID)
	assert.Equal(t, 2, first.ChunkIndex)
	assert.Equal(t, 1, first.Attempt)
	assert.False(t, first.Success)
	assert.Equal(t, "transient_service", first.ErrorCategory)
	assert.Equal(t, 5, first.PromptChars)
	assert.Nil(t, first.TotalTokens)

	assert.Equal(t, 2, second.Attempt)
	assert.True(t, second.Success)
	require.NotNil(t, second.TotalTokens)
	assert.Equal(t, 3, *second.TotalTokens)
	assert.Equal(t, "fake", second.Provider)
	assert.Equal(t, "fake-model", second.Model)
}

func TestCall_PerAttemptTimeoutIsTransient(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x,y\n1,2"}}]}`))
	}))
	defer server.Close()

	sender := openai.NewClient(openai.Config{
		Params:     llm.Params{Model: "m", APIKey: "k", BaseURL: server.URL},
		HTTPClient: httpclient.WrapClient(server.Client()),
	})
	sleeper := &recordingSleeper{}
	c := New(sender, Config{MaxRetries: 2, Timeout: 50 * time.Millisecond}, WithSleeper(sleeper.sleep))

	res, err := c.Call(context.Background(), 0, "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, strings.HasPrefix(res.Text, "x,y"))
	assert.Equal(t, []time.Duration{time.Second}, sleeper.waits)
}

func TestBackoff(t *testing.T) {
	c := New(&scriptedSender{}, Config{MaxRetries: 3, BackoffUnit: 10 * time.Millisecond, RateLimitCooldown: time.Second})
	assert.Equal(t, 10*time.Millisecond, c.Backoff(0, false))
	assert.Equal(t, 40*time.Millisecond, c.Backoff(2, false))
	assert.Equal(t, time.Second+20*time.Millisecond, c.Backoff(1, true))
}

func TestPacing(t *testing.T) {
	sender := &scriptedSender{}
	c := New(sender, Config{MaxRetries: 1, RequestsPerMinute: 600})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), i, "p", nil)
		require.NoError(t, err)
	}
	// 10 per second with a burst of one: the third call waits ~200ms.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
