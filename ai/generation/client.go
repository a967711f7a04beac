// Package generation drives a generation-service dialect through the
// per-chunk retry policy: exponential backoff, an extra cooldown after rate
// limiting, request pacing and a per-call timeout.
package generation

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/ai/tracker"
	"github.com/teranos/tabula/db"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/telemetry"
)

// Config is the retry policy of one run.
type Config struct {
	MaxRetries        int           // attempts per chunk, >= 1
	Timeout           time.Duration // per attempt; 0 disables
	BackoffUnit       time.Duration // wait after attempt n is 2^n units
	RateLimitCooldown time.Duration // added before the backoff after a rate limit
	RequestsPerMinute int           // 0 = unpaced
}

// Acceptor inspects a reply and rejects it with an error. A rejection is
// retried like a service failure.
type Acceptor func(reply string) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// CallRecorder persists attempts. *tracker.CallTracker satisfies it.
type CallRecorder interface {
	Track(ctx context.Context, call tracker.Call) error
}

// Result describes a finished Call.
type Result struct {
	Text     string
	Attempts int
}

// Client runs calls for a single pipeline run.
type Client struct {
	sender  llm.Sender
	cfg     Config
	limiter *rate.Limiter
	sleep   Sleeper
	calls   CallRecorder
	metrics *telemetry.Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithSleeper replaces the backoff wait. Tests use it to skip real sleeps.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithTracker records every attempt.
func WithTracker(r CallRecorder) Option {
	return func(c *Client) { c.calls = r }
}

// WithMetrics reports attempts to Prometheus.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client around sender.
func New(sender llm.Sender, cfg Config, opts ...Option) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}

	c := &Client{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Inf, 1),
		sleep:   sleepContext,
		logger:  logger.ComponentLogger("generation"),
		now:     time.Now,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backoff is the wait after a failed attempt (0-based) that is not the last.
func (c *Client) Backoff(attempt int, rateLimited bool) time.Duration {
	wait := time.Duration(1<<uint(attempt)) * c.cfg.BackoffUnit
	if rateLimited {
		wait += c.cfg.RateLimitCooldown
	}
	return wait
}

// Call sends prompt for the chunk at chunkIndex until accept takes a reply
// or the attempt budget runs out. The final attempt never waits. Exhaustion
// is marked errors.ErrChunkExhausted. Failures outside the retryable
// categories, such as a blocked destination or a 401, stop early.
func (c *Client) Call(ctx context.Context, chunkIndex int, prompt string, accept Acceptor) (Result, error) {
	log := logger.FromContext(ctx, c.logger).With(logger.FieldChunkIndex, chunkIndex)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = errors.Wrap(err, "waiting for request pacing")
			break
		}

		attempts++
		text, err := c.attempt(ctx, chunkIndex, attempt, prompt, accept)
		if err == nil {
			if attempt > 0 {
				log.Infow("Chunk succeeded after retries", logger.FieldAttempt, attempt+1)
			}
			return Result{Text: text, Attempts: attempts}, nil
		}
		lastErr = err

		log.Warnw("Generation attempt failed",
			logger.FieldAttempt, attempt+1,
			"max_attempts", c.cfg.MaxRetries,
			logger.FieldCategory, errors.Category(err),
			logger.FieldError, err.Error())

		if ctx.Err() != nil || !errors.IsRetryable(err) {
			break
		}
		if attempt == c.cfg.MaxRetries-1 {
			break
		}

		rateLimited := errors.Is(err, errors.ErrRateLimited)
		if rateLimited {
			c.metrics.RateLimited()
		}
		wait := c.Backoff(attempt, rateLimited)
		log.Debugw("Backing off", "wait", wait, "rate_limited", rateLimited)
		if err := c.sleep(ctx, wait); err != nil {
			break
		}
	}

	return Result{Attempts: attempts}, errors.Mark(
		errors.Wrapf(lastErr, "chunk %d: retry budget exhausted after %d attempts", chunkIndex+1, attempts),
		errors.ErrChunkExhausted)
}

func (c *Client) attempt(ctx context.Context, chunkIndex, attempt int, prompt string, accept Acceptor) (string, error) {
	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	started := c.now()
	reply, err := c.sender.Send(callCtx, prompt)
	elapsed := c.now().Sub(started)

	var text string
	if err == nil {
		text = reply.Text
		if accept != nil {
			if rejectErr := accept(text); rejectErr != nil {
				err = errors.Mark(rejectErr, errors.ErrResponseFormat)
			}
		}
	}

	c.report(ctx, chunkIndex, attempt, prompt, started, elapsed, reply, err)
	return text, err
}

func (c *Client) report(ctx context.Context, chunkIndex, attempt int, prompt string, started time.Time, elapsed time.Duration, reply *llm.Reply, err error) {
	provider := c.sender.Provider()

	outcome := "ok"
	if err != nil {
		outcome = errors.Category(err)
	}
	c.metrics.ObserveAttempt(provider, outcome, elapsed)

	call := tracker.Call{
		RunID:       logger.RunIDFromContext(ctx),
		ChunkIndex:  chunkIndex,
		Attempt:     attempt + 1,
		Provider:    provider,
		Model:       c.sender.Model(),
		RequestedAt: started,
		Duration:    elapsed,
		PromptChars: len([]rune(prompt)),
		Success:     err == nil,
	}
	if reply != nil {
		call.ReplyChars = len([]rune(reply.Text))
		if u := reply.Usage; u != nil {
			c.metrics.AddTokens(provider, u.PromptTokens, u.CompletionTokens)
			call.PromptTokens = &u.PromptTokens
			call.CompletionTokens = &u.CompletionTokens
			call.TotalTokens = &u.TotalTokens
		}
	}
	if err != nil {
		call.ErrorCategory = errors.Category(err)
		call.ErrorMessage = err.Error()
	}

	if c.calls == nil {
		return
	}
	// Record even when the run itself was cancelled.
	if trackErr := c.calls.Track(context.WithoutCancel(ctx), call); trackErr != nil && !db.IsDatabaseClosed(trackErr) {
		c.logger.Warnw("Failed to record generation call", logger.FieldError, trackErr.Error())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
