// Package pipeline runs a processing spec over a delimited table: load,
// validate, chunk, prompt, generate, parse, aggregate. Chunks run one at a
// time in index order; a failing chunk degrades the result but never aborts
// the run.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/tabula/aggregate"
	"github.com/teranos/tabula/ai/generation"
	"github.com/teranos/tabula/ai/llm"
	"github.com/teranos/tabula/ai/provider"
	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/chunk"
	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/db"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/internal/httpclient"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/prompt"
	"github.com/teranos/tabula/response"
	"github.com/teranos/tabula/table"
	"github.com/teranos/tabula/telemetry"
)

// Default pre-flight budgets.
const (
	DefaultMaxChunkChars    = 3000
	DefaultMaxPromptChars   = 8000
	DefaultPromptSampleRows = 5
)

// Options wire a Pipeline to its collaborators. Zero Limits and Generation
// values fall back to the config defaults; everything else is optional.
type Options struct {
	Limits         config.LimitsConfig
	Generation     config.GenerationConfig
	ArtifactFormat string

	Artifacts *artifact.Store         // nil: the final table is not written
	Calls     generation.CallRecorder // nil: attempts are not recorded
	Runs      *RunStore               // nil: results are not persisted
	Metrics   *telemetry.Metrics
	Observer  Observer
	Logger    *zap.SugaredLogger

	// HTTPClient reaches the generation service. Built from
	// Generation.BlockPrivateIP when nil.
	HTTPClient *httpclient.SaferClient

	// NewSender overrides dialect selection.
	NewSender func(*processing.Spec) llm.Sender

	// Sleeper overrides the retry backoff wait.
	Sleeper generation.Sleeper

	// DownloadURL renders the artifact reference handed to callers.
	// Defaults to the artifact path.
	DownloadURL func(*artifact.Ref) string
}

// Source is the decoded input of a run.
type Source struct {
	Name string
	Text string
}

// Pipeline holds the wiring shared by runs. Per-run components are built
// fresh by every Run.
type Pipeline struct {
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a Pipeline, filling zero budgets and generation settings with
// defaults.
func New(opts Options) *Pipeline {
	if opts.Limits.MaxChunkChars <= 0 {
		opts.Limits.MaxChunkChars = DefaultMaxChunkChars
	}
	if opts.Limits.MaxPromptChars <= 0 {
		opts.Limits.MaxPromptChars = DefaultMaxPromptChars
	}
	if opts.Limits.PromptSampleRows <= 0 {
		opts.Limits.PromptSampleRows = DefaultPromptSampleRows
	}
	if opts.Generation.BackoffUnit <= 0 {
		opts.Generation.BackoffUnit = config.DefaultBackoffUnit
	}
	if opts.Generation.RateLimitCooldown <= 0 {
		opts.Generation.RateLimitCooldown = config.DefaultRateLimitCooldown
	}
	if opts.Generation.Temperature <= 0 {
		opts.Generation.Temperature = config.DefaultTemperature
	}
	if opts.Generation.MaxTokens <= 0 {
		opts.Generation.MaxTokens = config.DefaultMaxTokens
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = httpclient.New(0, httpclient.Options{BlockPrivateIP: opts.Generation.BlockPrivateIP})
	}
	if opts.DownloadURL == nil {
		opts.DownloadURL = func(ref *artifact.Ref) string { return ref.Path }
	}
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("pipeline")
	}
	return &Pipeline{opts: opts, logger: log}
}

// run is the state of one Run call.
type run struct {
	id      string
	source  string
	spec    *processing.Spec
	state   State
	started time.Time
	log     *zap.SugaredLogger
}

// Run executes spec over src and always returns a terminal Result.
// Cancelling ctx stops before the next chunk; unprocessed chunks are
// reported as failed.
func (p *Pipeline) Run(ctx context.Context, src Source, spec processing.Spec) *Result {
	r := &run{
		id:      uuid.NewString(),
		source:  src.Name,
		spec:    &spec,
		started: time.Now(),
	}
	ctx = logger.WithRunID(ctx, r.id)
	r.log = logger.FromContext(ctx, p.logger)

	p.opts.Metrics.RunStarted()
	result := p.execute(ctx, r, src)
	p.finish(ctx, r, result)
	return result
}

func (p *Pipeline) execute(ctx context.Context, r *run, src Source) *Result {
	p.transition(r, Loading)
	data, err := table.Load(src.Text)
	if err != nil {
		return p.fail(r, "Failed to load data", err)
	}
	r.log.Infow("Data loaded", logger.FieldRows, data.NumRows(), logger.FieldColumns, data.NumColumns())

	p.transition(r, Validating)
	r.spec.ApplyDefaults()
	if err := r.spec.Validate(); err != nil {
		return p.fail(r, "Spec validation failed", err)
	}
	if r.spec.APIBaseURL != "" {
		if _, err := p.opts.HTTPClient.ValidateURL(r.spec.APIBaseURL); err != nil {
			return p.fail(r, "Spec validation failed", errors.Wrap(err, "api_base_url"))
		}
	}
	builder := prompt.NewBuilder(r.spec)
	if err := p.preflight(data, builder, r.spec); err != nil {
		return p.fail(r, "Configuration check failed", err)
	}
	chunks, err := chunk.Split(data, r.spec.ChunkSize)
	if err != nil {
		return p.fail(r, "Configuration check failed", err)
	}
	if len(chunks) == 0 {
		return p.fail(r, "Failed to load data", table.ErrEmptyInput)
	}

	p.transition(r, Processing)
	columns := r.spec.ColumnNames()
	agg := aggregate.New(columns, len(chunks))
	parser := response.NewParser(columns, r.log)
	client := p.newClient(r)

	r.log.Infow("Processing chunks", logger.FieldTotalChunks, len(chunks), logger.FieldProvider, r.spec.Provider)
	for _, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		outcome := p.processChunk(ctx, client, builder, parser, c)
		if err := agg.Record(outcome); err != nil {
			r.log.Errorw("Failed to record chunk", logger.FieldChunkIndex, c.Index, logger.FieldError, err.Error())
		}
		p.opts.Metrics.ObserveChunk(outcome.OK())
		p.emitChunk(r, outcome, Progress{Total: len(chunks), Current: c.Number()})
	}
	for _, i := range agg.Pending() {
		reason := "run cancelled before chunk was processed"
		if err := agg.Record(chunk.Failed(i, reason, ctx.Err(), 0)); err != nil {
			r.log.Errorw("Failed to record chunk", logger.FieldChunkIndex, i, logger.FieldError, err.Error())
		}
	}

	p.transition(r, Aggregating)
	summary, err := agg.Finalize()
	result := &Result{
		RunID:              r.id,
		TotalChunks:        summary.TotalChunks,
		ProcessedChunks:    summary.Processed,
		FailedChunks:       summary.Failed,
		FailedChunkIndices: summary.FailedIndices,
		SuccessRate:        summary.SuccessRate,
	}
	if err != nil {
		return p.failWith(r, result, "Aggregation failed", err)
	}

	result.Success = true
	result.Table = summary.Table
	result.OutputRows = summary.Table.NumRows()
	result.Message = summaryMessage(result.OutputRows, summary.Processed, summary.Failed, summary.SuccessRate)
	p.saveArtifact(r, result)
	return result
}

// preflight checks the chunk size and the prompt length on a sample before
// any chunk is sent.
func (p *Pipeline) preflight(data *table.Table, builder *prompt.Builder, spec *processing.Spec) error {
	sizing, err := chunk.ValidateChunkSize(data, spec.ChunkSize, p.opts.Limits.MaxChunkChars)
	if err != nil {
		return err
	}
	if err := sizing.Err(); err != nil {
		return err
	}
	sample := data.Head(min(spec.ChunkSize, p.opts.Limits.PromptSampleRows))
	return prompt.ValidateLength(builder.Build(sample), p.opts.Limits.MaxPromptChars)
}

func (p *Pipeline) newClient(r *run) *generation.Client {
	var sender llm.Sender
	if p.opts.NewSender != nil {
		sender = p.opts.NewSender(r.spec)
	} else {
		sender = provider.New(r.spec, provider.Options{
			Temperature: p.opts.Generation.Temperature,
			MaxTokens:   p.opts.Generation.MaxTokens,
			HTTPClient:  p.opts.HTTPClient,
			Logger:      r.log,
		})
	}

	opts := []generation.Option{generation.WithLogger(r.log), generation.WithMetrics(p.opts.Metrics)}
	if p.opts.Calls != nil {
		opts = append(opts, generation.WithTracker(p.opts.Calls))
	}
	if p.opts.Sleeper != nil {
		opts = append(opts, generation.WithSleeper(p.opts.Sleeper))
	}
	return generation.New(sender, generation.Config{
		MaxRetries:        r.spec.MaxRetries,
		Timeout:           r.spec.CallTimeout(),
		BackoffUnit:       p.opts.Generation.BackoffUnit,
		RateLimitCooldown: p.opts.Generation.RateLimitCooldown,
		RequestsPerMinute: p.opts.Generation.RequestsPerMinute,
	}, opts...)
}

func (p *Pipeline) processChunk(ctx context.Context, client *generation.Client, builder *prompt.Builder, parser *response.Parser, c chunk.Chunk) chunk.Outcome {
	text := builder.Build(c.Data)

	var parsed *table.Table
	res, err := client.Call(ctx, c.Index, text, func(reply string) error {
		t, err := parser.Parse(reply)
		if err != nil {
			return err
		}
		parsed = t
		return nil
	})
	if err != nil {
		return chunk.Failed(c.Index, "", err, res.Attempts)
	}
	return chunk.Succeeded(c.Index, parsed, res.Attempts)
}

func (p *Pipeline) saveArtifact(r *run, result *Result) {
	if p.opts.Artifacts == nil {
		return
	}
	ref, err := p.opts.Artifacts.Save(result.Table, p.opts.ArtifactFormat)
	if err != nil {
		r.log.Errorw("Failed to save result artifact", logger.FieldError, err.Error())
		result.ErrorDetails = "result artifact not saved: " + err.Error()
		return
	}
	result.Artifact = ref
	result.DownloadURL = p.opts.DownloadURL(ref)
}

func (p *Pipeline) fail(r *run, message string, err error) *Result {
	return p.failWith(r, &Result{RunID: r.id}, message, err)
}

func (p *Pipeline) failWith(r *run, result *Result, message string, err error) *Result {
	result.Success = false
	result.Message = message + ": " + err.Error()
	result.ErrorDetails = err.Error()
	result.ErrorCategory = errors.Category(err)
	result.Hints = errors.GetAllHints(err)
	r.log.Warnw("Run failed",
		logger.FieldState, r.state,
		logger.FieldCategory, result.ErrorCategory,
		logger.FieldError, err.Error())
	return result
}

func (p *Pipeline) transition(r *run, s State) {
	r.state = s
	r.log.Debugw("Run state", logger.FieldState, s)
	p.emit(Event{Type: EventStage, RunID: r.id, Source: r.source, State: s})
}

func (p *Pipeline) emitChunk(r *run, o chunk.Outcome, progress Progress) {
	index := o.Index
	p.emit(Event{
		Type:     EventChunk,
		RunID:    r.id,
		Source:   r.source,
		State:    r.state,
		Progress: progress,
		Percent:  progress.Percentage(),
		Chunk:    &index,
		ChunkOK:  o.OK(),
		Attempts: o.Attempts,
		Reason:   o.Reason,
	})
}

func (p *Pipeline) emit(e Event) {
	if p.opts.Observer == nil {
		return
	}
	e.Timestamp = time.Now()
	p.opts.Observer.Observe(e)
}

func (p *Pipeline) finish(ctx context.Context, r *run, result *Result) {
	result.StartedAt = r.started
	result.FinishedAt = time.Now()
	p.transition(r, Done)

	p.opts.Metrics.RunFinished(result.Success, result.ErrorCategory, result.Duration())

	if p.opts.Runs != nil {
		err := p.opts.Runs.Save(context.WithoutCancel(ctx), r.source, r.spec, result)
		switch {
		case err == nil:
		case db.IsDatabaseClosed(err):
			r.log.Debugw("Run ledger closed, result not persisted")
		default:
			r.log.Warnw("Failed to persist run", logger.FieldError, err.Error())
		}
	}

	r.log.Infow("Run finished",
		"success", result.Success,
		logger.FieldTotalChunks, result.TotalChunks,
		"processed", result.ProcessedChunks,
		"failed", result.FailedChunks,
		logger.FieldDurationMS, result.Duration().Milliseconds())

	p.emit(Event{
		Type:     EventComplete,
		RunID:    r.id,
		Source:   r.source,
		State:    Done,
		Progress: Progress{Total: result.TotalChunks, Current: result.TotalChunks},
		Percent:  100,
		Result:   result,
	})
}
