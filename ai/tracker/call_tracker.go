// Package tracker records every generation attempt in the SQLite ledger.
package tracker

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/tabula/errors"
)

// Call is one attempt against the generation service.
type Call struct {
	RunID            string
	ChunkIndex       int
	Attempt          int // 1-based
	Provider         string
	Model            string
	RequestedAt      time.Time
	Duration         time.Duration
	PromptChars      int
	ReplyChars       int
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	Success          bool
	ErrorCategory    string
	ErrorMessage     string
}

// CallTracker writes Calls to the generation_calls table.
type CallTracker struct {
	db *sql.DB
}

// NewCallTracker creates a tracker over a migrated database.
func NewCallTracker(db *sql.DB) *CallTracker {
	return &CallTracker{db: db}
}

// Track records one attempt.
func (t *CallTracker) Track(ctx context.Context, call Call) error {
	query := `
		INSERT INTO generation_calls (
			run_id, chunk_index, attempt, provider, model, requested_at,
			duration_ms, prompt_chars, reply_chars, prompt_tokens,
			completion_tokens, total_tokens, success, error_category, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.ExecContext(ctx, query,
		call.RunID, call.ChunkIndex, call.Attempt, call.Provider, call.Model,
		call.RequestedAt.UTC(), call.Duration.Milliseconds(), call.PromptChars, call.ReplyChars,
		call.PromptTokens, call.CompletionTokens, call.TotalTokens,
		call.Success, nullString(call.ErrorCategory), nullString(call.ErrorMessage),
	)
	return errors.Wrap(err, "failed to record generation call")
}

// Stats aggregates attempts.
type Stats struct {
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	TotalTokens     int     `json:"total_tokens"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
	SuccessRate     float64 `json:"success_rate"`
}

const statsColumns = `
	COUNT(*),
	COUNT(CASE WHEN success = 1 THEN 1 END),
	COALESCE(SUM(COALESCE(total_tokens, 0)), 0),
	COALESCE(AVG(duration_ms), 0)`

// RunStats aggregates the attempts of one run.
func (t *CallTracker) RunStats(ctx context.Context, runID string) (*Stats, error) {
	row := t.db.QueryRowContext(ctx, `SELECT`+statsColumns+` FROM generation_calls WHERE run_id = ?`, runID)
	return scanStats(row)
}

// StatsSince aggregates attempts requested at or after since.
func (t *CallTracker) StatsSince(ctx context.Context, since time.Time) (*Stats, error) {
	row := t.db.QueryRowContext(ctx, `SELECT`+statsColumns+` FROM generation_calls WHERE requested_at >= ?`, since.UTC())
	return scanStats(row)
}

func scanStats(row *sql.Row) (*Stats, error) {
	var s Stats
	if err := row.Scan(&s.TotalCalls, &s.SuccessfulCalls, &s.TotalTokens, &s.AvgDurationMS); err != nil {
		return nil, errors.Wrap(err, "failed to read call stats")
	}
	if s.TotalCalls > 0 {
		s.SuccessRate = float64(s.SuccessfulCalls) / float64(s.TotalCalls)
	}
	return &s, nil
}

// ModelBreakdown is per provider/model usage.
type ModelBreakdown struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Calls         int     `json:"calls"`
	Failures      int     `json:"failures"`
	TotalTokens   int     `json:"total_tokens"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Breakdown groups attempts since the given time by provider and model.
func (t *CallTracker) Breakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT provider, model, COUNT(*),
			COUNT(CASE WHEN success = 0 THEN 1 END),
			COALESCE(SUM(COALESCE(total_tokens, 0)), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM generation_calls
		WHERE requested_at >= ?
		GROUP BY provider, model
		ORDER BY COUNT(*) DESC, provider, model`

	rows, err := t.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query model breakdown")
	}
	defer rows.Close()

	var out []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.Provider, &mb.Model, &mb.Calls, &mb.Failures, &mb.TotalTokens, &mb.AvgDurationMS); err != nil {
			return nil, errors.Wrap(err, "failed to scan model breakdown")
		}
		out = append(out, mb)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate model breakdown")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
