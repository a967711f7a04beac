package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/processing"
)

// ErrRunNotFound is returned by RunStore.Get for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is a persisted terminal result.
type RunRecord struct {
	RunID              string    `json:"run_id"`
	Source             string    `json:"source"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Success            bool      `json:"success"`
	Message            string    `json:"message"`
	TotalChunks        int       `json:"total_chunks"`
	ProcessedChunks    int       `json:"processed_chunks"`
	FailedChunks       int       `json:"failed_chunks"`
	FailedChunkIndices []int     `json:"failed_chunk_indices"`
	SuccessRate        float64   `json:"success_rate"`
	OutputRows         int       `json:"output_rows"`
	ErrorCategory      string    `json:"error_category,omitempty"`
	ErrorDetails       string    `json:"error_details,omitempty"`
	ArtifactID         string    `json:"artifact_id,omitempty"`
	ArtifactPath       string    `json:"artifact_path,omitempty"`
	Spec               string    `json:"spec"`
}

// RunStore persists run results in the pipeline_runs table.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a store over a migrated database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Save records a terminal result. The spec is stored with its credential
// redacted.
func (s *RunStore) Save(ctx context.Context, source string, spec *processing.Spec, r *Result) error {
	indices := r.FailedChunkIndices
	if indices == nil {
		indices = []int{}
	}
	indicesJSON, err := json.Marshal(indices)
	if err != nil {
		return errors.Wrap(err, "failed to marshal failed chunk indices")
	}

	specJSON := []byte("{}")
	if spec != nil {
		if specJSON, err = json.Marshal(spec.Redacted()); err != nil {
			return errors.Wrap(err, "failed to marshal spec")
		}
	}

	var artifactID, artifactPath sql.NullString
	if r.Artifact != nil {
		artifactID = sql.NullString{String: r.Artifact.ID, Valid: true}
		artifactPath = sql.NullString{String: r.Artifact.Path, Valid: true}
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, source_name, started_at, finished_at, success, message,
			total_chunks, processed_chunks, failed_chunks, failed_chunk_indices,
			success_rate, output_rows, error_category, error_details,
			artifact_id, artifact_path, spec_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		r.RunID, source, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Success, r.Message,
		r.TotalChunks, r.ProcessedChunks, r.FailedChunks, string(indicesJSON),
		r.SuccessRate, r.OutputRows,
		sql.NullString{String: r.ErrorCategory, Valid: r.ErrorCategory != ""},
		sql.NullString{String: r.ErrorDetails, Valid: r.ErrorDetails != ""},
		artifactID, artifactPath, string(specJSON),
	)
	return errors.Wrapf(err, "failed to save run %s", r.RunID)
}

const runColumns = `run_id, source_name, started_at, finished_at, success, message,
	total_chunks, processed_chunks, failed_chunks, failed_chunk_indices,
	success_rate, output_rows, error_category, error_details,
	artifact_id, artifact_path, spec_json`

// Get returns one run.
func (s *RunStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return rec, err
}

// List returns the most recent runs first.
func (s *RunStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate runs")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		rec                                         RunRecord
		indices                                     string
		category, details, artifactID, artifactPath sql.NullString
	)
	err := sc.Scan(&rec.RunID, &rec.Source, &rec.StartedAt, &rec.FinishedAt, &rec.Success, &rec.Message,
		&rec.TotalChunks, &rec.ProcessedChunks, &rec.FailedChunks, &indices,
		&rec.SuccessRate, &rec.OutputRows, &category, &details,
		&artifactID, &artifactPath, &rec.Spec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan run")
	}
	if err := json.Unmarshal([]byte(indices), &rec.FailedChunkIndices); err != nil {
		return nil, errors.Wrapf(err, "run %s has corrupt failed_chunk_indices", rec.RunID)
	}
	rec.ErrorCategory = category.String
	rec.ErrorDetails = details.String
	rec.ArtifactID = artifactID.String
	rec.ArtifactPath = artifactPath.String
	return &rec, nil
}
