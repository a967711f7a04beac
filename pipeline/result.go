package pipeline

import (
	"fmt"
	"time"

	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/table"
)

// Result is the terminal record of one run. It is built once and not
// modified afterwards.
type Result struct {
	RunID              string        `json:"run_id"`
	Success            bool          `json:"success"`
	Message            string        `json:"message"`
	TotalChunks        int           `json:"total_chunks"`
	ProcessedChunks    int           `json:"processed_chunks"`
	FailedChunks       int           `json:"failed_chunks"`
	FailedChunkIndices []int         `json:"failed_chunk_indices,omitempty"`
	SuccessRate        float64       `json:"success_rate"`
	OutputRows         int           `json:"output_rows"`
	DownloadURL        string        `json:"download_url,omitempty"`
	Artifact           *artifact.Ref `json:"artifact,omitempty"`
	ErrorDetails       string        `json:"error_details,omitempty"`
	ErrorCategory      string        `json:"error_category,omitempty"`
	Hints              []string      `json:"hints,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`

	// Table is the final table, present only on success.
	Table *table.Table `json:"-"`
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func summaryMessage(rows, processed, failed int, rate float64) string {
	return fmt.Sprintf("Aggregated %d rows: processed %d chunks, failed %d, success rate %.1f%%",
		rows, processed, failed, rate)
}
