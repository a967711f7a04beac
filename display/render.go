package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/tabula/pipeline"
	"github.com/teranos/tabula/table"
)

// RenderResult prints a run summary.
func RenderResult(res *pipeline.Result) {
	pterm.Println()
	if res.Success {
		pterm.Success.Println(res.Message)
	} else {
		pterm.Error.Println(res.Message)
	}

	pterm.Printfln("  Run:        %s", res.RunID)
	pterm.Printfln("  Chunks:     %d total, %d processed, %d failed", res.TotalChunks, res.ProcessedChunks, res.FailedChunks)
	if len(res.FailedChunkIndices) > 0 {
		pterm.Printfln("  Failed:     %s", chunkNumbers(res.FailedChunkIndices))
	}
	pterm.Printfln("  Duration:   %s", res.Duration().Round(time.Millisecond))
	if res.ErrorCategory != "" {
		pterm.Printfln("  Category:   %s", res.ErrorCategory)
	}
	if res.ErrorDetails != "" && res.Success {
		pterm.Warning.Println(res.ErrorDetails)
	}
	for _, hint := range res.Hints {
		pterm.Info.Println(hint)
	}
	if res.Artifact != nil {
		pterm.Printfln("  Output:     %s (%d rows)", res.Artifact.Path, res.OutputRows)
	}
}

// chunkNumbers renders 0-based chunk indices as 1-based numbers.
func chunkNumbers(indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = fmt.Sprint(idx + 1)
	}
	return strings.Join(parts, ", ")
}

// RenderPreview prints file info and sample rows.
func RenderPreview(p *table.Preview) error {
	info := p.FileInfo
	pterm.Info.Printfln("%d rows, %d columns (%s)", info.Rows, info.Columns, info.Encoding)
	if len(p.SampleRows) == 0 {
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(PreviewTable(p)).Render()
}

// PreviewTable is the header plus sample rows.
func PreviewTable(p *table.Preview) pterm.TableData {
	data := pterm.TableData{p.ColumnNames}
	return append(data, p.SampleRows...)
}

// RenderRuns prints recent runs, newest first.
func RenderRuns(runs []pipeline.RunRecord) error {
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(RunsTable(runs)).Render()
}

// RunsTable is one row per run.
func RunsTable(runs []pipeline.RunRecord) pterm.TableData {
	data := pterm.TableData{{"RUN", "STARTED", "SOURCE", "RESULT", "CHUNKS", "ROWS", "DURATION"}}
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.ErrorCategory != "" {
				result += " (" + r.ErrorCategory + ")"
			}
		}
		data = append(data, []string{
			shortID(r.RunID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			result,
			fmt.Sprintf("%d/%d", r.ProcessedChunks, r.TotalChunks),
			fmt.Sprint(r.OutputRows),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
	}
	return data
}

// shortID truncates an ID to 8 characters for display
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
