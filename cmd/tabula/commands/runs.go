package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tabula/display"
	"github.com/teranos/tabula/errors"
)

// RunsCmd inspects recorded runs.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded pipeline runs",
	Long: `List and show pipeline runs recorded in the database.

Examples:
  tabula runs ls               # 20 most recent runs
  tabula runs ls --limit 5
  tabula runs show 3f2a...     # One run, including its redacted spec`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsLimit int

func init() {
	runsLsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "Number of runs to show")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	if runsLimit <= 0 {
		return errors.Mark(errors.Newf("--limit must be > 0, got %d", runsLimit), errors.ErrInput)
	}
	l, err := requireLedger(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	runs, err := l.runs.List(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runs)
	}
	return display.RenderRuns(runs)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	l, err := requireLedger(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	rec, err := l.runs.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(rec)
	}

	status := pterm.Success
	if !rec.Success {
		status = pterm.Error
	}
	status.Println(rec.Message)
	pterm.Printfln("  Run:        %s", rec.RunID)
	pterm.Printfln("  Source:     %s", rec.Source)
	pterm.Printfln("  Started:    %s", rec.StartedAt.Local().Format(time.RFC3339))
	pterm.Printfln("  Duration:   %s", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	pterm.Printfln("  Chunks:     %d total, %d processed, %d failed", rec.TotalChunks, rec.ProcessedChunks, rec.FailedChunks)
	pterm.Printfln("  Rows:       %d", rec.OutputRows)
	if rec.ErrorCategory != "" {
		pterm.Printfln("  Category:   %s", rec.ErrorCategory)
	}
	if rec.ErrorDetails != "" {
		pterm.Printfln("  Details:    %s", rec.ErrorDetails)
	}
	if rec.ArtifactPath != "" {
		pterm.Printfln("  Artifact:   %s", rec.ArtifactPath)
	}
	pterm.Printfln("  Spec:       %s", rec.Spec)
	return nil
}
