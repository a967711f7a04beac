package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tabula/ai/tracker"
	"github.com/teranos/tabula/display"
)

// UsageCmd summarises recorded generation calls.
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarise generation calls and token usage",
	RunE:  runUsage,
}

var usageSince time.Duration

func init() {
	UsageCmd.Flags().DurationVar(&usageSince, "since", 24*time.Hour, "Window to summarise")
}

type usageReport struct {
	Since  time.Time                `json:"since"`
	Stats  *tracker.Stats           `json:"stats"`
	Models []tracker.ModelBreakdown `json:"models"`
}

func runUsage(cmd *cobra.Command, args []string) error {
	l, err := requireLedger(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	since := time.Now().Add(-usageSince)
	stats, err := l.calls.StatsSince(cmd.Context(), since)
	if err != nil {
		return err
	}
	models, err := l.calls.Breakdown(cmd.Context(), since)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(usageReport{Since: since, Stats: stats, Models: models})
	}

	pterm.DefaultSection.Printfln("Generation calls in the last %s", usageSince)
	pterm.Printfln("  Calls:      %d (%d successful, %.1f%%)", stats.TotalCalls, stats.SuccessfulCalls, stats.SuccessRate)
	pterm.Printfln("  Tokens:     %d", stats.TotalTokens)
	pterm.Printfln("  Avg time:   %.0fms", stats.AvgDurationMS)
	if len(models) == 0 {
		return nil
	}
	pterm.Println()
	return pterm.DefaultTable.WithHasHeader().WithData(usageTable(models)).Render()
}

func usageTable(models []tracker.ModelBreakdown) pterm.TableData {
	data := pterm.TableData{{"PROVIDER", "MODEL", "CALLS", "FAILURES", "TOKENS", "AVG MS"}}
	for _, m := range models {
		data = append(data, []string{
			m.Provider,
			m.Model,
			fmt.Sprint(m.Calls),
			fmt.Sprint(m.Failures),
			fmt.Sprint(m.TotalTokens),
			fmt.Sprintf("%.0f", m.AvgDurationMS),
		})
	}
	return data
}
