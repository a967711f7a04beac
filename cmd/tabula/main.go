package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/tabula/cmd/tabula/commands"
	"github.com/teranos/tabula/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tabula",
	Short: "tabula - spec-driven table processing through a generation service",
	Long: `tabula - spec-driven table processing through a generation service.

tabula splits a CSV table into chunks, asks a generation service to
transform each chunk according to a processing spec, and stitches the
replies back into one result table.

Available commands:
  run      - Process one CSV file with a spec
  preview  - Show file info and sample rows
  watch    - Process CSV files as they land in a directory
  serve    - Start the HTTP API with live progress
  runs     - Inspect recorded runs
  usage    - Summarise generation calls
  config   - Show or validate configuration
  version  - Show build information

Examples:
  tabula run orders.csv --spec spec.toml     # Process a file
  tabula preview orders.csv -n 10            # Peek at the input
  tabula serve                               # Start the API on :8000
  tabula runs ls                             # Recent runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.Setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output JSON instead of formatted text")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PreviewCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
