package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/tabula/display"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/pipeline"
)

// PreviewCmd shows the shape of a CSV file without processing it.
var PreviewCmd = &cobra.Command{
	Use:   "preview <data.csv>",
	Short: "Show file info and the first rows of a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

var previewRows int

func init() {
	PreviewCmd.Flags().IntVarP(&previewRows, "rows", "n", 0, "Sample rows to show (default from config)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	n := previewRows
	if n <= 0 && cfg != nil {
		n = cfg.Limits.PreviewRows
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to read %s", args[0]), errors.ErrInput)
	}
	p, err := pipeline.Preview(data, n)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(p)
	}
	return display.RenderPreview(p)
}
