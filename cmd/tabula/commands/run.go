package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/display"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/pipeline"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/table"
)

// RunCmd processes one CSV file.
var RunCmd = &cobra.Command{
	Use:   "run <data.csv>",
	Short: "Process a CSV file with a processing spec",
	Long: `Split a CSV file into chunks, send each chunk to the generation service
described by the spec, and aggregate the replies into one table.

The spec may be JSON, YAML or TOML, chosen by file extension. JSON specs
may be bare or wrapped in {"config": {...}}.

Examples:
  tabula run orders.csv --spec spec.toml
  tabula run orders.csv --spec spec.json --out cleaned.csv
  tabula run orders.csv --spec spec.yaml --format xlsx --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runSpecPath string
	runOutPath  string
	runFormat   string
)

func init() {
	RunCmd.Flags().StringVarP(&runSpecPath, "spec", "s", "", "Processing spec file (json, yaml or toml)")
	RunCmd.Flags().StringVarP(&runOutPath, "out", "o", "", "Also write the result table to this CSV file")
	RunCmd.Flags().StringVar(&runFormat, "format", "", "Artifact format: csv or xlsx (default from config)")
	_ = RunCmd.MarkFlagRequired("spec")
}

func runRun(cmd *cobra.Command, args []string) error {
	c, err := validConfig()
	if err != nil {
		return err
	}

	spec, err := processing.LoadFile(runSpecPath)
	if err != nil {
		return err
	}

	l, err := openLedger(c.Database.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	jsonOutput := display.ShouldOutputJSON(cmd)
	var observer pipeline.Observer
	if !jsonOutput {
		observer = display.NewProgress()
	}

	p, err := newPipeline(c, l, runFormat, observer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := processFile(ctx, p, args[0], *spec)
	if err != nil {
		return err
	}

	if runOutPath != "" && res.Table != nil {
		if err := writeTable(runOutPath, res.Table); err != nil {
			return err
		}
		logger.Infow("Result written", "path", runOutPath, logger.FieldRows, res.OutputRows)
	}

	if jsonOutput {
		if err := display.OutputJSON(res); err != nil {
			return err
		}
	} else {
		display.RenderResult(res)
		if runOutPath != "" && res.Table != nil {
			pterm.Success.Printfln("Wrote %s", runOutPath)
		}
	}

	if !res.Success {
		return errors.Newf("run %s failed: %s", res.RunID, res.Message)
	}
	return nil
}

// processFile reads and decodes path, then runs spec over it.
func processFile(ctx context.Context, p *pipeline.Pipeline, path string, spec processing.Spec) (*pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read %s", path), errors.ErrInput)
	}
	text, encoding, err := table.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	logger.Debugw("Input decoded", "file", path, "encoding", encoding, "bytes", len(data))

	return p.Run(ctx, pipeline.Source{Name: filepath.Base(path), Text: text}, spec), nil
}

// writeTable writes t as CSV, creating parent directories as needed.
func writeTable(path string, t *table.Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}
