package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tabula/display"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/pipeline"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/watch"
)

// WatchCmd processes CSV files as they are dropped into a directory.
var WatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Process CSV files as they land in a directory",
	Long: `Watch a directory and run the spec over every CSV file written to it.
Files are picked up once they have been quiet for the debounce period and
are processed one at a time.

Examples:
  tabula watch ./inbox --spec spec.toml
  tabula watch ./inbox --spec spec.toml --out ./processed`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchSpecPath string
	watchOutDir   string
	watchDebounce time.Duration
)

func init() {
	WatchCmd.Flags().StringVarP(&watchSpecPath, "spec", "s", "", "Processing spec file (json, yaml or toml)")
	WatchCmd.Flags().StringVarP(&watchOutDir, "out", "o", "", "Write each result table as <name>.processed.csv in this directory")
	WatchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a file is processed")
	_ = WatchCmd.MarkFlagRequired("spec")
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := validConfig()
	if err != nil {
		return err
	}

	// Fail fast on a bad spec rather than on the first file.
	spec, err := processing.LoadFile(watchSpecPath)
	if err != nil {
		return err
	}

	dir := args[0]
	if watchOutDir != "" && sameDir(dir, watchOutDir) {
		return errors.WithHint(
			errors.Mark(errors.New("output directory must differ from the watched directory"), errors.ErrInput),
			"results written into the watched directory would be processed again")
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
	p, err := newPipeline(c, l, "", observer)
	if err != nil {
		return err
	}

	w, err := watch.New(dir, watchDebounce, logger.Logger.Named("watch"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOutput {
		pterm.Info.Printfln("Watching %s for CSV files (Ctrl+C to stop)", dir)
	}

	handle := func(ctx context.Context, path string) {
		res, err := processFile(ctx, p, path, *spec)
		if err != nil {
			logger.Errorw("Failed to process file", "file", path, logger.FieldError, err)
			return
		}

		if watchOutDir != "" && res.Table != nil {
			out := filepath.Join(watchOutDir, processedName(path))
			if err := writeTable(out, res.Table); err != nil {
				logger.Errorw("Failed to write result", "file", out, logger.FieldError, err)
			}
		}

		if jsonOutput {
			if err := display.OutputJSON(res); err != nil {
				logger.Errorw("Failed to encode result", logger.FieldError, err)
			}
			return
		}
		pterm.DefaultSection.Println(filepath.Base(path))
		display.RenderResult(res)
	}

	return w.Run(ctx, handle)
}

// processedName maps orders.csv to orders.processed.csv.
func processedName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".processed.csv"
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && filepath.Clean(absA) == filepath.Clean(absB)
}
