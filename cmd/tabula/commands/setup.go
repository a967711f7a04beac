// Package commands implements the tabula CLI.
package commands

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/tabula/ai/tracker"
	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/db"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/pipeline"
)

// cfg is loaded once per invocation by Setup.
var cfg *config.Config

// Setup loads configuration and initializes the global logger. It runs
// before every command.
func Setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")

	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	if err := logger.Initialize(cfg.Log.JSON, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

// validConfig returns the loaded configuration once it passes validation.
func validConfig() (*config.Config, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrap(err, "invalid configuration"), errors.ErrConfig),
			"run 'tabula config validate' for details")
	}
	return cfg, nil
}

// ledger bundles the SQLite-backed stores. A zero ledger records nothing.
type ledger struct {
	db    *sql.DB
	runs  *pipeline.RunStore
	calls *tracker.CallTracker
}

// openLedger opens and migrates the database at path. An empty path
// disables the ledger.
func openLedger(path string) (*ledger, error) {
	if path == "" {
		return &ledger{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory for %s", path)
	}

	conn, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return &ledger{
		db:    conn,
		runs:  pipeline.NewRunStore(conn),
		calls: tracker.NewCallTracker(conn),
	}, nil
}

// requireLedger is openLedger for commands that only read the ledger.
func requireLedger(path string) (*ledger, error) {
	if path == "" {
		return nil, errors.WithHint(
			errors.Mark(errors.New("no database configured"), errors.ErrConfig),
			"set database.path in tabula.toml or TABULA_DATABASE_PATH")
	}
	return openLedger(path)
}

func (l *ledger) Close() {
	if l.db != nil {
		l.db.Close()
	}
}

// newPipeline wires a pipeline for CLI runs. format overrides the
// configured artifact format when set.
func newPipeline(c *config.Config, l *ledger, format string, observer pipeline.Observer) (*pipeline.Pipeline, error) {
	if format == "" {
		format = c.Artifacts.Format
	}
	format, err := artifact.NormalizeFormat(format)
	if err != nil {
		return nil, err
	}

	store, err := artifact.NewStore(c.Artifacts.Dir, config.DefaultDirPermissions)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Limits:         c.Limits,
		Generation:     c.Generation,
		ArtifactFormat: format,
		Artifacts:      store,
		Runs:           l.runs,
		Observer:       observer,
		Logger:         logger.Logger.Named("pipeline"),
	}
	if l.calls != nil {
		opts.Calls = l.calls
	}
	return pipeline.New(opts), nil
}
