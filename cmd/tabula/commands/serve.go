package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/server"
	"github.com/teranos/tabula/telemetry"
)

// ServeCmd starts the HTTP API.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the tabula HTTP API",
	Long: `Serve uploads, previews, downloads and run history over HTTP, and stream
run progress to websocket clients on /api/v1/progress.`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := validConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		c.Server.Port = servePort
	}
	if serveDBPath != "" {
		c.Database.Path = serveDBPath
	}

	// Default to Info for the server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = logger.VerbosityInfo
		if err := logger.Initialize(c.Log.JSON, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	l, err := openLedger(c.Database.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	store, err := artifact.NewStore(c.Artifacts.Dir, config.DefaultDirPermissions)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Config:    c,
		Artifacts: store,
		Runs:      l.runs,
		Calls:     l.calls,
		Metrics:   telemetry.NewMetrics(),
		Logger:    logger.Logger.Named("server"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if !c.Log.JSON {
		printStartupBanner(c, store.Dir(), verbosity)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
