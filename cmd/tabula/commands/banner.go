package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/logger"
	"github.com/teranos/tabula/version"
)

// printStartupBanner prints the serve startup message
func printStartupBanner(c *config.Config, artifactDir string, verbosity int) {
	info := version.Get()

	pterm.DefaultHeader.WithFullWidth().Printf("tabula %s", info.Version)
	pterm.Println()

	db := c.Database.Path
	if db == "" {
		db = "disabled"
	}
	origins := strings.Join(c.Server.AllowedOrigins, ", ")
	if origins == "" {
		origins = "none"
	}

	pterm.Printfln("  Commit:     %s (built %s)", info.Short(), info.BuildTime)
	pterm.Printfln("  Listening:  http://localhost:%d", c.Server.Port)
	pterm.Printfln("  API:        http://localhost:%d/api/v1", c.Server.Port)
	pterm.Printfln("  Progress:   ws://localhost:%d/api/v1/progress", c.Server.Port)
	pterm.Printfln("  Database:   %s", db)
	pterm.Printfln("  Artifacts:  %s (%s)", artifactDir, retention(c.Artifacts.RetentionHours))
	pterm.Printfln("  Origins:    %s", origins)
	pterm.Printfln("  Verbosity:  %s", logger.VerbosityToLevel(verbosity).CapitalString())
	pterm.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}

func retention(hours int) string {
	if hours <= 0 {
		return "kept forever"
	}
	return fmt.Sprintf("kept %dh", hours)
}
