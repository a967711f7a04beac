package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/tabula/config"
	"github.com/teranos/tabula/errors"
)

// ConfigCmd shows and validates configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate tabula configuration",
	Long: `Display and check tabula configuration.

Configuration sources (in order of precedence):
1. Environment variables (TABULA_* prefix, e.g. TABULA_SERVER_PORT)
2. Project config (./tabula.toml, searched upwards)
3. User config (~/.tabula/config.toml)
4. System config (/etc/tabula/config.toml)
5. Default values

--config <file> replaces the file cascade with a single file.

Examples:
  tabula config show                  # Effective configuration as TOML
  tabula config show --format yaml
  tabula config validate`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate effective configuration",
	RunE:  runConfigValidate,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := marshalConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// marshalConfig renders c in format. TOML and YAML get a header comment.
func marshalConfig(c *config.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(c)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# tabula configuration\n" + string(data), nil

	case "toml":
		data, err := toml.Marshal(c)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to TOML")
		}
		return "# tabula configuration\n" + string(data), nil

	default:
		return "", errors.Mark(
			errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format),
			errors.ErrInput)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		pterm.Error.Printfln("Configuration is invalid: %v", err)
		return errors.Mark(err, errors.ErrConfig)
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}
