// Package display renders command output for terminals and scripts.
package display

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/tabula/errors"
)

// JSONEnv forces JSON output when set to a non-empty value.
const JSONEnv = "TABULA_JSON"

// ShouldOutputJSON reports whether a command should print JSON: an
// explicit --json flag wins, then the global flag, then TABULA_JSON.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return os.Getenv(JSONEnv) != ""
	}

	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}
	return os.Getenv(JSONEnv) != ""
}

// OutputJSON marshals and prints JSON using MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

// MarshalJSON pretty-prints v.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
