package processing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/teranos/tabula/errors"
	"gopkg.in/yaml.v3"
)

// Supported spec file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// envelope accepts the {"config": {...}} request shape.
type envelope struct {
	Config *Spec `json:"config" yaml:"config" toml:"config"`
}

// Decode parses a spec, applies defaults and validates it.
// JSON may be bare or wrapped in {"config": {...}}.
func Decode(data []byte, format string) (*Spec, error) {
	spec, err := decode(data, strings.ToLower(format))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode %s spec", format), errors.ErrConfig)
	}
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// LoadFile reads a spec file, choosing the format from its extension.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read spec file %s", path), errors.ErrConfig)
	}
	return Decode(data, FormatFromPath(path))
}

// FormatFromPath maps a file extension to a spec format, defaulting to JSON.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

func decode(data []byte, format string) (*Spec, error) {
	var env envelope
	var spec Spec

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		if env.Config != nil {
			return env.Config, nil
		}
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		if env.Config != nil {
			return env.Config, nil
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, err
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &env); err != nil {
			return nil, err
		}
		if env.Config != nil {
			return env.Config, nil
		}
		if _, err := toml.Decode(string(data), &spec); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Newf("unsupported spec format %q", format)
	}
	return &spec, nil
}
