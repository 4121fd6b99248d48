// Package cli formats command output. Commands hand structured values
// to Output and the root --output flag decides the encoding.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding for command output.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// current is set once by the root command's --output flag.
var current = FormatYAML

// SetFormat sets the process-wide output format. Unknown values fall
// back to YAML.
func SetFormat(format string) {
	switch format {
	case "json":
		current = FormatJSON
	default:
		current = FormatYAML
	}
}

// CurrentFormat returns the active output format.
func CurrentFormat() Format {
	return current
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, current, data)
}

// OutputTo writes data to w in the given format.
func OutputTo(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
