// Package output renders device sets, device listings and domain listings
// as a table, YAML or JSON.
package output

import (
	"fmt"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// Format names an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

var formats = []Format{FormatTable, FormatYAML, FormatJSON}

// Formatter turns vmdev objects into printable text.
type Formatter interface {
	FormatDeviceSet(ds *v1alpha1.DeviceSet) (string, error)
	FormatDevices(devices []DeviceSummary) (string, error)
	FormatDomains(domains []DomainSummary) (string, error)
}

// Options selects a Formatter. NoHeaders applies to tables only.
type Options struct {
	Format    Format
	NoHeaders bool
}

// NewFormatter returns the Formatter for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	if err := ValidateFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	switch opts.Format {
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	}
}

// ValidateFormat rejects anything but table, yaml and json.
func ValidateFormat(format string) error {
	for _, f := range formats {
		if Format(format) == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported output format %q (supported: table, yaml, json)", format)
}
