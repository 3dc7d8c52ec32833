package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatDeviceSet formats a single DeviceSet as YAML.
func (f *YAMLFormatter) FormatDeviceSet(ds *v1alpha1.DeviceSet) (string, error) {
	v1alpha1.SetDefaultAPIVersion(ds)

	data, err := yaml.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("failed to marshal device set to YAML: %w", err)
	}
	return string(data), nil
}

// FormatDevices formats a device listing as a YAML sequence.
func (f *YAMLFormatter) FormatDevices(devices []DeviceSummary) (string, error) {
	if len(devices) == 0 {
		return "[]\n", nil
	}
	data, err := yaml.Marshal(devices)
	if err != nil {
		return "", fmt.Errorf("failed to marshal devices to YAML: %w", err)
	}
	return string(data), nil
}

// FormatDomains formats a domain listing as a YAML sequence.
func (f *YAMLFormatter) FormatDomains(domains []DomainSummary) (string, error) {
	if len(domains) == 0 {
		return "[]\n", nil
	}
	data, err := yaml.Marshal(domains)
	if err != nil {
		return "", fmt.Errorf("failed to marshal domains to YAML: %w", err)
	}
	return string(data), nil
}
