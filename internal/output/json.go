package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatDeviceSet formats a single DeviceSet as JSON.
func (f *JSONFormatter) FormatDeviceSet(ds *v1alpha1.DeviceSet) (string, error) {
	v1alpha1.SetDefaultAPIVersion(ds)

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal device set to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatDevices formats a device listing as a JSON object with an items
// array, mimicking the Kubernetes List format:
//
//	{
//	  "apiVersion": "vmdev.cofront.xyz/v1alpha1",
//	  "kind": "DeviceList",
//	  "items": [...]
//	}
func (f *JSONFormatter) FormatDevices(devices []DeviceSummary) (string, error) {
	if devices == nil {
		devices = []DeviceSummary{}
	}
	return formatList("DeviceList", devices)
}

// FormatDomains formats a domain listing as a DomainList object.
func (f *JSONFormatter) FormatDomains(domains []DomainSummary) (string, error) {
	if domains == nil {
		domains = []DomainSummary{}
	}
	return formatList("DomainList", domains)
}

func formatList(kind string, items interface{}) (string, error) {
	wrapper := map[string]interface{}{
		"apiVersion": v1alpha1.GroupName + "/" + v1alpha1.Version,
		"kind":       kind,
		"items":      items,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(wrapper); err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", kind, err)
	}
	return buf.String(), nil
}
