// Package loader provides functions for loading DeviceSet resources from
// YAML files.
package loader

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/device"
)

// Matches libvirt domain name requirements after normalization.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_.-]*[a-z0-9])?$`)

// LoadFromFile loads a DeviceSet resource from a YAML file. A path of "-"
// reads standard input.
func LoadFromFile(path string) (*v1alpha1.DeviceSet, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML loads a DeviceSet resource from YAML bytes. A missing
// apiVersion or kind defaults to vmdev.cofront.xyz/v1alpha1 DeviceSet, a
// missing VM id is generated.
func LoadFromYAML(data []byte) (*v1alpha1.DeviceSet, error) {
	var ds v1alpha1.DeviceSet
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	v1alpha1.SetDefaultAPIVersion(&ds)

	expectedAPIVersion := v1alpha1.GroupName + "/" + v1alpha1.Version
	if ds.APIVersion != expectedAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion: %s (expected: %s)", ds.APIVersion, expectedAPIVersion)
	}
	if ds.Kind != v1alpha1.DeviceSetKind {
		return nil, fmt.Errorf("unsupported kind: %s (expected: %s)", ds.Kind, v1alpha1.DeviceSetKind)
	}

	ds.Normalize()
	ds.EnsureVMID()

	if err := validateSpec(&ds); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &ds, nil
}

// SaveToFile saves a DeviceSet resource to a YAML file.
func SaveToFile(ds *v1alpha1.DeviceSet, path string) error {
	v1alpha1.SetDefaultAPIVersion(ds)

	data, err := yaml.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to marshal device set to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// validateSpec checks the resource structure and then builds every device
// once so codec errors surface at load time.
func validateSpec(ds *v1alpha1.DeviceSet) error {
	if ds.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if !namePattern.MatchString(ds.Name) {
		return fmt.Errorf("metadata.name must start and end with alphanumeric characters and contain only alphanumeric, dots, hyphens, or underscores, got %q", ds.Name)
	}
	if _, err := uuid.Parse(ds.Spec.VMID); err != nil {
		return fmt.Errorf("spec.vmId is not a UUID: %q", ds.Spec.VMID)
	}
	if len(ds.Spec.Devices) == 0 {
		return fmt.Errorf("at least one spec.devices entry is required")
	}

	known := make(map[string]bool)
	for _, tag := range device.Tags() {
		known[string(tag)] = true
	}

	aliases := make(map[string]bool)
	macs := make(map[string]bool)
	for i, d := range ds.Spec.Devices {
		if d.Type == "" {
			return fmt.Errorf("spec.devices[%d]: type is required", i)
		}
		if !known[d.Type] {
			return fmt.Errorf("spec.devices[%d]: unknown device type %q", i, d.Type)
		}
		if d.Alias != "" {
			if aliases[d.Alias] {
				return fmt.Errorf("spec.devices[%d]: duplicate alias %q", i, d.Alias)
			}
			aliases[d.Alias] = true
		}
		if mac, ok := d.Params["macAddr"].(string); ok && mac != "" {
			if macs[mac] {
				return fmt.Errorf("spec.devices[%d]: duplicate macAddr %q", i, mac)
			}
			macs[mac] = true
		}
	}

	if _, err := device.NewSetFromSpec(ds); err != nil {
		return err
	}
	return nil
}
