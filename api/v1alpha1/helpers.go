package v1alpha1

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// GroupName is the API group for vmdev resources.
	GroupName = "vmdev.cofront.xyz"

	// Version is the API version.
	Version = "v1alpha1"

	// DeviceSetKind is the kind string for DeviceSet resources.
	DeviceSetKind = "DeviceSet"
)

// NewDeviceSet creates a new DeviceSet with TypeMeta and ObjectMeta defaults
// and a fresh VM UUID.
func NewDeviceSet(name string) *DeviceSet {
	return &DeviceSet{
		TypeMeta: TypeMeta{
			APIVersion: GroupName + "/" + Version,
			Kind:       DeviceSetKind,
		},
		ObjectMeta: ObjectMeta{
			Name:              name,
			UID:               uuid.New().String(),
			CreationTimestamp: Time{Time: time.Now()},
			Generation:        1,
		},
		Spec: DeviceSetSpec{
			VMID: uuid.New().String(),
		},
		Status: DeviceSetStatus{
			Phase: DeviceSetPhasePending,
		},
	}
}

// SetDefaultAPIVersion ensures the device set has the correct apiVersion
// and kind. Useful when loading from files that might be missing these
// fields.
func SetDefaultAPIVersion(ds *DeviceSet) {
	if ds.APIVersion == "" {
		ds.APIVersion = GroupName + "/" + Version
	}
	if ds.Kind == "" {
		ds.Kind = DeviceSetKind
	}
}

// GetName returns the device set name from metadata.
func (ds *DeviceSet) GetName() string {
	return ds.Name
}

// SetPhase sets the phase in status.
func (ds *DeviceSet) SetPhase(phase DeviceSetPhase) {
	ds.Status.Phase = phase
}

// GetPhase returns the current phase. An unset phase reads as Pending.
func (ds *DeviceSet) GetPhase() DeviceSetPhase {
	if ds.Status.Phase == "" {
		return DeviceSetPhasePending
	}
	return ds.Status.Phase
}

// UpdateObservedGeneration records the current generation as applied.
func (ds *DeviceSet) UpdateObservedGeneration() {
	ds.Status.ObservedGeneration = ds.Generation
}

// EnsureVMID assigns a random VM UUID when none is set and returns it.
func (ds *DeviceSet) EnsureVMID() string {
	if ds.Spec.VMID == "" {
		ds.Spec.VMID = uuid.New().String()
	}
	return ds.Spec.VMID
}

// CountByType returns how many devices of each type the set holds.
func (ds *DeviceSet) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, d := range ds.Spec.Devices {
		counts[d.Type]++
	}
	return counts
}

// Normalize sanitizes user input to consistent formats.
// This is called automatically before validation.
func (ds *DeviceSet) Normalize() {
	ds.Name = strings.ToLower(strings.TrimSpace(ds.Name))
	ds.Spec.VMID = strings.ToLower(strings.TrimSpace(ds.Spec.VMID))

	// Network names are NOT normalized, they must match the host exactly.
	for i := range ds.Spec.Devices {
		ds.Spec.Devices[i].Normalize()
	}
}

// Normalize lowercases the device class and variant and the MAC address
// of interfaces.
func (d *DeviceSpec) Normalize() {
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.Device = strings.ToLower(strings.TrimSpace(d.Device))
	if mac, ok := d.Params["macAddr"].(string); ok {
		d.Params["macAddr"] = strings.ToLower(strings.TrimSpace(mac))
	}
}

// Describe returns a short human readable label such as "interface/bridge"
// or "interface/bridge (net0)" once the device has an alias.
func (d *DeviceSpec) Describe() string {
	label := d.Type
	if d.Device != "" {
		label = fmt.Sprintf("%s/%s", d.Type, d.Device)
	}
	if d.Alias != "" {
		label = fmt.Sprintf("%s (%s)", label, d.Alias)
	}
	return label
}
