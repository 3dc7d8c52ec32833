package v1alpha1

// DeviceSet describes the attachable devices of one virtual machine.
//
// It is the creation-time input for the device codecs: every entry in
// Spec.Devices is turned into a typed device model and rendered into the
// domain definition.
//
// +kubebuilder:object:root=true
// +kubebuilder:resource:shortName=ds
// +kubebuilder:printcolumn:name="VM",type=string,JSONPath=`.spec.vmId`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
type DeviceSet struct {
	// TypeMeta contains the API version and kind.
	TypeMeta `json:",inline" yaml:",inline"`

	// ObjectMeta contains metadata like name, labels, annotations.
	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Spec defines the devices of the VM.
	Spec DeviceSetSpec `json:"spec" yaml:"spec"`

	// Status records what happened the last time the set was applied to a
	// domain.
	// +optional
	Status DeviceSetStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// DeviceSetSpec defines the devices attached to a VM.
//
// +k8s:deepcopy-gen=true
type DeviceSetSpec struct {
	// VMID is the UUID of the owning VM. Generated when omitted.
	// +optional
	VMID string `json:"vmId,omitempty" yaml:"vmId,omitempty"`

	// ConsolesDir overrides the directory holding console sockets.
	// +optional
	ConsolesDir string `json:"consolesDir,omitempty" yaml:"consolesDir,omitempty"`

	// DisplayNetwork is the host network graphics devices listen on.
	// +optional
	DisplayNetwork string `json:"displayNetwork,omitempty" yaml:"displayNetwork,omitempty"`

	// Custom holds VM scoped overrides consulted by some devices, e.g.
	// "vhost: ovirtmgmt:true" or "sndbuf: 0" for interfaces.
	// +optional
	Custom map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`

	// Devices lists the devices in attach order.
	// +kubebuilder:validation:MinItems=1
	Devices []DeviceSpec `json:"devices" yaml:"devices"`
}

// DeviceSpec describes a single device.
//
// Type selects the device class (console, controller, interface,
// graphics, ...). Device names the variant within the class, e.g. "scsi"
// for a controller, "bridge" for an interface or "spice" for graphics.
// Class specific top-level keys (nicModel, macAddr, index, size, ...) are
// collected in Params.
//
// +k8s:deepcopy-gen=true
type DeviceSpec struct {
	// Type is the device class.
	Type string `json:"type" yaml:"type"`

	// Device is the variant within the class.
	// +optional
	Device string `json:"device,omitempty" yaml:"device,omitempty"`

	// Alias is the libvirt alias, known once the device is live.
	// +optional
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`

	// Address is the bus address, known once the device is placed.
	// +optional
	Address map[string]string `json:"address,omitempty" yaml:"address,omitempty"`

	// SpecParams holds class specific configuration.
	// +optional
	SpecParams map[string]interface{} `json:"specParams,omitempty" yaml:"specParams,omitempty"`

	// Custom holds device scoped overrides, e.g. "queues" for interfaces.
	// +optional
	Custom map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`

	// Params collects the remaining top-level keys.
	Params map[string]interface{} `json:"-" yaml:",inline"`
}

// DeviceSetStatus is the observed state of a DeviceSet.
//
// +k8s:deepcopy-gen=true
type DeviceSetStatus struct {
	// +optional
	// +kubebuilder:validation:Enum=Pending;Attaching;Attached;Detached;Failed
	Phase DeviceSetPhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Domain is the libvirt domain the set was last applied to.
	// +optional
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// ObservedGeneration reflects the generation last applied.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty" yaml:"observedGeneration,omitempty"`
}

// DeviceSetPhase is where a DeviceSet stands with respect to its domain.
type DeviceSetPhase string

const (
	// DeviceSetPhasePending means the devices were never attached.
	DeviceSetPhasePending DeviceSetPhase = "Pending"

	// DeviceSetPhaseAttaching means devices are being set up and hotplugged.
	DeviceSetPhaseAttaching DeviceSetPhase = "Attaching"

	// DeviceSetPhaseAttached means every device is live in the domain.
	DeviceSetPhaseAttached DeviceSetPhase = "Attached"

	// DeviceSetPhaseDetached means the devices were unplugged again.
	DeviceSetPhaseDetached DeviceSetPhase = "Detached"

	// DeviceSetPhaseFailed means an attach failed part way.
	DeviceSetPhaseFailed DeviceSetPhase = "Failed"
)

// Condition types for DeviceSet resources.
const (
	// ConditionReady is True when every device is live.
	ConditionReady = "Ready"

	// ConditionHostResourcesReady is True when the host side of every
	// device (display networks, console sockets, RNG claim) is set up.
	ConditionHostResourcesReady = "HostResourcesReady"

	// ConditionIdentified is True when every device carries the alias and
	// address libvirt assigned.
	ConditionIdentified = "Identified"
)

// DeepCopy creates a deep copy of DeviceSet.
func (in *DeviceSet) DeepCopy() *DeviceSet {
	if in == nil {
		return nil
	}
	out := new(DeviceSet)
	out.TypeMeta = *in.TypeMeta.DeepCopy()
	out.ObjectMeta = *in.ObjectMeta.DeepCopy()
	out.Spec = *in.Spec.DeepCopy()
	out.Status = *in.Status.DeepCopy()
	return out
}

// DeepCopy creates a deep copy of DeviceSetStatus.
func (in *DeviceSetStatus) DeepCopy() *DeviceSetStatus {
	if in == nil {
		return nil
	}
	out := new(DeviceSetStatus)
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]Condition, len(in.Conditions))
		copy(out.Conditions, in.Conditions)
	}
	return out
}

// DeepCopy creates a deep copy of DeviceSetSpec.
func (in *DeviceSetSpec) DeepCopy() *DeviceSetSpec {
	if in == nil {
		return nil
	}
	out := new(DeviceSetSpec)
	*out = *in
	out.Custom = copyStringMap(in.Custom)
	if in.Devices != nil {
		out.Devices = make([]DeviceSpec, len(in.Devices))
		for i := range in.Devices {
			out.Devices[i] = *in.Devices[i].DeepCopy()
		}
	}
	return out
}

// DeepCopy creates a deep copy of DeviceSpec. Nested maps and slices in
// SpecParams and Params are copied as well.
func (in *DeviceSpec) DeepCopy() *DeviceSpec {
	if in == nil {
		return nil
	}
	out := new(DeviceSpec)
	*out = *in
	out.Address = copyStringMap(in.Address)
	out.Custom = copyStringMap(in.Custom)
	out.SpecParams = copyValueMap(in.SpecParams)
	out.Params = copyValueMap(in.Params)
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyValueMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyValueMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}
