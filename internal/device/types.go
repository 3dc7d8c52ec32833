package device

import (
	"context"
	"sort"

	"github.com/beevik/etree"
)

// Tag identifies a device class. A device's tag never changes after
// construction.
type Tag string

const (
	TagConsole    Tag = "console"
	TagController Tag = "controller"
	TagSound      Tag = "sound"
	TagWatchdog   Tag = "watchdog"
	TagBalloon    Tag = "balloon"
	TagSmartcard  Tag = "smartcard"
	TagRng        Tag = "rng"
	TagTpm        Tag = "tpm"
	TagRedir      Tag = "redir"
	TagMemory     Tag = "memory"
	TagVideo      Tag = "video"
	TagInterface  Tag = "interface"
	TagGraphics   Tag = "graphics"
	TagLease      Tag = "lease"
	TagGeneric    Tag = "generic"
)

// HasTypeTag is implemented by everything that knows its device class.
type HasTypeTag interface {
	Tag() Tag
}

// HasAlias is implemented by devices carrying a libvirt alias.
type HasAlias interface {
	Alias() string
	SetAlias(alias string)
}

// HasAddress is implemented by devices carrying a bus address.
type HasAddress interface {
	Address() Address
	SetAddress(addr Address)
}

// Device is a single attachable VM device.
type Device interface {
	HasTypeTag
	HasAlias
	HasAddress

	// XML renders the device as a domain device fragment.
	XML(ctx context.Context, env *Env) (string, error)

	// Setup acquires host resources before the device is attached.
	Setup(ctx context.Context, env *Env) error

	// Teardown releases host resources after the device is detached.
	// It succeeds when there is nothing to release.
	Teardown(ctx context.Context, env *Env) error
}

// Meta is the per-VM context a codec needs to parse or build a device.
type Meta struct {
	VMID string `json:"vmId" yaml:"vmId"`

	// ConsolesDir is the directory holding console sockets.
	ConsolesDir string `json:"consolesDir,omitempty" yaml:"consolesDir,omitempty"`

	// DisplayNetwork is the network graphics devices listen on.
	DisplayNetwork string `json:"displayNetwork,omitempty" yaml:"displayNetwork,omitempty"`

	// Custom holds VM scoped overrides (vhost, sndbuf).
	Custom map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Address is a flat device bus address such as
// {type: pci, domain: 0x0000, bus: 0x00, slot: 0x03, function: 0x0}.
// A nil Address means the device has not been placed yet.
type Address map[string]string

var addressKeys = map[string][]string{
	"pci":           {"domain", "bus", "slot", "function"},
	"ccid":          {"controller", "slot"},
	"usb":           {"bus", "port"},
	"dimm":          {"slot", "base"},
	"drive":         {"controller", "bus", "unit"},
	"virtio-serial": {"controller", "bus", "port"},
}

// Type returns the address type attribute.
func (a Address) Type() string {
	return a["type"]
}

// Validate checks that an address of a known type carries all of its
// positional keys. Unknown address types are accepted as is.
func (a Address) Validate() error {
	if a == nil {
		return nil
	}
	for _, key := range addressKeys[a.Type()] {
		if a[key] == "" {
			return &AddressError{Type: a.Type(), Missing: key}
		}
	}
	return nil
}

// Clone returns a copy of the address.
func (a Address) Clone() Address {
	if a == nil {
		return nil
	}
	out := make(Address, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Address) element() *etree.Element {
	el := etree.NewElement("address")
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		el.CreateAttr(k, a[k])
	}
	return el
}

// AddressError reports a partially populated address.
type AddressError struct {
	Type    string
	Missing string
}

func (e *AddressError) Error() string {
	return "partial " + e.Type + " address: missing " + e.Missing
}

func (e *AddressError) Unwrap() error {
	return ErrMalformed
}
