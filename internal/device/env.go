package device

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Bridge describes a host bridge as seen by the virtual switch.
type Bridge struct {
	Name string
	// VirtualSwitch is true when the bridge is backed by Open vSwitch.
	VirtualSwitch bool
}

// VSwitch answers virtual switch questions about bridges and networks.
type VSwitch interface {
	// Bridge returns the bridge metadata, or nil when the name is unknown
	// to the switch.
	Bridge(ctx context.Context, name string) (*Bridge, error)

	// NetworkVLAN returns the VLAN assigned to a network, if any.
	NetworkVLAN(ctx context.Context, network string) (int, bool, error)
}

// NetInventory resolves host network addresses.
type NetInventory interface {
	NetworkIP(ctx context.Context, network string) (string, error)
}

// HWRNG hands out exclusive access to the host hardware RNG.
type HWRNG interface {
	Claim(ctx context.Context, vmID string) error
	Release(ctx context.Context, vmID string) error
}

// NetworkManager creates and deletes the libvirt networks graphics devices
// listen on. Delete returns ErrNotFound when the VM holds no reference.
type NetworkManager interface {
	Create(ctx context.Context, network, vmID string) error
	Delete(ctx context.Context, network, vmID string) error
}

// ChannelManager prepares and removes console sockets.
type ChannelManager interface {
	Prepare(ctx context.Context, path string) error
	Cleanup(ctx context.Context, path string) error
}

// LeaseResolver finds where a lease lives on shared storage.
type LeaseResolver interface {
	LeaseInfo(ctx context.Context, lockspace, key string) (path string, offset int64, err error)
}

// Env carries the collaborators devices reach during serialization, setup
// and teardown. A nil Env, or a nil field, means the collaborator is not
// available: lookups fall back to plain host bridges and setup steps that
// need it fail with ErrNoCollaborator.
type Env struct {
	Switch    VSwitch
	Inventory NetInventory
	RNG       HWRNG
	Networks  NetworkManager
	Consoles  ChannelManager
	Leases    LeaseResolver
	Log       logrus.FieldLogger
}

func (e *Env) logger() logrus.FieldLogger {
	if e == nil || e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

func (e *Env) deviceLogger(d Device, vmID string) logrus.FieldLogger {
	return e.logger().WithFields(logrus.Fields{
		"device": d.Tag(),
		"vmId":   vmID,
	})
}

// bridge looks the name up on the virtual switch. Without a switch every
// bridge is a plain Linux bridge.
func (e *Env) bridge(ctx context.Context, name string) (*Bridge, error) {
	if e == nil || e.Switch == nil {
		return nil, nil
	}
	br, err := e.Switch.Bridge(ctx, name)
	if err != nil {
		return nil, remote("vswitch bridge "+name, err)
	}
	return br, nil
}

// switchVLAN returns the VLAN to tag a device with when name is a virtual
// switch bridge with a VLAN assigned.
func (e *Env) switchVLAN(ctx context.Context, name string) (int, bool, error) {
	br, err := e.bridge(ctx, name)
	if err != nil || br == nil || !br.VirtualSwitch {
		return 0, false, err
	}
	vlan, ok, err := e.Switch.NetworkVLAN(ctx, name)
	if err != nil {
		return 0, false, remote("vswitch vlan "+name, err)
	}
	return vlan, ok, nil
}
