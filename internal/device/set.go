package device

import (
	"context"
	"fmt"

	multierr "github.com/hashicorp/go-multierror"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// Set holds the devices of one VM in definition order.
type Set struct {
	meta    Meta
	devices []Device
}

// NewSet groups already built devices.
func NewSet(meta Meta, devices ...Device) *Set {
	return &Set{meta: meta, devices: devices}
}

// NewSetFromSpec builds every device of a device set resource.
func NewSetFromSpec(ds *v1alpha1.DeviceSet) (*Set, error) {
	meta := MetaFromSpec(ds)
	s := &Set{meta: meta}
	for i, spec := range ds.Spec.Devices {
		d, err := New(spec, meta)
		if err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i, spec.Type, err)
		}
		s.devices = append(s.devices, d)
	}
	return s, nil
}

// MetaFromSpec extracts the per-VM context of a device set resource.
func MetaFromSpec(ds *v1alpha1.DeviceSet) Meta {
	return Meta{
		VMID:           ds.Spec.VMID,
		ConsolesDir:    ds.Spec.ConsolesDir,
		DisplayNetwork: ds.Spec.DisplayNetwork,
		Custom:         copyStrings(ds.Spec.Custom),
	}
}

// Meta returns the VM context the set was built with.
func (s *Set) Meta() Meta { return s.meta }

// Devices returns the devices in definition order.
func (s *Set) Devices() []Device { return s.devices }

// ByTag returns the devices of one class.
func (s *Set) ByTag(tag Tag) []Device {
	var out []Device
	for _, d := range s.devices {
		if d.Tag() == tag {
			out = append(out, d)
		}
	}
	return out
}

// XML renders every device fragment in order. Serial consoles are followed
// by their companion serial port.
func (s *Set) XML(ctx context.Context, env *Env) ([]string, error) {
	out := make([]string, 0, len(s.devices))
	for _, d := range s.devices {
		frag, err := d.XML(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s device: %w", d.Tag(), err)
		}
		out = append(out, frag)
		if c, ok := d.(*Console); ok && c.IsSerial() {
			serial, err := c.SerialXML()
			if err != nil {
				return nil, err
			}
			out = append(out, serial)
		}
	}
	return out, nil
}

// SetupAll runs every device setup in order. When one fails, the devices
// already set up are torn down in reverse order and the setup error is
// returned.
func (s *Set) SetupAll(ctx context.Context, env *Env) error {
	for i, d := range s.devices {
		if err := d.Setup(ctx, env); err != nil {
			for j := i - 1; j >= 0; j-- {
				if terr := s.devices[j].Teardown(ctx, env); terr != nil {
					env.deviceLogger(s.devices[j], s.meta.VMID).WithError(terr).Warn("rollback teardown failed")
				}
			}
			return fmt.Errorf("failed to set up %s device: %w", d.Tag(), err)
		}
	}
	return nil
}

// TeardownAll tears every device down, continuing past failures, and
// returns all errors together.
func (s *Set) TeardownAll(ctx context.Context, env *Env) error {
	var result *multierr.Error
	for i := len(s.devices) - 1; i >= 0; i-- {
		d := s.devices[i]
		if err := d.Teardown(ctx, env); err != nil {
			result = multierr.Append(result, fmt.Errorf("%s: %w", d.Tag(), err))
		}
	}
	return result.ErrorOrNil()
}
