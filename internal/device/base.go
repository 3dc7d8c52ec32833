package device

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// base carries the fields shared by every device variant.
type base struct {
	tag        Tag
	device     string
	alias      string
	address    Address
	vmID       string
	specParams map[string]interface{}
	custom     map[string]string
	vmCustom   map[string]string
}

func newBase(tag Tag, spec v1alpha1.DeviceSpec, meta Meta) (base, error) {
	addr := Address(spec.Address).Clone()
	if err := addr.Validate(); err != nil {
		return base{}, fmt.Errorf("%s: %w", tag, err)
	}
	b := base{
		tag:        tag,
		device:     spec.Device,
		alias:      spec.Alias,
		address:    addr,
		vmID:       meta.VMID,
		specParams: make(map[string]interface{}, len(spec.SpecParams)),
		custom:     make(map[string]string, len(spec.Custom)),
		vmCustom:   copyStrings(meta.Custom),
	}
	for k, v := range spec.SpecParams {
		b.specParams[k] = v
	}
	for k, v := range spec.Custom {
		b.custom[k] = v
	}
	return b, nil
}

func parseBase(tag Tag, el *etree.Element, meta Meta) (base, error) {
	addr, alias := ParseIdentity(el)
	if err := addr.Validate(); err != nil {
		return base{}, fmt.Errorf("%s: %w", tag, err)
	}
	return base{
		tag:        tag,
		device:     el.Tag,
		alias:      alias,
		address:    addr,
		vmID:       meta.VMID,
		specParams: map[string]interface{}{},
		custom:     map[string]string{},
		vmCustom:   copyStrings(meta.Custom),
	}, nil
}

func (b *base) Tag() Tag { return b.tag }

// Device returns the variant name within the class.
func (b *base) Device() string { return b.device }

func (b *base) Alias() string { return b.alias }

func (b *base) SetAlias(alias string) { b.alias = alias }

func (b *base) Address() Address { return b.address }

func (b *base) SetAddress(addr Address) { b.address = addr.Clone() }

// VMID returns the owning VM.
func (b *base) VMID() string { return b.vmID }

// SpecParams returns the device configuration for manager side decisions.
func (b *base) SpecParams() map[string]interface{} { return b.specParams }

// Custom returns the device scoped overrides.
func (b *base) Custom() map[string]string { return b.custom }

// VMCustom returns the VM scoped overrides.
func (b *base) VMCustom() map[string]string { return b.vmCustom }

// appendAddress adds the address child when the device has been placed.
func (b *base) appendAddress(el *etree.Element) {
	if b.address != nil {
		el.AddChild(b.address.element())
	}
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func marshal(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	s, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to write %s XML: %w", el.Tag, err)
	}
	return s, nil
}

func parseRoot(markup string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(markup); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return root, nil
}
