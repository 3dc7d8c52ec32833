package libvirt

import (
	"fmt"

	"github.com/beevik/etree"
	"libvirt.org/go/libvirtxml"
)

// DomainOptions describes the bare domain device fragments are rendered
// into.
type DomainOptions struct {
	Name      string
	UUID      string
	MemoryMiB uint
	VCPUs     uint
}

// GenerateDomainXML wraps rendered device fragments into a minimal KVM
// domain definition, in fragment order.
func GenerateDomainXML(opts DomainOptions, fragments []string) (string, error) {
	if opts.Name == "" {
		return "", fmt.Errorf("domain name is required")
	}
	if opts.MemoryMiB == 0 {
		opts.MemoryMiB = 1024
	}
	if opts.VCPUs == 0 {
		opts.VCPUs = 1
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: opts.Name,
		UUID: opts.UUID,
		Memory: &libvirtxml.DomainMemory{
			Value: opts.MemoryMiB,
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     opts.VCPUs,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
	}

	base, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(base); err != nil {
		return "", fmt.Errorf("failed to parse domain XML: %w", err)
	}
	devices := doc.Root().SelectElement("devices")
	if devices == nil {
		devices = doc.Root().CreateElement("devices")
	}
	for i, frag := range fragments {
		fd := etree.NewDocument()
		if err := fd.ReadFromString(frag); err != nil {
			return "", fmt.Errorf("fragment %d: %w", i, err)
		}
		if fd.Root() == nil {
			return "", fmt.Errorf("fragment %d is empty", i)
		}
		devices.AddChild(fd.Root().Copy())
	}

	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to write domain XML: %w", err)
	}
	return out, nil
}
