// Package metadata keeps the DeviceSet of a VM in libvirt's custom domain
// metadata, so the creation-time device context travels with the domain
// and hotplug operations can rebuild device models without outside state.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/device"
)

const (
	// MetadataNamespace is the XML namespace of the vmdev metadata element.
	MetadataNamespace = "http://vmdev.cofront.xyz/v1alpha1"

	// MetadataKey is the element prefix libvirt uses for the namespace.
	MetadataKey = "vmdev"

	elementName = "deviceset"
)

// Client is the part of the libvirt connection the store needs.
type Client interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// Encode wraps a DeviceSet into the metadata element. The resource is kept
// as YAML text so it stays readable in virsh dumpxml.
func Encode(ds *v1alpha1.DeviceSet) (string, error) {
	data, err := yaml.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("failed to marshal device set to YAML: %w", err)
	}

	doc := etree.NewDocument()
	el := doc.CreateElement(elementName)
	el.CreateAttr("xmlns", MetadataNamespace)
	el.SetText(string(data))
	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata XML: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Decode is the inverse of Encode.
func Decode(markup string) (*v1alpha1.DeviceSet, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(markup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != elementName {
		return nil, fmt.Errorf("metadata has no %s element", elementName)
	}

	var ds v1alpha1.DeviceSet
	if err := yaml.Unmarshal([]byte(root.Text()), &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device set from YAML: %w", err)
	}
	return &ds, nil
}

// Store saves the DeviceSet on the domain, replacing earlier metadata.
func Store(c Client, domain libvirt.Domain, ds *v1alpha1.DeviceSet) error {
	markup, err := Encode(ds)
	if err != nil {
		return err
	}
	err = c.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{markup},
		libvirt.OptString{MetadataKey},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainAffectCurrent,
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}
	return nil
}

// Load reads the DeviceSet stored on the domain. A domain without vmdev
// metadata yields an error wrapping device.ErrNotFound.
func Load(c Client, domain libvirt.Domain) (*v1alpha1.DeviceSet, error) {
	markup, err := c.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainAffectCurrent,
	)
	if err != nil {
		if isNoMetadata(err) {
			return nil, fmt.Errorf("%w: no vmdev metadata on domain %s", device.ErrNotFound, domain.Name)
		}
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}
	return Decode(markup)
}

// LoadMeta returns only the per-VM device context. Domains without stored
// metadata get an empty Meta so that devices can still be parsed.
func LoadMeta(c Client, domain libvirt.Domain) (device.Meta, error) {
	ds, err := Load(c, domain)
	if err != nil {
		if isNotFound(err) {
			return device.Meta{}, nil
		}
		return device.Meta{}, err
	}
	return device.MetaFromSpec(ds), nil
}

// Delete removes the vmdev metadata from a domain. Removing metadata that
// is not there succeeds.
func Delete(c Client, domain libvirt.Domain) error {
	err := c.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{},
		libvirt.OptString{},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainAffectCurrent,
	)
	if err != nil && !isNoMetadata(err) {
		return fmt.Errorf("failed to delete libvirt domain metadata: %w", err)
	}
	return nil
}

// Exists reports whether vmdev metadata is stored on the domain.
func Exists(c Client, domain libvirt.Domain) bool {
	_, err := c.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainAffectCurrent,
	)
	return err == nil
}

func isNoMetadata(err error) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoDomainMetadata)
}

func isNotFound(err error) bool {
	return errors.Is(err, device.ErrNotFound)
}
