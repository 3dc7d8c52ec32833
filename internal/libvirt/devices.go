package libvirt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/internal/device"
)

// domainClient is the subset of go-libvirt device hotplug needs.
// *libvirt.Libvirt satisfies it.
type domainClient interface {
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainAttachDeviceFlags(Dom libvirt.Domain, XML string, Flags uint32) error
	DomainDetachDeviceFlags(Dom libvirt.Domain, XML string, Flags uint32) error
	DomainUpdateDeviceFlags(Dom libvirt.Domain, XML string, Flags libvirt.DomainDeviceModifyFlags) error
}

// Hotplug attaches, detaches and updates devices of running domains. Host
// resources are acquired through the device Setup and Teardown hooks with
// the collaborators carried by env.
type Hotplug struct {
	client domainClient
	env    *device.Env
	log    logrus.FieldLogger
}

// NewHotplug returns a hotplug helper. env may be nil when no device needs
// host collaborators.
func NewHotplug(client domainClient, env *device.Env, log logrus.FieldLogger) *Hotplug {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hotplug{client: client, env: env, log: log.WithField("component", "hotplug")}
}

func modifyFlags(persist bool) libvirt.DomainDeviceModifyFlags {
	flags := libvirt.DomainDeviceModifyLive
	if persist {
		flags |= libvirt.DomainDeviceModifyConfig
	}
	return flags
}

func (h *Hotplug) lookup(name string) (libvirt.Domain, error) {
	dom, err := h.client.DomainLookupByName(name)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return libvirt.Domain{}, fmt.Errorf("domain %s: %w", name, device.ErrNotFound)
		}
		return libvirt.Domain{}, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	return dom, nil
}

// DomainXML returns the live definition of the domain.
func (h *Hotplug) DomainXML(ctx context.Context, name string) (string, error) {
	dom, err := h.lookup(name)
	if err != nil {
		return "", err
	}
	out, err := h.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return "", fmt.Errorf("failed to get XML of %s: %w", name, err)
	}
	return out, nil
}

// Devices parses the devices of the live domain.
func (h *Hotplug) Devices(ctx context.Context, name string, meta device.Meta) ([]device.Device, error) {
	live, err := h.DomainXML(ctx, name)
	if err != nil {
		return nil, err
	}
	return device.ParseDomain(live, meta)
}

// Attach sets the device up on the host and hotplugs it. On success the
// alias and address libvirt assigned are copied into d. A failed attach
// releases what Setup acquired.
func (h *Hotplug) Attach(ctx context.Context, name string, d device.Device, persist bool) error {
	dom, err := h.lookup(name)
	if err != nil {
		return err
	}
	log := h.log.WithFields(logrus.Fields{"domain": name, "device": d.Tag()})

	before, err := h.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return fmt.Errorf("failed to get XML of %s: %w", name, err)
	}
	if err := d.Setup(ctx, h.env); err != nil {
		return fmt.Errorf("failed to set up %s: %w", d.Tag(), err)
	}
	markup, err := d.XML(ctx, h.env)
	if err == nil {
		err = h.client.DomainAttachDeviceFlags(dom, markup, uint32(modifyFlags(persist)))
	}
	if err != nil {
		if terr := d.Teardown(ctx, h.env); terr != nil {
			log.WithError(terr).Warn("failed to tear down after attach failure")
		}
		return fmt.Errorf("failed to attach %s to %s: %w", d.Tag(), name, err)
	}
	log.Info("attached device")

	after, err := h.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		log.WithError(err).Warn("attached, but failed to read back identity")
		return nil
	}
	if err := adoptNewIdentity(before, after, d); err != nil {
		log.WithError(err).Warn("attached, but failed to read back identity")
	}
	return nil
}

// adoptNewIdentity copies the alias and address of the element of d's class
// present in after but not in before.
func adoptNewIdentity(before, after string, d device.Device) error {
	known := make(map[string]bool)
	for _, el := range deviceElements(before) {
		if alias := device.FindAlias(el); alias != "" {
			known[alias] = true
		}
	}
	for _, el := range deviceElements(after) {
		if device.ClassOf(el) != d.Tag() {
			continue
		}
		addr, alias := device.ParseIdentity(el)
		if alias == "" || known[alias] {
			continue
		}
		d.SetAlias(alias)
		if addr != nil {
			d.SetAddress(addr)
		}
		return nil
	}
	return fmt.Errorf("no new %s in domain", d.Tag())
}

func deviceElements(domainXML string) []*etree.Element {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(domainXML); err != nil {
		return nil
	}
	devices := doc.FindElement("/domain/devices")
	if devices == nil {
		return nil
	}
	return devices.ChildElements()
}

// Detach hot-unplugs the device and releases its host resources.
func (h *Hotplug) Detach(ctx context.Context, name string, d device.Device, persist bool) error {
	dom, err := h.lookup(name)
	if err != nil {
		return err
	}
	markup, err := d.XML(ctx, h.env)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", d.Tag(), err)
	}
	if err := h.client.DomainDetachDeviceFlags(dom, markup, uint32(modifyFlags(persist))); err != nil {
		return fmt.Errorf("failed to detach %s from %s: %w", d.Tag(), name, err)
	}
	h.log.WithFields(logrus.Fields{"domain": name, "device": d.Tag(), "alias": d.Alias()}).Info("detached device")
	if err := d.Teardown(ctx, h.env); err != nil {
		return fmt.Errorf("detached %s, but teardown failed: %w", d.Tag(), err)
	}
	return nil
}

// Update replaces the live configuration of the device.
func (h *Hotplug) Update(ctx context.Context, name string, d device.Device, persist bool) error {
	dom, err := h.lookup(name)
	if err != nil {
		return err
	}
	markup, err := d.XML(ctx, h.env)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", d.Tag(), err)
	}
	if err := h.client.DomainUpdateDeviceFlags(dom, markup, modifyFlags(persist)); err != nil {
		return fmt.Errorf("failed to update %s on %s: %w", d.Tag(), name, err)
	}
	return nil
}

// UpdateBandwidth merges update into the bandwidth of the live interface
// with the given MAC address. Directions missing from update are kept and
// empty directions are cleared.
func (h *Hotplug) UpdateBandwidth(ctx context.Context, name, mac string, update device.Bandwidth, persist bool) error {
	dom, err := h.lookup(name)
	if err != nil {
		return err
	}
	live, err := h.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return fmt.Errorf("failed to get XML of %s: %w", name, err)
	}
	iface, err := findInterface(live, mac)
	if err != nil {
		return err
	}
	markup, err := device.UpdateBandwidthXML(iface, update)
	if err != nil {
		return err
	}
	if err := h.client.DomainUpdateDeviceFlags(dom, markup, modifyFlags(persist)); err != nil {
		return fmt.Errorf("failed to update bandwidth of %s on %s: %w", mac, name, err)
	}
	h.log.WithFields(logrus.Fields{"domain": name, "mac": mac}).Info("updated interface bandwidth")
	return nil
}

func findInterface(domainXML, mac string) (string, error) {
	for _, el := range deviceElements(domainXML) {
		if el.Tag != "interface" {
			continue
		}
		m := el.SelectElement("mac")
		if m == nil || !strings.EqualFold(m.SelectAttrValue("address", ""), mac) {
			continue
		}
		doc := etree.NewDocument()
		doc.SetRoot(el.Copy())
		out, err := doc.WriteToString()
		if err != nil {
			return "", fmt.Errorf("failed to serialize interface %s: %w", mac, err)
		}
		return out, nil
	}
	return "", fmt.Errorf("interface %s: %w", mac, device.ErrNotFound)
}

// SetTicket sets a one-time password on the first graphics device of the
// given display type. The password expires after ttl; connected tells the
// display server what to do with clients already connected (keep,
// disconnect, fail).
func (h *Hotplug) SetTicket(ctx context.Context, name, display, password string, ttl time.Duration, connected string) error {
	dom, err := h.lookup(name)
	if err != nil {
		return err
	}
	live, err := h.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return fmt.Errorf("failed to get XML of %s: %w", name, err)
	}
	var g *device.Graphics
	for _, el := range deviceElements(live) {
		if el.Tag != "graphics" || el.SelectAttrValue("type", "") != display {
			continue
		}
		d, err := device.ParseElement(device.TagGraphics, el, device.Meta{VMID: name})
		if err != nil {
			return err
		}
		g = d.(*device.Graphics)
		break
	}
	if g == nil {
		return fmt.Errorf("%s graphics on %s: %w", display, name, device.ErrNotFound)
	}
	markup, err := g.TicketXML(ctx, h.env, password, time.Now().Add(ttl), connected)
	if err != nil {
		return err
	}
	if err := h.client.DomainUpdateDeviceFlags(dom, markup, libvirt.DomainDeviceModifyLive); err != nil {
		return fmt.Errorf("failed to set ticket on %s: %w", name, err)
	}
	return nil
}
