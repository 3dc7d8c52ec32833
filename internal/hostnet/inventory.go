// Package hostnet answers host network questions for device codecs: the
// address a display should listen on, whether a bridge is an Open vSwitch
// bridge and which VLAN a network carries.
//
// Inventory reads links and addresses over netlink. OVS asks ovs-vsctl.
// Both are plugged into device.Env by the command layer.
package hostnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/jbweber/vmdev/internal/device"
)

// ErrNoAddress is returned when a network has no IPv4 address.
var ErrNoAddress = errors.New("no IPv4 address")

// linkHandle is the subset of netlink the inventory needs.
type linkHandle interface {
	LinkByName(name string) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

type netlinkHandle struct{}

func (netlinkHandle) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (netlinkHandle) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

func (netlinkHandle) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

// Inventory resolves host network names to links and addresses. A network
// is looked up as the link carrying its name (the bridge or OVS internal
// port).
type Inventory struct {
	links linkHandle
	log   logrus.FieldLogger
}

// NewInventory returns an inventory backed by the host netlink socket.
func NewInventory(log logrus.FieldLogger) *Inventory {
	return newInventoryWithDeps(netlinkHandle{}, log)
}

func newInventoryWithDeps(links linkHandle, log logrus.FieldLogger) *Inventory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Inventory{links: links, log: log.WithField("component", "inventory")}
}

// NetworkIP returns the first IPv4 address of the network link.
func (i *Inventory) NetworkIP(ctx context.Context, network string) (string, error) {
	link, err := i.links.LinkByName(network)
	if err != nil {
		return "", fmt.Errorf("failed to find link %s: %w", network, err)
	}
	addrs, err := i.links.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return "", fmt.Errorf("failed to list addresses of %s: %w", network, err)
	}
	for _, addr := range addrs {
		if addr.IPNet != nil && addr.IP != nil {
			ip := addr.IP.String()
			i.log.WithFields(logrus.Fields{"network": network, "ip": ip}).Debug("resolved network address")
			return ip, nil
		}
	}
	return "", fmt.Errorf("%s: %w", network, ErrNoAddress)
}

// BridgeVLAN returns the id of the VLAN link enslaved to a Linux bridge,
// if any.
func (i *Inventory) BridgeVLAN(ctx context.Context, bridge string) (int, bool, error) {
	br, err := i.links.LinkByName(bridge)
	if err != nil {
		return 0, false, fmt.Errorf("failed to find link %s: %w", bridge, err)
	}
	links, err := i.links.LinkList()
	if err != nil {
		return 0, false, fmt.Errorf("failed to list links: %w", err)
	}
	for _, l := range links {
		vlan, ok := l.(*netlink.Vlan)
		if !ok || vlan.Attrs().MasterIndex != br.Attrs().Index {
			continue
		}
		return vlan.VlanId, true, nil
	}
	return 0, false, nil
}

// Exists reports whether a link with the given name is present.
func (i *Inventory) Exists(name string) (bool, error) {
	_, err := i.links.LinkByName(name)
	if err == nil {
		return true, nil
	}
	var notFound netlink.LinkNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to find link %s: %w", name, err)
}

var _ device.NetInventory = (*Inventory)(nil)
