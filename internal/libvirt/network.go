package libvirt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmdev/internal/device"
	"github.com/jbweber/vmdev/internal/naming"
)

// networkClient is the subset of go-libvirt the network manager needs.
// *libvirt.Libvirt satisfies it.
type networkClient interface {
	NetworkLookupByName(Name string) (libvirt.Network, error)
	NetworkDefineXML(XML string) (libvirt.Network, error)
	NetworkCreate(Net libvirt.Network) error
	NetworkDestroy(Net libvirt.Network) error
	NetworkUndefine(Net libvirt.Network) error
}

// Networks defines the bridged libvirt networks graphics devices listen on.
// A network is shared by every VM referencing it and removed with the last
// reference. The references live in a state file when one is configured,
// so a detach in one process releases what an attach in another created.
type Networks struct {
	client networkClient
	log    logrus.FieldLogger
	refs   refStore
}

// NewNetworks returns a network manager backed by client. References are
// kept in {stateDir}/networks.yaml, or only in memory when stateDir is
// empty.
func NewNetworks(client networkClient, stateDir string, log logrus.FieldLogger) *Networks {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "networks")
	var refs refStore = newMemoryRefs()
	if stateDir != "" {
		refs = newFileRefs(filepath.Join(stateDir, "networks.yaml"), log)
	}
	return &Networks{client: client, log: log, refs: refs}
}

// NetworkXML returns the definition of the libvirt network bridging to the
// host network.
func NetworkXML(network string) (string, error) {
	n := &libvirtxml.Network{
		Name:    naming.LibvirtNetworkName(network),
		Forward: &libvirtxml.NetworkForward{Mode: "bridge"},
		Bridge:  &libvirtxml.NetworkBridge{Name: network},
	}
	out, err := n.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal network XML: %w", err)
	}
	return out, nil
}

// Create makes sure the libvirt network for the host network exists and
// records vmID as a user.
func (n *Networks) Create(ctx context.Context, network, vmID string) error {
	name := naming.LibvirtNetworkName(network)
	log := n.log.WithFields(logrus.Fields{"network": name, "vmId": vmID})

	return n.refs.update(ctx, func(r networkRefs) error {
		if len(r[name]) == 0 {
			_, err := n.client.NetworkLookupByName(name)
			switch {
			case err == nil:
				log.Debug("network already defined")
			case isNoNetwork(err):
				if err := n.define(network); err != nil {
					return err
				}
				log.Info("created network")
			default:
				return fmt.Errorf("failed to look up network %s: %w", name, err)
			}
		}
		r.add(name, vmID)
		return nil
	})
}

func (n *Networks) define(network string) error {
	xml, err := NetworkXML(network)
	if err != nil {
		return err
	}
	net, err := n.client.NetworkDefineXML(xml)
	if err != nil {
		return fmt.Errorf("failed to define network %s: %w", naming.LibvirtNetworkName(network), err)
	}
	if err := n.client.NetworkCreate(net); err != nil {
		if uerr := n.client.NetworkUndefine(net); uerr != nil {
			n.log.WithError(uerr).Warn("failed to undefine network after create failure")
		}
		return fmt.Errorf("failed to start network %s: %w", net.Name, err)
	}
	return nil
}

// Delete drops the reference of vmID and removes the network once nobody
// uses it. It returns device.ErrNotFound when vmID holds no reference. A
// failed removal keeps the reference so the delete can be retried.
func (n *Networks) Delete(ctx context.Context, network, vmID string) error {
	name := naming.LibvirtNetworkName(network)

	return n.refs.update(ctx, func(r networkRefs) error {
		if !r.remove(name, vmID) {
			return fmt.Errorf("network %s has no reference from %s: %w", name, vmID, device.ErrNotFound)
		}
		if len(r[name]) > 0 {
			return nil
		}

		net, err := n.client.NetworkLookupByName(name)
		if isNoNetwork(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up network %s: %w", name, err)
		}
		if err := n.client.NetworkDestroy(net); err != nil && !isNoNetwork(err) {
			return fmt.Errorf("failed to stop network %s: %w", name, err)
		}
		if err := n.client.NetworkUndefine(net); err != nil && !isNoNetwork(err) {
			return fmt.Errorf("failed to undefine network %s: %w", name, err)
		}
		n.log.WithField("network", name).Info("removed network")
		return nil
	})
}

// Users returns the VMs referencing the network, sorted.
func (n *Networks) Users(ctx context.Context, network string) ([]string, error) {
	var out []string
	err := n.refs.view(ctx, func(r networkRefs) {
		out = append(out, r[naming.LibvirtNetworkName(network)]...)
	})
	return out, err
}

func isNoNetwork(err error) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoNetwork)
}

var _ device.NetworkManager = (*Networks)(nil)
