package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/device"
	"github.com/jbweber/vmdev/internal/hostdev"
	"github.com/jbweber/vmdev/internal/hostnet"
	"github.com/jbweber/vmdev/internal/libvirt"
	"github.com/jbweber/vmdev/internal/loader"
)

func connect(ctx context.Context) (*libvirt.Client, error) {
	client, err := libvirt.ConnectWithContext(ctx, cfg.Libvirt.Socket, cfg.Libvirt.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	return client, nil
}

func closeClient(client *libvirt.Client) {
	if err := client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

// hostEnv wires the host collaborators described by the configuration.
// client may be nil for commands that never touch libvirt; the display
// network manager is then left out.
func hostEnv(client *libvirt.Client) *device.Env {
	env := &device.Env{
		Inventory: hostnet.NewInventory(log),
		RNG: hostdev.NewRNG(hostdev.RNGOptions{
			Device:   cfg.HWRNG.Device,
			StateDir: cfg.HWRNG.StateDir,
			QEMUConf: cfg.HWRNG.QEMUConf,
		}, log),
		Consoles: hostdev.NewConsoles(cfg.Consoles.Dir, cfg.Consoles.Group, log),
		Leases:   hostdev.NewLeases(cfg.Leases.Root, cfg.Leases.Offset, cfg.Leases.Offsets, log),
		Log:      log,
	}
	if ovs := hostnet.NewOVS(log); ovs.Installed() {
		env.Switch = ovs
	} else {
		log.Debug("ovs-vsctl not found, treating all bridges as linux bridges")
	}
	if client != nil {
		env.Networks = client.Networks(cfg.Networks.StateDir, log)
	}
	return env
}

// loadDeviceSet reads a DeviceSet and fills the VM context the file left
// to the host configuration.
func loadDeviceSet(path string) (*v1alpha1.DeviceSet, *device.Set, error) {
	ds, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, nil, err
	}
	if ds.Spec.ConsolesDir == "" {
		ds.Spec.ConsolesDir = cfg.Consoles.Dir
	}
	if ds.Spec.DisplayNetwork == "" {
		ds.Spec.DisplayNetwork = cfg.DisplayNetwork
	}
	set, err := device.NewSetFromSpec(ds)
	if err != nil {
		return nil, nil, err
	}
	return ds, set, nil
}

// withMetaDefaults is the Meta counterpart of loadDeviceSet for devices
// read back from a domain.
func withMetaDefaults(meta device.Meta) device.Meta {
	if meta.ConsolesDir == "" {
		meta.ConsolesDir = cfg.Consoles.Dir
	}
	if meta.DisplayNetwork == "" {
		meta.DisplayNetwork = cfg.DisplayNetwork
	}
	return meta
}
