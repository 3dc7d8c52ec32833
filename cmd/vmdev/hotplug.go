package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/device"
	"github.com/jbweber/vmdev/internal/libvirt"
	"github.com/jbweber/vmdev/internal/metadata"
	"github.com/jbweber/vmdev/internal/status"
)

var (
	persist       bool
	storeDelete   bool
	attachIndexes []int
	attachStore   bool

	clearInbound  bool
	clearOutbound bool

	ticketDisplay   string
	ticketPassword  string
	ticketTTL       time.Duration
	ticketConnected string
)

func init() {
	for _, c := range []*cobra.Command{attachCmd, detachCmd, updateBandwidthCmd} {
		c.Flags().BoolVar(&persist, "persist", false, "also change the persistent domain definition")
	}
	storeCmd.Flags().BoolVar(&storeDelete, "delete", false, "remove the stored device set instead")
	attachCmd.Flags().IntSliceVar(&attachIndexes, "device", nil, "index into spec.devices to attach (default: all)")
	attachCmd.Flags().BoolVar(&attachStore, "store", false, "save the updated device set to domain metadata")

	bw := updateBandwidthCmd.Flags()
	for _, dir := range []string{"inbound", "outbound"} {
		for _, field := range []string{"average", "peak", "burst", "floor"} {
			bw.Int(dir+"-"+field, 0, fmt.Sprintf("%s %s rate", dir, field))
		}
	}
	bw.BoolVar(&clearInbound, "clear-inbound", false, "remove the inbound limit")
	bw.BoolVar(&clearOutbound, "clear-outbound", false, "remove the outbound limit")

	setTicketCmd.Flags().StringVar(&ticketDisplay, "display", "spice", "graphics type: spice or vnc")
	setTicketCmd.Flags().StringVar(&ticketPassword, "password", "", "one-time password (required)")
	setTicketCmd.Flags().DurationVar(&ticketTTL, "ttl", 2*time.Minute, "password lifetime")
	setTicketCmd.Flags().StringVar(&ticketConnected, "connected", "", "action for connected clients: keep, disconnect or fail")
	_ = setTicketCmd.MarkFlagRequired("password")
}

// domainMeta returns the VM context stored with the domain, falling back
// to the domain name as VM id.
func domainMeta(client *libvirt.Client, name string) (device.Meta, error) {
	dom, err := client.Libvirt().DomainLookupByName(name)
	if err != nil {
		return device.Meta{}, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	meta, err := metadata.LoadMeta(client.Libvirt(), dom)
	if err != nil {
		return device.Meta{}, err
	}
	if meta.VMID == "" {
		meta.VMID = name
	}
	return withMetaDefaults(meta), nil
}

var devicesCmd = &cobra.Command{
	Use:   "devices <domain>",
	Short: "List the devices of a running domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		meta, err := domainMeta(client, args[0])
		if err != nil {
			return err
		}
		devices, err := client.Hotplug(hostEnv(client), log).Devices(cmd.Context(), args[0], meta)
		if err != nil {
			return err
		}
		return printDevices(devices)
	},
}

var storeCmd = &cobra.Command{
	Use:   "store <domain> [deviceset.yaml]",
	Short: "Save a device set to domain metadata",
	Long: `Save a DeviceSet into the metadata of a defined domain, so later commands
(devices, detach, list) see the VM context it was built with. With --delete
the stored device set is removed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if storeDelete != (len(args) == 1) {
			return fmt.Errorf("give either a device set file or --delete")
		}
		var ds *v1alpha1.DeviceSet
		if !storeDelete {
			var err error
			if ds, _, err = loadDeviceSet(args[1]); err != nil {
				return err
			}
		}

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		if !storeDelete {
			return storeDeviceSet(client, args[0], ds)
		}
		dom, err := client.Libvirt().DomainLookupByName(args[0])
		if err != nil {
			return fmt.Errorf("failed to look up domain %s: %w", args[0], err)
		}
		if err := metadata.Delete(client.Libvirt(), dom); err != nil {
			return err
		}
		log.WithField("domain", args[0]).Info("removed device set from domain metadata")
		return nil
	},
}

func storeDeviceSet(client *libvirt.Client, name string, ds *v1alpha1.DeviceSet) error {
	dom, err := client.Libvirt().DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	if metadata.Exists(client.Libvirt(), dom) {
		log.WithField("domain", name).Debug("replacing stored device set")
	}
	if err := metadata.Store(client.Libvirt(), dom, ds); err != nil {
		return err
	}
	log.WithField("domain", name).Info("stored device set in domain metadata")
	return nil
}

var attachCmd = &cobra.Command{
	Use:   "attach <domain> <deviceset.yaml>",
	Short: "Hotplug devices into a running domain",
	Long: `Set up and hotplug the devices of a DeviceSet into a running domain.
Host resources (display networks, console sockets, the hardware RNG) are
acquired first and released again if libvirt rejects the device.

Example:
  vmdev attach vm1 nic.yaml
  vmdev attach --device 0 --device 2 --persist --store vm1 vm1.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, set, err := loadDeviceSet(args[1])
		if err != nil {
			return err
		}
		devices := set.Devices()
		selected := make([]int, 0, len(devices))
		if len(attachIndexes) == 0 {
			for i := range devices {
				selected = append(selected, i)
			}
		}
		for _, i := range attachIndexes {
			if i < 0 || i >= len(devices) {
				return fmt.Errorf("device index %d out of range (0-%d)", i, len(devices)-1)
			}
			selected = append(selected, i)
		}

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		if err := status.TransitionToAttaching(ds, args[0]); err != nil {
			return err
		}
		hp := client.Hotplug(hostEnv(client), log)
		for _, i := range selected {
			d := devices[i]
			if err := hp.Attach(cmd.Context(), args[0], d, persist); err != nil {
				status.MarkAttachFailed(ds, i, err)
				if attachStore {
					if serr := storeDeviceSet(client, args[0], ds); serr != nil {
						log.WithError(serr).Warn("failed to record attach failure")
					}
				}
				return err
			}
			ds.Spec.Devices[i].Alias = d.Alias()
			ds.Spec.Devices[i].Address = d.Address().Clone()
			fmt.Printf("✓ Attached %s %s\n", d.Tag(), d.Alias())
		}
		status.MarkAttached(ds, args[0], len(selected))

		if attachStore {
			return storeDeviceSet(client, args[0], ds)
		}
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach <domain> <alias>",
	Short: "Hot-unplug a device from a running domain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		meta, err := domainMeta(client, args[0])
		if err != nil {
			return err
		}
		hp := client.Hotplug(hostEnv(client), log)
		devices, err := hp.Devices(cmd.Context(), args[0], meta)
		if err != nil {
			return err
		}
		for _, d := range devices {
			if d.Alias() != args[1] {
				continue
			}
			if err := hp.Detach(cmd.Context(), args[0], d, persist); err != nil {
				return err
			}
			fmt.Printf("✓ Detached %s %s\n", d.Tag(), d.Alias())
			return forgetStoredAlias(client, args[0], args[1])
		}
		return fmt.Errorf("device %s on %s: %w", args[1], args[0], device.ErrNotFound)
	},
}

// forgetStoredAlias clears the alias of a detached device in the device set
// stored with the domain. A domain without a stored set is left alone.
func forgetStoredAlias(client *libvirt.Client, name, alias string) error {
	dom, err := client.Libvirt().DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	ds, err := metadata.Load(client.Libvirt(), dom)
	if errors.Is(err, device.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	live := 0
	for i := range ds.Spec.Devices {
		if ds.Spec.Devices[i].Alias == alias {
			ds.Spec.Devices[i].Alias = ""
			ds.Spec.Devices[i].Address = nil
		}
		if ds.Spec.Devices[i].Alias != "" {
			live++
		}
	}
	if live == 0 {
		if err := status.TransitionToDetached(ds); err != nil {
			log.WithError(err).Debug("device set phase left as is")
		}
	}
	return storeDeviceSet(client, name, ds)
}

var updateBandwidthCmd = &cobra.Command{
	Use:   "update-bandwidth <domain> <mac>",
	Short: "Change the QoS limits of a live interface",
	Long: `Merge new bandwidth limits into the interface with the given MAC address.
A direction with any rate flag is replaced by the given fields; a direction
with no flags is left as it is. --clear-inbound and --clear-outbound remove a limit.

Example:
  vmdev update-bandwidth vm1 52:54:00:ab:00:01 --inbound-average 1000 --inbound-burst 1024`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := bandwidthFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		if update.IsEmpty() && !clearInbound && !clearOutbound {
			return fmt.Errorf("no bandwidth change given")
		}

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		return client.Hotplug(hostEnv(client), log).UpdateBandwidth(cmd.Context(), args[0], args[1], update, persist)
	},
}

// bandwidthFromFlags builds an update from the rate flags that were set.
// A cleared direction is an empty, non-nil Rate.
func bandwidthFromFlags(flags *pflag.FlagSet) (device.Bandwidth, error) {
	var bw device.Bandwidth
	for _, dir := range []string{"inbound", "outbound"} {
		var rate *device.Rate
		for _, field := range []string{"average", "peak", "burst", "floor"} {
			name := dir + "-" + field
			if !flags.Changed(name) {
				continue
			}
			v, err := flags.GetInt(name)
			if err != nil {
				return bw, err
			}
			if v < 0 {
				return bw, fmt.Errorf("--%s must not be negative, got %d", name, v)
			}
			if rate == nil {
				rate = &device.Rate{}
			}
			switch field {
			case "average":
				rate.Average = &v
			case "peak":
				rate.Peak = &v
			case "burst":
				rate.Burst = &v
			case "floor":
				rate.Floor = &v
			}
		}
		if dir == "inbound" {
			bw.Inbound = rate
		} else {
			bw.Outbound = rate
		}
	}
	if clearInbound {
		if bw.Inbound != nil {
			return bw, fmt.Errorf("--clear-inbound conflicts with inbound rate flags")
		}
		bw.Inbound = &device.Rate{}
	}
	if clearOutbound {
		if bw.Outbound != nil {
			return bw, fmt.Errorf("--clear-outbound conflicts with outbound rate flags")
		}
		bw.Outbound = &device.Rate{}
	}
	return bw, nil
}

var setTicketCmd = &cobra.Command{
	Use:   "set-ticket <domain>",
	Short: "Set a one-time display password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ticketDisplay != "spice" && ticketDisplay != "vnc" {
			return fmt.Errorf("unsupported display %q", ticketDisplay)
		}
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		hp := client.Hotplug(hostEnv(client), log)
		if err := hp.SetTicket(cmd.Context(), args[0], ticketDisplay, ticketPassword, ticketTTL, ticketConnected); err != nil {
			return err
		}
		fmt.Printf("✓ Ticket set on %s, valid for %s\n", args[0], ticketTTL)
		return nil
	},
}
