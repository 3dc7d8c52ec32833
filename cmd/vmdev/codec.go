package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmdev/internal/device"
	"github.com/jbweber/vmdev/internal/libvirt"
	"github.com/jbweber/vmdev/internal/output"
	"github.com/jbweber/vmdev/internal/status"
)

var (
	renderDomain    bool
	renderMemoryMiB uint
	renderVCPUs     uint

	parseVMID  string
	parseXML   bool
	parseClass string
)

func init() {
	renderCmd.Flags().BoolVar(&renderDomain, "domain", false, "wrap the devices into a minimal domain definition")
	renderCmd.Flags().UintVar(&renderMemoryMiB, "memory", 1024, "domain memory in MiB (with --domain)")
	renderCmd.Flags().UintVar(&renderVCPUs, "vcpus", 1, "domain vCPUs (with --domain)")

	parseCmd.Flags().StringVar(&parseVMID, "vm-id", "", "VM id to attach to the parsed devices")
	parseCmd.Flags().BoolVar(&parseXML, "xml", false, "print the devices re-rendered as XML instead of a summary")
	parseCmd.Flags().StringVar(&parseClass, "class", "", "parse a single device fragment of this class instead of a domain")
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

var renderCmd = &cobra.Command{
	Use:   "render <deviceset.yaml>",
	Short: "Render a device set as libvirt device XML",
	Long: `Render every device of a DeviceSet as a libvirt domain device fragment,
in definition order. Serial consoles are followed by their serial port.

Host collaborators (bridges, OVS VLANs, display network addresses) are
queried read-only; no device is set up.

Example:
  vmdev render vm1.yaml
  vmdev render --domain --memory 2048 vm1.yaml | virsh define /dev/stdin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, set, err := loadDeviceSet(args[0])
		if err != nil {
			return err
		}

		fragments, err := set.XML(cmd.Context(), hostEnv(nil))
		if err != nil {
			return err
		}

		if !renderDomain {
			fmt.Println(strings.Join(fragments, "\n"))
			return nil
		}
		domainXML, err := libvirt.GenerateDomainXML(libvirt.DomainOptions{
			Name:      ds.Name,
			UUID:      ds.Spec.VMID,
			MemoryMiB: renderMemoryMiB,
			VCPUs:     renderVCPUs,
		}, fragments)
		if err != nil {
			return err
		}
		fmt.Print(domainXML)
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <domain.xml|->",
	Short: "Parse devices from libvirt domain XML",
	Long: `Parse the devices of a libvirt domain definition into device models and
list them. Device elements vdsm does not model (disks, hostdevs) are skipped.

With --class a single device fragment is parsed instead, e.g.
  virsh dumpxml vm1 | xmllint --xpath '//interface[1]' - | vmdev parse --class interface -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markup, err := readInput(args[0])
		if err != nil {
			return err
		}
		meta := withMetaDefaults(device.Meta{VMID: parseVMID})

		var devices []device.Device
		if parseClass != "" {
			d, err := device.Parse(device.Tag(parseClass), markup, meta)
			if err != nil {
				return err
			}
			devices = []device.Device{d}
		} else {
			devices, err = device.ParseDomain(markup, meta)
			if err != nil {
				return err
			}
		}

		if parseXML {
			return printFragments(cmd, devices)
		}
		return printDevices(devices)
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify <deviceset.yaml> <domain.xml|->",
	Short: "Copy aliases and addresses from a live domain into a device set",
	Long: `Match the devices of a DeviceSet against the devices of a running domain
and copy the alias and bus address libvirt assigned. Devices that already
have an alias are left alone. The updated DeviceSet is printed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, set, err := loadDeviceSet(args[0])
		if err != nil {
			return err
		}
		domainXML, err := readInput(args[1])
		if err != nil {
			return err
		}

		n, err := device.AssignIdentity(domainXML, set.Devices())
		if err != nil {
			return err
		}
		log.WithField("vm", ds.Name).Infof("assigned identity to %d device(s)", n)

		for i, d := range set.Devices() {
			ds.Spec.Devices[i].Alias = d.Alias()
			ds.Spec.Devices[i].Address = d.Address().Clone()
		}
		status.MarkIdentified(ds, n)

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		if outputFormat == string(output.FormatTable) {
			return printDevices(set.Devices())
		}
		result, err := formatter.FormatDeviceSet(ds)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}

func printDevices(devices []device.Device) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}
	result, err := formatter.FormatDevices(output.Summarize(devices))
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(result)
	return nil
}

func printFragments(cmd *cobra.Command, devices []device.Device) error {
	env := hostEnv(nil)
	for _, d := range devices {
		frag, err := d.XML(cmd.Context(), env)
		if err != nil {
			return fmt.Errorf("failed to render %s device: %w", d.Tag(), err)
		}
		fmt.Println(frag)
	}
	return nil
}
