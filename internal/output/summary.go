package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jbweber/vmdev/internal/device"
)

// DeviceSummary is the listing form of a device.
type DeviceSummary struct {
	Type    string `json:"type" yaml:"type"`
	Device  string `json:"device,omitempty" yaml:"device,omitempty"`
	Alias   string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DomainSummary is the listing form of a libvirt domain and the device set
// stored with it.
type DomainSummary struct {
	Name      string `json:"name" yaml:"name"`
	State     string `json:"state" yaml:"state"`
	DeviceSet string `json:"deviceSet,omitempty" yaml:"deviceSet,omitempty"`
	Phase     string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Devices   int    `json:"devices" yaml:"devices"`
}

type variant interface {
	Device() string
}

// Summarize lists devices in the given order.
func Summarize(devices []device.Device) []DeviceSummary {
	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		s := DeviceSummary{
			Type:    string(d.Tag()),
			Alias:   d.Alias(),
			Address: FormatAddress(d.Address()),
			Detail:  detail(d),
		}
		if v, ok := d.(variant); ok {
			s.Device = v.Device()
		}
		out = append(out, s)
	}
	return out
}

// FormatAddress renders an address as "pci bus=0x00 domain=0x0000 ...",
// type first and the positional keys sorted.
func FormatAddress(addr device.Address) string {
	if len(addr) == 0 {
		return ""
	}
	keys := make([]string, 0, len(addr))
	for k := range addr {
		if k != "type" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(addr))
	if t := addr.Type(); t != "" {
		parts = append(parts, t)
	}
	for _, k := range keys {
		parts = append(parts, k+"="+addr[k])
	}
	return strings.Join(parts, " ")
}

func detail(d device.Device) string {
	switch v := d.(type) {
	case *device.Interface:
		if v.MAC() == "" {
			return v.Network()
		}
		return fmt.Sprintf("%s %s", v.Network(), v.MAC())
	case *device.Graphics:
		if port, tls, ok := v.LivePorts(); ok {
			return fmt.Sprintf("port=%d tlsPort=%d", port, tls)
		}
		return "autoport"
	case *device.Console:
		if p := v.SocketPath(); p != "" {
			return p
		}
		return v.ConsoleType()
	case *device.Controller:
		if v.Model() == "" {
			return "index=" + v.Index()
		}
		return fmt.Sprintf("index=%s model=%s", v.Index(), v.Model())
	case *device.Lease:
		return fmt.Sprintf("%s@%s", v.Key(), v.Lockspace())
	}
	return ""
}
