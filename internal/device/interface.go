package device

import (
	"context"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

const (
	defaultInterfaceType = "bridge"
	virtioModel          = "virtio"
)

// FilterParam is one parameter of a network filter reference.
type FilterParam struct {
	Name  string `mapstructure:"name" json:"name" yaml:"name"`
	Value string `mapstructure:"value" json:"value" yaml:"value"`
}

// Interface is a guest NIC plugged into a host bridge. When the bridge is
// an Open vSwitch bridge with a VLAN assigned, the NIC is rendered as an
// OVS port tagged with that VLAN.
type Interface struct {
	base
	noHooks
	nicModel     string
	macAddr      string
	network      string
	sourceAttr   string
	bootOrder    string
	filter       string
	filterParams []FilterParam
	linkActive   *bool
	bandwidth    Bandwidth
}

type interfaceParams struct {
	NicModel         string        `mapstructure:"nicModel"`
	MacAddr          string        `mapstructure:"macAddr"`
	Network          string        `mapstructure:"network"`
	BootOrder        string        `mapstructure:"bootOrder"`
	Filter           string        `mapstructure:"filter"`
	FilterParameters []FilterParam `mapstructure:"filterParameters"`
	LinkActive       *bool         `mapstructure:"linkActive"`
}

func newInterface(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagInterface, spec, meta)
	if err != nil {
		return nil, err
	}
	var p interfaceParams
	if err := decodeParams(TagInterface, spec.Params, &p); err != nil {
		return nil, err
	}
	if p.Network == "" {
		return nil, malformed(TagInterface, "missing network")
	}
	if b.device == "" {
		b.device = defaultInterfaceType
	}
	i := &Interface{
		base:         b,
		nicModel:     p.NicModel,
		macAddr:      p.MacAddr,
		network:      p.Network,
		sourceAttr:   "bridge",
		bootOrder:    p.BootOrder,
		filter:       p.Filter,
		filterParams: p.FilterParameters,
		linkActive:   p.LinkActive,
	}
	var qos struct {
		Inbound  *Rate `mapstructure:"inbound"`
		Outbound *Rate `mapstructure:"outbound"`
	}
	if err := decodeParams(TagInterface, b.specParams, &qos); err != nil {
		return nil, err
	}
	i.bandwidth.Apply(Bandwidth{Inbound: qos.Inbound, Outbound: qos.Outbound})
	return i, nil
}

func parseInterface(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagInterface, el, meta)
	if err != nil {
		return nil, err
	}
	b.device = el.SelectAttrValue("type", defaultInterfaceType)
	i := &Interface{
		base:      b,
		nicModel:  childAttr(el, "model", "type"),
		macAddr:   childAttr(el, "mac", "address"),
		bootOrder: childAttr(el, "boot", "order"),
		filter:    childAttr(el, "filterref", "filter"),
	}
	if src := el.SelectElement("source"); src != nil {
		for _, attr := range []string{"bridge", "network"} {
			if v := src.SelectAttrValue(attr, ""); v != "" {
				i.network, i.sourceAttr = v, attr
				break
			}
		}
	}
	if i.network == "" {
		return nil, malformed(TagInterface, "missing source bridge")
	}
	if ref := el.SelectElement("filterref"); ref != nil {
		for _, p := range ref.SelectElements("parameter") {
			i.filterParams = append(i.filterParams, FilterParam{
				Name:  p.SelectAttrValue("name", ""),
				Value: p.SelectAttrValue("value", ""),
			})
		}
	}
	if state := childAttr(el, "link", "state"); state != "" {
		up := state == "up"
		i.linkActive = &up
	}
	if drv := el.SelectElement("driver"); drv != nil {
		switch drv.SelectAttrValue("name", "") {
		case "vhost":
			i.vmCustom["vhost"] = setVhost(i.vmCustom["vhost"], i.network, true)
		case "qemu":
			i.vmCustom["vhost"] = setVhost(i.vmCustom["vhost"], i.network, false)
		}
		if q := drv.SelectAttrValue("queues", ""); q != "" {
			i.custom["queues"] = q
		}
	}
	if sndbuf := el.FindElement("tune/sndbuf"); sndbuf != nil {
		i.vmCustom["sndbuf"] = strings.TrimSpace(sndbuf.Text())
	}
	if i.bandwidth, err = parseBandwidth(el.SelectElement("bandwidth")); err != nil {
		return nil, err
	}
	i.syncBandwidthParams()
	return i, nil
}

// Network returns the bridge the NIC is plugged into.
func (i *Interface) Network() string { return i.network }

// MAC returns the NIC hardware address.
func (i *Interface) MAC() string { return i.macAddr }

// NICModel returns the emulated NIC model.
func (i *Interface) NICModel() string { return i.nicModel }

// Bandwidth returns the current QoS settings.
func (i *Interface) Bandwidth() Bandwidth { return i.bandwidth }

// UpdateBandwidth merges a QoS update into the model. See Bandwidth for
// the merge rules.
func (i *Interface) UpdateBandwidth(update Bandwidth) {
	i.bandwidth.Apply(update)
	i.syncBandwidthParams()
}

func (i *Interface) syncBandwidthParams() {
	for key, r := range map[string]*Rate{"inbound": i.bandwidth.Inbound, "outbound": i.bandwidth.Outbound} {
		if r.IsEmpty() {
			delete(i.specParams, key)
			continue
		}
		i.specParams[key] = r.clone()
	}
}

func (i *Interface) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("interface")
	el.CreateAttr("type", i.device)
	i.appendAddress(el)
	if i.macAddr != "" {
		el.CreateElement("mac").CreateAttr("address", i.macAddr)
	}
	if i.nicModel != "" {
		el.CreateElement("model").CreateAttr("type", i.nicModel)
	}
	el.CreateElement("source").CreateAttr(i.sourceAttr, i.network)

	vlan, tagged, err := env.switchVLAN(ctx, i.network)
	if err != nil {
		return "", err
	}
	if tagged {
		el.CreateElement("virtualport").CreateAttr("type", "openvswitch")
		el.CreateElement("vlan").CreateElement("tag").CreateAttr("id", strconv.Itoa(vlan))
	}

	if i.linkActive != nil {
		state := "down"
		if *i.linkActive {
			state = "up"
		}
		el.CreateElement("link").CreateAttr("state", state)
	}
	if i.filter != "" {
		ref := el.CreateElement("filterref")
		ref.CreateAttr("filter", i.filter)
		for _, p := range i.filterParams {
			param := ref.CreateElement("parameter")
			param.CreateAttr("name", p.Name)
			param.CreateAttr("value", p.Value)
		}
	}
	if i.bootOrder != "" {
		el.CreateElement("boot").CreateAttr("order", i.bootOrder)
	}
	if i.nicModel == virtioModel {
		drv := el.CreateElement("driver")
		drv.CreateAttr("name", i.driverName(env))
		if q := i.custom["queues"]; q != "" {
			drv.CreateAttr("queues", q)
		}
	}
	if sndbuf, ok := i.vmCustom["sndbuf"]; ok {
		el.CreateElement("tune").CreateElement("sndbuf").SetText(sndbuf)
	}
	if bw := i.bandwidth.element(); bw != nil {
		el.AddChild(bw)
	}
	return marshal(el)
}

// driverName picks vhost or qemu from the VM vhost list, which looks like
// "net1:true,net2:false". vhost is the default.
func (i *Interface) driverName(env *Env) string {
	name := "vhost"
	for _, entry := range strings.Split(i.vmCustom["vhost"], ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		net, value, ok := strings.Cut(entry, ":")
		if !ok {
			env.deviceLogger(i, i.vmID).WithFields(logrus.Fields{
				"vhost": entry,
			}).Warn("ignoring malformed vhost entry")
			continue
		}
		if net != i.network {
			continue
		}
		if value == "false" {
			name = "qemu"
		} else {
			name = "vhost"
		}
	}
	return name
}

// setVhost sets the entry for network in a vhost list, keeping the others.
func setVhost(list, network string, on bool) string {
	entry := network + ":" + strconv.FormatBool(on)
	var out []string
	replaced := false
	for _, e := range strings.Split(list, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if net, _, _ := strings.Cut(e, ":"); net == network {
			if !replaced {
				out = append(out, entry)
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry)
	}
	return strings.Join(out, ",")
}
