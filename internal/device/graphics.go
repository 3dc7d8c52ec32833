package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/naming"
)

const (
	// AutoPort asks the hypervisor to pick a port.
	AutoPort = -1

	lockedPassword = "*****"
	lockedValidTo  = "1970-01-01T00:00:01"
	ticketLayout   = "2006-01-02T15:04:05"
)

// Graphics is a VNC or SPICE display. Requested ports are kept as given:
// an autoselected port stays AutoPort even after the domain is running, and
// the port the hypervisor picked is only available from LivePorts.
type Graphics struct {
	base
	port     int
	tlsPort  int
	livePort int
	liveTLS  int
	live     bool
}

func newGraphics(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagGraphics, spec, meta)
	if err != nil {
		return nil, err
	}
	if err := checkDisplay(b.device); err != nil {
		return nil, err
	}
	p := struct {
		Port    *int `mapstructure:"port"`
		TLSPort *int `mapstructure:"tlsPort"`
	}{}
	if err := decodeParams(TagGraphics, spec.Params, &p); err != nil {
		return nil, err
	}
	g := &Graphics{base: b, port: AutoPort, tlsPort: AutoPort}
	if p.Port != nil {
		g.port = *p.Port
	}
	if p.TLSPort != nil {
		g.tlsPort = *p.TLSPort
	}
	if meta.DisplayNetwork != "" {
		g.specParams["displayNetwork"] = meta.DisplayNetwork
	}
	return g, nil
}

func parseGraphics(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagGraphics, el, meta)
	if err != nil {
		return nil, err
	}
	b.device = el.SelectAttrValue("type", "")
	if err := checkDisplay(b.device); err != nil {
		return nil, err
	}
	g := &Graphics{base: b, port: AutoPort, tlsPort: AutoPort}
	port, err := portAttr(el, "port")
	if err != nil {
		return nil, err
	}
	tlsPort, err := portAttr(el, "tlsPort")
	if err != nil {
		return nil, err
	}
	// autoport is only written when every port is autoselected, so the
	// ports next to it are the hypervisor's picks.
	if el.SelectAttrValue("autoport", "") == "yes" {
		g.livePort, g.liveTLS, g.live = port, tlsPort, true
	} else {
		g.port, g.tlsPort = port, tlsPort
	}

	if v := el.SelectAttrValue("keymap", ""); v != "" {
		g.specParams["keyMap"] = v
	}
	if v := el.SelectAttrValue("defaultMode", ""); v != "" {
		g.specParams["defaultMode"] = v
	}
	if childAttr(el, "clipboard", "copypaste") == "no" {
		g.specParams["copyPasteEnable"] = false
	}
	if childAttr(el, "filetransfer", "enable") == "no" {
		g.specParams["fileTransferEnable"] = false
	}
	var secure []string
	for _, ch := range el.SelectElements("channel") {
		if ch.SelectAttrValue("mode", "") == "secure" {
			secure = append(secure, "s"+ch.SelectAttrValue("name", ""))
		}
	}
	if len(secure) > 0 {
		g.specParams["spiceSecureChannels"] = strings.Join(secure, ",")
	}

	if listen := el.SelectElement("listen"); listen != nil {
		switch listen.SelectAttrValue("type", "") {
		case "network":
			g.specParams["displayNetwork"] = naming.NetworkFromLibvirt(listen.SelectAttrValue("network", ""))
		case "address":
			g.specParams["displayIp"] = listen.SelectAttrValue("address", "")
		}
	}
	if meta.DisplayNetwork != "" {
		g.specParams["displayNetwork"] = meta.DisplayNetwork
	}
	return g, nil
}

func checkDisplay(display string) error {
	switch display {
	case "vnc", "spice":
		return nil
	}
	return fmt.Errorf("%w: display type %q", ErrUnsupported, display)
}

func portAttr(el *etree.Element, name string) (int, error) {
	raw := el.SelectAttrValue(name, "")
	if raw == "" {
		return AutoPort, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, malformed(TagGraphics, "bad %s %q", name, raw)
	}
	return n, nil
}

// Ports returns the requested ports. AutoPort means the hypervisor picks.
func (g *Graphics) Ports() (port, tlsPort int) { return g.port, g.tlsPort }

// LivePorts returns the ports the hypervisor assigned, as read from the
// markup of a running domain. ok is false when none were seen.
func (g *Graphics) LivePorts() (port, tlsPort int, ok bool) {
	return g.livePort, g.liveTLS, g.live
}

// DisplayNetwork returns the network the display listens on, or "".
func (g *Graphics) DisplayNetwork() string {
	return stringParam(g.specParams, "displayNetwork", "")
}

func (g *Graphics) XML(ctx context.Context, env *Env) (string, error) {
	el, err := g.element(ctx, env, lockedPassword, lockedValidTo)
	if err != nil {
		return "", err
	}
	return marshal(el)
}

// TicketXML renders the device with a one-time display password valid
// until validTo, for a live device update. connected is the libvirt policy
// for already connected clients (keep, disconnect, fail) and may be empty.
func (g *Graphics) TicketXML(ctx context.Context, env *Env, password string, validTo time.Time, connected string) (string, error) {
	el, err := g.element(ctx, env, password, validTo.UTC().Format(ticketLayout))
	if err != nil {
		return "", err
	}
	if connected != "" {
		el.CreateAttr("connected", connected)
	}
	return marshal(el)
}

func (g *Graphics) element(ctx context.Context, env *Env, passwd, validTo string) (*etree.Element, error) {
	el := etree.NewElement("graphics")
	el.CreateAttr("type", g.device)
	el.CreateAttr("port", strconv.Itoa(g.port))
	spice := g.device == "spice"
	if spice {
		el.CreateAttr("tlsPort", strconv.Itoa(g.tlsPort))
	}
	// autoport covers every port of the display; a mixed request keeps its
	// fixed port and leaves the -1 one to the hypervisor.
	if g.port == AutoPort && (!spice || g.tlsPort == AutoPort) {
		el.CreateAttr("autoport", "yes")
	}
	if v, ok := paramString(g.specParams, "keyMap"); ok && v != "" {
		el.CreateAttr("keymap", v)
	}
	if v, ok := paramString(g.specParams, "defaultMode"); ok && v != "" {
		el.CreateAttr("defaultMode", v)
	}
	el.CreateAttr("passwd", passwd)
	el.CreateAttr("passwdValidTo", validTo)

	if g.disabled("copyPasteEnable") {
		el.CreateElement("clipboard").CreateAttr("copypaste", "no")
	}
	if g.disabled("fileTransferEnable") {
		el.CreateElement("filetransfer").CreateAttr("enable", "no")
	}
	if spice {
		channels, _ := paramString(g.specParams, "spiceSecureChannels")
		for _, name := range strings.Split(channels, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			ch := el.CreateElement("channel")
			ch.CreateAttr("name", strings.TrimPrefix(name, "s"))
			ch.CreateAttr("mode", "secure")
		}
	}

	listen, err := g.listen(ctx, env)
	if err != nil {
		return nil, err
	}
	if listen != nil {
		el.AddChild(listen)
	}
	return el, nil
}

// disabled reports an explicitly switched off feature. Absent means on.
func (g *Graphics) disabled(key string) bool {
	v, ok := g.specParams[key]
	return ok && v != nil && !paramBool(g.specParams, key)
}

// listen resolves where the display listens. An OVS display network has
// no libvirt network behind it, so the display binds the network address
// directly.
func (g *Graphics) listen(ctx context.Context, env *Env) (*etree.Element, error) {
	el := etree.NewElement("listen")
	if net := g.DisplayNetwork(); net != "" {
		br, err := env.bridge(ctx, net)
		if err != nil {
			return nil, err
		}
		if br == nil || !br.VirtualSwitch {
			el.CreateAttr("type", "network")
			el.CreateAttr("network", naming.LibvirtNetworkName(net))
			return el, nil
		}
		if env == nil || env.Inventory == nil {
			return nil, remote("resolve display network "+net, ErrNoCollaborator)
		}
		ip, err := env.Inventory.NetworkIP(ctx, net)
		if err != nil {
			return nil, remote("resolve display network "+net, err)
		}
		el.CreateAttr("type", "address")
		el.CreateAttr("address", ip)
		return el, nil
	}
	if ip, ok := paramString(g.specParams, "displayIp"); ok && ip != "" {
		el.CreateAttr("type", "address")
		el.CreateAttr("address", ip)
		return el, nil
	}
	return nil, nil
}

// Setup creates the libvirt network a non OVS display network listens on.
func (g *Graphics) Setup(ctx context.Context, env *Env) error {
	net := g.DisplayNetwork()
	if net == "" {
		return nil
	}
	br, err := env.bridge(ctx, net)
	if err != nil {
		return err
	}
	if br != nil && br.VirtualSwitch {
		return nil
	}
	if env == nil || env.Networks == nil {
		return remote("create display network "+net, ErrNoCollaborator)
	}
	env.deviceLogger(g, g.vmID).WithField("network", net).Debug("creating display network")
	return remote("create display network "+net, env.Networks.Create(ctx, net, g.vmID))
}

// Teardown drops the VM reference on the display network. Nothing to
// release is not an error.
func (g *Graphics) Teardown(ctx context.Context, env *Env) error {
	net := g.DisplayNetwork()
	if net == "" || env == nil || env.Networks == nil {
		return nil
	}
	err := env.Networks.Delete(ctx, net, g.vmID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return remote("delete display network "+net, err)
}
