package device

import (
	"context"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/naming"
)

const defaultConsoleType = "virtio"

// Console is a guest console, either pty backed or bound to a unix socket
// the host console proxy connects to.
type Console struct {
	base
	path string
}

func newConsole(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagConsole, spec, meta)
	if err != nil {
		return nil, err
	}
	c := &Console{base: b}
	if paramBool(b.specParams, "enableSocket") {
		if b.vmID == "" {
			return nil, malformed(TagConsole, "socket console needs a vm id")
		}
		c.path = naming.ConsoleSocketPath(meta.ConsolesDir, b.vmID)
	}
	return c, nil
}

func parseConsole(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagConsole, el, meta)
	if err != nil {
		return nil, err
	}
	c := &Console{base: b}
	socket := el.SelectAttrValue("type", "pty") == "unix"
	if socket {
		c.path = childAttr(el, "source", "path")
		if c.path == "" {
			if b.vmID == "" {
				return nil, malformed(TagConsole, "socket console needs a vm id")
			}
			c.path = naming.ConsoleSocketPath(meta.ConsolesDir, b.vmID)
		}
	}
	if t := childAttr(el, "target", "type"); t != "" {
		c.specParams["consoleType"] = t
	}
	c.specParams["enableSocket"] = socket
	return c, nil
}

// ConsoleType returns the target type, virtio unless configured otherwise.
func (c *Console) ConsoleType() string {
	if t, ok := paramString(c.specParams, "consoleType"); ok && t != "" {
		return t
	}
	return defaultConsoleType
}

// IsSerial reports whether the console is a serial console, which needs a
// companion serial device (see SerialXML).
func (c *Console) IsSerial() bool {
	return c.ConsoleType() == "serial"
}

// SocketPath returns the unix socket path, or "" for pty consoles.
func (c *Console) SocketPath() string {
	return c.path
}

func (c *Console) XML(ctx context.Context, env *Env) (string, error) {
	el := c.chardev("console")
	target := el.CreateElement("target")
	target.CreateAttr("type", c.ConsoleType())
	target.CreateAttr("port", "0")
	return marshal(el)
}

// SerialXML renders the serial port backing a serial console.
func (c *Console) SerialXML() (string, error) {
	el := c.chardev("serial")
	el.CreateElement("target").CreateAttr("port", "0")
	return marshal(el)
}

func (c *Console) chardev(name string) *etree.Element {
	el := etree.NewElement(name)
	if c.path == "" {
		el.CreateAttr("type", "pty")
		return el
	}
	el.CreateAttr("type", "unix")
	src := el.CreateElement("source")
	src.CreateAttr("mode", "bind")
	src.CreateAttr("path", c.path)
	return el
}

func (c *Console) Setup(ctx context.Context, env *Env) error {
	if c.path == "" {
		return nil
	}
	if env == nil || env.Consoles == nil {
		return remote("prepare console "+c.path, ErrNoCollaborator)
	}
	env.deviceLogger(c, c.vmID).WithField("path", c.path).Debug("preparing console socket")
	return remote("prepare console "+c.path, env.Consoles.Prepare(ctx, c.path))
}

func (c *Console) Teardown(ctx context.Context, env *Env) error {
	if c.path == "" || env == nil || env.Consoles == nil {
		return nil
	}
	return remote("cleanup console "+c.path, env.Consoles.Cleanup(ctx, c.path))
}
