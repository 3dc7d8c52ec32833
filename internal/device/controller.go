package device

import (
	"context"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

const (
	scsiDefaultModel          = "virtio-scsi"
	virtioSerialDefaultPorts  = "16"
	virtioSerialDefaultIndex  = "0"
	controllerIOThreadParam   = "ioThreadId"
	controllerMasterStartPort = "startport"
)

// Controller is a bus controller (ide, scsi, usb, virtio-serial, pci, ...).
// The device field holds the controller type.
type Controller struct {
	base
	index  string
	model  string
	ports  string
	master map[string]string
}

type controllerParams struct {
	Index  string            `mapstructure:"index"`
	Model  string            `mapstructure:"model"`
	Ports  string            `mapstructure:"ports"`
	Master map[string]string `mapstructure:"master"`
}

func newController(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagController, spec, meta)
	if err != nil {
		return nil, err
	}
	if b.device == "" {
		return nil, malformed(TagController, "missing controller type")
	}
	var p controllerParams
	if err := decodeParams(TagController, spec.Params, &p); err != nil {
		return nil, err
	}
	c := &Controller{base: b, index: p.Index, model: p.Model, ports: p.Ports, master: p.Master}
	c.applyDefaults()
	return c, nil
}

func parseController(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagController, el, meta)
	if err != nil {
		return nil, err
	}
	b.device = ParseTypeTag(el)
	attrs := ParseAttrs(el, "index", "model", "ports")
	c := &Controller{base: b, index: attrs["index"], model: attrs["model"], ports: attrs["ports"]}
	if m := el.SelectElement("master"); m != nil {
		c.master = ParseAttrs(m, controllerMasterStartPort)
	}
	if iothread := childAttr(el, "driver", "iothread"); iothread != "" {
		c.specParams[controllerIOThreadParam] = iothread
	}
	c.applyDefaults()
	return c, nil
}

func (c *Controller) applyDefaults() {
	switch c.device {
	case "scsi":
		if c.model == "" {
			c.model = scsiDefaultModel
		}
	case "virtio-serial":
		if c.index == "" {
			c.index = virtioSerialDefaultIndex
		}
		if c.ports == "" {
			c.ports = virtioSerialDefaultPorts
		}
	}
}

// Index returns the controller index, "" when unset.
func (c *Controller) Index() string { return c.index }

// Model returns the controller model, "" when unset.
func (c *Controller) Model() string { return c.model }

// IOThread returns the iothread the controller is pinned to.
func (c *Controller) IOThread() (string, bool) {
	return paramString(c.specParams, controllerIOThreadParam)
}

func (c *Controller) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("controller")
	el.CreateAttr("type", c.device)
	for _, attr := range [][2]string{{"index", c.index}, {"model", c.model}, {"ports", c.ports}} {
		if attr[1] != "" {
			el.CreateAttr(attr[0], attr[1])
		}
	}
	if len(c.master) > 0 {
		m := el.CreateElement("master")
		if v, ok := c.master[controllerMasterStartPort]; ok {
			m.CreateAttr(controllerMasterStartPort, v)
		}
	}
	c.appendAddress(el)
	if iothread, ok := c.IOThread(); ok {
		el.CreateElement("driver").CreateAttr("iothread", iothread)
	}
	return marshal(el)
}

func (c *Controller) Setup(ctx context.Context, env *Env) error { return nil }

func (c *Controller) Teardown(ctx context.Context, env *Env) error { return nil }

// matches pairs a live controller element with this device: same type, and
// same index and model when this device sets them.
func (c *Controller) matches(el *etree.Element) bool {
	if ParseTypeTag(el) != c.device {
		return false
	}
	if c.index != "" && el.SelectAttrValue("index", "") != c.index {
		return false
	}
	if c.model != "" && el.SelectAttrValue("model", "") != c.model {
		return false
	}
	return true
}
