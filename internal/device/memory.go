package device

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

const defaultMemoryModel = "dimm"

// Memory is a hot-pluggable DIMM. Sizes are given in MiB and rendered in KiB.
type Memory struct {
	base
	noHooks
	model   string
	sizeKiB int64
	node    int
}

func newMemory(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagMemory, spec, meta)
	if err != nil {
		return nil, err
	}
	var p struct {
		Size *int64 `mapstructure:"size"`
		Node *int   `mapstructure:"node"`
	}
	if err := decodeParams(TagMemory, spec.Params, &p); err != nil {
		return nil, err
	}
	if p.Size == nil {
		return nil, malformed(TagMemory, "missing size")
	}
	if p.Node == nil {
		return nil, malformed(TagMemory, "missing node")
	}
	if *p.Size <= 0 {
		return nil, malformed(TagMemory, "size must be positive, got %d", *p.Size)
	}
	return &Memory{base: b, model: defaultMemoryModel, sizeKiB: *p.Size * 1024, node: *p.Node}, nil
}

func parseMemory(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagMemory, el, meta)
	if err != nil {
		return nil, err
	}
	m := &Memory{base: b, model: el.SelectAttrValue("model", defaultMemoryModel)}
	size := el.FindElement("target/size")
	if size == nil {
		return nil, malformed(TagMemory, "missing target size")
	}
	m.sizeKiB, err = toKiB(strings.TrimSpace(size.Text()), size.SelectAttrValue("unit", "KiB"))
	if err != nil {
		return nil, err
	}
	node := strings.TrimSpace(childText(el, "target/node"))
	if node == "" {
		return nil, malformed(TagMemory, "missing target node")
	}
	m.node, err = strconv.Atoi(node)
	if err != nil {
		return nil, malformed(TagMemory, "bad node %q", node)
	}
	return m, nil
}

// unitBytes lists the libvirt scaled integer units, binary and decimal.
var unitBytes = map[string]int64{
	"b": 1, "bytes": 1,
	"KB": 1000, "k": 1 << 10, "KiB": 1 << 10,
	"MB": 1000 * 1000, "M": 1 << 20, "MiB": 1 << 20,
	"GB": 1000 * 1000 * 1000, "G": 1 << 30, "GiB": 1 << 30,
	"TB": 1000 * 1000 * 1000 * 1000, "T": 1 << 40, "TiB": 1 << 40,
}

// toKiB converts a libvirt size to KiB, rounding up partial KiB the way
// libvirt does.
func toKiB(value, unit string) (int64, error) {
	mult, ok := unitBytes[unit]
	if !ok {
		return 0, malformed(TagMemory, "unsupported size unit %q", unit)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, malformed(TagMemory, "bad size %q", value)
	}
	if n > math.MaxInt64/mult {
		return 0, malformed(TagMemory, "size %s%s overflows", value, unit)
	}
	b := n * mult
	kib := b / 1024
	if b%1024 != 0 {
		kib++
	}
	return kib, nil
}

// SizeMiB returns the DIMM size in MiB.
func (m *Memory) SizeMiB() int64 { return m.sizeKiB / 1024 }

// Node returns the guest NUMA node the DIMM is plugged into.
func (m *Memory) Node() int { return m.node }

func (m *Memory) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("memory")
	el.CreateAttr("model", m.model)
	target := el.CreateElement("target")
	size := target.CreateElement("size")
	size.CreateAttr("unit", "KiB")
	size.SetText(strconv.FormatInt(m.sizeKiB, 10))
	target.CreateElement("node").SetText(strconv.Itoa(m.node))
	if m.alias != "" {
		el.CreateElement("alias").CreateAttr("name", m.alias)
	}
	m.appendAddress(el)
	return marshal(el)
}

// matches pairs a live DIMM with this device by node and size.
func (m *Memory) matches(el *etree.Element) bool {
	node, err := strconv.Atoi(strings.TrimSpace(childText(el, "target/node")))
	if err != nil || node != m.node {
		return false
	}
	size := el.FindElement("target/size")
	if size == nil {
		return false
	}
	kib, err := toKiB(strings.TrimSpace(size.Text()), size.SelectAttrValue("unit", "KiB"))
	return err == nil && kib == m.sizeKiB
}
