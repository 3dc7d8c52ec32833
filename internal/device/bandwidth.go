package device

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/spf13/cast"
)

// Rate is one direction of interface QoS. Nil fields are not rendered.
type Rate struct {
	Average *int `mapstructure:"average" json:"average,omitempty" yaml:"average,omitempty"`
	Peak    *int `mapstructure:"peak" json:"peak,omitempty" yaml:"peak,omitempty"`
	Burst   *int `mapstructure:"burst" json:"burst,omitempty" yaml:"burst,omitempty"`
	Floor   *int `mapstructure:"floor" json:"floor,omitempty" yaml:"floor,omitempty"`
}

// IsEmpty reports whether no value is set.
func (r *Rate) IsEmpty() bool {
	return r == nil || (r.Average == nil && r.Peak == nil && r.Burst == nil && r.Floor == nil)
}

func (r *Rate) fields() []struct {
	name  string
	value *int
} {
	return []struct {
		name  string
		value *int
	}{
		{"average", r.Average},
		{"peak", r.Peak},
		{"burst", r.Burst},
		{"floor", r.Floor},
	}
}

func (r *Rate) element(direction string) *etree.Element {
	el := etree.NewElement(direction)
	for _, f := range r.fields() {
		if f.value != nil {
			el.CreateAttr(f.name, strconv.Itoa(*f.value))
		}
	}
	return el
}

func (r *Rate) clone() *Rate {
	if r == nil {
		return nil
	}
	return &Rate{
		Average: copyInt(r.Average),
		Peak:    copyInt(r.Peak),
		Burst:   copyInt(r.Burst),
		Floor:   copyInt(r.Floor),
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func parseRate(el *etree.Element) (*Rate, error) {
	if el == nil {
		return nil, nil
	}
	r := &Rate{}
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"average", &r.Average},
		{"peak", &r.Peak},
		{"burst", &r.Burst},
		{"floor", &r.Floor},
	} {
		raw := el.SelectAttrValue(f.name, "")
		if raw == "" {
			continue
		}
		v, err := cast.ToIntE(raw)
		if err != nil {
			return nil, malformed(TagInterface, "bad %s %s %q", el.Tag, f.name, raw)
		}
		*f.dst = &v
	}
	return r, nil
}

// Bandwidth is the inbound and outbound QoS of an interface.
//
// Used as an update, a nil direction leaves the current one untouched, a
// direction with values replaces the current one wholesale and an empty,
// non-nil direction removes it.
type Bandwidth struct {
	Inbound  *Rate `mapstructure:"inbound" json:"inbound,omitempty" yaml:"inbound,omitempty"`
	Outbound *Rate `mapstructure:"outbound" json:"outbound,omitempty" yaml:"outbound,omitempty"`
}

// IsEmpty reports whether neither direction carries a value.
func (b Bandwidth) IsEmpty() bool {
	return b.Inbound.IsEmpty() && b.Outbound.IsEmpty()
}

// Apply merges an update into b.
func (b *Bandwidth) Apply(update Bandwidth) {
	if update.Inbound != nil {
		b.Inbound = nil
		if !update.Inbound.IsEmpty() {
			b.Inbound = update.Inbound.clone()
		}
	}
	if update.Outbound != nil {
		b.Outbound = nil
		if !update.Outbound.IsEmpty() {
			b.Outbound = update.Outbound.clone()
		}
	}
}

func (b Bandwidth) element() *etree.Element {
	if b.IsEmpty() {
		return nil
	}
	el := etree.NewElement("bandwidth")
	if !b.Inbound.IsEmpty() {
		el.AddChild(b.Inbound.element("inbound"))
	}
	if !b.Outbound.IsEmpty() {
		el.AddChild(b.Outbound.element("outbound"))
	}
	return el
}

func parseBandwidth(el *etree.Element) (Bandwidth, error) {
	var b Bandwidth
	if el == nil {
		return b, nil
	}
	var err error
	if b.Inbound, err = parseRate(el.SelectElement("inbound")); err != nil {
		return b, err
	}
	if b.Outbound, err = parseRate(el.SelectElement("outbound")); err != nil {
		return b, err
	}
	return b, nil
}

// UpdateBandwidthXML merges a QoS update into serialized interface markup
// and returns the new markup. See Bandwidth for the merge rules.
func UpdateBandwidthXML(markup string, update Bandwidth) (string, error) {
	root, err := parseRoot(markup)
	if err != nil {
		return "", err
	}
	if root.Tag != "interface" {
		return "", malformed(TagInterface, "expected interface element, got %s", root.Tag)
	}
	applyBandwidthXML(root, update)
	return marshal(root)
}

func applyBandwidthXML(iface *etree.Element, update Bandwidth) {
	bw := iface.SelectElement("bandwidth")
	if bw == nil {
		if update.IsEmpty() {
			return
		}
		bw = iface.CreateElement("bandwidth")
	}
	replaceDirection(bw, "inbound", update.Inbound, 0)
	replaceDirection(bw, "outbound", update.Outbound, -1)
	if len(bw.ChildElements()) == 0 {
		iface.RemoveChild(bw)
	}
}

// replaceDirection swaps one direction element in place. New elements go
// to position at (or the end when at is negative).
func replaceDirection(bw *etree.Element, direction string, r *Rate, at int) {
	if r == nil {
		return
	}
	if old := bw.SelectElement(direction); old != nil {
		at = old.Index()
		bw.RemoveChildAt(at)
	}
	if r.IsEmpty() {
		return
	}
	if at < 0 || at > len(bw.Child) {
		bw.AddChild(r.element(direction))
		return
	}
	bw.InsertChildAt(at, r.element(direction))
}
