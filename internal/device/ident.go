package device

import (
	"github.com/beevik/etree"
)

// ParseIdentity returns the address and alias of a device element. A missing
// address child yields nil; a missing alias, or one without a name, yields
// "". It never fails.
func ParseIdentity(el *etree.Element) (Address, string) {
	if el == nil {
		return nil, ""
	}
	var addr Address
	if a := el.SelectElement("address"); a != nil {
		addr = make(Address, len(a.Attr))
		for _, attr := range a.Attr {
			addr[attr.Key] = attr.Value
		}
	}
	return addr, FindAlias(el)
}

// FindAlias returns the name attribute of the alias child, or "".
func FindAlias(el *etree.Element) string {
	if el == nil {
		return ""
	}
	alias := el.SelectElement("alias")
	if alias == nil {
		return ""
	}
	return alias.SelectAttrValue("name", "")
}

// ParseAttrs returns the requested attributes that are present and not
// empty. el may be nil.
func ParseAttrs(el *etree.Element, names ...string) map[string]string {
	attrs := make(map[string]string, len(names))
	if el == nil {
		return attrs
	}
	for _, name := range names {
		if v := el.SelectAttrValue(name, ""); v != "" {
			attrs[name] = v
		}
	}
	return attrs
}

// ParseTypeTag returns the type attribute of a device element, falling back
// to the element name: <interface type="network"> gives "network",
// <console type="pty"> gives "pty" and <sound model="ac97"> gives "sound".
func ParseTypeTag(el *etree.Element) string {
	if t := el.SelectAttrValue("type", ""); t != "" {
		return t
	}
	return el.Tag
}

var elementClasses = map[string]Tag{
	"console":    TagConsole,
	"controller": TagController,
	"sound":      TagSound,
	"watchdog":   TagWatchdog,
	"memballoon": TagBalloon,
	"smartcard":  TagSmartcard,
	"rng":        TagRng,
	"tpm":        TagTpm,
	"redirdev":   TagRedir,
	"memory":     TagMemory,
	"video":      TagVideo,
	"interface":  TagInterface,
	"graphics":   TagGraphics,
	"lease":      TagLease,
	"channel":    TagGeneric,
}

// ClassOf maps a device element to its device class. Element names no codec
// knows come back unchanged as an opaque Tag.
func ClassOf(el *etree.Element) Tag {
	if tag, ok := elementClasses[el.Tag]; ok {
		return tag
	}
	return Tag(el.Tag)
}

// childText returns the text of a nested element, or "" when absent.
func childText(el *etree.Element, path string) string {
	if el == nil {
		return ""
	}
	c := el.FindElement(path)
	if c == nil {
		return ""
	}
	return c.Text()
}

// childAttr returns an attribute of the first matching nested element.
func childAttr(el *etree.Element, path, attr string) string {
	if el == nil {
		return ""
	}
	c := el.FindElement(path)
	if c == nil {
		return ""
	}
	return c.SelectAttrValue(attr, "")
}
