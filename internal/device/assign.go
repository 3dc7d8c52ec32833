package device

import (
	"github.com/beevik/etree"
)

// matcher is implemented by devices that can tell their own live element
// apart from siblings of the same class.
type matcher interface {
	matches(el *etree.Element) bool
}

// AssignIdentity copies alias and address from a live domain definition
// into devices that do not have an alias yet. Elements are taken in
// document order per device class; devices that can recognise their own
// element only take a matching one. It returns the number of devices
// updated.
func AssignIdentity(domainXML string, devices []Device) (int, error) {
	root, err := parseRoot(domainXML)
	if err != nil {
		return 0, err
	}
	pending := map[Tag][]*etree.Element{}
	if devs := root.SelectElement("devices"); devs != nil {
		for _, el := range devs.ChildElements() {
			if FindAlias(el) == "" {
				continue
			}
			tag := ClassOf(el)
			pending[tag] = append(pending[tag], el)
		}
	}

	assigned := 0
	for _, d := range devices {
		if d.Alias() != "" {
			continue
		}
		candidates := pending[d.Tag()]
		for i, el := range candidates {
			if m, ok := d.(matcher); ok && !m.matches(el) {
				continue
			}
			addr, alias := ParseIdentity(el)
			d.SetAlias(alias)
			if addr != nil {
				d.SetAddress(addr)
			}
			pending[d.Tag()] = append(candidates[:i:i], candidates[i+1:]...)
			assigned++
			break
		}
	}
	return assigned, nil
}
