package device

import (
	"errors"
	"fmt"
	"sort"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

type codec struct {
	parse func(el *etree.Element, meta Meta) (Device, error)
	build func(spec v1alpha1.DeviceSpec, meta Meta) (Device, error)
}

var codecs = map[Tag]codec{
	TagConsole:    {parseConsole, newConsole},
	TagController: {parseController, newController},
	TagSound:      {parseSound, newSound},
	TagWatchdog:   {parseWatchdog, newWatchdog},
	TagBalloon:    {parseBalloon, newBalloon},
	TagSmartcard:  {parseSmartcard, newSmartcard},
	TagRng:        {parseRng, newRng},
	TagTpm:        {parseTpm, newTpm},
	TagRedir:      {parseRedir, newRedir},
	TagMemory:     {parseMemory, newMemory},
	TagVideo:      {parseVideo, newVideo},
	TagInterface:  {parseInterface, newInterface},
	TagGraphics:   {parseGraphics, newGraphics},
	TagLease:      {parseLease, newLease},
	TagGeneric:    {parseGeneric, newGeneric},
}

// Tags returns the device classes with a codec, sorted.
func Tags() []Tag {
	tags := make([]Tag, 0, len(codecs))
	for tag := range codecs {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func lookup(tag Tag) (codec, error) {
	c, ok := codecs[tag]
	if !ok {
		return codec{}, fmt.Errorf("%w: %q", ErrUnsupported, tag)
	}
	return c, nil
}

// Parse builds a device of the given class from its markup fragment.
func Parse(tag Tag, markup string, meta Meta) (Device, error) {
	root, err := parseRoot(markup)
	if err != nil {
		return nil, err
	}
	return ParseElement(tag, root, meta)
}

// ParseElement builds a device of the given class from a parsed element.
func ParseElement(tag Tag, el *etree.Element, meta Meta) (Device, error) {
	c, err := lookup(tag)
	if err != nil {
		return nil, err
	}
	return c.parse(el, meta)
}

// ParseAny builds a device from an element, picking the class from the
// element name.
func ParseAny(el *etree.Element, meta Meta) (Device, error) {
	return ParseElement(ClassOf(el), el, meta)
}

// ParseDomain builds every supported device of a domain definition in
// document order. Device elements without a codec are skipped.
func ParseDomain(domainXML string, meta Meta) ([]Device, error) {
	root, err := parseRoot(domainXML)
	if err != nil {
		return nil, err
	}
	devices := root.SelectElement("devices")
	if devices == nil {
		return nil, nil
	}
	var out []Device
	for _, el := range devices.ChildElements() {
		d, err := ParseAny(el, meta)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s device: %w", el.Tag, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// New builds a device from a creation request.
func New(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	c, err := lookup(Tag(spec.Type))
	if err != nil {
		return nil, err
	}
	return c.build(spec, meta)
}
