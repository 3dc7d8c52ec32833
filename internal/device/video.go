package device

import (
	"context"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

const (
	defaultVideoVRAM  = "32768"
	defaultVideoHeads = "1"
)

// Video is a display adapter. The device field holds the model type
// (qxl, vga, cirrus, ...).
type Video struct {
	base
	noHooks
}

func newVideo(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagVideo, spec, meta)
	if err != nil {
		return nil, err
	}
	if b.device == "" {
		return nil, malformed(TagVideo, "missing model type")
	}
	return &Video{base: b}, nil
}

func parseVideo(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagVideo, el, meta)
	if err != nil {
		return nil, err
	}
	model := el.SelectElement("model")
	b.device = childAttr(el, "model", "type")
	if b.device == "" {
		return nil, malformed(TagVideo, "missing model type")
	}
	for k, v := range ParseAttrs(model, "vram", "heads", "vgamem", "ram") {
		b.specParams[k] = v
	}
	return &Video{base: b}, nil
}

func (d *Video) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("video")
	d.appendAddress(el)
	model := el.CreateElement("model")
	model.CreateAttr("type", d.device)
	model.CreateAttr("vram", stringParam(d.specParams, "vram", defaultVideoVRAM))
	model.CreateAttr("heads", stringParam(d.specParams, "heads", defaultVideoHeads))
	for _, key := range []string{"ram", "vgamem"} {
		if v, ok := paramString(d.specParams, key); ok {
			model.CreateAttr(key, v)
		}
	}
	return marshal(el)
}
