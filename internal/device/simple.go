package device

import (
	"context"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// noHooks gives attribute-only devices their empty lifecycle.
type noHooks struct{}

func (noHooks) Setup(ctx context.Context, env *Env) error { return nil }

func (noHooks) Teardown(ctx context.Context, env *Env) error { return nil }

// Balloon is the memory balloon.
type Balloon struct {
	base
	noHooks
}

func newBalloon(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagBalloon, spec, meta)
	if err != nil {
		return nil, err
	}
	if _, ok := paramString(b.specParams, "model"); !ok {
		return nil, malformed(TagBalloon, "missing model")
	}
	return &Balloon{base: b}, nil
}

func parseBalloon(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagBalloon, el, meta)
	if err != nil {
		return nil, err
	}
	model := el.SelectAttrValue("model", "")
	if model == "" {
		return nil, malformed(TagBalloon, "missing model")
	}
	b.specParams["model"] = model
	return &Balloon{base: b}, nil
}

func (d *Balloon) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("memballoon")
	model, _ := paramString(d.specParams, "model")
	el.CreateAttr("model", model)
	d.appendAddress(el)
	return marshal(el)
}

// Sound is an emulated sound card. The device field holds the model.
type Sound struct {
	base
	noHooks
}

func newSound(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagSound, spec, meta)
	if err != nil {
		return nil, err
	}
	if b.device == "" {
		return nil, malformed(TagSound, "missing model")
	}
	return &Sound{base: b}, nil
}

func parseSound(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagSound, el, meta)
	if err != nil {
		return nil, err
	}
	b.device = el.SelectAttrValue("model", "")
	if b.device == "" {
		return nil, malformed(TagSound, "missing model")
	}
	return &Sound{base: b}, nil
}

func (d *Sound) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("sound")
	el.CreateAttr("model", d.device)
	d.appendAddress(el)
	return marshal(el)
}

const (
	defaultWatchdogModel  = "i6300esb"
	defaultWatchdogAction = "none"
)

// Watchdog is an emulated watchdog timer.
type Watchdog struct {
	base
	noHooks
}

func newWatchdog(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagWatchdog, spec, meta)
	if err != nil {
		return nil, err
	}
	return &Watchdog{base: b}, nil
}

func parseWatchdog(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagWatchdog, el, meta)
	if err != nil {
		return nil, err
	}
	for k, v := range ParseAttrs(el, "model", "action") {
		b.specParams[k] = v
	}
	return &Watchdog{base: b}, nil
}

func (d *Watchdog) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("watchdog")
	el.CreateAttr("model", stringParam(d.specParams, "model", defaultWatchdogModel))
	el.CreateAttr("action", stringParam(d.specParams, "action", defaultWatchdogAction))
	d.appendAddress(el)
	return marshal(el)
}

// Smartcard is a smartcard reader. In host mode it has no type.
type Smartcard struct {
	base
	noHooks
}

func newSmartcard(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagSmartcard, spec, meta)
	if err != nil {
		return nil, err
	}
	if err := checkSmartcard(b.specParams); err != nil {
		return nil, err
	}
	return &Smartcard{base: b}, nil
}

func parseSmartcard(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagSmartcard, el, meta)
	if err != nil {
		return nil, err
	}
	for k, v := range ParseAttrs(el, "mode", "type") {
		b.specParams[k] = v
	}
	if err := checkSmartcard(b.specParams); err != nil {
		return nil, err
	}
	return &Smartcard{base: b}, nil
}

func checkSmartcard(params map[string]interface{}) error {
	mode, ok := paramString(params, "mode")
	if !ok || mode == "" {
		return malformed(TagSmartcard, "missing mode")
	}
	if mode != "host" {
		if t, ok := paramString(params, "type"); !ok || t == "" {
			return malformed(TagSmartcard, "missing type for mode %s", mode)
		}
	}
	return nil
}

func (d *Smartcard) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("smartcard")
	mode, _ := paramString(d.specParams, "mode")
	el.CreateAttr("mode", mode)
	if mode != "host" {
		t, _ := paramString(d.specParams, "type")
		el.CreateAttr("type", t)
	}
	d.appendAddress(el)
	return marshal(el)
}

// Tpm is a TPM passed through from the host.
type Tpm struct {
	base
	noHooks
}

func newTpm(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagTpm, spec, meta)
	if err != nil {
		return nil, err
	}
	if err := checkTpm(b.specParams); err != nil {
		return nil, err
	}
	return &Tpm{base: b}, nil
}

func parseTpm(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagTpm, el, meta)
	if err != nil {
		return nil, err
	}
	for k, v := range ParseAttrs(el, "model") {
		b.specParams[k] = v
	}
	if mode := childAttr(el, "backend", "type"); mode != "" {
		b.specParams["mode"] = mode
	}
	if path := childAttr(el, "backend/device", "path"); path != "" {
		b.specParams["path"] = path
	}
	if err := checkTpm(b.specParams); err != nil {
		return nil, err
	}
	return &Tpm{base: b}, nil
}

func checkTpm(params map[string]interface{}) error {
	for _, key := range []string{"model", "mode", "path"} {
		if v, ok := paramString(params, key); !ok || v == "" {
			return malformed(TagTpm, "missing %s", key)
		}
	}
	return nil
}

func (d *Tpm) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("tpm")
	el.CreateAttr("model", stringParam(d.specParams, "model", ""))
	backend := el.CreateElement("backend")
	backend.CreateAttr("type", stringParam(d.specParams, "mode", ""))
	backend.CreateElement("device").CreateAttr("path", stringParam(d.specParams, "path", ""))
	return marshal(el)
}

// Redir is a redirected USB device. The device field holds the type, e.g.
// spicevmc.
type Redir struct {
	base
	noHooks
	bus string
}

func newRedir(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagRedir, spec, meta)
	if err != nil {
		return nil, err
	}
	if b.device == "" {
		return nil, malformed(TagRedir, "missing type")
	}
	var p struct {
		Bus string `mapstructure:"bus"`
	}
	if err := decodeParams(TagRedir, spec.Params, &p); err != nil {
		return nil, err
	}
	return &Redir{base: b, bus: p.Bus}, nil
}

func parseRedir(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagRedir, el, meta)
	if err != nil {
		return nil, err
	}
	b.device = el.SelectAttrValue("type", "")
	if b.device == "" {
		return nil, malformed(TagRedir, "missing type")
	}
	return &Redir{base: b, bus: el.SelectAttrValue("bus", "")}, nil
}

func (d *Redir) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("redirdev")
	if d.bus != "" {
		el.CreateAttr("bus", d.bus)
	}
	el.CreateAttr("type", d.device)
	d.appendAddress(el)
	return marshal(el)
}

// Generic passes through a device no other codec models, keeping only its
// element name, type attribute and address.
type Generic struct {
	base
	noHooks
	element string
}

func newGeneric(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagGeneric, spec, meta)
	if err != nil {
		return nil, err
	}
	var p struct {
		Element string `mapstructure:"element"`
	}
	if err := decodeParams(TagGeneric, spec.Params, &p); err != nil {
		return nil, err
	}
	if p.Element == "" {
		return nil, malformed(TagGeneric, "missing element")
	}
	return &Generic{base: b, element: p.Element}, nil
}

func parseGeneric(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagGeneric, el, meta)
	if err != nil {
		return nil, err
	}
	b.device = el.SelectAttrValue("type", "")
	return &Generic{base: b, element: el.Tag}, nil
}

// Element returns the element name the device renders as.
func (d *Generic) Element() string { return d.element }

func (d *Generic) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement(d.element)
	if d.device != "" {
		el.CreateAttr("type", d.device)
	}
	d.appendAddress(el)
	return marshal(el)
}

func stringParam(params map[string]interface{}, key, dflt string) string {
	if v, ok := paramString(params, key); ok && v != "" {
		return v
	}
	return dflt
}
