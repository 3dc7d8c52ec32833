package device

import (
	"context"
	"strings"

	"github.com/beevik/etree"

	"github.com/jbweber/vmdev/api/v1alpha1"
	"github.com/jbweber/vmdev/internal/naming"
)

const hwrngSource = "hwrng"

// Rng is a virtio random number generator fed from a host source. The
// hwrng source is exclusive and has to be claimed on setup.
type Rng struct {
	base
	model string
}

func newRng(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagRng, spec, meta)
	if err != nil {
		return nil, err
	}
	var p struct {
		Model string `mapstructure:"model"`
	}
	if err := decodeParams(TagRng, spec.Params, &p); err != nil {
		return nil, err
	}
	r := &Rng{base: b, model: p.Model}
	if r.model == "" {
		r.model = b.device
	}
	if _, err := r.sourcePath(); err != nil {
		return nil, err
	}
	return r, nil
}

func parseRng(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagRng, el, meta)
	if err != nil {
		return nil, err
	}
	r := &Rng{base: b, model: el.SelectAttrValue("model", "")}
	for k, v := range ParseAttrs(el.SelectElement("rate"), "period", "bytes") {
		r.specParams[k] = v
	}
	source, err := naming.RNGSourceName(strings.TrimSpace(childText(el, "backend")))
	if err != nil {
		return nil, malformed(TagRng, "%v", err)
	}
	r.specParams["source"] = source
	return r, nil
}

// Source returns the configured source name (random, urandom or hwrng).
func (r *Rng) Source() string {
	return stringParam(r.specParams, "source", "")
}

func (r *Rng) sourcePath() (string, error) {
	path, err := naming.RNGSourcePath(r.Source())
	if err != nil {
		return "", malformed(TagRng, "%v", err)
	}
	return path, nil
}

// UsesSource reports whether the device reads from the given host device.
func (r *Rng) UsesSource(path string) bool {
	p, err := r.sourcePath()
	return err == nil && p == path
}

func (r *Rng) XML(ctx context.Context, env *Env) (string, error) {
	path, err := r.sourcePath()
	if err != nil {
		return "", err
	}
	el := etree.NewElement("rng")
	if r.model != "" {
		el.CreateAttr("model", r.model)
	}
	if bytes, ok := paramString(r.specParams, "bytes"); ok {
		rate := el.CreateElement("rate")
		rate.CreateAttr("bytes", bytes)
		if period, ok := paramString(r.specParams, "period"); ok {
			rate.CreateAttr("period", period)
		}
	}
	backend := el.CreateElement("backend")
	backend.CreateAttr("model", "random")
	backend.SetText(path)
	return marshal(el)
}

func (r *Rng) Setup(ctx context.Context, env *Env) error {
	if r.Source() != hwrngSource {
		return nil
	}
	if env == nil || env.RNG == nil {
		return remote("claim hwrng", ErrNoCollaborator)
	}
	env.deviceLogger(r, r.vmID).Debug("claiming hwrng")
	return remote("claim hwrng", env.RNG.Claim(ctx, r.vmID))
}

func (r *Rng) Teardown(ctx context.Context, env *Env) error {
	if r.Source() != hwrngSource || env == nil || env.RNG == nil {
		return nil
	}
	return remote("release hwrng", env.RNG.Release(ctx, r.vmID))
}

func (r *Rng) matches(el *etree.Element) bool {
	return r.UsesSource(strings.TrimSpace(childText(el, "backend")))
}
