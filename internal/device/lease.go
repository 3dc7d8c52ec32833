package device

import (
	"context"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// Lease is a clustered storage lease held by the VM. Key is the lease id
// and lockspace the storage domain holding it.
type Lease struct {
	base
	key       string
	lockspace string
	path      string
	offset    string
}

func newLease(spec v1alpha1.DeviceSpec, meta Meta) (Device, error) {
	b, err := newBase(TagLease, spec, meta)
	if err != nil {
		return nil, err
	}
	var p struct {
		LeaseID string `mapstructure:"lease_id"`
		SDID    string `mapstructure:"sd_id"`
		Path    string `mapstructure:"path"`
		Offset  string `mapstructure:"offset"`
	}
	if err := decodeParams(TagLease, spec.Params, &p); err != nil {
		return nil, err
	}
	l := &Lease{base: b, key: p.LeaseID, lockspace: p.SDID, path: p.Path, offset: p.Offset}
	if err := l.check(); err != nil {
		return nil, err
	}
	return l, nil
}

func parseLease(el *etree.Element, meta Meta) (Device, error) {
	b, err := parseBase(TagLease, el, meta)
	if err != nil {
		return nil, err
	}
	l := &Lease{
		base:      b,
		key:       strings.TrimSpace(childText(el, "key")),
		lockspace: strings.TrimSpace(childText(el, "lockspace")),
		path:      childAttr(el, "target", "path"),
		offset:    childAttr(el, "target", "offset"),
	}
	if err := l.check(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lease) check() error {
	if l.key == "" {
		return malformed(TagLease, "missing key")
	}
	if l.lockspace == "" {
		return malformed(TagLease, "missing lockspace")
	}
	return nil
}

// Key returns the lease id.
func (l *Lease) Key() string { return l.key }

// Lockspace returns the storage domain holding the lease.
func (l *Lease) Lockspace() string { return l.lockspace }

// Target returns the lease location; empty until resolved.
func (l *Lease) Target() (path, offset string) { return l.path, l.offset }

func (l *Lease) XML(ctx context.Context, env *Env) (string, error) {
	el := etree.NewElement("lease")
	el.CreateElement("key").SetText(l.key)
	el.CreateElement("lockspace").SetText(l.lockspace)
	target := el.CreateElement("target")
	if l.offset != "" {
		target.CreateAttr("offset", l.offset)
	}
	if l.path != "" {
		target.CreateAttr("path", l.path)
	}
	return marshal(el)
}

// Setup resolves the lease location when the request did not carry it.
func (l *Lease) Setup(ctx context.Context, env *Env) error {
	if l.path != "" && l.offset != "" {
		return nil
	}
	if env == nil || env.Leases == nil {
		return remote("resolve lease "+l.key, ErrNoCollaborator)
	}
	path, offset, err := env.Leases.LeaseInfo(ctx, l.lockspace, l.key)
	if err != nil {
		return remote("resolve lease "+l.key, err)
	}
	l.path = path
	l.offset = strconv.FormatInt(offset, 10)
	env.deviceLogger(l, l.vmID).WithFields(logrus.Fields{
		"path":   l.path,
		"offset": l.offset,
	}).Debug("resolved lease")
	return nil
}

func (l *Lease) Teardown(ctx context.Context, env *Env) error { return nil }
