package libvirt

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/internal/device"
	"github.com/jbweber/vmdev/internal/metadata"
)

type domainLister interface {
	metadata.Client
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
}

// DomainInfo describes a domain and the device set stored with it.
type DomainInfo struct {
	Name  string
	State string
	// DeviceSet is empty for domains without stored metadata.
	DeviceSet string
	Phase     string
	Devices   int
}

// ListDomains lists all domains, active and inactive, with the device set
// each one carries.
func (c *Client) ListDomains(ctx context.Context, log logrus.FieldLogger) ([]DomainInfo, error) {
	return listDomains(ctx, c.libvirt, log)
}

func listDomains(_ context.Context, lv domainLister, log logrus.FieldLogger) ([]DomainInfo, error) {
	// NeedResults 1 fills the slice; flags 0 selects active and inactive.
	domains, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	infos := make([]DomainInfo, 0, len(domains))
	for _, dom := range domains {
		state, _, err := lv.DomainGetState(dom, 0)
		if err != nil {
			log.WithError(err).WithField("domain", dom.Name).Warn("failed to get domain state")
			continue
		}
		info := DomainInfo{Name: dom.Name, State: stateToString(state)}

		ds, err := metadata.Load(lv, dom)
		switch {
		case errors.Is(err, device.ErrNotFound):
		case err != nil:
			log.WithError(err).WithField("domain", dom.Name).Warn("failed to read device set")
		default:
			info.DeviceSet = ds.Name
			info.Phase = string(ds.GetPhase())
			info.Devices = len(ds.Spec.Devices)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func stateToString(state int32) string {
	switch libvirt.DomainState(state) {
	case libvirt.DomainNostate:
		return "no state"
	case libvirt.DomainRunning:
		return "running"
	case libvirt.DomainBlocked:
		return "blocked"
	case libvirt.DomainPaused:
		return "paused"
	case libvirt.DomainShutdown:
		return "shutdown"
	case libvirt.DomainShutoff:
		return "shutoff"
	case libvirt.DomainCrashed:
		return "crashed"
	case libvirt.DomainPmsuspended:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}
