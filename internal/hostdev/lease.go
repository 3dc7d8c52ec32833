package hostdev

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/internal/device"
)

const (
	// DefaultLeaseRoot is where block storage domains expose their volumes.
	DefaultLeaseRoot = "/dev"

	// DefaultLeaseOffset is the first lease slot of the leases volume.
	DefaultLeaseOffset int64 = 1 << 20

	leasesVolume = "leases"
)

// Leases resolves lease locations on block storage domains: the lockspace
// names a domain directory holding a "leases" volume.
type Leases struct {
	root    string
	offset  int64
	offsets map[string]int64
	stat    func(string) (os.FileInfo, error)
	log     logrus.FieldLogger
}

// NewLeases resolves leases under root. offsets maps lease keys to their
// slot; keys not listed use the default offset.
func NewLeases(root string, offset int64, offsets map[string]int64, log logrus.FieldLogger) *Leases {
	if root == "" {
		root = DefaultLeaseRoot
	}
	if offset <= 0 {
		offset = DefaultLeaseOffset
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Leases{
		root:    root,
		offset:  offset,
		offsets: offsets,
		stat:    os.Stat,
		log:     log.WithField("component", "leases"),
	}
}

// LeaseInfo returns the leases volume of the lockspace and the key's offset.
// A lockspace without a leases volume yields device.ErrNotFound.
func (l *Leases) LeaseInfo(ctx context.Context, lockspace, key string) (string, int64, error) {
	if lockspace == "" || key == "" {
		return "", 0, fmt.Errorf("lockspace and key are required")
	}
	path := filepath.Join(l.root, lockspace, leasesVolume)
	if _, err := l.stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", 0, fmt.Errorf("lease volume %s: %w", path, device.ErrNotFound)
		}
		return "", 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	offset, ok := l.offsets[key]
	if !ok {
		offset = l.offset
	}
	l.log.WithFields(logrus.Fields{"lease": key, "path": path, "offset": offset}).Debug("resolved lease")
	return path, offset, nil
}

var _ device.LeaseResolver = (*Leases)(nil)
