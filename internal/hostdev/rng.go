// Package hostdev manages the host side of passthrough-style devices: the
// hardware RNG handed to a single VM, the console socket directory and the
// lease areas on shared storage.
package hostdev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmdev/internal/device"
)

const (
	// DefaultHWRNG is the host hardware random number generator.
	DefaultHWRNG = "/dev/hwrng"

	// DefaultStateDir holds the claim records.
	DefaultStateDir = "/var/lib/vmdev"

	lockRetry = 50 * time.Millisecond
)

// ErrClaimed is returned when another VM holds the hardware RNG.
var ErrClaimed = errors.New("hwrng claimed by another vm")

// claim is the on-disk record of the VM owning the device.
type claim struct {
	Owner     string    `yaml:"owner"`
	Device    string    `yaml:"device"`
	ClaimedAt time.Time `yaml:"claimedAt"`
}

// RNG hands the host hardware RNG to one VM at a time. The claim survives
// process restarts in a YAML file guarded by a file lock, so concurrent
// commands on the same host agree on the owner.
type RNG struct {
	device    string
	statePath string
	owner     func() (Owner, error)
	chown     func(path string, uid, gid int) error
	log       logrus.FieldLogger
}

// RNGOptions configures NewRNG. Empty fields take the defaults.
type RNGOptions struct {
	Device   string
	StateDir string
	QEMUConf string
}

// NewRNG returns a claim registry for the host hardware RNG.
func NewRNG(opts RNGOptions, log logrus.FieldLogger) *RNG {
	if opts.Device == "" {
		opts.Device = DefaultHWRNG
	}
	if opts.StateDir == "" {
		opts.StateDir = DefaultStateDir
	}
	if opts.QEMUConf == "" {
		opts.QEMUConf = DefaultQEMUConf
	}
	conf := opts.QEMUConf
	return newRNGWithDeps(opts.Device, filepath.Join(opts.StateDir, "hwrng.yaml"),
		func() (Owner, error) { return QEMUOwner(conf) }, os.Chown, log)
}

func newRNGWithDeps(dev, statePath string, owner func() (Owner, error),
	chown func(string, int, int) error, log logrus.FieldLogger) *RNG {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RNG{
		device:    dev,
		statePath: statePath,
		owner:     owner,
		chown:     chown,
		log:       log.WithField("component", "hwrng"),
	}
}

// Claim gives vmID exclusive use of the device and hands it to the QEMU
// user. Claiming again for the current owner is a no-op.
func (r *RNG) Claim(ctx context.Context, vmID string) error {
	return r.locked(ctx, func() error {
		c, err := r.load()
		if err != nil {
			return err
		}
		if c != nil {
			if c.Owner == vmID {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrClaimed, c.Owner)
		}

		owner, err := r.owner()
		if err != nil {
			r.log.WithError(err).Warn("using fallback qemu owner")
		}
		if err := r.chown(r.device, owner.UID, owner.GID); err != nil {
			return fmt.Errorf("failed to chown %s: %w", r.device, err)
		}
		if err := r.store(&claim{Owner: vmID, Device: r.device, ClaimedAt: time.Now().UTC()}); err != nil {
			return err
		}
		r.log.WithFields(logrus.Fields{"vmId": vmID, "device": r.device}).Info("claimed hwrng")
		return nil
	})
}

// Release gives the device back to root. Releasing a device the VM does
// not hold is a no-op.
func (r *RNG) Release(ctx context.Context, vmID string) error {
	return r.locked(ctx, func() error {
		c, err := r.load()
		if err != nil {
			return err
		}
		if c == nil || c.Owner != vmID {
			r.log.WithField("vmId", vmID).Debug("hwrng not held, nothing to release")
			return nil
		}
		if err := r.chown(r.device, 0, 0); err != nil {
			return fmt.Errorf("failed to chown %s: %w", r.device, err)
		}
		if err := os.Remove(r.statePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove claim: %w", err)
		}
		r.log.WithField("vmId", vmID).Info("released hwrng")
		return nil
	})
}

// Owner returns the VM currently holding the device, or "".
func (r *RNG) Owner(ctx context.Context) (string, error) {
	var owner string
	err := r.locked(ctx, func() error {
		c, err := r.load()
		if c != nil {
			owner = c.Owner
		}
		return err
	})
	return owner, err
}

func (r *RNG) locked(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	lock := flock.New(r.statePath + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to lock hwrng state: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to lock hwrng state: %w", ctx.Err())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.log.WithError(err).Warn("failed to unlock hwrng state")
		}
	}()
	return fn()
}

func (r *RNG) load() (*claim, error) {
	data, err := os.ReadFile(r.statePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read claim: %w", err)
	}
	var c claim
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse claim %s: %w", r.statePath, err)
	}
	if c.Owner == "" {
		return nil, nil
	}
	return &c, nil
}

func (r *RNG) store(c *claim) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}
	tmp := r.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write claim: %w", err)
	}
	if err := os.Rename(tmp, r.statePath); err != nil {
		return fmt.Errorf("failed to write claim: %w", err)
	}
	return nil
}

var _ device.HWRNG = (*RNG)(nil)
