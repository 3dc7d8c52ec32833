package hostdev

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/internal/device"
	"github.com/jbweber/vmdev/internal/naming"
)

// DefaultConsoleGroup owns the console sockets so the console proxy can
// connect to them.
const DefaultConsoleGroup = "ovirt-vmconsole"

// Consoles prepares the directory VM console sockets are bound in.
type Consoles struct {
	root        string
	group       string
	lookupGroup func(name string) (int, error)
	log         logrus.FieldLogger
}

// NewConsoles manages console sockets under root. An empty group leaves
// ownership alone.
func NewConsoles(root, group string, log logrus.FieldLogger) *Consoles {
	return newConsolesWithDeps(root, group, lookupGID, log)
}

func newConsolesWithDeps(root, group string, lookup func(string) (int, error), log logrus.FieldLogger) *Consoles {
	if root == "" {
		root = naming.DefaultConsolesDir
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consoles{
		root:        filepath.Clean(root),
		group:       group,
		lookupGroup: lookup,
		log:         log.WithField("component", "consoles"),
	}
}

func lookupGID(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}

// Prepare creates the socket directory and removes a stale socket left by a
// previous run so libvirt can bind it again.
func (c *Consoles) Prepare(ctx context.Context, path string) error {
	if err := c.check(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return fmt.Errorf("failed to create console directory: %w", err)
	}
	if c.group != "" {
		gid, err := c.lookupGroup(c.group)
		if err != nil {
			return fmt.Errorf("failed to look up group %s: %w", c.group, err)
		}
		if err := os.Chown(dir, -1, gid); err != nil {
			return fmt.Errorf("failed to chown %s: %w", dir, err)
		}
	}
	if err := os.Remove(path); err == nil {
		c.log.WithField("path", path).Debug("removed stale console socket")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

// Cleanup removes the socket. A missing socket is not an error.
func (c *Consoles) Cleanup(ctx context.Context, path string) error {
	if err := c.check(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove console socket: %w", err)
	}
	return nil
}

// check refuses paths outside the console root.
func (c *Consoles) check(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, c.root+string(filepath.Separator)) {
		return fmt.Errorf("console socket %s is outside %s", path, c.root)
	}
	return nil
}

var _ device.ChannelManager = (*Consoles)(nil)
