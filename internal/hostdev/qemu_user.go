package hostdev

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// DefaultQEMUConf is where libvirt configures the user QEMU runs as.
const DefaultQEMUConf = "/etc/libvirt/qemu.conf"

// fallbackQEMUID is the Fedora/RHEL uid and gid of the qemu user.
const fallbackQEMUID = 107

// Owner is a numeric uid/gid pair.
type Owner struct {
	UID int
	GID int
}

// parseQEMUConf extracts the user and group settings from qemu.conf.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}

// QEMUOwner resolves the uid and gid QEMU processes run as. It reads the
// configured user from confPath, then tries the common account names and
// finally falls back to 107:107 with a non-nil error.
func QEMUOwner(confPath string) (Owner, error) {
	var username, groupname string
	if f, err := os.Open(confPath); err == nil {
		username, groupname = parseQEMUConf(f)
		_ = f.Close()
	}

	candidates := []string{"qemu", "libvirt-qemu"}
	if username != "" {
		candidates = append([]string{username}, candidates...)
	}
	for _, name := range candidates {
		u, err := user.Lookup(name)
		if err != nil {
			continue
		}
		gid := u.Gid
		if name == username && groupname != "" {
			if g, err := user.LookupGroup(groupname); err == nil {
				gid = g.Gid
			}
		}
		return ownerFromStrings(u.Uid, gid)
	}

	return Owner{UID: fallbackQEMUID, GID: fallbackQEMUID},
		fmt.Errorf("could not determine QEMU user/group, using fallback %d:%d", fallbackQEMUID, fallbackQEMUID)
}

func ownerFromStrings(uid, gid string) (Owner, error) {
	u, err := strconv.Atoi(uid)
	if err != nil {
		return Owner{}, fmt.Errorf("invalid uid %q: %w", uid, err)
	}
	g, err := strconv.Atoi(gid)
	if err != nil {
		return Owner{}, fmt.Errorf("invalid gid %q: %w", gid, err)
	}
	return Owner{UID: u, GID: g}, nil
}
