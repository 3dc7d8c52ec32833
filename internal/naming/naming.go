// Package naming provides host-level naming conventions for the resources
// devices depend on: libvirt display networks, console sockets and RNG
// sources.
//
// These rules are shared by the device codecs and the host collaborators so
// both sides agree on names without talking to each other.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// NetworkPrefix prefixes every libvirt network created for a host network.
	NetworkPrefix = "vdsm-"

	// DefaultConsolesDir is where console sockets live by default.
	DefaultConsolesDir = "/var/run/ovirt-vmconsole-console"

	// ConsoleSocketExt is appended to the VM id to name its console socket.
	ConsoleSocketExt = ".sock"
)

// LibvirtNetworkName returns the libvirt network name for a host network.
//
// Example: ovirtmgmt → vdsm-ovirtmgmt
func LibvirtNetworkName(network string) string {
	return NetworkPrefix + network
}

// NetworkFromLibvirt strips the libvirt prefix from a network name. Names
// without the prefix are returned unchanged.
func NetworkFromLibvirt(name string) string {
	return strings.TrimPrefix(name, NetworkPrefix)
}

// ConsoleSocketPath returns the console socket of a VM.
// Format: {dir}/{vmID}.sock, dir defaults to DefaultConsolesDir.
func ConsoleSocketPath(dir, vmID string) string {
	if dir == "" {
		dir = DefaultConsolesDir
	}
	return filepath.Join(dir, vmID+ConsoleSocketExt)
}

var rngSources = map[string]string{
	"random":  "/dev/random",
	"urandom": "/dev/urandom",
	"hwrng":   "/dev/hwrng",
}

// RNGSourcePath returns the host device backing a named RNG source.
func RNGSourcePath(source string) (string, error) {
	path, ok := rngSources[source]
	if !ok {
		return "", fmt.Errorf("unknown rng source: %s", source)
	}
	return path, nil
}

// RNGSourceName is the inverse of RNGSourcePath.
func RNGSourceName(path string) (string, error) {
	for name, p := range rngSources {
		if p == path {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown rng device: %s", path)
}
