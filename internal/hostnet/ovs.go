package hostnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmdev/internal/device"
)

const ovsVsctl = "ovs-vsctl"

// runFunc runs a command and returns its trimmed stdout.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// exitCode returns the process exit status wrapped in err, or -1.
func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

// OVS implements device.VSwitch on top of ovs-vsctl. Without the OVS tools
// installed every bridge is a plain Linux bridge.
type OVS struct {
	run      runFunc
	lookPath func(file string) (string, error)
	log      logrus.FieldLogger
}

// NewOVS returns a virtual switch proxy running the host ovs-vsctl.
func NewOVS(log logrus.FieldLogger) *OVS {
	return newOVSWithDeps(runCommand, exec.LookPath, log)
}

func newOVSWithDeps(run runFunc, lookPath func(string) (string, error), log logrus.FieldLogger) *OVS {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OVS{run: run, lookPath: lookPath, log: log.WithField("component", "ovs")}
}

// Installed reports whether ovs-vsctl is on PATH.
func (o *OVS) Installed() bool {
	_, err := o.lookPath(ovsVsctl)
	return err == nil
}

// Bridge returns the bridge when OVS knows it, nil otherwise.
func (o *OVS) Bridge(ctx context.Context, name string) (*device.Bridge, error) {
	if !o.Installed() {
		return nil, nil
	}
	_, err := o.run(ctx, ovsVsctl, "br-exists", name)
	if err != nil {
		// br-exists exits 2 for unknown bridges
		if exitCode(err) == 2 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query bridge %s: %w", name, err)
	}
	o.log.WithField("bridge", name).Debug("bridge is backed by openvswitch")
	return &device.Bridge{Name: name, VirtualSwitch: true}, nil
}

// NetworkVLAN returns the VLAN tag of an OVS fake bridge. Tag 0 means the
// network is untagged.
func (o *OVS) NetworkVLAN(ctx context.Context, network string) (int, bool, error) {
	out, err := o.run(ctx, ovsVsctl, "br-to-vlan", network)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query vlan of %s: %w", network, err)
	}
	vlan, err := strconv.Atoi(out)
	if err != nil {
		return 0, false, fmt.Errorf("unexpected vlan %q for %s", out, network)
	}
	if vlan == 0 {
		return 0, false, nil
	}
	return vlan, true, nil
}

var _ device.VSwitch = (*OVS)(nil)
