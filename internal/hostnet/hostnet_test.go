package hostnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/vishvananda/netlink"
)

// mockLinks is a mock implementation of linkHandle for testing.
type mockLinks struct {
	links map[string]netlink.Link
	addrs map[string][]netlink.Addr

	listErr error

	addrListCalls []string
}

func (m *mockLinks) LinkByName(name string) (netlink.Link, error) {
	l, ok := m.links[name]
	if !ok {
		return nil, netlink.LinkNotFoundError{}
	}
	return l, nil
}

func (m *mockLinks) LinkList() ([]netlink.Link, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]netlink.Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out, nil
}

func (m *mockLinks) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	m.addrListCalls = append(m.addrListCalls, link.Attrs().Name)
	return m.addrs[link.Attrs().Name], nil
}

func bridgeLink(name string, index int) *netlink.Bridge {
	return &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name, Index: index}}
}

func vlanLink(name string, master, id int) *netlink.Vlan {
	return &netlink.Vlan{LinkAttrs: netlink.LinkAttrs{Name: name, Index: 100 + id, MasterIndex: master}, VlanId: id}
}

func ipv4Addr(cidr string) netlink.Addr {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	ipnet.IP = ip
	return netlink.Addr{IPNet: ipnet}
}

func newTestInventory() (*Inventory, *mockLinks) {
	links := &mockLinks{
		links: map[string]netlink.Link{
			"ovirtmgmt": bridgeLink("ovirtmgmt", 3),
			"display":   bridgeLink("display", 4),
			"eth0.101":  vlanLink("eth0.101", 3, 101),
		},
		addrs: map[string][]netlink.Addr{
			"ovirtmgmt": {ipv4Addr("192.168.1.10/24"), ipv4Addr("192.168.1.11/24")},
		},
	}
	logger, _ := test.NewNullLogger()
	return newInventoryWithDeps(links, logger), links
}

func TestInventoryNetworkIP(t *testing.T) {
	tests := []struct {
		name    string
		network string
		want    string
		wantErr error
	}{
		{name: "first address", network: "ovirtmgmt", want: "192.168.1.10"},
		{name: "no address", network: "display", wantErr: ErrNoAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, _ := newTestInventory()
			got, err := inv.NetworkIP(context.Background(), tt.network)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("NetworkIP() error = nil, wantErr %v", tt.wantErr)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NetworkIP() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NetworkIP() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NetworkIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInventoryBridgeVLAN(t *testing.T) {
	inv, links := newTestInventory()
	ctx := context.Background()

	vlan, ok, err := inv.BridgeVLAN(ctx, "ovirtmgmt")
	if err != nil || !ok || vlan != 101 {
		t.Errorf("BridgeVLAN(ovirtmgmt) = %d, %v, %v, want 101, true, nil", vlan, ok, err)
	}
	vlan, ok, err = inv.BridgeVLAN(ctx, "display")
	if err != nil || ok || vlan != 0 {
		t.Errorf("BridgeVLAN(display) = %d, %v, %v, want 0, false, nil", vlan, ok, err)
	}

	links.listErr = errors.New("netlink closed")
	if _, _, err := inv.BridgeVLAN(ctx, "ovirtmgmt"); err == nil {
		t.Error("BridgeVLAN() error = nil, want error")
	}
}

func TestInventoryExists(t *testing.T) {
	inv, _ := newTestInventory()
	if ok, err := inv.Exists("display"); err != nil || !ok {
		t.Errorf("Exists(display) = %v, %v", ok, err)
	}
	if ok, err := inv.Exists("nope"); err != nil || ok {
		t.Errorf("Exists(nope) = %v, %v", ok, err)
	}
}

// exitError mimics *exec.ExitError.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e *exitError) ExitCode() int { return e.code }

// mockRunner records ovs-vsctl invocations and answers from a table.
type mockRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (m *mockRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	call := name + " " + strings.Join(args, " ")
	m.calls = append(m.calls, call)
	if err, ok := m.errs[call]; ok {
		return "", err
	}
	return m.outputs[call], nil
}

func installed(string) (string, error) { return "/usr/bin/ovs-vsctl", nil }

func missing(string) (string, error) { return "", errors.New("not found") }

func TestOVSBridge(t *testing.T) {
	tests := []struct {
		name     string
		lookPath func(string) (string, error)
		errs     map[string]error
		want     *bridgeResult
		wantErr  bool
		wantRuns int
	}{
		{
			name:     "ovs bridge",
			lookPath: installed,
			want:     &bridgeResult{virtualSwitch: true},
			wantRuns: 1,
		},
		{
			name:     "unknown to ovs",
			lookPath: installed,
			errs:     map[string]error{"ovs-vsctl br-exists br0": fmt.Errorf("wrapped: %w", &exitError{code: 2})},
			wantRuns: 1,
		},
		{
			name:     "ovsdb down",
			lookPath: installed,
			errs:     map[string]error{"ovs-vsctl br-exists br0": &exitError{code: 1}},
			wantErr:  true,
			wantRuns: 1,
		},
		{
			name:     "tools not installed",
			lookPath: missing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{errs: tt.errs}
			logger, _ := test.NewNullLogger()
			ovs := newOVSWithDeps(runner.run, tt.lookPath, logger)

			br, err := ovs.Bridge(context.Background(), "br0")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Bridge() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(runner.calls) != tt.wantRuns {
				t.Errorf("ran %d commands, want %d", len(runner.calls), tt.wantRuns)
			}
			if tt.want == nil {
				if br != nil {
					t.Errorf("Bridge() = %+v, want nil", br)
				}
				return
			}
			if br == nil || br.Name != "br0" || br.VirtualSwitch != tt.want.virtualSwitch {
				t.Errorf("Bridge() = %+v, want virtual switch bridge br0", br)
			}
		})
	}
}

type bridgeResult struct {
	virtualSwitch bool
}

func TestOVSNetworkVLAN(t *testing.T) {
	runner := &mockRunner{
		outputs: map[string]string{
			"ovs-vsctl br-to-vlan ovirtmgmt": "101",
			"ovs-vsctl br-to-vlan plain":     "0",
			"ovs-vsctl br-to-vlan weird":     "abc",
		},
	}
	ovs := newOVSWithDeps(runner.run, installed, nil)
	ctx := context.Background()

	vlan, ok, err := ovs.NetworkVLAN(ctx, "ovirtmgmt")
	if err != nil || !ok || vlan != 101 {
		t.Errorf("NetworkVLAN(ovirtmgmt) = %d, %v, %v", vlan, ok, err)
	}
	if _, ok, err := ovs.NetworkVLAN(ctx, "plain"); err != nil || ok {
		t.Errorf("NetworkVLAN(plain) = %v, %v, want untagged", ok, err)
	}
	if _, _, err := ovs.NetworkVLAN(ctx, "weird"); err == nil {
		t.Error("NetworkVLAN(weird) error = nil, want error")
	}

	want := []string{
		"ovs-vsctl br-to-vlan ovirtmgmt",
		"ovs-vsctl br-to-vlan plain",
		"ovs-vsctl br-to-vlan weird",
	}
	if diff := cmp.Diff(want, runner.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(fmt.Errorf("run: %w", &exitError{code: 2})); got != 2 {
		t.Errorf("exitCode() = %d, want 2", got)
	}
	if got := exitCode(errors.New("boom")); got != -1 {
		t.Errorf("exitCode() = %d, want -1", got)
	}
}
