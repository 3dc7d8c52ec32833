package hostdev

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jbweber/vmdev/internal/device"
)

type chownCall struct {
	Path string
	UID  int
	GID  int
}

type mockChown struct {
	mu    sync.Mutex
	err   error
	calls []chownCall
}

func (m *mockChown) chown(path string, uid, gid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, chownCall{path, uid, gid})
	return m.err
}

func newTestRNG(t *testing.T) (*RNG, *mockChown) {
	t.Helper()
	chown := &mockChown{}
	logger, _ := test.NewNullLogger()
	owner := func() (Owner, error) { return Owner{UID: 107, GID: 36}, nil }
	r := newRNGWithDeps("/dev/hwrng", filepath.Join(t.TempDir(), "state", "hwrng.yaml"), owner, chown.chown, logger)
	return r, chown
}

func TestRNGClaimRelease(t *testing.T) {
	ctx := context.Background()
	r, chown := newTestRNG(t)

	if err := r.Claim(ctx, "vm1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := r.Claim(ctx, "vm1"); err != nil {
		t.Fatalf("Claim() by owner error = %v", err)
	}
	if err := r.Claim(ctx, "vm2"); !errors.Is(err, ErrClaimed) {
		t.Fatalf("Claim() by vm2 error = %v, want ErrClaimed", err)
	}
	owner, err := r.Owner(ctx)
	if err != nil || owner != "vm1" {
		t.Errorf("Owner() = %q, %v, want vm1", owner, err)
	}

	// vm2 never held it
	if err := r.Release(ctx, "vm2"); err != nil {
		t.Fatalf("Release() by vm2 error = %v", err)
	}
	if err := r.Release(ctx, "vm1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := r.Release(ctx, "vm1"); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if err := r.Claim(ctx, "vm2"); err != nil {
		t.Fatalf("Claim() after release error = %v", err)
	}

	want := []chownCall{
		{"/dev/hwrng", 107, 36},
		{"/dev/hwrng", 0, 0},
		{"/dev/hwrng", 107, 36},
	}
	if diff := cmp.Diff(want, chown.calls); diff != "" {
		t.Errorf("chown calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRNGClaimChownFailure(t *testing.T) {
	ctx := context.Background()
	r, chown := newTestRNG(t)
	chown.err = errors.New("operation not permitted")

	if err := r.Claim(ctx, "vm1"); err == nil {
		t.Fatal("Claim() error = nil, want error")
	}
	owner, err := r.Owner(ctx)
	if err != nil || owner != "" {
		t.Errorf("Owner() = %q, %v, want no owner after failed claim", owner, err)
	}
}

func TestRNGSharedState(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestRNG(t)
	b := newRNGWithDeps(a.device, a.statePath, a.owner, (&mockChown{}).chown, nil)

	if err := a.Claim(ctx, "vm1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := b.Claim(ctx, "vm2"); !errors.Is(err, ErrClaimed) {
		t.Errorf("Claim() through second registry error = %v, want ErrClaimed", err)
	}
}

func TestRNGCorruptState(t *testing.T) {
	r, _ := newTestRNG(t)
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(r.statePath, []byte("owner: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Claim(context.Background(), "vm1"); err == nil {
		t.Error("Claim() error = nil, want parse error")
	}
}

func TestParseQEMUConf(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantUser  string
		wantGroup string
	}{
		{
			name:      "double quotes",
			content:   "# QEMU configuration\nuser = \"qemu\"\ngroup = \"kvm\"\n",
			wantUser:  "qemu",
			wantGroup: "kvm",
		},
		{
			name:      "single quotes",
			content:   "user = 'libvirt-qemu'\ngroup = 'libvirt-qemu'\n",
			wantUser:  "libvirt-qemu",
			wantGroup: "libvirt-qemu",
		},
		{
			name:    "commented out",
			content: "#user = \"qemu\"\n# group = \"qemu\"\n",
		},
		{
			name:     "similar keys are ignored",
			content:  "user = \"qemu\"\nuser_namespace = 1\n",
			wantUser: "qemu",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, g := parseQEMUConf(strings.NewReader(tt.content))
			if u != tt.wantUser || g != tt.wantGroup {
				t.Errorf("parseQEMUConf() = %q, %q, want %q, %q", u, g, tt.wantUser, tt.wantGroup)
			}
		})
	}
}

func TestQEMUOwner(t *testing.T) {
	// values depend on the host; a missing conf falls back but never fails
	owner, err := QEMUOwner(filepath.Join(t.TempDir(), "missing.conf"))
	if owner.UID < 0 || owner.GID < 0 {
		t.Errorf("QEMUOwner() = %+v", owner)
	}
	if err != nil {
		t.Logf("fallback: %v", err)
	}
}

func TestOwnerFromStrings(t *testing.T) {
	if o, err := ownerFromStrings("107", "36"); err != nil || o != (Owner{107, 36}) {
		t.Errorf("ownerFromStrings() = %+v, %v", o, err)
	}
	if _, err := ownerFromStrings("qemu", "36"); err == nil {
		t.Error("ownerFromStrings() error = nil, want error")
	}
}

func TestConsolesPrepare(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "consoles")
	var looked []string
	lookup := func(name string) (int, error) {
		looked = append(looked, name)
		return os.Getgid(), nil
	}
	c := newConsolesWithDeps(root, "ovirt-vmconsole", lookup, nil)
	sock := filepath.Join(root, "vm1.sock")

	if err := c.Prepare(ctx, sock); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		t.Fatalf("console root not created: %v", err)
	}
	if diff := cmp.Diff([]string{"ovirt-vmconsole"}, looked); diff != "" {
		t.Errorf("group lookups mismatch (-want +got):\n%s", diff)
	}

	// stale socket from a previous run
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Prepare(ctx, sock); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("stale socket still present: %v", err)
	}
}

func TestConsolesPrepareGroupLookupFails(t *testing.T) {
	root := t.TempDir()
	c := newConsolesWithDeps(root, "nogroup", func(string) (int, error) {
		return 0, errors.New("unknown group")
	}, nil)
	if err := c.Prepare(context.Background(), filepath.Join(root, "vm1.sock")); err == nil {
		t.Error("Prepare() error = nil, want error")
	}
}

func TestConsolesCleanup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	c := NewConsoles(root, "", nil)
	sock := filepath.Join(root, "vm1.sock")
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := c.Cleanup(ctx, sock); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if err := c.Cleanup(ctx, sock); err != nil {
		t.Fatalf("second Cleanup() error = %v", err)
	}
	if err := c.Cleanup(ctx, "/etc/passwd"); err == nil {
		t.Error("Cleanup() outside root error = nil, want error")
	}
	if err := c.Prepare(ctx, filepath.Join(root, "..", "escape.sock")); err == nil {
		t.Error("Prepare() outside root error = nil, want error")
	}
}

func TestLeasesLeaseInfo(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sd1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sd1", "leases"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLeases(root, 0, map[string]int64{"vol2": 3 << 20}, nil)

	path, offset, err := l.LeaseInfo(ctx, "sd1", "vol1")
	if err != nil {
		t.Fatalf("LeaseInfo() error = %v", err)
	}
	if path != filepath.Join(root, "sd1", "leases") || offset != DefaultLeaseOffset {
		t.Errorf("LeaseInfo() = %s, %d", path, offset)
	}
	if _, offset, _ := l.LeaseInfo(ctx, "sd1", "vol2"); offset != 3<<20 {
		t.Errorf("LeaseInfo(vol2) offset = %d, want %d", offset, 3<<20)
	}
	if _, _, err := l.LeaseInfo(ctx, "sd2", "vol1"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("LeaseInfo(missing) error = %v, want ErrNotFound", err)
	}
	if _, _, err := l.LeaseInfo(ctx, "", "vol1"); err == nil {
		t.Error("LeaseInfo() without lockspace error = nil, want error")
	}
}

func TestLeaseDeviceSetup(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sd1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sd1", "leases"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := device.Parse(device.TagLease, `<lease><key>vol1</key><lockspace>sd1</lockspace><target path="" offset=""/></lease>`, device.Meta{VMID: "vm1"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	env := &device.Env{Leases: NewLeases(root, 0, nil, nil)}
	if err := d.Setup(context.Background(), env); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	out, err := d.XML(context.Background(), env)
	if err != nil {
		t.Fatalf("XML() error = %v", err)
	}
	if !strings.Contains(out, `offset="1048576"`) || !strings.Contains(out, filepath.Join(root, "sd1", "leases")) {
		t.Errorf("XML() = %s, want resolved target", out)
	}
}
