package naming

import "testing"

func TestLibvirtNetworkName(t *testing.T) {
	tests := []struct {
		name    string
		network string
		want    string
	}{
		{name: "management network", network: "ovirtmgmt", want: "vdsm-ovirtmgmt"},
		{name: "display network", network: "ovirt-test", want: "vdsm-ovirt-test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LibvirtNetworkName(tt.network)
			if got != tt.want {
				t.Errorf("LibvirtNetworkName() = %v, want %v", got, tt.want)
			}
			if back := NetworkFromLibvirt(got); back != tt.network {
				t.Errorf("NetworkFromLibvirt() = %v, want %v", back, tt.network)
			}
		})
	}
}

func TestNetworkFromLibvirtWithoutPrefix(t *testing.T) {
	if got := NetworkFromLibvirt("default"); got != "default" {
		t.Errorf("NetworkFromLibvirt() = %v, want default", got)
	}
}

func TestConsoleSocketPath(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		vmID string
		want string
	}{
		{
			name: "default dir",
			vmID: "X",
			want: "/var/run/ovirt-vmconsole-console/X.sock",
		},
		{
			name: "custom dir",
			dir:  "/tmp/consoles",
			vmID: "VMID",
			want: "/tmp/consoles/VMID.sock",
		},
		{
			name: "trailing slash",
			dir:  "/tmp/consoles/",
			vmID: "VMID",
			want: "/tmp/consoles/VMID.sock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConsoleSocketPath(tt.dir, tt.vmID); got != tt.want {
				t.Errorf("ConsoleSocketPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRNGSources(t *testing.T) {
	tests := []struct {
		source  string
		path    string
		wantErr bool
	}{
		{source: "random", path: "/dev/random"},
		{source: "urandom", path: "/dev/urandom"},
		{source: "hwrng", path: "/dev/hwrng"},
		{source: "egd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			path, err := RNGSourcePath(tt.source)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RNGSourcePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if path != tt.path {
				t.Errorf("RNGSourcePath() = %v, want %v", path, tt.path)
			}
			name, err := RNGSourceName(path)
			if err != nil {
				t.Fatalf("RNGSourceName() error = %v", err)
			}
			if name != tt.source {
				t.Errorf("RNGSourceName() = %v, want %v", name, tt.source)
			}
		})
	}
}

func TestRNGSourceNameUnknown(t *testing.T) {
	if _, err := RNGSourceName("/dev/null"); err == nil {
		t.Error("RNGSourceName() expected error for unknown device")
	}
}
