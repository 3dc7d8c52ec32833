package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmdev.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadFromFile_ValidConfig(t *testing.T) {
	path := writeConfig(t, `libvirt:
  socket: /run/libvirt/libvirt-sock
  timeout: 10s
consoles:
  dir: /run/consoles
  group: kvm
hwrng:
  state_dir: /tmp/vmdev
leases:
  root: /rhev/data-center/mnt
  offsets:
    SDM: 1048576
    vm-lease: 3145728
log:
  level: DEBUG
  format: json
display_network: ovirtmgmt
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Libvirt.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %s", config.Libvirt.Timeout)
	}
	if config.Consoles.Dir != "/run/consoles" || config.Consoles.Group != "kvm" {
		t.Errorf("Unexpected consoles section: %+v", config.Consoles)
	}
	if config.HWRNG.StateDir != "/tmp/vmdev" {
		t.Errorf("Expected state dir '/tmp/vmdev', got %q", config.HWRNG.StateDir)
	}
	if config.HWRNG.Device != "/dev/hwrng" {
		t.Errorf("Expected default hwrng device, got %q", config.HWRNG.Device)
	}
	if diff := cmp.Diff(map[string]int64{"SDM": 1 << 20, "vm-lease": 3 << 20}, config.Leases.Offsets); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	if config.Leases.Offset != 1<<20 {
		t.Errorf("Expected default lease offset, got %d", config.Leases.Offset)
	}
	if config.Log.Level != "debug" {
		t.Errorf("Expected normalized level 'debug', got %q", config.Log.Level)
	}
	if config.DisplayNetwork != "ovirtmgmt" {
		t.Errorf("Expected display network 'ovirtmgmt', got %q", config.DisplayNetwork)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid YAML",
			content: "libvirt: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "relative socket",
			content: "libvirt:\n  socket: libvirt-sock\n",
			wantErr: "libvirt.socket",
		},
		{
			name:    "negative timeout",
			content: "libvirt:\n  timeout: -1s\n",
			wantErr: "libvirt.timeout",
		},
		{
			name:    "relative consoles dir",
			content: "consoles:\n  dir: consoles\n",
			wantErr: "consoles.dir",
		},
		{
			name:    "relative networks state dir",
			content: "networks:\n  state_dir: state\n",
			wantErr: "networks.state_dir",
		},
		{
			name:    "negative lease offset",
			content: "leases:\n  offset: -512\n",
			wantErr: "leases.offset",
		},
		{
			name:    "negative per key offset",
			content: "leases:\n  offsets:\n    SDM: -1\n",
			wantErr: "leases.offsets[SDM]",
		},
		{
			name:    "unknown log level",
			content: "log:\n  level: chatty\n",
			wantErr: "log.level",
		},
		{
			name:    "unknown log format",
			content: "log:\n  format: xml\n",
			wantErr: "log.format",
		},
		{
			name:    "bad display network",
			content: "display_network: ovirt mgmt\n",
			wantErr: "display_network",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/vmdev.yaml"); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	config, err := Load(missing, false)
	if err != nil {
		t.Fatalf("Load() of missing default file failed: %v", err)
	}
	if diff := cmp.Diff(Default(), config); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if _, err := Load(missing, true); err == nil {
		t.Error("Expected error for missing explicit file, got nil")
	}

	config, err = Load(writeConfig(t, "display_network: display\n"), true)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if config.DisplayNetwork != "display" {
		t.Errorf("Expected display network 'display', got %q", config.DisplayNetwork)
	}
}

func TestDefault(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config does not validate: %v", err)
	}
	if config.Libvirt.Socket != "/var/run/libvirt/libvirt-sock" {
		t.Errorf("Unexpected default socket %q", config.Libvirt.Socket)
	}
	if config.Log.Level != "info" || config.Log.Format != "text" {
		t.Errorf("Unexpected default log config %+v", config.Log)
	}
	if config.Networks.StateDir != "/var/lib/vmdev" {
		t.Errorf("Unexpected default networks state dir %q", config.Networks.StateDir)
	}
}

func TestLogger(t *testing.T) {
	config := Default()
	config.Log.Level = "warn"
	config.Log.Format = "json"

	log, err := config.Logger()
	if err != nil {
		t.Fatalf("Logger() failed: %v", err)
	}
	if log.GetLevel() != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %s", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", log.Formatter)
	}

	config.Log.Level = "loud"
	if _, err := config.Logger(); err == nil {
		t.Error("Expected error for unknown level, got nil")
	}
}
