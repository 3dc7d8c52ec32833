// Package config holds the host configuration of the vmdev tool: where
// libvirt listens, where console sockets and claim state live, how leases
// resolve and how logs are written.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmdev/internal/hostdev"
	"github.com/jbweber/vmdev/internal/libvirt"
	"github.com/jbweber/vmdev/internal/naming"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "/etc/vmdev/vmdev.yaml"

// Config is the complete host configuration.
type Config struct {
	Libvirt  LibvirtConfig  `yaml:"libvirt"`
	Consoles ConsolesConfig `yaml:"consoles"`
	HWRNG    HWRNGConfig    `yaml:"hwrng"`
	Leases   LeasesConfig   `yaml:"leases"`
	Networks NetworksConfig `yaml:"networks"`
	Log      LogConfig      `yaml:"log"`

	// DisplayNetwork is used for graphics devices whose VM does not name one.
	DisplayNetwork string `yaml:"display_network,omitempty"`
}

// LibvirtConfig describes the libvirt connection.
type LibvirtConfig struct {
	Socket  string        `yaml:"socket,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ConsolesConfig describes the console socket directory.
type ConsolesConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Group string `yaml:"group,omitempty"` // Group owning the directory, empty to keep the current one
}

// HWRNGConfig describes the host random number generator shared with VMs.
type HWRNGConfig struct {
	Device   string `yaml:"device,omitempty"`
	StateDir string `yaml:"state_dir,omitempty"`
	QEMUConf string `yaml:"qemu_conf,omitempty"` // Read to find the user QEMU runs as
}

// LeasesConfig describes how lease targets are resolved.
type LeasesConfig struct {
	Root    string           `yaml:"root,omitempty"`
	Offset  int64            `yaml:"offset,omitempty"`
	Offsets map[string]int64 `yaml:"offsets,omitempty"` // Per lease key, overrides Offset
}

// NetworksConfig describes where display network references are kept.
type NetworksConfig struct {
	StateDir string `yaml:"state_dir,omitempty"`
}

// LogConfig describes logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text or json
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills defaults and trims user input.
// This is called automatically by LoadFromFile before validation.
func (c *Config) Normalize() {
	if c.Libvirt.Socket == "" {
		c.Libvirt.Socket = libvirt.DefaultSocket
	}
	if c.Libvirt.Timeout == 0 {
		c.Libvirt.Timeout = 5 * time.Second
	}
	if c.Consoles.Dir == "" {
		c.Consoles.Dir = naming.DefaultConsolesDir
	}
	if c.HWRNG.Device == "" {
		c.HWRNG.Device = hostdev.DefaultHWRNG
	}
	if c.HWRNG.StateDir == "" {
		c.HWRNG.StateDir = hostdev.DefaultStateDir
	}
	if c.HWRNG.QEMUConf == "" {
		c.HWRNG.QEMUConf = hostdev.DefaultQEMUConf
	}
	if c.Networks.StateDir == "" {
		c.Networks.StateDir = hostdev.DefaultStateDir
	}
	if c.Leases.Root == "" {
		c.Leases.Root = hostdev.DefaultLeaseRoot
	}
	if c.Leases.Offset == 0 {
		c.Leases.Offset = hostdev.DefaultLeaseOffset
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Network names are NOT normalized, they must match the host exactly.
	c.DisplayNetwork = strings.TrimSpace(c.DisplayNetwork)
}

// Validate checks the configuration for errors.
// Does not check that paths exist, only that they are usable as paths.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.Libvirt.Socket) {
		return fmt.Errorf("libvirt.socket must be an absolute path, got %q", c.Libvirt.Socket)
	}
	if c.Libvirt.Timeout < 0 {
		return fmt.Errorf("libvirt.timeout must be >= 0, got %s", c.Libvirt.Timeout)
	}
	if !filepath.IsAbs(c.Consoles.Dir) {
		return fmt.Errorf("consoles.dir must be an absolute path, got %q", c.Consoles.Dir)
	}
	if !filepath.IsAbs(c.HWRNG.Device) {
		return fmt.Errorf("hwrng.device must be an absolute path, got %q", c.HWRNG.Device)
	}
	if !filepath.IsAbs(c.HWRNG.StateDir) {
		return fmt.Errorf("hwrng.state_dir must be an absolute path, got %q", c.HWRNG.StateDir)
	}
	if !filepath.IsAbs(c.Networks.StateDir) {
		return fmt.Errorf("networks.state_dir must be an absolute path, got %q", c.Networks.StateDir)
	}
	if !filepath.IsAbs(c.Leases.Root) {
		return fmt.Errorf("leases.root must be an absolute path, got %q", c.Leases.Root)
	}
	if c.Leases.Offset < 0 {
		return fmt.Errorf("leases.offset must be >= 0, got %d", c.Leases.Offset)
	}
	for key, off := range c.Leases.Offsets {
		if key == "" {
			return fmt.Errorf("leases.offsets: empty lease key")
		}
		if off < 0 {
			return fmt.Errorf("leases.offsets[%s] must be >= 0, got %d", key, off)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if strings.ContainsAny(c.DisplayNetwork, " /") {
		return fmt.Errorf("display_network is not a valid network name: %q", c.DisplayNetwork)
	}
	return nil
}

// Logger builds the logger described by the Log section.
func (c *Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// LoadFromFile loads a host configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Load reads path when it exists and falls back to Default otherwise. An
// explicitly requested file must exist.
func Load(path string, explicit bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) && !explicit {
		return Default(), nil
	}
	return LoadFromFile(path)
}
