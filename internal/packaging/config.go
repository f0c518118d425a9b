// Package packaging installs plexvpn as a set of systemd services on Linux hosts.
package packaging

import (
	"errors"
	"path/filepath"
)

// InstallConfig holds the configuration for installing plexvpn as a systemd service.
// InstallConfig is passed as a constructor argument, no file I/O in this package.
type InstallConfig struct {
	// BinaryPath is the path to install the plexvpn binary.
	// Default: /usr/local/bin/plexvpn
	BinaryPath string

	// ConfigDir is the configuration directory.
	// Default: /etc/plexvpn
	ConfigDir string

	// DataDir holds the private key and user settings.
	// Default: /var/lib/plexvpn
	DataDir string

	// RunDir holds the control socket.
	// Default: /var/run/plexvpn
	RunDir string

	// UnitDir is the directory the systemd unit files are written to.
	// Default: /etc/systemd/system
	UnitDir string

	// ServiceName is the systemd service name of the daemon.
	// Default: plexvpn
	ServiceName string

	// EarlyBootServiceName is the oneshot service that blocks traffic
	// before the network comes up.
	// Default: plexvpn-early-boot-blocking
	EarlyBootServiceName string

	// EarlyBoot installs and enables the early boot blocking service.
	EarlyBoot bool

	// Start enables and starts the daemon after installing it.
	Start bool

	// Peer fills the peer section of a freshly written config (optional).
	Peer PeerTemplate
}

// PeerTemplate is the peer written into a default config.
type PeerTemplate struct {
	Endpoint  string
	PublicKey string
	Address   string
	DNS       string
}

// DefaultBinaryPath is the default path to install the plexvpn binary.
const DefaultBinaryPath = "/usr/local/bin/plexvpn"

// DefaultConfigDir is the default configuration directory.
const DefaultConfigDir = "/etc/plexvpn"

// DefaultDataDir is the default data directory.
const DefaultDataDir = "/var/lib/plexvpn"

// DefaultRunDir is the default runtime directory.
const DefaultRunDir = "/var/run/plexvpn"

// DefaultUnitDir is the default systemd unit directory.
const DefaultUnitDir = "/etc/systemd/system"

// DefaultServiceName is the default systemd service name.
const DefaultServiceName = "plexvpn"

// DefaultEarlyBootServiceName is the default early boot service name.
const DefaultEarlyBootServiceName = "plexvpn-early-boot-blocking"

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.RunDir == "" {
		c.RunDir = DefaultRunDir
	}
	if c.UnitDir == "" {
		c.UnitDir = DefaultUnitDir
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.EarlyBootServiceName == "" {
		c.EarlyBootServiceName = DefaultEarlyBootServiceName
	}
}

// Validate checks that required fields are set.
func (c *InstallConfig) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("packaging: config: BinaryPath is required")
	}
	if c.ConfigDir == "" {
		return errors.New("packaging: config: ConfigDir is required")
	}
	if c.DataDir == "" {
		return errors.New("packaging: config: DataDir is required")
	}
	if c.RunDir == "" {
		return errors.New("packaging: config: RunDir is required")
	}
	if c.UnitDir == "" {
		return errors.New("packaging: config: UnitDir is required")
	}
	if c.ServiceName == "" {
		return errors.New("packaging: config: ServiceName is required")
	}
	if c.EarlyBootServiceName == "" {
		return errors.New("packaging: config: EarlyBootServiceName is required")
	}
	if c.ServiceName == c.EarlyBootServiceName {
		return errors.New("packaging: config: ServiceName and EarlyBootServiceName must differ")
	}
	if (c.Peer.Endpoint == "") != (c.Peer.PublicKey == "") {
		return errors.New("packaging: config: peer endpoint and public key must be given together")
	}
	return nil
}

// UnitFilePath returns the path of the daemon unit file.
func (c *InstallConfig) UnitFilePath() string {
	return filepath.Join(c.UnitDir, c.ServiceName+".service")
}

// EarlyBootUnitFilePath returns the path of the early boot unit file.
func (c *InstallConfig) EarlyBootUnitFilePath() string {
	return filepath.Join(c.UnitDir, c.EarlyBootServiceName+".service")
}

func (c *InstallConfig) configPath() string {
	return filepath.Join(c.ConfigDir, "config.yaml")
}
