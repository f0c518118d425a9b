// Package dns points the host resolver configuration at the tunnel's DNS
// servers and restores the original configuration afterwards.
package dns

import "errors"

// Default file locations.
const (
	DefaultResolvConfPath = "/etc/resolv.conf"
	DefaultBackupPath     = "/var/lib/plexvpn/resolv.conf.backup"
)

// Config holds the configuration for the DNS monitor.
type Config struct {
	// ResolvConfPath is the resolver configuration managed while connected.
	ResolvConfPath string

	// BackupPath stores the pre-plexvpn resolver configuration so it can be
	// restored after a crash.
	BackupPath string
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ResolvConfPath == "" {
		c.ResolvConfPath = DefaultResolvConfPath
	}
	if c.BackupPath == "" {
		c.BackupPath = DefaultBackupPath
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.ResolvConfPath == "" {
		return errors.New("dns: config: ResolvConfPath must not be empty")
	}
	if c.BackupPath == "" {
		return errors.New("dns: config: BackupPath must not be empty")
	}
	if c.BackupPath == c.ResolvConfPath {
		return errors.New("dns: config: BackupPath must differ from ResolvConfPath")
	}
	return nil
}
