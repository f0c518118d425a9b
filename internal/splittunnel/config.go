// Package splittunnel routes traffic from excluded applications outside
// the tunnel.
package splittunnel

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultMark         uint32 = 0x6d6f6c65
	DefaultPriority            = 5208
	DefaultDataDir             = "/var/lib/plexvpn"
	DefaultCgroupRoot          = "/sys/fs/cgroup"
	DefaultCgroupName          = "plexvpn-exclusions"
	DefaultTableName           = "plexvpn-split"
	DefaultScanInterval        = 2 * time.Second
	// mainTable is the kernel's main routing table (RT_TABLE_MAIN).
	mainTable = 254
)

// Config holds the configuration for split tunneling.
type Config struct {
	// Enabled controls whether excluded traffic bypasses the tunnel.
	// nil means use default (true); explicit false disables split tunneling.
	Enabled *bool

	// Mark is the fwmark carried by excluded traffic.
	Mark uint32

	// Priority is the routing rule priority. It must be lower than the
	// tunnel's own rules so excluded traffic keeps using the main table.
	Priority int

	// DataDir holds the persisted list of excluded applications.
	DataDir string

	// CgroupRoot is the cgroup v2 mount point.
	// Default: /sys/fs/cgroup
	CgroupRoot string

	// CgroupName is the cgroup, relative to CgroupRoot, that holds
	// excluded processes.
	// Default: plexvpn-exclusions
	CgroupName string

	// TableName is the nftables table that marks excluded traffic.
	// Default: plexvpn-split
	TableName string

	// ScanInterval is how often running processes are matched against
	// the excluded applications.
	// Default: 2s
	ScanInterval time.Duration
}

// BoolPtr returns a pointer to the given bool value.
func BoolPtr(v bool) *bool { return &v }

// IsEnabled returns the effective setting: true unless explicitly set to false.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Mark == 0 {
		c.Mark = DefaultMark
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.CgroupRoot == "" {
		c.CgroupRoot = DefaultCgroupRoot
	}
	if c.CgroupName == "" {
		c.CgroupName = DefaultCgroupName
	}
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = DefaultScanInterval
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Mark == 0 {
		return errors.New("splittunnel: config: Mark must not be zero when enabled")
	}
	if c.Priority < 1 || c.Priority > 32765 {
		return errors.New("splittunnel: config: Priority must be between 1 and 32765")
	}
	if c.DataDir == "" {
		return errors.New("splittunnel: config: DataDir must not be empty")
	}
	if !filepath.IsAbs(c.CgroupRoot) {
		return errors.New("splittunnel: config: CgroupRoot must be an absolute path")
	}
	name := filepath.Clean(c.CgroupName)
	if c.CgroupName == "" || filepath.IsAbs(name) || name == "." || strings.HasPrefix(name, "..") {
		return errors.New("splittunnel: config: CgroupName must be a path below CgroupRoot")
	}
	if c.TableName == "" {
		return errors.New("splittunnel: config: TableName must not be empty")
	}
	if c.ScanInterval <= 0 {
		return errors.New("splittunnel: config: ScanInterval must be positive")
	}
	return nil
}

// cgroupLevel is the depth of CgroupName below the cgroup root, as matched
// by the nftables socket expression.
func (c *Config) cgroupLevel() uint32 {
	return uint32(strings.Count(filepath.Clean(c.CgroupName), "/") + 1)
}
