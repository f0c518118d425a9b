// Package firewall compiles tunnel firewall policies into packet filter rules
// and programs them into the kernel through nftables.
package firewall

import "errors"

// DefaultTableName is the default nftables table owned by plexvpn.
const DefaultTableName = "plexvpn"

// Config holds the configuration for the tunnel firewall.
type Config struct {
	// TableName is the nftables inet table holding all plexvpn rules.
	TableName string

	// AllowDHCP permits DHCP client traffic while the policy otherwise blocks.
	// Default: true (set by ApplyDefaults).
	AllowDHCP bool

	// AllowICMPv6 permits neighbour discovery and router solicitation.
	// Default: true (set by ApplyDefaults).
	AllowICMPv6 bool
}

// ApplyDefaults sets default values for zero-valued fields.
// On a zero-valued Config, AllowDHCP and AllowICMPv6 default to true.
func (c *Config) ApplyDefaults() {
	// A zero TableName means the caller wants every default. When the table
	// was set explicitly the booleans are respected as given.
	if c.TableName == "" {
		c.TableName = DefaultTableName
		c.AllowDHCP = true
		c.AllowICMPv6 = true
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.TableName == "" {
		return errors.New("firewall: config: TableName must not be empty")
	}
	if len(c.TableName) > 255 {
		return errors.New("firewall: config: TableName must be at most 255 characters")
	}
	return nil
}
