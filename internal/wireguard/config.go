package wireguard

import "errors"

// Config holds the configuration for the WireGuard tunnel device.
// Config is passed as a constructor argument, no file I/O in this package.
type Config struct {
	// InterfaceName is the WireGuard network interface name.
	// Default: "wg-plexvpn"
	InterfaceName string

	// ListenPort is the UDP port WireGuard listens on. 0 lets the kernel pick.
	ListenPort int

	// MTU is the interface MTU.
	// Default: 1380
	MTU int

	// FirewallMark is set on packets sent by WireGuard itself so they are
	// routed outside the tunnel.
	// Default: 51820
	FirewallMark int

	// Userspace selects the wireguard-go implementation instead of the
	// kernel module.
	Userspace bool
}

// Default configuration values.
const (
	DefaultInterfaceName = "wg-plexvpn"
	DefaultMTU           = 1380
	DefaultFirewallMark  = 51820
)

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.InterfaceName == "" {
		c.InterfaceName = DefaultInterfaceName
	}
	if c.MTU == 0 {
		c.MTU = DefaultMTU
	}
	if c.FirewallMark == 0 {
		c.FirewallMark = DefaultFirewallMark
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.InterfaceName == "" || len(c.InterfaceName) > 15 {
		return errors.New("wireguard: config: InterfaceName must be 1 to 15 characters")
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return errors.New("wireguard: config: ListenPort must be between 0 and 65535")
	}
	if c.MTU < 576 || c.MTU > 9000 {
		return errors.New("wireguard: config: MTU must be between 576 and 9000")
	}
	if c.FirewallMark < 0 {
		return errors.New("wireguard: config: FirewallMark must not be negative")
	}
	return nil
}
