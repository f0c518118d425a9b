// Package resolver runs a local forwarding DNS resolver used when the
// host's own resolvers must stay reachable while traffic is blocked.
package resolver

import (
	"errors"
	"net/netip"
	"time"
)

// Default configuration values.
const (
	DefaultListenAddr   = "127.0.0.1:53"
	DefaultTimeout      = 2 * time.Second
	DefaultUpstreamPort = 53
)

// hostResolverPort is the only port the host resolver configuration can
// address.
const hostResolverPort = 53

// Config holds the configuration for the local resolver.
type Config struct {
	// ListenAddr is the UDP and TCP address the resolver binds to. The
	// host DNS configuration is pointed at its IP, so the port must be 53.
	ListenAddr string

	// Timeout bounds a single upstream exchange.
	Timeout time.Duration

	// UpstreamPort is the port queried on every upstream server.
	UpstreamPort int
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UpstreamPort == 0 {
		c.UpstreamPort = DefaultUpstreamPort
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	ap, err := netip.ParseAddrPort(c.ListenAddr)
	if err != nil {
		return errors.New("resolver: config: ListenAddr must be an ip:port address")
	}
	if !ap.Addr().IsLoopback() {
		return errors.New("resolver: config: ListenAddr must be a loopback address")
	}
	if ap.Port() != hostResolverPort {
		return errors.New("resolver: config: ListenAddr port must be 53")
	}
	if c.Timeout <= 0 {
		return errors.New("resolver: config: Timeout must be positive")
	}
	if c.UpstreamPort < 1 || c.UpstreamPort > 65535 {
		return errors.New("resolver: config: UpstreamPort must be between 1 and 65535")
	}
	return nil
}
