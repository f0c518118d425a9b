// Package tunnel brings WireGuard tunnels up, watches them and reports
// their up and down events to the tunnel state machine.
package tunnel

import (
	"errors"
	"time"
)

// Default configuration values.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPollInterval     = time.Second
	DefaultStaleHandshake   = 3 * time.Minute
	DefaultRouteTable       = 51820
	DefaultRulePriority     = 5210
)

// Config holds the configuration for tunnel monitors.
type Config struct {
	// HandshakeTimeout bounds the wait for the first handshake.
	// Default: 10s
	HandshakeTimeout time.Duration

	// PollInterval is how often the handshake and link are checked.
	// Default: 1s
	PollInterval time.Duration

	// StaleHandshake is the handshake age after which the tunnel is
	// considered lost.
	// Default: 3m
	StaleHandshake time.Duration

	// RouteTable is the routing table holding the tunnel routes.
	// Default: 51820
	RouteTable int

	// RulePriority is the priority of the rule selecting RouteTable. The
	// rule suppressing the main table default route uses RulePriority-1.
	// Default: 5210
	RulePriority int
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StaleHandshake == 0 {
		c.StaleHandshake = DefaultStaleHandshake
	}
	if c.RouteTable == 0 {
		c.RouteTable = DefaultRouteTable
	}
	if c.RulePriority == 0 {
		c.RulePriority = DefaultRulePriority
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.HandshakeTimeout < time.Second {
		return errors.New("tunnel: config: HandshakeTimeout must be at least 1s")
	}
	if c.PollInterval < 100*time.Millisecond {
		return errors.New("tunnel: config: PollInterval must be at least 100ms")
	}
	if c.PollInterval > c.HandshakeTimeout {
		return errors.New("tunnel: config: PollInterval must not exceed HandshakeTimeout")
	}
	if c.StaleHandshake <= c.PollInterval {
		return errors.New("tunnel: config: StaleHandshake must exceed PollInterval")
	}
	if c.RouteTable <= 0 || c.RouteTable == mainTable {
		return errors.New("tunnel: config: RouteTable must be positive and not the main table")
	}
	if c.RulePriority < 2 || c.RulePriority > 32765 {
		return errors.New("tunnel: config: RulePriority must be between 2 and 32765")
	}
	return nil
}
