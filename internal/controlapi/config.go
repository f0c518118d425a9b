package controlapi

import (
	"errors"
	"time"
)

// Config holds the configuration for the local control API server.
// Config is passed as a constructor argument; no file I/O in this package.
type Config struct {
	// SocketPath is the path to the Unix domain socket.
	// Default: /var/run/plexvpn/control.sock
	SocketPath string

	// SocketGroup is the group allowed to change tunnel state and settings.
	// Members of other groups may only read. Root is always allowed.
	// Default: plexvpn
	SocketGroup string

	// ShutdownTimeout is the maximum time to wait for a graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration
}

// DefaultSocketPath is the default Unix domain socket path.
const DefaultSocketPath = "/var/run/plexvpn/control.sock"

// DefaultSocketGroup is the default group granted write access.
const DefaultSocketGroup = "plexvpn"

// DefaultShutdownTimeout is the default graceful shutdown timeout.
const DefaultShutdownTimeout = 5 * time.Second

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.SocketGroup == "" {
		c.SocketGroup = DefaultSocketGroup
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return errors.New("controlapi: config: SocketPath is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("controlapi: config: ShutdownTimeout must be positive")
	}
	return nil
}
