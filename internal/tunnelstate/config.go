package tunnelstate

import "errors"

// DefaultMaxRetries is the default number of reconnect attempts before the
// machine gives up and blocks.
const DefaultMaxRetries = 10

// Config holds the configuration for the tunnel state machine.
type Config struct {
	// MaxRetries bounds consecutive recoverable tunnel failures. A value of
	// -1 disables retrying.
	// Default: 10
	MaxRetries int

	// ResetFirewallOnStart resets leftover firewall rules when the machine
	// starts in the disconnected state without blocking.
	ResetFirewallOnStart bool
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// retryLimit returns the number of retries allowed after a recoverable
// failure. The -1 sentinel is kept in MaxRetries so that applying defaults
// again does not turn it back into the default.
func (c *Config) retryLimit() int {
	if c.MaxRetries < 0 {
		return 0
	}
	return c.MaxRetries
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.MaxRetries < -1 {
		return errors.New("tunnelstate: config: MaxRetries must be -1 or greater")
	}
	return nil
}
