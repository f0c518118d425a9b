// Package metrics samples tunnel and daemon statistics for the control socket.
package metrics

import (
	"errors"
	"time"
)

// DefaultCollectInterval is the default interval between collection cycles.
const DefaultCollectInterval = 10 * time.Second

// DefaultStaleThreshold is the age after which a handshake is considered
// stale. WireGuard rekeys every two minutes on an active tunnel.
const DefaultStaleThreshold = 3 * time.Minute

// Config holds the configuration for statistics collection.
type Config struct {
	// Enabled controls whether collection is active.
	// nil means use default (true); explicit false disables collection.
	Enabled *bool

	// CollectInterval is the interval between collection cycles.
	// Must be at least 1s.
	CollectInterval time.Duration

	// StaleThreshold marks handshakes older than this as stale.
	StaleThreshold time.Duration
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
	if c.CollectInterval == 0 {
		c.CollectInterval = DefaultCollectInterval
	}
	if c.StaleThreshold == 0 {
		c.StaleThreshold = DefaultStaleThreshold
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.CollectInterval < time.Second {
		return errors.New("metrics: config: CollectInterval must be at least 1s")
	}
	if c.StaleThreshold <= 0 {
		return errors.New("metrics: config: StaleThreshold must be positive")
	}
	return nil
}
