package connectivity

import (
	"errors"
	"time"
)

// DefaultDebounce is the default delay between a route change and the
// connectivity check it triggers.
const DefaultDebounce = 500 * time.Millisecond

// Config holds the configuration for the connectivity monitor.
type Config struct {
	// Enabled controls whether offline detection runs. When disabled the
	// host is always considered online.
	// nil means use default (true); explicit false disables monitoring.
	Enabled *bool

	// Debounce coalesces bursts of route changes into one check.
	// Default: 500ms
	Debounce time.Duration
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
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Debounce < 0 || c.Debounce > 10*time.Second {
		return errors.New("connectivity: config: Debounce must be between 0 and 10s")
	}
	return nil
}
