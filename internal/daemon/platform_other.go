//go:build !linux

package daemon

import (
	"errors"
	"log/slog"

	"github.com/plexsphere/plexvpn/internal/firewall"
)

var errUnsupportedPlatform = errors.New("daemon: only Linux is supported")

// NewComponents is not supported on this platform.
func NewComponents(_ *Config, _ []byte, _ *slog.Logger) (Components, error) {
	return Components{}, errUnsupportedPlatform
}

// NewFirewall is not supported on this platform.
func NewFirewall(_ *Config, _ *slog.Logger) (*firewall.Firewall, error) {
	return nil, errUnsupportedPlatform
}
