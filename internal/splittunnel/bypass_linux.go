//go:build linux

package splittunnel

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BypassSocket marks fd so its traffic is routed outside the tunnel and
// allowed by the firewall.
func (d *Driver) BypassSocket(fd int) error {
	if !d.cfg.IsEnabled() {
		return fmt.Errorf("splittunnel: bypass socket: split tunneling is disabled")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(d.cfg.Mark)); err != nil {
		return fmt.Errorf("splittunnel: bypass socket: %w", err)
	}
	return nil
}
