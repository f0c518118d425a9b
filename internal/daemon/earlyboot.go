package daemon

import (
	"fmt"
	"log/slog"

	"github.com/plexsphere/plexvpn/internal/firewall"
)

// PolicyApplier installs a firewall policy.
type PolicyApplier interface {
	ApplyPolicy(p firewall.Policy) error
}

// InitializeEarlyBootFirewall blocks all traffic until the daemon starts.
// It honours the persisted allow-LAN setting. The daemon replaces the
// policy when its state machine starts.
func InitializeEarlyBootFirewall(fw PolicyApplier, store *SettingsStore, logger *slog.Logger) error {
	settings := store.Get()
	policy := firewall.Blocked{AllowLAN: settings.AllowLAN}
	if err := fw.ApplyPolicy(policy); err != nil {
		return fmt.Errorf("daemon: early boot firewall: %w", err)
	}
	logger.Info("early boot firewall applied", "allow_lan", settings.AllowLAN)
	return nil
}
