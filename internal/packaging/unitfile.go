package packaging

import (
	"fmt"
)

// GenerateUnitFile produces the systemd unit file for the plexvpn daemon.
// It calls cfg.ApplyDefaults() to fill in zero-valued fields before generating the output.
func GenerateUnitFile(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	return fmt.Sprintf(`[Unit]
Description=plexvpn WireGuard VPN daemon
Wants=network.target
After=network-online.target NetworkManager.service systemd-resolved.service
StartLimitBurst=5
StartLimitIntervalSec=60

[Service]
Type=simple
ExecStart=%s up --config %s
Restart=always
RestartSec=5s
LimitNOFILE=65536
AmbientCapabilities=CAP_NET_ADMIN CAP_NET_RAW CAP_NET_BIND_SERVICE
CapabilityBoundingSet=CAP_NET_ADMIN CAP_NET_RAW CAP_NET_BIND_SERVICE CAP_CHOWN CAP_FOWNER
ProtectSystem=full
ProtectHome=read-only
ReadWritePaths=%s %s /etc/resolv.conf

[Install]
WantedBy=multi-user.target
`, cfg.BinaryPath, cfg.configPath(), cfg.DataDir, cfg.RunDir)
}

// GenerateEarlyBootUnitFile produces the oneshot unit that applies the
// blocking firewall policy before any network interface is configured.
func GenerateEarlyBootUnitFile(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	return fmt.Sprintf(`[Unit]
Description=plexvpn early boot network blocker
DefaultDependencies=no
Before=basic.target network-pre.target %s.service
Wants=network-pre.target

[Service]
Type=oneshot
ExecStart=%s initialize-early-boot-firewall --config %s

[Install]
WantedBy=%s.service
`, cfg.ServiceName, cfg.BinaryPath, cfg.configPath(), cfg.ServiceName)
}
