//go:build linux

package daemon

import (
	"fmt"
	"log/slog"

	"github.com/plexsphere/plexvpn/internal/connectivity"
	"github.com/plexsphere/plexvpn/internal/dns"
	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/resolver"
	"github.com/plexsphere/plexvpn/internal/splittunnel"
	"github.com/plexsphere/plexvpn/internal/tunnel"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
	"github.com/plexsphere/plexvpn/internal/tunprovider"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

// NewComponents builds the Linux implementations of every component.
func NewComponents(cfg *Config, privateKey []byte, logger *slog.Logger) (Components, error) {
	params, err := NewStaticParameters(cfg.Peer, privateKey)
	if err != nil {
		return Components{}, err
	}

	split, err := splittunnel.New(cfg.SplitTunnel, splittunnel.Deps{
		Rules:     splittunnel.NetlinkRuleController{},
		Cgroup:    splittunnel.NewCgroupV2(cfg.SplitTunnel, logger),
		Processes: splittunnel.ProcessTable{},
		Marker:    splittunnel.NewNftablesMarker(cfg.SplitTunnel.TableName, logger),
	}, logger)
	if err != nil {
		return Components{}, fmt.Errorf("daemon: %w", err)
	}

	tuns := tunprovider.New(logger)
	var ctrl wireguard.WGController
	if cfg.WireGuard.Userspace {
		ctrl = wireguard.NewUserspaceController(tuns, cfg.WireGuard.MTU, logger)
	} else {
		ctrl = wireguard.NewNetlinkController(logger)
	}
	device := wireguard.NewManager(ctrl, cfg.WireGuard, logger)
	launcher := tunnel.NewLauncher(device, tunnel.NewNetlinkRouteController(logger), cfg.Tunnel, logger)

	res := resolver.New(cfg.Resolver, logger)

	caps := tunnelstate.Capabilities{
		SplitTunnel:    split,
		CustomResolver: res,
		SocketBypasser: split,
	}
	if cfg.WireGuard.Userspace {
		caps.TunProvider = tuns
	}

	fw, err := NewFirewall(cfg, logger)
	if err != nil {
		return Components{}, err
	}

	return Components{
		Machine: tunnelstate.Dependencies{
			Firewall:     fw,
			DNS:          dns.NewMonitor(cfg.DNS, logger),
			Launcher:     launcher,
			Parameters:   params,
			Capabilities: caps,
		},
		Routes: connectivity.NetlinkRouteSource{},
		Stats:  wireguardStats{device: device},
		Close:  res.Close,
	}, nil
}

// NewFirewall returns the nftables backed firewall.
func NewFirewall(cfg *Config, logger *slog.Logger) (*firewall.Firewall, error) {
	return firewall.New(firewall.NewNftablesBackend(cfg.Firewall.TableName, logger), cfg.Firewall, logger), nil
}
