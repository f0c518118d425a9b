package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

// Device is the WireGuard interface a tunnel runs on.
type Device interface {
	InterfaceName() string
	FirewallMark() int
	Setup(ctx context.Context, tc wireguard.TunnelConfig) error
	Teardown() error
	LastHandshake(peer []byte) (time.Time, error)
	LinkUp() (bool, error)
}

var _ Device = (*wireguard.Manager)(nil)

// Launcher starts tunnel monitors on a single device. The state machine
// never runs two tunnels at once.
type Launcher struct {
	device Device
	routes RouteController
	cfg    Config
	logger *slog.Logger
}

var _ tunnelstate.TunnelLauncher = (*Launcher)(nil)

// NewLauncher creates a Launcher. Config defaults are applied automatically.
func NewLauncher(device Device, routes RouteController, cfg Config, logger *slog.Logger) *Launcher {
	cfg.ApplyDefaults()
	return &Launcher{
		device: device,
		routes: routes,
		cfg:    cfg,
		logger: logger.With("component", "tunnel"),
	}
}

// Launch validates params and starts a monitor bringing the tunnel up in
// the background. Invalid parameters are reported synchronously.
func (l *Launcher) Launch(generation uint64, params tunnelstate.TunnelParameters, sink func(tunnelstate.TunnelEvent)) (tunnelstate.Tunnel, error) {
	if err := validateParams(params); err != nil {
		return nil, fatal(tunnelstate.CauseTunnelParameterError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{
		launcher:   l,
		generation: generation,
		params:     params,
		sink:       sink,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     l.logger.With("generation", generation),
	}
	go m.run(ctx)
	return m, nil
}

func validateParams(p tunnelstate.TunnelParameters) error {
	if !p.Endpoint.Address.IsValid() {
		return errors.New("invalid peer endpoint")
	}
	if p.Endpoint.Protocol != firewall.ProtocolUDP {
		return fmt.Errorf("unsupported transport %q", p.Endpoint.Protocol)
	}
	if len(p.PrivateKey) != wireguard.KeyLen {
		return errors.New("invalid private key length")
	}
	if len(p.PeerPublicKey) != wireguard.KeyLen {
		return errors.New("invalid peer public key length")
	}
	if p.PresharedKey != nil && len(p.PresharedKey) != wireguard.KeyLen {
		return errors.New("invalid preshared key length")
	}
	if len(p.Addresses) == 0 {
		return errors.New("no tunnel addresses")
	}
	if len(p.AllowedIPs) == 0 {
		return errors.New("no allowed IPs")
	}
	return nil
}

func (l *Launcher) routeSpec(params tunnelstate.TunnelParameters) RouteSpec {
	return RouteSpec{
		Interface:    l.device.InterfaceName(),
		AllowedIPs:   params.AllowedIPs,
		Table:        l.cfg.RouteTable,
		FirewallMark: l.device.FirewallMark(),
		Priority:     l.cfg.RulePriority,
	}
}
