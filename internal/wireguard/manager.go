package wireguard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"
)

// TunnelConfig is everything needed to bring up a client tunnel to one peer.
type TunnelConfig struct {
	PrivateKey []byte
	Addresses  []netip.Prefix
	Peer       PeerConfig
}

// ErrPeerNotFound is returned when the configured peer is missing from the device.
var ErrPeerNotFound = errors.New("wireguard: peer not found")

// Manager manages the WireGuard tunnel interface.
type Manager struct {
	ctrl   WGController
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a new Manager. Config defaults are applied automatically.
func NewManager(ctrl WGController, cfg Config, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger.With("component", "wireguard"),
	}
}

// InterfaceName returns the name of the managed interface.
func (m *Manager) InterfaceName() string {
	return m.cfg.InterfaceName
}

// FirewallMark returns the fwmark WireGuard sets on its own packets.
func (m *Manager) FirewallMark() int {
	return m.cfg.FirewallMark
}

// Setup creates and configures the tunnel interface. An interface left
// behind by an earlier run is removed first. On failure the partially
// configured interface is deleted again.
func (m *Manager) Setup(ctx context.Context, tc TunnelConfig) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wireguard: setup: %w", err)
	}
	name := m.cfg.InterfaceName

	if err := m.ctrl.DeleteInterface(name); err != nil {
		return fmt.Errorf("wireguard: setup: remove stale interface: %w", err)
	}

	err := m.setup(name, tc)
	if err != nil {
		if terr := m.ctrl.DeleteInterface(name); terr != nil {
			m.logger.Warn("cleanup after failed setup", "interface", name, "error", terr)
		}
		return fmt.Errorf("wireguard: setup: %w", err)
	}

	m.logger.Info("wireguard interface configured",
		"interface", name,
		"endpoint", tc.Peer.Endpoint,
		"addresses", tc.Addresses,
	)
	return nil
}

func (m *Manager) setup(name string, tc TunnelConfig) error {
	if err := m.ctrl.CreateInterface(name, InterfaceConfig{
		PrivateKey:   tc.PrivateKey,
		ListenPort:   m.cfg.ListenPort,
		FirewallMark: m.cfg.FirewallMark,
	}); err != nil {
		return err
	}
	for _, addr := range tc.Addresses {
		if err := m.ctrl.ConfigureAddress(name, addr); err != nil {
			return err
		}
	}
	if err := m.ctrl.SetMTU(name, m.cfg.MTU); err != nil {
		return err
	}
	if err := m.ctrl.AddPeer(name, tc.Peer); err != nil {
		return err
	}
	return m.ctrl.SetInterfaceUp(name)
}

// Teardown deletes the tunnel interface.
func (m *Manager) Teardown() error {
	if err := m.ctrl.DeleteInterface(m.cfg.InterfaceName); err != nil {
		return fmt.Errorf("wireguard: teardown: %w", err)
	}
	return nil
}

// LastHandshake returns the time of the latest handshake with peer. The
// zero time means no handshake has completed yet.
func (m *Manager) LastHandshake(peer []byte) (time.Time, error) {
	stats, err := m.ctrl.PeerStats(m.cfg.InterfaceName)
	if err != nil {
		return time.Time{}, err
	}
	for _, s := range stats {
		if bytes.Equal(s.PublicKey, peer) {
			return s.LastHandshake, nil
		}
	}
	return time.Time{}, ErrPeerNotFound
}

// LinkUp reports whether the tunnel interface still exists.
func (m *Manager) LinkUp() (bool, error) {
	return m.ctrl.LinkExists(m.cfg.InterfaceName)
}

// Stats returns the counters of every peer. It returns no stats and no
// error while the interface is down.
func (m *Manager) Stats() ([]PeerStats, error) {
	up, err := m.ctrl.LinkExists(m.cfg.InterfaceName)
	if err != nil {
		return nil, fmt.Errorf("wireguard: stats: %w", err)
	}
	if !up {
		return nil, nil
	}
	stats, err := m.ctrl.PeerStats(m.cfg.InterfaceName)
	if err != nil {
		return nil, fmt.Errorf("wireguard: stats: %w", err)
	}
	return stats, nil
}
