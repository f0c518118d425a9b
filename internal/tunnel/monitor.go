package tunnel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/plexsphere/plexvpn/internal/tunnelstate"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

// monitor runs one tunnel from setup to teardown. It reports at most one
// Up and exactly one Down event.
type monitor struct {
	launcher   *Launcher
	generation uint64
	params     tunnelstate.TunnelParameters
	sink       func(tunnelstate.TunnelEvent)
	cancel     context.CancelFunc
	logger     *slog.Logger

	done chan struct{}
	err  error
}

var _ tunnelstate.Tunnel = (*monitor)(nil)

// Stop asks the monitor to tear the tunnel down.
func (m *monitor) Stop() {
	m.cancel()
}

// Wait blocks until the tunnel is torn down. It returns nil when the tunnel
// was stopped on request.
func (m *monitor) Wait() error {
	<-m.done
	return m.err
}

func (m *monitor) run(ctx context.Context) {
	defer close(m.done)
	defer m.cancel()

	err := m.up(ctx)
	if err == nil {
		err = m.watch(ctx)
	}
	m.down()

	if ctx.Err() != nil {
		err = nil
	}
	m.err = err
	if err != nil {
		m.logger.Warn("tunnel down", "error", err)
	} else {
		m.logger.Info("tunnel down")
	}
	m.sink(tunnelstate.TunnelEvent{
		Generation: m.generation,
		Kind:       tunnelstate.TunnelDown,
		Err:        err,
	})
}

// up configures the device and routes, then waits for the first handshake.
func (m *monitor) up(ctx context.Context) error {
	l := m.launcher
	p := m.params

	tc := wireguard.TunnelConfig{
		PrivateKey: p.PrivateKey,
		Addresses:  p.Addresses,
		Peer: wireguard.PeerConfig{
			PublicKey:           p.PeerPublicKey,
			Endpoint:            p.Endpoint.Address,
			AllowedIPs:          p.AllowedIPs,
			PSK:                 p.PresharedKey,
			PersistentKeepalive: p.PersistentKeepalive,
		},
	}
	if err := l.device.Setup(ctx, tc); err != nil {
		return recoverable(tunnelstate.CauseStartTunnelError, err)
	}
	if err := l.routes.AddTunnelRoutes(l.routeSpec(p)); err != nil {
		return recoverable(tunnelstate.CauseStartTunnelError, err)
	}

	if err := m.awaitHandshake(ctx); err != nil {
		return err
	}

	md := tunnelstate.TunnelMetadata{
		Interface: l.device.InterfaceName(),
		Addresses: p.Addresses,
	}
	for _, addr := range p.DNSServers {
		if addr.Is4() {
			md.Gateway = addr
			break
		}
	}
	m.logger.Info("tunnel up",
		"interface", md.Interface,
		"endpoint", p.Endpoint.String(),
	)
	m.sink(tunnelstate.TunnelEvent{
		Generation: m.generation,
		Kind:       tunnelstate.TunnelUp,
		Metadata:   md,
	})
	return nil
}

func (m *monitor) awaitHandshake(ctx context.Context) error {
	l := m.launcher
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(l.cfg.HandshakeTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return recoverable(tunnelstate.CauseTunnelFailure, ErrHandshakeTimeout)
		case <-ticker.C:
			last, err := l.device.LastHandshake(m.params.PeerPublicKey)
			if err != nil && !errors.Is(err, wireguard.ErrPeerNotFound) {
				m.logger.Debug("handshake poll failed", "error", err)
				continue
			}
			if !last.IsZero() {
				return nil
			}
		}
	}
}

// watch returns when the tunnel is lost or ctx is done.
func (m *monitor) watch(ctx context.Context) error {
	l := m.launcher
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		up, err := l.device.LinkUp()
		if err != nil {
			m.logger.Debug("link check failed", "error", err)
		} else if !up {
			return recoverable(tunnelstate.CauseTunnelFailure, ErrLinkLost)
		}

		last, err := l.device.LastHandshake(m.params.PeerPublicKey)
		if err != nil {
			if errors.Is(err, wireguard.ErrPeerNotFound) {
				return recoverable(tunnelstate.CauseTunnelFailure, err)
			}
			m.logger.Debug("handshake poll failed", "error", err)
			continue
		}
		if !last.IsZero() && time.Since(last) > l.cfg.StaleHandshake {
			return recoverable(tunnelstate.CauseTunnelFailure, ErrHandshakeStale)
		}
	}
}

// down removes routes and the interface. Failures are logged.
func (m *monitor) down() {
	l := m.launcher
	if err := l.routes.RemoveTunnelRoutes(l.routeSpec(m.params)); err != nil {
		m.logger.Error("failed to remove tunnel routes", "error", err)
	}
	if err := l.device.Teardown(); err != nil {
		m.logger.Error("failed to tear down tunnel device", "error", err)
	}
}
