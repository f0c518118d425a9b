package daemon

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

// StaticParameters generates tunnel parameters from the peer config. Each
// retry moves on to the next configured endpoint.
type StaticParameters struct {
	endpoints  []netip.AddrPort
	privateKey []byte
	peerKey    []byte
	psk        []byte
	addresses  []netip.Prefix
	allowedIPs []netip.Prefix
	dnsServers []netip.Addr
	keepalive  time.Duration
}

var _ tunnelstate.ParametersGenerator = (*StaticParameters)(nil)

// NewStaticParameters parses cfg. cfg must have passed Validate.
func NewStaticParameters(cfg PeerConfig, privateKey []byte) (*StaticParameters, error) {
	p := &StaticParameters{
		privateKey: privateKey,
		keepalive:  cfg.PersistentKeepalive,
	}
	for _, ep := range cfg.Endpoints {
		addr, err := netip.ParseAddrPort(ep)
		if err != nil {
			return nil, fmt.Errorf("daemon: parameters: endpoint %q: %w", ep, err)
		}
		p.endpoints = append(p.endpoints, addr)
	}
	if len(p.endpoints) == 0 {
		return nil, fmt.Errorf("daemon: parameters: no endpoints")
	}

	var err error
	if p.peerKey, err = wireguard.ParseKey(cfg.PublicKey); err != nil {
		return nil, fmt.Errorf("daemon: parameters: public key: %w", err)
	}
	if cfg.PresharedKey != "" {
		if p.psk, err = wireguard.ParseKey(cfg.PresharedKey); err != nil {
			return nil, fmt.Errorf("daemon: parameters: preshared key: %w", err)
		}
	}
	if p.addresses, err = parsePrefixes(cfg.Addresses); err != nil {
		return nil, fmt.Errorf("daemon: parameters: addresses: %w", err)
	}
	if p.allowedIPs, err = parsePrefixes(cfg.AllowedIPs); err != nil {
		return nil, fmt.Errorf("daemon: parameters: allowed ips: %w", err)
	}
	if p.dnsServers, err = parseAddrs(cfg.DNSServers); err != nil {
		return nil, fmt.Errorf("daemon: parameters: dns servers: %w", err)
	}
	return p, nil
}

// Generate returns the parameters for attempt retryAttempt.
func (p *StaticParameters) Generate(retryAttempt int) (tunnelstate.TunnelParameters, error) {
	if retryAttempt < 0 {
		return tunnelstate.TunnelParameters{}, fmt.Errorf("daemon: parameters: negative retry attempt %d", retryAttempt)
	}
	return tunnelstate.TunnelParameters{
		Endpoint: firewall.Endpoint{
			Address:  p.endpoints[retryAttempt%len(p.endpoints)],
			Protocol: firewall.ProtocolUDP,
		},
		PrivateKey:          p.privateKey,
		PeerPublicKey:       p.peerKey,
		PresharedKey:        p.psk,
		Addresses:           p.addresses,
		AllowedIPs:          p.allowedIPs,
		DNSServers:          p.dnsServers,
		PersistentKeepalive: p.keepalive,
	}, nil
}
