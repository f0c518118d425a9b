package tunnelstate

import (
	"net/netip"
	"slices"

	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/splittunnel"
)

// Policies are built with sorted, nil-when-empty slices so equal settings
// always produce equal policies.

func (s *sharedState) blockedPolicy(allowedIPs, allowedResolvers map[netip.Addr]struct{}) firewall.Policy {
	return firewall.Blocked{
		AllowLAN:         s.allowLAN,
		AllowedEndpoint:  s.allowedEndpoint,
		AllowedIPs:       sortedAddrs(allowedIPs),
		AllowedResolvers: sortedAddrs(allowedResolvers),
	}
}

func (s *sharedState) connectingPolicy(params TunnelParameters) firewall.Policy {
	return firewall.Connecting{
		PeerEndpoint:    params.Endpoint,
		AllowLAN:        s.allowLAN,
		AllowedEndpoint: s.allowedEndpoint,
		ExcludedMark:    s.exclusionMark(),
	}
}

func (s *sharedState) connectedPolicy(params TunnelParameters, md TunnelMetadata) firewall.Policy {
	return firewall.Connected{
		PeerEndpoint: params.Endpoint,
		Tunnel: firewall.TunnelInterface{
			Name:      md.Interface,
			Addresses: nilIfEmpty(md.Addresses),
		},
		AllowLAN:        s.allowLAN,
		DNSServers:      nilIfEmpty(s.tunnelDNSServers(params)),
		AllowedEndpoint: s.allowedEndpoint,
		ExcludedMark:    s.exclusionMark(),
	}
}

// tunnelDNSServers are the servers used while connected: the custom
// servers if set, otherwise those provided with the tunnel.
func (s *sharedState) tunnelDNSServers(params TunnelParameters) []netip.Addr {
	if len(s.dnsServers) > 0 {
		return slices.Clone(s.dnsServers)
	}
	return slices.Clone(params.DNSServers)
}

func sortedAddrs(set map[netip.Addr]struct{}) []netip.Addr {
	if len(set) == 0 {
		return nil
	}
	out := make([]netip.Addr, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	slices.SortFunc(out, func(a, b netip.Addr) int { return a.Compare(b) })
	return out
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

// splitTunnelAddresses picks the first IPv4 and IPv6 tunnel address.
func splitTunnelAddresses(prefixes []netip.Prefix) *splittunnel.Addresses {
	var out splittunnel.Addresses
	for _, p := range prefixes {
		addr := p.Addr()
		switch {
		case addr.Is4() && !out.IPv4.IsValid():
			out.IPv4 = addr
		case addr.Is6() && !out.IPv6.IsValid():
			out.IPv6 = addr
		}
	}
	return &out
}
