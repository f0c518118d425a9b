package firewall

import "net/netip"

const loopbackInterface = "lo"

var (
	lanPrefixes = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("169.254.0.0/16"),
		netip.MustParsePrefix("fe80::/10"),
		netip.MustParsePrefix("fc00::/7"),
	}
	multicastPrefixes = []netip.Prefix{
		netip.MustParsePrefix("224.0.0.0/4"),
		netip.MustParsePrefix("255.255.255.255/32"),
		netip.MustParsePrefix("ff00::/8"),
	}
	linkLocalV6     = netip.MustParsePrefix("fe80::/10")
	linkMulticastV6 = netip.MustParsePrefix("ff02::/16")
	dhcpV6Servers   = netip.MustParsePrefix("ff02::1:2/128")
)

// Compile translates a policy into an ordered ruleset. Rules are evaluated in
// order and the ruleset always ends with a deny-all rule for both directions.
func Compile(p Policy, cfg Config) []Rule {
	rules := baseRules(cfg)

	switch p := p.(type) {
	case Blocked:
		rules = append(rules, allowedEndpointRules(p.AllowedEndpoint)...)
		for _, ip := range p.AllowedResolvers {
			rules = append(rules, dnsRules(ip, "")...)
		}
		for _, ip := range p.AllowedIPs {
			rules = append(rules, Rule{Direction: DirectionOut, Remote: hostPrefix(ip), Action: "allow"})
		}
		if p.AllowLAN {
			rules = append(rules, lanRules()...)
		}
	case Connecting:
		rules = append(rules, allowedEndpointRules(p.AllowedEndpoint)...)
		rules = append(rules, peerRule(p.PeerEndpoint))
		rules = append(rules, markRule(p.ExcludedMark)...)
		if p.AllowLAN {
			rules = append(rules, lanRules()...)
		}
	case Connected:
		rules = append(rules, allowedEndpointRules(p.AllowedEndpoint)...)
		rules = append(rules, peerRule(p.PeerEndpoint))
		for _, ip := range p.DNSServers {
			iface := ""
			if routedThroughTunnel(ip, p.Tunnel.Addresses) {
				iface = p.Tunnel.Name
			}
			rules = append(rules, dnsRules(ip, iface)...)
		}
		// DNS towards any other server is dropped, including inside the tunnel.
		rules = append(rules,
			Rule{Direction: DirectionOut, Port: 53, Protocol: "udp", Action: "deny"},
			Rule{Direction: DirectionOut, Port: 53, Protocol: "tcp", Action: "deny"},
		)
		rules = append(rules, markRule(p.ExcludedMark)...)
		rules = append(rules, Rule{Direction: DirectionOut, Interface: p.Tunnel.Name, Action: "allow"})
		if p.AllowLAN {
			rules = append(rules, lanRules()...)
		}
	}

	return append(rules,
		Rule{Direction: DirectionIn, Action: "deny"},
		Rule{Direction: DirectionOut, Action: "deny"},
	)
}

func baseRules(cfg Config) []Rule {
	rules := []Rule{
		{Direction: DirectionIn, Interface: loopbackInterface, Action: "allow"},
		{Direction: DirectionOut, Interface: loopbackInterface, Action: "allow"},
		{Direction: DirectionIn, Tracked: true, Action: "allow"},
		{Direction: DirectionOut, Tracked: true, Action: "allow"},
	}
	if cfg.AllowDHCP {
		rules = append(rules,
			Rule{Direction: DirectionOut, Port: 67, Protocol: "udp", Action: "allow"},
			Rule{Direction: DirectionIn, Port: 68, Protocol: "udp", Action: "allow"},
			Rule{Direction: DirectionOut, Remote: dhcpV6Servers, Port: 547, Protocol: "udp", Action: "allow"},
			Rule{Direction: DirectionIn, Remote: linkLocalV6, Port: 546, Protocol: "udp", Action: "allow"},
		)
	}
	if cfg.AllowICMPv6 {
		rules = append(rules,
			Rule{Direction: DirectionOut, Remote: linkLocalV6, Protocol: "icmpv6", Action: "allow"},
			Rule{Direction: DirectionOut, Remote: linkMulticastV6, Protocol: "icmpv6", Action: "allow"},
			Rule{Direction: DirectionIn, Remote: linkLocalV6, Protocol: "icmpv6", Action: "allow"},
		)
	}
	return rules
}

func lanRules() []Rule {
	var rules []Rule
	for _, prefix := range lanPrefixes {
		rules = append(rules,
			Rule{Direction: DirectionOut, Remote: prefix, Action: "allow"},
			Rule{Direction: DirectionIn, Remote: prefix, Action: "allow"},
		)
	}
	for _, prefix := range multicastPrefixes {
		rules = append(rules, Rule{Direction: DirectionOut, Remote: prefix, Action: "allow"})
	}
	return rules
}

func allowedEndpointRules(ep *AllowedEndpoint) []Rule {
	if ep == nil || !ep.Endpoint.Address.IsValid() {
		return nil
	}
	return []Rule{{
		Direction: DirectionOut,
		Remote:    hostPrefix(ep.Endpoint.Address.Addr()),
		Port:      int(ep.Endpoint.Address.Port()),
		Protocol:  string(ep.Endpoint.Protocol),
		RootOnly:  ep.RootOnly,
		Action:    "allow",
	}}
}

func peerRule(ep Endpoint) Rule {
	return Rule{
		Direction: DirectionOut,
		Remote:    hostPrefix(ep.Address.Addr()),
		Port:      int(ep.Address.Port()),
		Protocol:  string(ep.Protocol),
		Action:    "allow",
	}
}

func dnsRules(server netip.Addr, iface string) []Rule {
	return []Rule{
		{Direction: DirectionOut, Interface: iface, Remote: hostPrefix(server), Port: 53, Protocol: "udp", Action: "allow"},
		{Direction: DirectionOut, Interface: iface, Remote: hostPrefix(server), Port: 53, Protocol: "tcp", Action: "allow"},
	}
}

func markRule(mark uint32) []Rule {
	if mark == 0 {
		return nil
	}
	return []Rule{{Direction: DirectionOut, Mark: mark, Action: "allow"}}
}

// routedThroughTunnel reports whether ip is a public address or lies inside
// one of the tunnel networks. LAN resolvers stay outside the tunnel.
func routedThroughTunnel(ip netip.Addr, tunnel []netip.Prefix) bool {
	for _, prefix := range tunnel {
		if prefix.Masked().Contains(ip) {
			return true
		}
	}
	for _, prefix := range lanPrefixes {
		if prefix.Contains(ip) {
			return false
		}
	}
	return !ip.IsLoopback()
}

func hostPrefix(ip netip.Addr) netip.Prefix {
	ip = ip.Unmap()
	return netip.PrefixFrom(ip, ip.BitLen())
}
