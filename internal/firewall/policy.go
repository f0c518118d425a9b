package firewall

import (
	"fmt"
	"net/netip"
	"reflect"
)

// Protocol is a transport protocol used by an Endpoint.
type Protocol string

// Supported transport protocols.
const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// Endpoint is a remote address and the transport protocol used to reach it.
type Endpoint struct {
	Address  netip.AddrPort
	Protocol Protocol
}

// String returns the endpoint as "addr:port/proto".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%s", e.Address, e.Protocol)
}

// ParseEndpoint parses an "ip:port" address and a protocol name. An empty
// protocol means TCP.
func ParseEndpoint(address, protocol string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("firewall: parse endpoint: %w", err)
	}
	proto := Protocol(protocol)
	switch proto {
	case "":
		proto = ProtocolTCP
	case ProtocolTCP, ProtocolUDP:
	default:
		return Endpoint{}, fmt.Errorf("firewall: parse endpoint: unknown protocol %q", protocol)
	}
	return Endpoint{Address: ap, Protocol: proto}, nil
}

// AllowedEndpoint is an endpoint that stays reachable while all other
// traffic is blocked, typically the control API used to fetch relay lists.
type AllowedEndpoint struct {
	Endpoint Endpoint
	// RootOnly restricts the exemption to sockets owned by uid 0.
	RootOnly bool
}

// TunnelInterface describes the tunnel device once it is up.
type TunnelInterface struct {
	Name      string
	Addresses []netip.Prefix
}

// Policy is one of Blocked, Connecting or Connected.
type Policy interface {
	fmt.Stringer
	isPolicy()
}

// Blocked drops all traffic except loopback, an optional LAN exemption, the
// allowed endpoint and explicitly allowed addresses and resolvers.
type Blocked struct {
	AllowLAN         bool
	AllowedEndpoint  *AllowedEndpoint
	AllowedIPs       []netip.Addr
	AllowedResolvers []netip.Addr
}

// Connecting permits traffic to the tunnel peer only, so the handshake can
// complete without leaking anything else.
type Connecting struct {
	PeerEndpoint    Endpoint
	AllowLAN        bool
	AllowedEndpoint *AllowedEndpoint
	// ExcludedMark is the fwmark carried by split-tunnel traffic. Zero disables it.
	ExcludedMark uint32
}

// Connected permits the tunnel peer and all traffic on the tunnel interface.
// DNS is only allowed towards DNSServers.
type Connected struct {
	PeerEndpoint    Endpoint
	Tunnel          TunnelInterface
	AllowLAN        bool
	DNSServers      []netip.Addr
	AllowedEndpoint *AllowedEndpoint
	ExcludedMark    uint32
}

func (Blocked) isPolicy()    {}
func (Connecting) isPolicy() {}
func (Connected) isPolicy()  {}

func (p Blocked) String() string {
	return fmt.Sprintf("blocked (allow_lan=%t, allowed_ips=%d, allowed_resolvers=%d)",
		p.AllowLAN, len(p.AllowedIPs), len(p.AllowedResolvers))
}

func (p Connecting) String() string {
	return fmt.Sprintf("connecting to %s (allow_lan=%t)", p.PeerEndpoint, p.AllowLAN)
}

func (p Connected) String() string {
	return fmt.Sprintf("connected to %s over %s (allow_lan=%t)", p.PeerEndpoint, p.Tunnel.Name, p.AllowLAN)
}

// Equal reports whether two policies would compile to the same ruleset.
// A nil policy only equals another nil policy.
func Equal(a, b Policy) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}
