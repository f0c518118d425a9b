package firewall

import (
	"net/netip"
	"testing"
)

func defaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

func hasRule(rules []Rule, want Rule) bool {
	for _, r := range rules {
		if r == want {
			return true
		}
	}
	return false
}

func indexOf(rules []Rule, want Rule) int {
	for i, r := range rules {
		if r == want {
			return i
		}
	}
	return -1
}

func TestCompile_EndsWithDenyAll(t *testing.T) {
	for _, p := range []Policy{Blocked{}, Connecting{PeerEndpoint: testEndpoint()}, Connected{PeerEndpoint: testEndpoint(), Tunnel: TunnelInterface{Name: "wg0"}}} {
		rules := Compile(p, defaultConfig())
		n := len(rules)
		if n < 2 {
			t.Fatalf("%s: got %d rules", p, n)
		}
		if rules[n-2] != (Rule{Direction: DirectionIn, Action: "deny"}) {
			t.Errorf("%s: second to last rule = %+v, want inbound deny", p, rules[n-2])
		}
		if rules[n-1] != (Rule{Direction: DirectionOut, Action: "deny"}) {
			t.Errorf("%s: last rule = %+v, want outbound deny", p, rules[n-1])
		}
		for i, r := range rules {
			if err := r.Validate(); err != nil {
				t.Errorf("%s: rule %d invalid: %v", p, i, err)
			}
		}
	}
}

func TestCompile_BlockedAllowsOnlyExemptions(t *testing.T) {
	resolver := netip.MustParseAddr("192.168.1.1")
	allowed := netip.MustParseAddr("45.83.223.209")
	p := Blocked{
		AllowedIPs:       []netip.Addr{allowed},
		AllowedResolvers: []netip.Addr{resolver},
		AllowedEndpoint: &AllowedEndpoint{
			Endpoint: Endpoint{Address: netip.MustParseAddrPort("45.83.223.196:443"), Protocol: ProtocolTCP},
			RootOnly: true,
		},
	}
	rules := Compile(p, defaultConfig())

	want := []Rule{
		{Direction: DirectionOut, Remote: netip.MustParsePrefix("45.83.223.209/32"), Action: "allow"},
		{Direction: DirectionOut, Remote: netip.MustParsePrefix("192.168.1.1/32"), Port: 53, Protocol: "udp", Action: "allow"},
		{Direction: DirectionOut, Remote: netip.MustParsePrefix("192.168.1.1/32"), Port: 53, Protocol: "tcp", Action: "allow"},
		{Direction: DirectionOut, Remote: netip.MustParsePrefix("45.83.223.196/32"), Port: 443, Protocol: "tcp", RootOnly: true, Action: "allow"},
	}
	for _, w := range want {
		if !hasRule(rules, w) {
			t.Errorf("missing rule %+v", w)
		}
	}

	lan := Rule{Direction: DirectionOut, Remote: netip.MustParsePrefix("192.168.0.0/16"), Action: "allow"}
	if hasRule(rules, lan) {
		t.Error("LAN rule present although AllowLAN is false")
	}
}

func TestCompile_AllowLAN(t *testing.T) {
	rules := Compile(Blocked{AllowLAN: true}, defaultConfig())

	for _, w := range []Rule{
		{Direction: DirectionOut, Remote: netip.MustParsePrefix("192.168.0.0/16"), Action: "allow"},
		{Direction: DirectionIn, Remote: netip.MustParsePrefix("10.0.0.0/8"), Action: "allow"},
		{Direction: DirectionOut, Remote: netip.MustParsePrefix("224.0.0.0/4"), Action: "allow"},
	} {
		if !hasRule(rules, w) {
			t.Errorf("missing LAN rule %+v", w)
		}
	}
}

func TestCompile_ConnectingAllowsPeer(t *testing.T) {
	rules := Compile(Connecting{PeerEndpoint: testEndpoint(), ExcludedMark: 0x6d6f6c65}, defaultConfig())

	peer := Rule{Direction: DirectionOut, Remote: netip.MustParsePrefix("185.65.135.1/32"), Port: 51820, Protocol: "udp", Action: "allow"}
	if !hasRule(rules, peer) {
		t.Errorf("missing peer rule %+v", peer)
	}
	mark := Rule{Direction: DirectionOut, Mark: 0x6d6f6c65, Action: "allow"}
	if !hasRule(rules, mark) {
		t.Errorf("missing split tunnel mark rule %+v", mark)
	}
}

func TestCompile_ConnectedRestrictsDNS(t *testing.T) {
	p := Connected{
		PeerEndpoint: testEndpoint(),
		Tunnel:       TunnelInterface{Name: "wg0", Addresses: []netip.Prefix{netip.MustParsePrefix("10.64.0.2/32")}},
		DNSServers:   []netip.Addr{netip.MustParseAddr("10.64.0.1"), netip.MustParseAddr("192.168.1.1")},
	}
	rules := Compile(p, defaultConfig())

	inTunnel := Rule{Direction: DirectionOut, Interface: "wg0", Remote: netip.MustParsePrefix("10.64.0.1/32"), Port: 53, Protocol: "udp", Action: "allow"}
	lanResolver := Rule{Direction: DirectionOut, Remote: netip.MustParsePrefix("192.168.1.1/32"), Port: 53, Protocol: "udp", Action: "allow"}
	denyDNS := Rule{Direction: DirectionOut, Port: 53, Protocol: "udp", Action: "deny"}
	tunnel := Rule{Direction: DirectionOut, Interface: "wg0", Action: "allow"}

	for _, w := range []Rule{inTunnel, lanResolver, denyDNS, tunnel} {
		if !hasRule(rules, w) {
			t.Errorf("missing rule %+v", w)
		}
	}
	if indexOf(rules, inTunnel) > indexOf(rules, denyDNS) {
		t.Error("tunnel resolver rule must precede the DNS deny rule")
	}
	if indexOf(rules, denyDNS) > indexOf(rules, tunnel) {
		t.Error("DNS deny rule must precede the tunnel allow rule")
	}
}

func TestCompile_DHCPDisabled(t *testing.T) {
	rules := Compile(Blocked{}, Config{TableName: "t"})

	dhcp := Rule{Direction: DirectionOut, Port: 67, Protocol: "udp", Action: "allow"}
	if hasRule(rules, dhcp) {
		t.Error("DHCP rule present although AllowDHCP is false")
	}
}

func TestRoutedThroughTunnel(t *testing.T) {
	tunnel := []netip.Prefix{netip.MustParsePrefix("10.64.0.2/32")}
	tests := []struct {
		ip   string
		want bool
	}{
		{ip: "10.64.0.2", want: true},
		{ip: "192.168.1.1", want: false},
		{ip: "1.1.1.1", want: true},
		{ip: "127.0.0.1", want: false},
	}
	for _, tt := range tests {
		if got := routedThroughTunnel(netip.MustParseAddr(tt.ip), tunnel); got != tt.want {
			t.Errorf("routedThroughTunnel(%s) = %t, want %t", tt.ip, got, tt.want)
		}
	}
}
