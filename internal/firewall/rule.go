package firewall

import (
	"fmt"
	"net/netip"
)

// Direction selects the base chain a rule is installed in.
type Direction string

// Rule directions.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Rule describes a single packet filter rule.
type Rule struct {
	Direction Direction
	Interface string       // input interface for DirectionIn, output interface for DirectionOut
	Remote    netip.Prefix // source for DirectionIn, destination for DirectionOut (invalid = any)
	Port      int          // destination port (0 = any)
	Protocol  string       // "tcp", "udp", "icmpv6" or "" (any)
	Mark      uint32       // packet mark (0 = any)
	RootOnly  bool         // match sockets owned by uid 0
	Tracked   bool         // match established and related connections
	Action    string       // "allow" or "deny"
}

// Validate checks the rule for semantic correctness and returns an error
// if any field contains an invalid value.
func (r *Rule) Validate() error {
	if r.Direction != DirectionIn && r.Direction != DirectionOut {
		return fmt.Errorf("firewall: rule: invalid direction %q", r.Direction)
	}
	if r.Action != "allow" && r.Action != "deny" {
		return fmt.Errorf("firewall: rule: invalid action %q", r.Action)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("firewall: rule: invalid port %d", r.Port)
	}
	switch r.Protocol {
	case "", "tcp", "udp", "icmpv6":
	default:
		return fmt.Errorf("firewall: rule: invalid protocol %q", r.Protocol)
	}
	if r.Port > 0 && r.Protocol != "tcp" && r.Protocol != "udp" {
		return fmt.Errorf("firewall: rule: port %d requires tcp or udp", r.Port)
	}
	if r.RootOnly && r.Direction != DirectionOut {
		return fmt.Errorf("firewall: rule: root-only match is only valid for outgoing traffic")
	}
	if len(r.Interface) > 15 {
		return fmt.Errorf("firewall: rule: interface name %q too long", r.Interface)
	}
	return nil
}
