//go:build linux

package tunnel

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetlinkRouteController implements RouteController using Linux netlink.
type NetlinkRouteController struct {
	logger *slog.Logger
}

var _ RouteController = (*NetlinkRouteController)(nil)

// NewNetlinkRouteController returns a new NetlinkRouteController.
func NewNetlinkRouteController(logger *slog.Logger) *NetlinkRouteController {
	return &NetlinkRouteController{logger: logger.With("component", "tunnel")}
}

// AddTunnelRoutes routes spec.AllowedIPs through the tunnel interface in
// spec.Table and installs the selecting rules for each address family.
func (c *NetlinkRouteController) AddTunnelRoutes(spec RouteSpec) error {
	link, err := netlink.LinkByName(spec.Interface)
	if err != nil {
		return fmt.Errorf("tunnel: add routes: lookup interface %q: %w", spec.Interface, err)
	}

	for _, prefix := range spec.AllowedIPs {
		route := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Dst:       prefixToIPNet(prefix),
			Table:     spec.Table,
			Scope:     netlink.SCOPE_LINK,
		}
		if err := netlink.RouteReplace(route); err != nil {
			return fmt.Errorf("tunnel: add route %s via %q: %w", prefix, spec.Interface, err)
		}
	}

	for _, family := range families(spec.AllowedIPs) {
		for _, rule := range tunnelRules(spec, family) {
			if err := netlink.RuleAdd(rule); err != nil && !errors.Is(err, syscall.EEXIST) {
				return fmt.Errorf("tunnel: add rule table %d: %w", rule.Table, err)
			}
		}
	}

	c.logger.Debug("tunnel routes added",
		"interface", spec.Interface,
		"table", spec.Table,
		"allowed_ips", len(spec.AllowedIPs),
	)
	return nil
}

// RemoveTunnelRoutes deletes the rules installed by AddTunnelRoutes.
// Idempotent: deleting missing rules returns nil.
func (c *NetlinkRouteController) RemoveTunnelRoutes(spec RouteSpec) error {
	var errs []error
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		for _, rule := range tunnelRules(spec, family) {
			err := netlink.RuleDel(rule)
			if err != nil && !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ESRCH) {
				errs = append(errs, fmt.Errorf("tunnel: remove rule table %d: %w", rule.Table, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Debug("tunnel routes removed", "table", spec.Table)
	return nil
}

// tunnelRules returns the two rules wg-quick installs:
//
//	not fwmark <mark> lookup <table>
//	lookup main suppress_prefixlength 0
func tunnelRules(spec RouteSpec, family int) []*netlink.Rule {
	tunnel := netlink.NewRule()
	tunnel.Family = family
	tunnel.Table = spec.Table
	tunnel.Mark = uint32(spec.FirewallMark)
	tunnel.Invert = true
	tunnel.Priority = spec.Priority

	suppress := netlink.NewRule()
	suppress.Family = family
	suppress.Table = unix.RT_TABLE_MAIN
	suppress.SuppressPrefixlen = 0
	suppress.Priority = spec.Priority - 1

	return []*netlink.Rule{suppress, tunnel}
}

func families(prefixes []netip.Prefix) []int {
	var v4, v6 bool
	for _, p := range prefixes {
		if p.Addr().Is4() {
			v4 = true
		} else {
			v6 = true
		}
	}
	var out []int
	if v4 {
		out = append(out, netlink.FAMILY_V4)
	}
	if v6 {
		out = append(out, netlink.FAMILY_V6)
	}
	return out
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	p = p.Masked()
	return &net.IPNet{
		IP:   p.Addr().AsSlice(),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}
