package tunnel

import "net/netip"

// mainTable is the kernel's main routing table.
const mainTable = 254

// RouteSpec describes the policy routing that sends traffic into the
// tunnel, the same way wg-quick does it: packets without the WireGuard
// fwmark are looked up in Table, which routes AllowedIPs via the tunnel,
// after the main table is consulted for everything but its default route.
type RouteSpec struct {
	Interface    string
	AllowedIPs   []netip.Prefix
	Table        int
	FirewallMark int
	Priority     int
}

// RouteController abstracts the tunnel routes for testability.
// All methods must be idempotent.
type RouteController interface {
	// AddTunnelRoutes installs the routes and rules of spec.
	AddTunnelRoutes(spec RouteSpec) error
	// RemoveTunnelRoutes removes the rules of spec. The routes go away
	// with the interface.
	RemoveTunnelRoutes(spec RouteSpec) error
}
