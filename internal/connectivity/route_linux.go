//go:build linux

package connectivity

import (
	"context"
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetlinkRouteSource implements RouteSource with netlink. Only the main
// table is considered, so tunnel routes never make the host look online.
type NetlinkRouteSource struct{}

var _ RouteSource = NetlinkRouteSource{}

// Online reports whether the main table has an IPv4 or IPv6 default route.
func (NetlinkRouteSource) Online() (bool, error) {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		routes, err := netlink.RouteListFiltered(family,
			&netlink.Route{Table: unix.RT_TABLE_MAIN},
			netlink.RT_FILTER_TABLE,
		)
		if err != nil {
			return false, fmt.Errorf("connectivity: list routes: %w", err)
		}
		for _, r := range routes {
			if isDefault(r) {
				return true, nil
			}
		}
	}
	return false, nil
}

func isDefault(r netlink.Route) bool {
	if r.Dst == nil {
		return true
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0
}

// Subscribe forwards netlink route updates to notify.
func (NetlinkRouteSource) Subscribe(ctx context.Context, notify chan<- struct{}) error {
	updates := make(chan netlink.RouteUpdate, 16)
	done := make(chan struct{})
	if err := netlink.RouteSubscribe(updates, done); err != nil {
		return fmt.Errorf("connectivity: route subscribe: %w", err)
	}
	defer func() {
		close(done)
		for range updates {
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return errors.New("connectivity: route subscription closed")
			}
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}
}
