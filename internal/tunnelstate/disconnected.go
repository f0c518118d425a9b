package tunnelstate

import (
	"fmt"
	"net/netip"

	"github.com/plexsphere/plexvpn/internal/dns"
)

// disconnectedState has no tunnel. Traffic is blocked only when
// block-when-disconnected is set.
type disconnectedState struct {
	allowedIPs       map[netip.Addr]struct{}
	allowedResolvers map[netip.Addr]struct{}
}

func enterDisconnected(s *sharedState, resetFirewall bool) (tunnelState, Transition) {
	st := &disconnectedState{
		allowedIPs:       make(map[netip.Addr]struct{}),
		allowedResolvers: make(map[netip.Addr]struct{}),
	}

	if s.enableCustomResolver {
		if err := st.activateCustomResolver(s); err != nil {
			s.logger.Error("failed to activate custom resolver", "error", err)
		}
	}
	st.registerSplitTunnelAddresses(s, resetFirewall)
	st.setFirewallPolicy(s, resetFirewall)
	if s.caps.TunProvider != nil {
		s.caps.TunProvider.CloseTun()
	}

	return st, Transition{State: StateDisconnected}
}

// setFirewallPolicy applies the Blocked policy when blocking, otherwise
// resets the firewall if reset is set. Failures are logged.
func (st *disconnectedState) setFirewallPolicy(s *sharedState, reset bool) {
	var err error
	switch {
	case s.blockWhenDisconnected:
		err = s.applyPolicy(s.blockedPolicy(st.allowedIPs, st.allowedResolvers))
	case reset:
		err = s.resetPolicy()
	default:
		return
	}
	if err != nil {
		s.logger.Error("failed to set firewall policy for disconnected state", "error", err)
	}
}

func (st *disconnectedState) registerSplitTunnelAddresses(s *sharedState, resetFirewall bool) {
	sp := s.caps.SplitTunnel
	if sp == nil {
		return
	}
	var err error
	if resetFirewall && !s.blockWhenDisconnected {
		err = sp.ClearTunnelAddresses()
	} else {
		err = sp.SetTunnelAddresses(nil)
	}
	if err != nil {
		s.logger.Error("failed to reset split tunnel addresses", "error", err)
	}
}

// setDNS points the host at the custom servers while traffic is blocked.
func (st *disconnectedState) setDNS(s *sharedState) {
	if !s.blockWhenDisconnected || len(s.dnsServers) == 0 {
		return
	}
	if err := s.dns.Set(loopbackInterface, s.dnsServers); err != nil {
		s.logger.Error("failed to set custom DNS servers", "error", err)
	}
}

func (st *disconnectedState) resetAllowedResolvers(s *sharedState, sc *dns.SystemConfig) {
	clear(st.allowedResolvers)
	if sc != nil {
		for _, addr := range sc.Servers {
			st.allowedResolvers[addr] = struct{}{}
		}
	}
	st.setFirewallPolicy(s, false)
}

// activateCustomResolver forwards to the host resolvers and points the
// host at the local resolver.
func (st *disconnectedState) activateCustomResolver(s *sharedState) error {
	sc, err := s.dns.SystemConfig()
	if err != nil {
		return fmt.Errorf("tunnelstate: read system DNS config: %w", err)
	}
	st.resetAllowedResolvers(s, sc)
	if err := s.caps.CustomResolver.SetActive(sc); err != nil {
		return fmt.Errorf("tunnelstate: activate custom resolver: %w", err)
	}
	return s.dns.Set(loopbackInterface, []netip.Addr{s.caps.CustomResolver.HostAddr()})
}

func (st *disconnectedState) handleEvent(ev event, s *sharedState) eventConsequence {
	switch ev := ev.(type) {
	case AllowLAN:
		if s.setAllowLAN(ev.Allow) {
			st.setFirewallPolicy(s, true)
		}
	case AllowEndpoint:
		if s.setAllowedEndpoint(ev.Endpoint) {
			st.setFirewallPolicy(s, true)
		}
		ack(ev.Done)
	case SetDNS:
		s.setDNSServers(ev.Servers)
		st.setDNS(s)
	case BlockWhenDisconnected:
		if s.blockWhenDisconnected == ev.Block {
			break
		}
		s.blockWhenDisconnected = ev.Block
		st.registerSplitTunnelAddresses(s, true)
		if ev.Block {
			st.setDNS(s)
		} else {
			s.resetDNS()
		}
		st.setFirewallPolicy(s, true)
	case IsOffline:
		s.isOffline = ev.Offline
	case Connect:
		return newState(enterConnecting(s, 0))
	case Block:
		s.resetDNS()
		return newState(enterError(s, ev.Reason))
	case BypassSocket:
		s.bypassSocket(ev)
	case SetExcludedApps:
		s.setExcludedApps(ev)
	case SetCustomResolver:
		return st.handleSetCustomResolver(ev, s)
	case HostDNSConfig:
		if !s.enableCustomResolver {
			break
		}
		st.resetAllowedResolvers(s, ev.Config)
		if err := s.caps.CustomResolver.SetActive(ev.Config); err != nil {
			s.logger.Error("failed to activate custom resolver", "error", err)
			return newState(enterError(s, CauseCustomResolverError))
		}
	case AddAllowedIPs:
		added := false
		for _, ip := range ev.IPs {
			if _, ok := st.allowedIPs[ip]; !ok {
				st.allowedIPs[ip] = struct{}{}
				added = true
			}
		}
		if added {
			st.setFirewallPolicy(s, false)
		}
		ack(ev.Done)
	case commandsClosed:
		s.resetDNS()
		return finished()
	}
	return sameState(st)
}

func (st *disconnectedState) handleSetCustomResolver(cmd SetCustomResolver, s *sharedState) eventConsequence {
	if s.caps.CustomResolver == nil {
		ackErr(cmd.Result, ErrCapabilityUnavailable)
		return sameState(st)
	}
	if err := s.setCustomResolverEnabled(cmd.Enable); err != nil {
		ackErr(cmd.Result, err)
		return sameState(st)
	}
	if !cmd.Enable {
		ackErr(cmd.Result, nil)
		return sameState(st)
	}

	sc, err := s.dns.SystemConfig()
	if err != nil {
		s.logger.Error("failed to read system DNS config", "error", err)
		ackErr(cmd.Result, fmt.Errorf("tunnelstate: read system DNS config: %w", err))
		return sameState(st)
	}
	st.resetAllowedResolvers(s, sc)
	if err := s.caps.CustomResolver.SetActive(sc); err != nil {
		ackErr(cmd.Result, err)
		return sameState(st)
	}
	if err := s.dns.Set(loopbackInterface, []netip.Addr{s.caps.CustomResolver.HostAddr()}); err != nil {
		s.logger.Error("failed to point DNS at custom resolver", "error", err)
		ackErr(cmd.Result, fmt.Errorf("tunnelstate: set DNS: %w", err))
		return newState(enterError(s, CauseSetDNSError))
	}
	ackErr(cmd.Result, nil)
	return sameState(st)
}
