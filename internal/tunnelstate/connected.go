package tunnelstate

// connectedState has a tunnel that is up. All traffic goes through it,
// except the configured exceptions.
type connectedState struct {
	tunnel     Tunnel
	generation uint64
	params     TunnelParameters
	metadata   TunnelMetadata
}

func enterConnected(s *sharedState, c *connectingState, md TunnelMetadata) (tunnelState, Transition) {
	st := &connectedState{
		tunnel:     c.tunnel,
		generation: c.generation,
		params:     c.params,
		metadata:   md,
	}

	if err := s.applyPolicy(s.connectedPolicy(st.params, md)); err != nil {
		s.logger.Error("failed to apply firewall policy for connected state", "error", err)
		s.closeTunnel(st.tunnel)
		s.resetDNS()
		return enterError(s, CauseSetFirewallPolicyError)
	}
	if err := st.setDNS(s); err != nil {
		s.logger.Error("failed to set DNS for connected state", "interface", md.Interface, "error", err)
		s.closeTunnel(st.tunnel)
		s.resetDNS()
		return enterError(s, CauseSetDNSError)
	}

	s.logger.Info("connected",
		"endpoint", st.params.Endpoint.String(),
		"interface", md.Interface,
	)
	endpoint := st.params.Endpoint
	metadata := md
	return st, Transition{State: StateConnected, Endpoint: &endpoint, Metadata: &metadata}
}

func (st *connectedState) setDNS(s *sharedState) error {
	servers := s.tunnelDNSServers(st.params)
	if len(servers) == 0 {
		return nil
	}
	return s.dns.Set(st.metadata.Interface, servers)
}

func (st *connectedState) disconnect(s *sharedState, after AfterDisconnect, reason ErrorCause) eventConsequence {
	return newState(enterDisconnecting(s, st.tunnel, st.generation, after, reason))
}

func (st *connectedState) reapplyPolicy(s *sharedState) eventConsequence {
	if err := s.applyPolicy(s.connectedPolicy(st.params, st.metadata)); err != nil {
		s.logger.Error("failed to apply firewall policy for connected state", "error", err)
		return st.disconnect(s, AfterBlock, CauseSetFirewallPolicyError)
	}
	return sameState(st)
}

func (st *connectedState) handleEvent(ev event, s *sharedState) eventConsequence {
	switch ev := ev.(type) {
	case AllowLAN:
		if s.setAllowLAN(ev.Allow) {
			return st.reapplyPolicy(s)
		}
	case AllowEndpoint:
		c := sameState(st)
		if s.setAllowedEndpoint(ev.Endpoint) {
			c = st.reapplyPolicy(s)
		}
		ack(ev.Done)
		return c
	case SetDNS:
		if !s.setDNSServers(ev.Servers) {
			break
		}
		if c := st.reapplyPolicy(s); c.kind != consequenceSame {
			return c
		}
		if err := st.setDNS(s); err != nil {
			s.logger.Error("failed to set DNS for connected state", "error", err)
			return st.disconnect(s, AfterBlock, CauseSetDNSError)
		}
	case BlockWhenDisconnected:
		s.blockWhenDisconnected = ev.Block
	case IsOffline:
		s.isOffline = ev.Offline
		if ev.Offline {
			return st.disconnect(s, AfterBlock, CauseIsOffline)
		}
	case Connect:
		return st.disconnect(s, AfterReconnect, 0)
	case Disconnect:
		return st.disconnect(s, AfterNothing, 0)
	case Block:
		return st.disconnect(s, AfterBlock, ev.Reason)
	case BypassSocket:
		s.bypassSocket(ev)
	case SetExcludedApps:
		s.setExcludedApps(ev)
	case SetCustomResolver:
		s.setCustomResolverOutsideDisconnected(ev)
	case AddAllowedIPs:
		ack(ev.Done)
	case TunnelEvent:
		if ev.Generation == st.generation && ev.Kind == TunnelDown {
			return st.handleTunnelDown(ev.Err, s)
		}
	case commandsClosed:
		s.closeTunnel(st.tunnel)
		s.resetDNS()
		return finished()
	}
	return sameState(st)
}

// handleTunnelDown reconnects after a recoverable failure. DNS is reset
// first since it points at a resolver reached through the lost tunnel.
func (st *connectedState) handleTunnelDown(err error, s *sharedState) eventConsequence {
	s.closeTunnel(st.tunnel)
	s.resetDNS()

	cause, recoverable := classifyTunnelError(err)
	switch {
	case !recoverable:
		s.logger.Error("tunnel lost", "cause", cause.String(), "error", err)
		return newState(enterError(s, cause))
	case s.cfg.retryLimit() < 1:
		s.logger.Error("tunnel lost, retries disabled", "error", err)
		return newState(enterError(s, CauseTunnelFailure))
	default:
		s.logger.Warn("tunnel lost, reconnecting", "error", err)
		return newState(enterConnecting(s, 1))
	}
}
