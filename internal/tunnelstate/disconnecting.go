package tunnelstate

// disconnectingState waits for a stopped tunnel to finish, then moves on
// according to after.
type disconnectingState struct {
	tunnel      Tunnel
	generation  uint64
	after       AfterDisconnect
	blockReason ErrorCause
}

func enterDisconnecting(s *sharedState, tunnel Tunnel, generation uint64, after AfterDisconnect, reason ErrorCause) (tunnelState, Transition) {
	tunnel.Stop()
	s.logger.Info("disconnecting", "after", after.String())
	return &disconnectingState{
		tunnel:      tunnel,
		generation:  generation,
		after:       after,
		blockReason: reason,
	}, Transition{State: StateDisconnecting, AfterDisconnect: after}
}

func (st *disconnectingState) handleEvent(ev event, s *sharedState) eventConsequence {
	switch ev := ev.(type) {
	case AllowLAN:
		s.setAllowLAN(ev.Allow)
	case AllowEndpoint:
		s.setAllowedEndpoint(ev.Endpoint)
		ack(ev.Done)
	case SetDNS:
		s.setDNSServers(ev.Servers)
	case BlockWhenDisconnected:
		s.blockWhenDisconnected = ev.Block
	case IsOffline:
		s.isOffline = ev.Offline
	case Connect:
		st.after = AfterReconnect
	case Disconnect:
		st.after = AfterNothing
	case Block:
		st.after = AfterBlock
		st.blockReason = ev.Reason
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
			return st.finish(s)
		}
	case commandsClosed:
		s.closeTunnel(st.tunnel)
		s.resetDNS()
		return finished()
	}
	return sameState(st)
}

func (st *disconnectingState) finish(s *sharedState) eventConsequence {
	s.closeTunnel(st.tunnel)
	s.resetDNS()

	switch st.after {
	case AfterBlock:
		return newState(enterError(s, st.blockReason))
	case AfterReconnect:
		if s.isOffline {
			return newState(enterError(s, CauseIsOffline))
		}
		return newState(enterConnecting(s, 0))
	default:
		return newState(enterDisconnected(s, true))
	}
}
