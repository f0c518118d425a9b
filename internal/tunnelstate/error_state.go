package tunnelstate

// errorState blocks all traffic except the configured exceptions,
// whatever block-when-disconnected says.
type errorState struct {
	cause        ErrorCause
	blockFailure error
}

func enterError(s *sharedState, cause ErrorCause) (tunnelState, Transition) {
	st := &errorState{cause: cause}

	if sp := s.caps.SplitTunnel; sp != nil {
		if err := sp.SetTunnelAddresses(nil); err != nil {
			s.logger.Error("failed to reset split tunnel addresses", "error", err)
		}
	}
	if err := st.applyBlockedPolicy(s); err != nil {
		st.blockFailure = err
	}

	s.logger.Warn("entered error state",
		"cause", cause.String(),
		"blocking", st.blockFailure == nil,
	)
	return st, Transition{
		State: StateError,
		Error: &ErrorState{Cause: cause, BlockFailure: st.blockFailure},
	}
}

func (st *errorState) applyBlockedPolicy(s *sharedState) error {
	err := s.applyPolicy(s.blockedPolicy(nil, nil))
	if err != nil {
		s.logger.Error("failed to apply blocking firewall policy", "error", err)
	}
	return err
}

func (st *errorState) handleEvent(ev event, s *sharedState) eventConsequence {
	switch ev := ev.(type) {
	case AllowLAN:
		if s.setAllowLAN(ev.Allow) {
			st.blockFailure = st.applyBlockedPolicy(s)
		}
	case AllowEndpoint:
		if s.setAllowedEndpoint(ev.Endpoint) {
			st.blockFailure = st.applyBlockedPolicy(s)
		}
		ack(ev.Done)
	case SetDNS:
		s.setDNSServers(ev.Servers)
	case BlockWhenDisconnected:
		s.blockWhenDisconnected = ev.Block
	case IsOffline:
		s.isOffline = ev.Offline
		if !ev.Offline && st.cause == CauseIsOffline {
			return newState(enterConnecting(s, 0))
		}
	case Connect:
		return newState(enterConnecting(s, 0))
	case Disconnect:
		return newState(enterDisconnected(s, true))
	case Block:
		return newState(enterError(s, ev.Reason))
	case BypassSocket:
		s.bypassSocket(ev)
	case SetExcludedApps:
		s.setExcludedApps(ev)
	case SetCustomResolver:
		s.setCustomResolverOutsideDisconnected(ev)
	case AddAllowedIPs:
		ack(ev.Done)
	case commandsClosed:
		s.resetDNS()
		return finished()
	}
	return sameState(st)
}
