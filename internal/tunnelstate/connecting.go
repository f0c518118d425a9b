package tunnelstate

import (
	"errors"
)

// connectingState waits for a tunnel to come up. Only the peer endpoint and
// the configured exceptions are reachable.
type connectingState struct {
	tunnel       Tunnel
	generation   uint64
	params       TunnelParameters
	retryAttempt int
}

func enterConnecting(s *sharedState, retryAttempt int) (tunnelState, Transition) {
	if s.isOffline {
		s.logger.Info("host is offline, not connecting")
		return enterError(s, CauseIsOffline)
	}

	params, err := s.params.Generate(retryAttempt)
	if err != nil {
		s.logger.Error("failed to generate tunnel parameters", "error", err)
		return enterError(s, CauseTunnelParameterError)
	}

	if err := s.applyPolicy(s.connectingPolicy(params)); err != nil {
		s.logger.Error("failed to apply firewall policy for connecting state", "error", err)
		return enterError(s, CauseSetFirewallPolicyError)
	}

	if sp := s.caps.SplitTunnel; sp != nil {
		if err := sp.SetTunnelAddresses(splitTunnelAddresses(params.Addresses)); err != nil {
			s.logger.Error("failed to register tunnel addresses with split tunnel", "error", err)
			return enterError(s, CauseSplitTunnelError)
		}
	}

	gen := s.nextGeneration()
	tunnel, err := s.launcher.Launch(gen, params, s.tunnelSink)
	if err != nil {
		s.retireGeneration()
		s.logger.Error("failed to start tunnel", "endpoint", params.Endpoint.String(), "error", err)
		return enterError(s, launchErrorCause(err))
	}

	s.logger.Info("connecting",
		"endpoint", params.Endpoint.String(),
		"attempt", retryAttempt,
	)
	endpoint := params.Endpoint
	return &connectingState{
		tunnel:       tunnel,
		generation:   gen,
		params:       params,
		retryAttempt: retryAttempt,
	}, Transition{State: StateConnecting, Endpoint: &endpoint}
}

func launchErrorCause(err error) ErrorCause {
	var te TunnelError
	if errors.As(err, &te) {
		return te.Cause()
	}
	return CauseStartTunnelError
}

// reapplyPolicy re-derives the connecting policy after a settings change.
func (st *connectingState) reapplyPolicy(s *sharedState) eventConsequence {
	if err := s.applyPolicy(s.connectingPolicy(st.params)); err != nil {
		s.logger.Error("failed to apply firewall policy for connecting state", "error", err)
		return st.disconnect(s, AfterBlock, CauseSetFirewallPolicyError)
	}
	return sameState(st)
}

func (st *connectingState) disconnect(s *sharedState, after AfterDisconnect, reason ErrorCause) eventConsequence {
	return newState(enterDisconnecting(s, st.tunnel, st.generation, after, reason))
}

func (st *connectingState) handleEvent(ev event, s *sharedState) eventConsequence {
	switch ev := ev.(type) {
	case AllowLAN:
		if s.setAllowLAN(ev.Allow) {
			return st.reapplyPolicy(s)
		}
	case AllowEndpoint:
		changed := s.setAllowedEndpoint(ev.Endpoint)
		c := sameState(st)
		if changed {
			c = st.reapplyPolicy(s)
		}
		ack(ev.Done)
		return c
	case SetDNS:
		s.setDNSServers(ev.Servers)
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
		if ev.Generation != st.generation {
			break
		}
		switch ev.Kind {
		case TunnelUp:
			return newState(enterConnected(s, st, ev.Metadata))
		case TunnelDown:
			return st.handleTunnelDown(ev.Err, s)
		}
	case commandsClosed:
		s.closeTunnel(st.tunnel)
		s.resetDNS()
		return finished()
	}
	return sameState(st)
}

func (st *connectingState) handleTunnelDown(err error, s *sharedState) eventConsequence {
	s.closeTunnel(st.tunnel)

	cause, recoverable := classifyTunnelError(err)
	if !recoverable {
		s.logger.Error("tunnel failed", "cause", cause.String(), "error", err)
		return newState(enterError(s, cause))
	}
	next := st.retryAttempt + 1
	if next > s.cfg.retryLimit() {
		s.logger.Error("tunnel failed, giving up", "attempts", next, "error", err)
		return newState(enterError(s, CauseTunnelFailure))
	}
	s.logger.Warn("tunnel failed, retrying", "attempt", next, "error", err)
	return newState(enterConnecting(s, next))
}
