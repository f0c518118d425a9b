// Package tunnelstate implements the tunnel state machine. A single driver
// loop owns the shared state and feeds commands and tunnel events, one at a
// time, to the current state. Every state keeps the firewall policy in line
// with the tunnel it manages.
package tunnelstate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// tunnelEventBuffer bounds tunnel events waiting for the loop. A tunnel
// reports at most two events.
const tunnelEventBuffer = 32

// Machine drives the tunnel states.
type Machine struct {
	cfg      Config
	deps     Dependencies
	settings Settings
	logger   *slog.Logger
}

// NewMachine creates a Machine. The firewall, DNS monitor, launcher and
// parameters generator are required.
func NewMachine(cfg Config, deps Dependencies, settings Settings, logger *slog.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	switch {
	case deps.Firewall == nil:
		return nil, errors.New("tunnelstate: new machine: firewall is required")
	case deps.DNS == nil:
		return nil, errors.New("tunnelstate: new machine: DNS monitor is required")
	case deps.Launcher == nil:
		return nil, errors.New("tunnelstate: new machine: tunnel launcher is required")
	case deps.Parameters == nil:
		return nil, errors.New("tunnelstate: new machine: parameters generator is required")
	}

	return &Machine{
		cfg:      cfg,
		deps:     deps,
		settings: settings,
		logger:   logger.With("component", "tunnelstate"),
	}, nil
}

// Run drives the machine until commands is closed or ctx is cancelled. Both
// end the machine the same way: the current state shuts down, DNS is reset
// and the firewall is reset unless block-when-disconnected is set. Every
// transition, including the initial one, is sent on transitions.
//
// Run returns nil when commands is closed and ctx.Err() when cancelled.
func (m *Machine) Run(ctx context.Context, commands <-chan Command, transitions chan<- Transition) error {
	done := make(chan struct{})
	defer close(done)

	events := make(chan TunnelEvent, tunnelEventBuffer)
	var active atomic.Uint64
	sink := func(ev TunnelEvent) {
		if ev.Generation != active.Load() {
			return
		}
		select {
		case events <- ev:
		case <-done:
		}
	}

	s := newSharedState(m.cfg, m.deps, m.settings, &active, sink, m.logger)

	state, t := enterDisconnected(s, m.cfg.ResetFirewallOnStart)
	m.emit(ctx, transitions, t)

	var runErr error
	for {
		var ev event
		select {
		case cmd, ok := <-commands:
			if !ok {
				ev = commandsClosed{}
			} else {
				ev = cmd
			}
		case tev := <-events:
			ev = tev
		case <-ctx.Done():
			runErr = ctx.Err()
			ev = commandsClosed{}
		}

		c := state.handleEvent(ev, s)
		switch c.kind {
		case consequenceNew:
			state = c.state
			m.emit(ctx, transitions, c.transition)
		case consequenceFinished:
			m.finish(s)
			m.logger.Info("tunnel state machine stopped")
			return runErr
		default:
			state = c.state
		}
	}
}

func (m *Machine) emit(ctx context.Context, transitions chan<- Transition, t Transition) {
	m.logger.Info("tunnel state transition", "state", string(t.State))
	select {
	case transitions <- t:
	case <-ctx.Done():
	}
}

// finish leaves the Blocked policy in place when block-when-disconnected
// is set and resets the firewall otherwise.
func (m *Machine) finish(s *sharedState) {
	if s.blockWhenDisconnected {
		if err := s.applyPolicy(s.blockedPolicy(nil, nil)); err != nil {
			m.logger.Error("failed to apply blocking firewall policy on shutdown", "error", err)
		}
		return
	}
	if err := s.resetPolicy(); err != nil {
		m.logger.Error("failed to reset firewall policy on shutdown", "error", err)
	}
}
