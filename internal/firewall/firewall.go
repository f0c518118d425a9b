package firewall

import (
	"fmt"
	"log/slog"
	"sync"
)

// Backend abstracts the kernel packet filter for testability.
type Backend interface {
	// ApplyRules atomically replaces every plexvpn rule with rules.
	ApplyRules(rules []Rule) error
	// Reset removes every plexvpn rule and table.
	// Implementations must be idempotent: resetting with nothing installed must return nil.
	Reset() error
}

// Firewall applies tunnel policies through a Backend.
type Firewall struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu     sync.Mutex
	active Policy
}

// New creates a Firewall.
func New(backend Backend, cfg Config, logger *slog.Logger) *Firewall {
	cfg.ApplyDefaults()
	return &Firewall{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "firewall"),
	}
}

// ApplyPolicy compiles p and installs the resulting ruleset. A failed
// apply leaves no policy recorded as active.
func (f *Firewall) ApplyPolicy(p Policy) error {
	if p == nil {
		return fmt.Errorf("firewall: apply policy: nil policy")
	}
	rules := Compile(p, f.cfg)
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return fmt.Errorf("firewall: apply policy: rule %d: %w", i, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.backend.ApplyRules(rules); err != nil {
		f.active = nil
		return fmt.Errorf("firewall: apply policy: %w", err)
	}
	f.active = p

	f.logger.Info("applied firewall policy", "policy", p.String(), "rules", len(rules))
	return nil
}

// ResetPolicy removes all rules, returning the host to unfiltered traffic.
func (f *Firewall) ResetPolicy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.backend.Reset(); err != nil {
		return fmt.Errorf("firewall: reset policy: %w", err)
	}
	f.active = nil

	f.logger.Info("reset firewall policy")
	return nil
}

// Active returns the last successfully applied policy, or nil after a reset.
func (f *Firewall) Active() Policy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}
