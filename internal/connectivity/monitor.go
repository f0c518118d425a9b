// Package connectivity detects whether the host is offline by watching
// the routing table for a default route.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RouteSource abstracts the routing table for testability.
type RouteSource interface {
	// Online reports whether a default route exists.
	Online() (bool, error)
	// Subscribe signals notify on every route change until ctx is done.
	// Sends to notify must not block.
	Subscribe(ctx context.Context, notify chan<- struct{}) error
}

// Monitor reports connectivity changes.
type Monitor struct {
	src    RouteSource
	cfg    Config
	logger *slog.Logger
}

// NewMonitor creates a Monitor. Config defaults are applied automatically.
func NewMonitor(src RouteSource, cfg Config, logger *slog.Logger) *Monitor {
	cfg.ApplyDefaults()
	return &Monitor{
		src:    src,
		cfg:    cfg,
		logger: logger.With("component", "connectivity"),
	}
}

// Run calls report with the initial state and then on every change until
// ctx is done. It returns nil when ctx is done and an error when the route
// subscription fails.
func (m *Monitor) Run(ctx context.Context, report func(offline bool)) error {
	if !m.cfg.IsEnabled() {
		report(false)
		<-ctx.Done()
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	notify := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- m.src.Subscribe(subCtx, notify)
	}()

	offline := m.offline(false)
	report(offline)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-errc
			return nil
		case err := <-errc:
			if err == nil {
				return nil
			}
			return fmt.Errorf("connectivity: subscribe: %w", err)
		case <-notify:
			if pending == nil {
				pending = time.After(m.cfg.Debounce)
			}
		case <-pending:
			pending = nil
			now := m.offline(offline)
			if now == offline {
				continue
			}
			offline = now
			m.logger.Info("connectivity changed", "offline", offline)
			report(offline)
		}
	}
}

// offline checks the routing table. A failed check keeps the previous state.
func (m *Monitor) offline(previous bool) bool {
	online, err := m.src.Online()
	if err != nil {
		m.logger.Warn("connectivity check failed", "error", err)
		return previous
	}
	return !online
}
