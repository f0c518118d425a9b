package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Snapshot is the result of the latest collection cycle.
type Snapshot struct {
	CollectedAt time.Time     `json:"collected_at"`
	Tunnel      []TunnelStats `json:"tunnel"`
	System      *SystemStats  `json:"system,omitempty"`
}

// Manager periodically runs the collectors and keeps the latest snapshot.
type Manager struct {
	cfg    Config
	tunnel *TunnelCollector
	system *SystemCollector
	logger *slog.Logger

	mu     sync.Mutex
	latest Snapshot
	stale  map[string]bool
}

// NewManager creates a new Manager. Either collector may be nil. Config
// defaults are applied automatically.
func NewManager(cfg Config, tunnel *TunnelCollector, system *SystemCollector, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:    cfg,
		tunnel: tunnel,
		system: system,
		logger: logger.With("component", "metrics"),
		stale:  make(map[string]bool),
	}
}

// Run collects immediately and then every CollectInterval. It blocks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.cfg.IsEnabled() {
		m.logger.Info("metrics disabled, skipping collection")
		return nil
	}

	m.collect(ctx)

	ticker := time.NewTicker(m.cfg.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

// Snapshot returns a copy of the latest snapshot.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.latest
	s.Tunnel = append([]TunnelStats(nil), m.latest.Tunnel...)
	if m.latest.System != nil {
		sys := *m.latest.System
		s.System = &sys
	}
	return s
}

func (m *Manager) collect(ctx context.Context) {
	snap := Snapshot{CollectedAt: time.Now()}

	if m.tunnel != nil {
		err := safeCollect(func() (err error) {
			snap.Tunnel, err = m.tunnel.Collect(ctx)
			return err
		})
		if err != nil {
			m.logger.Warn("collector failed", "collector", "tunnel", "error", err)
		}
	}
	if m.system != nil {
		err := safeCollect(func() (err error) {
			snap.System, err = m.system.Collect(ctx)
			return err
		})
		if err != nil {
			m.logger.Warn("collector failed", "collector", "system", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = snap
	m.trackStale(snap.Tunnel)
}

// trackStale logs when a peer's handshake goes stale or recovers.
// Must be called with m.mu held.
func (m *Manager) trackStale(stats []TunnelStats) {
	seen := make(map[string]bool, len(stats))
	for _, s := range stats {
		seen[s.PublicKey] = true
		was := m.stale[s.PublicKey]
		switch {
		case s.HandshakeStale && !was:
			m.logger.Warn("tunnel handshake stale", "peer", s.PublicKey, "last_handshake", s.LastHandshake)
		case !s.HandshakeStale && was:
			m.logger.Info("tunnel handshake recovered", "peer", s.PublicKey)
		}
		m.stale[s.PublicKey] = s.HandshakeStale
	}
	for key := range m.stale {
		if !seen[key] {
			delete(m.stale, key)
		}
	}
}

// safeCollect runs fn with panic recovery.
func safeCollect(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("collector panicked: %v\n%s", v, debug.Stack())
		}
	}()
	return fn()
}
