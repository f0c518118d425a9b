package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TunnelStats holds tunnel health data for a single peer.
type TunnelStats struct {
	PublicKey      string    `json:"public_key"`
	LastHandshake  time.Time `json:"last_handshake"`
	RxBytes        uint64    `json:"rx_bytes"`
	TxBytes        uint64    `json:"tx_bytes"`
	HandshakeStale bool      `json:"handshake_stale"`
}

// TunnelStatsReader abstracts WireGuard tunnel stats retrieval. A reader
// returns no stats while no tunnel is up.
type TunnelStatsReader interface {
	ReadTunnelStats(ctx context.Context) ([]TunnelStats, error)
}

// TunnelCollector reads per-peer tunnel statistics.
type TunnelCollector struct {
	reader         TunnelStatsReader
	logger         *slog.Logger
	staleThreshold time.Duration
	now            func() time.Time
}

// NewTunnelCollector creates a new TunnelCollector. A non-positive
// staleThreshold means DefaultStaleThreshold.
func NewTunnelCollector(reader TunnelStatsReader, staleThreshold time.Duration, logger *slog.Logger) *TunnelCollector {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	return &TunnelCollector{
		reader:         reader,
		logger:         logger,
		staleThreshold: staleThreshold,
		now:            time.Now,
	}
}

// Collect reads tunnel stats. Handshakes older than the stale threshold are
// marked as stale. A peer that never completed a handshake is not stale.
func (c *TunnelCollector) Collect(ctx context.Context) ([]TunnelStats, error) {
	stats, err := c.reader.ReadTunnelStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: tunnel: %w", err)
	}

	now := c.now()
	out := make([]TunnelStats, 0, len(stats))
	for _, s := range stats {
		s.HandshakeStale = !s.LastHandshake.IsZero() && now.Sub(s.LastHandshake) > c.staleThreshold
		out = append(out, s)
	}
	return out, nil
}
