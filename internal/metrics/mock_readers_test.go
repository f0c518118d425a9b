package metrics

import (
	"context"
	"sync"
)

// mockTunnelStatsReader is a test double for TunnelStatsReader.
type mockTunnelStatsReader struct {
	mu    sync.Mutex
	stats []TunnelStats
	err   error
	panic bool
	calls int
}

func (m *mockTunnelStatsReader) ReadTunnelStats(_ context.Context) ([]TunnelStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.panic {
		panic("reader exploded")
	}
	return append([]TunnelStats(nil), m.stats...), m.err
}

func (m *mockTunnelStatsReader) set(stats []TunnelStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
}

func (m *mockTunnelStatsReader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockSystemReader is a test double for SystemReader.
type mockSystemReader struct {
	stats *SystemStats
	err   error
}

func (m *mockSystemReader) ReadStats(_ context.Context) (*SystemStats, error) {
	return m.stats, m.err
}
