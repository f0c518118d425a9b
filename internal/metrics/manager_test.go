package metrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(collect time.Duration) Config {
	return Config{
		CollectInterval: collect,
		StaleThreshold:  time.Minute,
	}
}

func TestManager_RunDisabled(t *testing.T) {
	reader := &mockTunnelStatsReader{}
	m := NewManager(Config{Enabled: BoolPtr(false), CollectInterval: time.Second}, NewTunnelCollector(reader, 0, discardLogger()), nil, discardLogger())

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if n := reader.callCount(); n != 0 {
		t.Errorf("reader calls = %d, want 0", n)
	}
}

func TestManager_CollectsAtInterval(t *testing.T) {
	reader := &mockTunnelStatsReader{}
	m := NewManager(testConfig(50*time.Millisecond), NewTunnelCollector(reader, 0, discardLogger()), nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	if err := m.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want DeadlineExceeded", err)
	}
	// +1 for the immediate collect.
	if n := reader.callCount(); n < 3 {
		t.Errorf("reader calls = %d, want at least 3", n)
	}
}

func TestManager_Snapshot(t *testing.T) {
	reader := &mockTunnelStatsReader{stats: []TunnelStats{{PublicKey: "peer", RxBytes: 7}}}
	sys := &mockSystemReader{stats: &SystemStats{Goroutines: 3}}
	m := NewManager(testConfig(time.Hour), NewTunnelCollector(reader, 0, discardLogger()), NewSystemCollector(sys), discardLogger())

	if snap := m.Snapshot(); !snap.CollectedAt.IsZero() || len(snap.Tunnel) != 0 {
		t.Errorf("initial snapshot = %+v, want empty", snap)
	}

	m.collect(context.Background())

	snap := m.Snapshot()
	if snap.CollectedAt.IsZero() {
		t.Error("CollectedAt is zero after collect")
	}
	if len(snap.Tunnel) != 1 || snap.Tunnel[0].RxBytes != 7 {
		t.Errorf("Tunnel = %+v", snap.Tunnel)
	}
	if snap.System == nil || snap.System.Goroutines != 3 {
		t.Errorf("System = %+v", snap.System)
	}

	snap.Tunnel[0].RxBytes = 99
	snap.System.Goroutines = 99
	again := m.Snapshot()
	if again.Tunnel[0].RxBytes != 7 || again.System.Goroutines != 3 {
		t.Error("Snapshot() must return a copy")
	}
}

func TestManager_CollectorErrorClearsTunnel(t *testing.T) {
	reader := &mockTunnelStatsReader{stats: []TunnelStats{{PublicKey: "peer"}}}
	m := NewManager(testConfig(time.Hour), NewTunnelCollector(reader, 0, discardLogger()), nil, discardLogger())

	m.collect(context.Background())
	reader.mu.Lock()
	reader.err = errors.New("gone")
	reader.mu.Unlock()
	m.collect(context.Background())

	if snap := m.Snapshot(); len(snap.Tunnel) != 0 {
		t.Errorf("Tunnel = %+v, want empty after a failed collect", snap.Tunnel)
	}
}

func TestManager_RecoversFromPanic(t *testing.T) {
	reader := &mockTunnelStatsReader{panic: true}
	sys := &mockSystemReader{stats: &SystemStats{Goroutines: 1}}
	m := NewManager(testConfig(time.Hour), NewTunnelCollector(reader, 0, discardLogger()), NewSystemCollector(sys), discardLogger())

	m.collect(context.Background())

	if snap := m.Snapshot(); snap.System == nil {
		t.Error("system stats should still be collected after a tunnel collector panic")
	}
}

func TestManager_TracksStalePeers(t *testing.T) {
	reader := &mockTunnelStatsReader{}
	m := NewManager(testConfig(time.Hour), NewTunnelCollector(reader, time.Minute, discardLogger()), nil, discardLogger())

	reader.set([]TunnelStats{{PublicKey: "peer", LastHandshake: time.Now().Add(-time.Hour)}})
	m.collect(context.Background())
	if !m.stale["peer"] {
		t.Error("peer should be tracked as stale")
	}

	reader.set([]TunnelStats{{PublicKey: "peer", LastHandshake: time.Now()}})
	m.collect(context.Background())
	if m.stale["peer"] {
		t.Error("peer should have recovered")
	}

	reader.set(nil)
	m.collect(context.Background())
	if _, ok := m.stale["peer"]; ok {
		t.Error("vanished peer should be forgotten")
	}
}
