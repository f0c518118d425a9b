package controlapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"

	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/metrics"
)

type mockCall struct {
	method string
	args   []any
}

type mockController struct {
	mu     sync.Mutex
	calls  []mockCall
	err    error
	status Status
	set    Settings
	stats  metrics.Snapshot
}

func (m *mockController) record(method string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{method: method, args: args})
	return m.err
}

func (m *mockController) callsFor(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockCall
	for _, c := range m.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockController) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockController) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

func (m *mockController) Stats() metrics.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *mockController) Connect(_ context.Context) error    { return m.record("Connect") }
func (m *mockController) Disconnect(_ context.Context) error { return m.record("Disconnect") }

func (m *mockController) SetAllowLAN(_ context.Context, allow bool) error {
	return m.record("SetAllowLAN", allow)
}

func (m *mockController) SetBlockWhenDisconnected(_ context.Context, block bool) error {
	return m.record("SetBlockWhenDisconnected", block)
}

func (m *mockController) SetDNSServers(_ context.Context, servers []netip.Addr) error {
	return m.record("SetDNSServers", servers)
}

func (m *mockController) SetExcludedApps(_ context.Context, paths []string) error {
	return m.record("SetExcludedApps", paths)
}

func (m *mockController) SetCustomResolver(_ context.Context, enable bool) error {
	return m.record("SetCustomResolver", enable)
}

func (m *mockController) SetAutoConnect(_ context.Context, enable bool) error {
	return m.record("SetAutoConnect", enable)
}

func (m *mockController) AllowEndpoint(_ context.Context, ep *firewall.AllowedEndpoint) error {
	return m.record("AllowEndpoint", ep)
}

func (m *mockController) AddAllowedIPs(_ context.Context, ips []netip.Addr) error {
	return m.record("AddAllowedIPs", ips)
}

type fakeGroupChecker struct {
	member bool
}

func (f fakeGroupChecker) IsInGroup(_, _ uint32, _ string) bool { return f.member }

type fakeCredGetter struct {
	cred *PeerCredentials
	err  error
}

func (f fakeCredGetter) GetPeerCredentials(_ *http.Request) (*PeerCredentials, error) {
	return f.cred, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
