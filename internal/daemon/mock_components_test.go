package daemon

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"slices"
	"sync"

	"github.com/plexsphere/plexvpn/internal/dns"
	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/splittunnel"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
)

type mockCall struct {
	method string
	args   []any
}

type recorder struct {
	mu    sync.Mutex
	calls []mockCall
}

func (r *recorder) record(method string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, mockCall{method: method, args: args})
}

func (r *recorder) callsFor(method string) []mockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mockCall
	for _, c := range r.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) last() (mockCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return mockCall{}, false
	}
	return r.calls[len(r.calls)-1], true
}

type fakeFirewall struct {
	recorder
}

func (f *fakeFirewall) ApplyPolicy(p firewall.Policy) error {
	f.record("ApplyPolicy", p)
	return nil
}

func (f *fakeFirewall) ResetPolicy() error {
	f.record("ResetPolicy")
	return nil
}

type fakeDNS struct {
	recorder
}

func (f *fakeDNS) Set(iface string, servers []netip.Addr) error {
	f.record("Set", iface, servers)
	return nil
}

func (f *fakeDNS) Reset() error {
	f.record("Reset")
	return nil
}

func (f *fakeDNS) SystemConfig() (*dns.SystemConfig, error) {
	f.record("SystemConfig")
	return &dns.SystemConfig{Servers: []netip.Addr{netip.MustParseAddr("192.168.1.1")}}, nil
}

// fakeTunnel comes up as soon as it is launched and goes down when stopped.
type fakeTunnel struct {
	gen  uint64
	sink func(tunnelstate.TunnelEvent)
	once sync.Once
}

func (t *fakeTunnel) Stop() {
	t.once.Do(func() {
		t.sink(tunnelstate.TunnelEvent{Generation: t.gen, Kind: tunnelstate.TunnelDown})
	})
}

func (t *fakeTunnel) Wait() error { return nil }

// fakeLauncher brings every tunnel up at once, or reports fail as a
// recoverable failure when it is set.
type fakeLauncher struct {
	recorder
	fail error
}

func (f *fakeLauncher) Launch(gen uint64, params tunnelstate.TunnelParameters, sink func(tunnelstate.TunnelEvent)) (tunnelstate.Tunnel, error) {
	f.record("Launch", gen, params)
	if f.fail != nil {
		sink(tunnelstate.TunnelEvent{Generation: gen, Kind: tunnelstate.TunnelDown, Err: f.fail})
		return &fakeTunnel{gen: gen, sink: func(tunnelstate.TunnelEvent) {}}, nil
	}
	sink(tunnelstate.TunnelEvent{
		Generation: gen,
		Kind:       tunnelstate.TunnelUp,
		Metadata: tunnelstate.TunnelMetadata{
			Interface: "wg-test",
			Addresses: params.Addresses,
		},
	})
	return &fakeTunnel{gen: gen, sink: sink}, nil
}

type fakeSplitTunnel struct {
	recorder
	mu    sync.Mutex
	paths []string
}

func (f *fakeSplitTunnel) SetTunnelAddresses(a *splittunnel.Addresses) error {
	f.record("SetTunnelAddresses", a)
	return nil
}

func (f *fakeSplitTunnel) ClearTunnelAddresses() error {
	f.record("ClearTunnelAddresses")
	return nil
}

func (f *fakeSplitTunnel) SetPaths(paths []string, result chan<- error) {
	f.mu.Lock()
	f.paths = slices.Clone(paths)
	f.mu.Unlock()
	result <- nil
}

func (f *fakeSplitTunnel) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.paths)
}

func (f *fakeSplitTunnel) ExclusionMark() uint32 { return 0 }

// Run stands in for the process scan and blocks until ctx is done.
func (f *fakeSplitTunnel) Run(ctx context.Context) error {
	f.record("Run")
	<-ctx.Done()
	return ctx.Err()
}

type fakeBypasser struct {
	recorder
}

func (f *fakeBypasser) BypassSocket(fd int) error {
	f.record("BypassSocket", fd)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
