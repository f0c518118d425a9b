package tunnelstate

import (
	"io"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/plexsphere/plexvpn/internal/dns"
	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/splittunnel"
)

// mockCall records a single method invocation on a mock.
type mockCall struct {
	Method string
	Args   []interface{}
}

type recorder struct {
	mu    sync.Mutex
	calls []mockCall
}

func (r *recorder) record(method string, args ...interface{}) {
	r.mu.Lock()
	r.calls = append(r.calls, mockCall{Method: method, Args: args})
	r.mu.Unlock()
}

func (r *recorder) callsFor(method string) []mockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mockCall
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Method
	}
	return out
}

// mockFirewall is a test double for Firewall.
type mockFirewall struct {
	recorder
	applyErr error
	resetErr error
}

func (m *mockFirewall) ApplyPolicy(p firewall.Policy) error {
	m.record("ApplyPolicy", p)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyErr
}

func (m *mockFirewall) ResetPolicy() error {
	m.record("ResetPolicy")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetErr
}

func (m *mockFirewall) setApplyErr(err error) {
	m.mu.Lock()
	m.applyErr = err
	m.mu.Unlock()
}

// policies returns every policy passed to ApplyPolicy, in order.
func (m *mockFirewall) policies() []firewall.Policy {
	var out []firewall.Policy
	for _, c := range m.callsFor("ApplyPolicy") {
		out = append(out, c.Args[0].(firewall.Policy))
	}
	return out
}

// mockDNS is a test double for DNSMonitor.
type mockDNS struct {
	recorder
	setErr       error
	systemConfig *dns.SystemConfig
	systemErr    error
}

func (m *mockDNS) Set(iface string, servers []netip.Addr) error {
	m.record("Set", iface, servers)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setErr
}

func (m *mockDNS) Reset() error {
	m.record("Reset")
	return nil
}

func (m *mockDNS) SystemConfig() (*dns.SystemConfig, error) {
	m.record("SystemConfig")
	return m.systemConfig, m.systemErr
}

// fakeTunnel reports its events synchronously through the machine's sink.
type fakeTunnel struct {
	generation uint64
	params     TunnelParameters
	sink       func(TunnelEvent)

	mu       sync.Mutex
	held     bool
	once     sync.Once
	finished chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func (t *fakeTunnel) Up(md TunnelMetadata) {
	t.sink(TunnelEvent{Generation: t.generation, Kind: TunnelUp, Metadata: md})
}

// Fail reports the tunnel down with err.
func (t *fakeTunnel) Fail(err error) {
	t.once.Do(func() {
		t.sink(TunnelEvent{Generation: t.generation, Kind: TunnelDown, Err: err})
		close(t.finished)
	})
}

func (t *fakeTunnel) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
	t.mu.Lock()
	held := t.held
	t.mu.Unlock()
	if !held {
		t.Fail(nil)
	}
}

func (t *fakeTunnel) Wait() error {
	<-t.finished
	return nil
}

// hold keeps Stop from reporting the tunnel down until release.
func (t *fakeTunnel) hold() {
	t.mu.Lock()
	t.held = true
	t.mu.Unlock()
}

// release reports the down event held back by hold.
func (t *fakeTunnel) release() {
	t.mu.Lock()
	t.held = false
	t.mu.Unlock()
	t.Fail(nil)
}

// exit lets Wait return without reporting an event.
func (t *fakeTunnel) exit() {
	t.once.Do(func() { close(t.finished) })
}

func (t *fakeTunnel) wasStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// fakeLauncher is a test double for TunnelLauncher.
type fakeLauncher struct {
	recorder
	launchErr error
	tunnels   []*fakeTunnel
}

func (l *fakeLauncher) Launch(generation uint64, params TunnelParameters, sink func(TunnelEvent)) (Tunnel, error) {
	l.record("Launch", generation, params)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	t := &fakeTunnel{
		generation: generation,
		params:     params,
		sink:       sink,
		finished:   make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	l.tunnels = append(l.tunnels, t)
	return t, nil
}

// last returns the most recently launched tunnel.
func (l *fakeLauncher) last() *fakeTunnel {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tunnels) == 0 {
		return nil
	}
	return l.tunnels[len(l.tunnels)-1]
}

// mockParams is a test double for ParametersGenerator.
type mockParams struct {
	recorder
	params TunnelParameters
	err    error
}

func (m *mockParams) Generate(retryAttempt int) (TunnelParameters, error) {
	m.record("Generate", retryAttempt)
	return m.params, m.err
}

func (m *mockParams) attempts() []int {
	var out []int
	for _, c := range m.callsFor("Generate") {
		out = append(out, c.Args[0].(int))
	}
	return out
}

// mockSplitTunnel is a test double for SplitTunnel.
type mockSplitTunnel struct {
	recorder
	mark     uint32
	pathsErr error
}

func (m *mockSplitTunnel) SetTunnelAddresses(addresses *splittunnel.Addresses) error {
	m.record("SetTunnelAddresses", addresses)
	return nil
}

func (m *mockSplitTunnel) ClearTunnelAddresses() error {
	m.record("ClearTunnelAddresses")
	return nil
}

func (m *mockSplitTunnel) SetPaths(paths []string, result chan<- error) {
	m.record("SetPaths", paths)
	result <- m.pathsErr
}

func (m *mockSplitTunnel) ExclusionMark() uint32 {
	return m.mark
}

// mockResolver is a test double for CustomResolver.
type mockResolver struct {
	recorder
	err  error
	addr netip.Addr
}

func (m *mockResolver) HostAddr() netip.Addr {
	if m.addr.IsValid() {
		return m.addr
	}
	return netip.MustParseAddr("127.0.0.1")
}

func (m *mockResolver) SetActive(sc *dns.SystemConfig) error {
	m.record("SetActive", sc)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// mockBypasser is a test double for SocketBypasser.
type mockBypasser struct {
	recorder
	err error
}

func (m *mockBypasser) BypassSocket(fd int) error {
	m.record("BypassSocket", fd)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// mockTunProvider is a test double for TunProvider.
type mockTunProvider struct {
	recorder
}

func (m *mockTunProvider) CloseTun() {
	m.record("CloseTun")
}

// tunnelErr is a classified tunnel failure.
type tunnelErr struct {
	cause       ErrorCause
	recoverable bool
}

func (e tunnelErr) Error() string     { return "tunnel error: " + e.cause.String() }
func (e tunnelErr) Cause() ErrorCause { return e.cause }
func (e tunnelErr) Recoverable() bool { return e.recoverable }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
