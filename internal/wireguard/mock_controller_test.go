package wireguard

import (
	"io"
	"log/slog"
	"net/netip"
	"sync"
)

// mockCall records a single method invocation on mockController.
type mockCall struct {
	Method string
	Args   []interface{}
}

// mockController is a test double for WGController.
// It records all calls and supports configurable error returns per method.
type mockController struct {
	mu sync.Mutex

	calls []mockCall

	createInterfaceErr  error
	deleteInterfaceErr  error
	configureAddressErr error
	setInterfaceUpErr   error
	setMTUErr           error
	addPeerErr          error
	removePeerErr       error
	peerStatsErr        error
	linkExistsErr       error

	stats      []PeerStats
	linkExists bool
}

func (m *mockController) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *mockController) CreateInterface(name string, cfg InterfaceConfig) error {
	m.record("CreateInterface", name, cfg)
	return m.createInterfaceErr
}

func (m *mockController) DeleteInterface(name string) error {
	m.record("DeleteInterface", name)
	return m.deleteInterfaceErr
}

func (m *mockController) ConfigureAddress(name string, address netip.Prefix) error {
	m.record("ConfigureAddress", name, address)
	return m.configureAddressErr
}

func (m *mockController) SetInterfaceUp(name string) error {
	m.record("SetInterfaceUp", name)
	return m.setInterfaceUpErr
}

func (m *mockController) SetMTU(name string, mtu int) error {
	m.record("SetMTU", name, mtu)
	return m.setMTUErr
}

func (m *mockController) AddPeer(iface string, cfg PeerConfig) error {
	m.record("AddPeer", iface, cfg)
	return m.addPeerErr
}

func (m *mockController) RemovePeer(iface string, publicKey []byte) error {
	m.record("RemovePeer", iface, publicKey)
	return m.removePeerErr
}

func (m *mockController) PeerStats(iface string) ([]PeerStats, error) {
	m.record("PeerStats", iface)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.peerStatsErr
}

func (m *mockController) LinkExists(name string) (bool, error) {
	m.record("LinkExists", name)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkExists, m.linkExistsErr
}

// callsFor returns all recorded calls for the given method name.
func (m *mockController) callsFor(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []mockCall
	for _, c := range m.calls {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

// methods returns the recorded method names in call order.
func (m *mockController) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Method)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
