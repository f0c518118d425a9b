package tunnel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/plexsphere/plexvpn/internal/wireguard"
)

// mockCall records a single method invocation on a mock.
type mockCall struct {
	Method string
	Args   []interface{}
}

// mockDevice is a test double for Device.
type mockDevice struct {
	mu    sync.Mutex
	calls []mockCall

	setupErr     error
	handshake    time.Time
	handshakeErr error
	linkUp       bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{linkUp: true}
}

func (d *mockDevice) record(method string, args ...interface{}) {
	d.mu.Lock()
	d.calls = append(d.calls, mockCall{Method: method, Args: args})
	d.mu.Unlock()
}

func (d *mockDevice) callsFor(method string) []mockCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []mockCall
	for _, c := range d.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (d *mockDevice) InterfaceName() string { return "wg-test" }
func (d *mockDevice) FirewallMark() int     { return 51820 }

func (d *mockDevice) Setup(_ context.Context, tc wireguard.TunnelConfig) error {
	d.record("Setup", tc)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setupErr
}

func (d *mockDevice) Teardown() error {
	d.record("Teardown")
	return nil
}

func (d *mockDevice) LastHandshake(peer []byte) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handshake, d.handshakeErr
}

func (d *mockDevice) LinkUp() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkUp, nil
}

func (d *mockDevice) setHandshake(t time.Time) {
	d.mu.Lock()
	d.handshake = t
	d.mu.Unlock()
}

func (d *mockDevice) setLinkUp(up bool) {
	d.mu.Lock()
	d.linkUp = up
	d.mu.Unlock()
}

// mockRoutes is a test double for RouteController.
type mockRoutes struct {
	mu     sync.Mutex
	calls  []mockCall
	addErr error
}

func (r *mockRoutes) AddTunnelRoutes(spec RouteSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, mockCall{Method: "AddTunnelRoutes", Args: []interface{}{spec}})
	return r.addErr
}

func (r *mockRoutes) RemoveTunnelRoutes(spec RouteSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, mockCall{Method: "RemoveTunnelRoutes", Args: []interface{}{spec}})
	return nil
}

func (r *mockRoutes) methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Method
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
