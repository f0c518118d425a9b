package tunprovider

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"golang.zx2c4.com/wireguard/tun"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice implements tun.Device for tests.
type fakeDevice struct {
	name   string
	closed atomic.Int32
	events chan tun.Event
}

func newFakeDevice(name string) *fakeDevice {
	return &fakeDevice{name: name, events: make(chan tun.Event)}
}

func (d *fakeDevice) File() *os.File { return nil }

func (d *fakeDevice) Read(bufs [][]byte, sizes []int, offset int) (int, error) { return 0, io.EOF }

func (d *fakeDevice) Write(bufs [][]byte, offset int) (int, error) { return len(bufs), nil }

func (d *fakeDevice) MTU() (int, error) { return 1420, nil }

func (d *fakeDevice) Name() (string, error) { return d.name, nil }

func (d *fakeDevice) Events() <-chan tun.Event { return d.events }

func (d *fakeDevice) BatchSize() int { return 1 }

func (d *fakeDevice) Close() error {
	d.closed.Add(1)
	return nil
}

func TestProvider_OpenAndClose(t *testing.T) {
	var opened []*fakeDevice
	p := NewWithCreate(func(name string, mtu int) (tun.Device, error) {
		d := newFakeDevice(name)
		opened = append(opened, d)
		return d, nil
	}, discardLogger())

	if _, err := p.OpenTun("wg-plexvpn", 1380); err != nil {
		t.Fatalf("OpenTun() error = %v", err)
	}
	if !p.Active() {
		t.Fatal("Active() = false after OpenTun")
	}

	// Reopening closes the previous device.
	if _, err := p.OpenTun("wg-plexvpn", 1380); err != nil {
		t.Fatalf("second OpenTun() error = %v", err)
	}
	if opened[0].closed.Load() != 1 {
		t.Errorf("first device closed %d times, want 1", opened[0].closed.Load())
	}

	p.CloseTun()
	p.CloseTun()
	if opened[1].closed.Load() != 1 {
		t.Errorf("second device closed %d times, want 1", opened[1].closed.Load())
	}
	if p.Active() {
		t.Error("Active() = true after CloseTun")
	}
}

func TestProvider_OpenError(t *testing.T) {
	p := NewWithCreate(func(string, int) (tun.Device, error) {
		return nil, errors.New("operation not permitted")
	}, discardLogger())

	if _, err := p.OpenTun("wg-plexvpn", 1380); err == nil {
		t.Fatal("OpenTun() error = nil, want error")
	}
	if p.Active() {
		t.Error("Active() = true after failed open")
	}
}

func TestProvider_OpenEmptyName(t *testing.T) {
	p := NewWithCreate(func(string, int) (tun.Device, error) {
		t.Fatal("create called for empty name")
		return nil, nil
	}, discardLogger())

	if _, err := p.OpenTun("", 1380); err == nil {
		t.Fatal("OpenTun() error = nil, want error")
	}
}
