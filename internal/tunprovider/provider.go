// Package tunprovider owns the TUN device used by the userspace WireGuard
// implementation.
package tunprovider

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.zx2c4.com/wireguard/tun"
)

// CreateFunc opens a TUN device. It matches tun.CreateTUN.
type CreateFunc func(name string, mtu int) (tun.Device, error)

// Provider hands out at most one TUN device at a time.
type Provider struct {
	create CreateFunc
	logger *slog.Logger

	mu  sync.Mutex
	dev tun.Device
}

// New creates a Provider backed by tun.CreateTUN.
func New(logger *slog.Logger) *Provider {
	return NewWithCreate(tun.CreateTUN, logger)
}

// NewWithCreate creates a Provider using create to open devices.
func NewWithCreate(create CreateFunc, logger *slog.Logger) *Provider {
	return &Provider{
		create: create,
		logger: logger.With("component", "tunprovider"),
	}
}

// OpenTun opens a TUN device named name. A device still held from an
// earlier tunnel is closed first.
func (p *Provider) OpenTun(name string, mtu int) (tun.Device, error) {
	if name == "" {
		return nil, errors.New("tunprovider: open: empty device name")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeLocked()
	dev, err := p.create(name, mtu)
	if err != nil {
		return nil, fmt.Errorf("tunprovider: open %s: %w", name, err)
	}
	p.dev = dev

	actual, err := dev.Name()
	if err != nil {
		actual = name
	}
	p.logger.Info("TUN device opened", "name", actual, "mtu", mtu)
	return dev, nil
}

// CloseTun releases the current device, if any.
func (p *Provider) CloseTun() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

// Active reports whether a device is currently held.
func (p *Provider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev != nil
}

func (p *Provider) closeLocked() {
	if p.dev == nil {
		return
	}
	if err := p.dev.Close(); err != nil {
		p.logger.Warn("failed to close TUN device", "error", err)
	} else {
		p.logger.Info("TUN device closed")
	}
	p.dev = nil
}
