//go:build linux

package wireguard

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
)

// TunOpener hands out TUN devices for the userspace implementation.
type TunOpener interface {
	OpenTun(name string, mtu int) (tun.Device, error)
	CloseTun()
}

// UserspaceController implements WGController with wireguard-go, for hosts
// without the WireGuard kernel module.
type UserspaceController struct {
	tuns   TunOpener
	mtu    int
	logger *slog.Logger

	mu      sync.Mutex
	devices map[string]*device.Device
}

// NewUserspaceController returns a UserspaceController opening devices of
// the given MTU through tuns.
func NewUserspaceController(tuns TunOpener, mtu int, logger *slog.Logger) *UserspaceController {
	return &UserspaceController{
		tuns:    tuns,
		mtu:     mtu,
		logger:  logger.With("component", "wireguard"),
		devices: make(map[string]*device.Device),
	}
}

// CreateInterface opens a TUN device and starts a wireguard-go device on it.
func (c *UserspaceController) CreateInterface(name string, cfg InterfaceConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.devices[name]; ok {
		return fmt.Errorf("wireguard: create interface: %s already exists", name)
	}

	tunDev, err := c.tuns.OpenTun(name, c.mtu)
	if err != nil {
		return fmt.Errorf("wireguard: create interface: %w", err)
	}

	dev := device.NewDevice(tunDev, conn.NewDefaultBind(), device.NewLogger(device.LogLevelError, fmt.Sprintf("(%s) ", name)))
	if err := dev.IpcSet(uapiDeviceConfig(cfg)); err != nil {
		dev.Close()
		c.tuns.CloseTun()
		return fmt.Errorf("wireguard: create interface: configure device: %w", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		c.tuns.CloseTun()
		return fmt.Errorf("wireguard: create interface: %w", err)
	}
	c.devices[name] = dev

	c.logger.Info("userspace wireguard interface created", "interface", name, "fwmark", cfg.FirewallMark)
	return nil
}

// DeleteInterface stops the device and releases its TUN device.
// It is idempotent: deleting a non-existent interface returns nil.
func (c *UserspaceController) DeleteInterface(name string) error {
	c.mu.Lock()
	dev, ok := c.devices[name]
	delete(c.devices, name)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	dev.Close()
	c.tuns.CloseTun()

	c.logger.Info("userspace wireguard interface deleted", "interface", name)
	return nil
}

// ConfigureAddress assigns address to the named interface.
func (c *UserspaceController) ConfigureAddress(name string, address netip.Prefix) error {
	if err := linkAddAddress(name, address); err != nil {
		return fmt.Errorf("wireguard: configure address: %w", err)
	}
	return nil
}

// SetInterfaceUp brings the named interface up.
func (c *UserspaceController) SetInterfaceUp(name string) error {
	if err := linkSetUp(name); err != nil {
		return fmt.Errorf("wireguard: set interface up: %w", err)
	}
	return nil
}

// SetMTU sets the MTU on the named interface.
func (c *UserspaceController) SetMTU(name string, mtu int) error {
	if err := linkSetMTU(name, mtu); err != nil {
		return fmt.Errorf("wireguard: set mtu: %w", err)
	}
	return nil
}

// AddPeer adds or updates a peer.
func (c *UserspaceController) AddPeer(iface string, cfg PeerConfig) error {
	dev, err := c.device(iface)
	if err != nil {
		return fmt.Errorf("wireguard: add peer: %w", err)
	}
	if err := dev.IpcSet(uapiPeerConfig(cfg)); err != nil {
		return fmt.Errorf("wireguard: add peer: %w", err)
	}
	return nil
}

// RemovePeer removes a peer by public key.
func (c *UserspaceController) RemovePeer(iface string, publicKey []byte) error {
	dev, err := c.device(iface)
	if err != nil {
		return fmt.Errorf("wireguard: remove peer: %w", err)
	}
	if err := dev.IpcSet(uapiRemovePeer(publicKey)); err != nil {
		return fmt.Errorf("wireguard: remove peer: %w", err)
	}
	return nil
}

// PeerStats reads handshake and transfer counters from the device.
func (c *UserspaceController) PeerStats(iface string) ([]PeerStats, error) {
	dev, err := c.device(iface)
	if err != nil {
		return nil, fmt.Errorf("wireguard: peer stats: %w", err)
	}
	dump, err := dev.IpcGet()
	if err != nil {
		return nil, fmt.Errorf("wireguard: peer stats: %w", err)
	}
	return parseUAPIPeerStats(dump)
}

// LinkExists reports whether the named interface is present.
func (c *UserspaceController) LinkExists(name string) (bool, error) {
	c.mu.Lock()
	_, ok := c.devices[name]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return linkExists(name)
}

func (c *UserspaceController) device(name string) (*device.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev, ok := c.devices[name]
	if !ok {
		return nil, fmt.Errorf("no userspace device %s", name)
	}
	return dev, nil
}
