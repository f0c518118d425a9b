//go:build linux

package wireguard

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// NetlinkController implements WGController using the kernel WireGuard
// module through netlink and wgctrl.
type NetlinkController struct {
	logger *slog.Logger
}

// NewNetlinkController returns a new NetlinkController.
func NewNetlinkController(logger *slog.Logger) *NetlinkController {
	return &NetlinkController{logger: logger.With("component", "wireguard")}
}

// CreateInterface creates a kernel WireGuard interface and applies cfg.
func (c *NetlinkController) CreateInterface(name string, cfg InterfaceConfig) error {
	la := netlink.NewLinkAttrs()
	la.Name = name
	link := &netlink.GenericLink{LinkAttrs: la, LinkType: "wireguard"}

	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("wireguard: create interface: %w", err)
	}

	if err := configureDevice(name, deviceConfig(cfg)); err != nil {
		return fmt.Errorf("wireguard: create interface: %w", err)
	}

	c.logger.Info("wireguard interface created",
		"interface", name,
		"listen_port", cfg.ListenPort,
		"fwmark", cfg.FirewallMark,
	)
	return nil
}

// DeleteInterface deletes the named WireGuard interface.
// It is idempotent: deleting a non-existent interface returns nil.
func (c *NetlinkController) DeleteInterface(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("wireguard: delete interface: %w", err)
	}

	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("wireguard: delete interface: %w", err)
	}

	c.logger.Info("wireguard interface deleted", "interface", name)
	return nil
}

// ConfigureAddress assigns address to the named interface.
func (c *NetlinkController) ConfigureAddress(name string, address netip.Prefix) error {
	if err := linkAddAddress(name, address); err != nil {
		return fmt.Errorf("wireguard: configure address: %w", err)
	}
	c.logger.Debug("address configured", "interface", name, "address", address)
	return nil
}

// SetInterfaceUp brings the named interface up.
func (c *NetlinkController) SetInterfaceUp(name string) error {
	if err := linkSetUp(name); err != nil {
		return fmt.Errorf("wireguard: set interface up: %w", err)
	}
	return nil
}

// SetMTU sets the MTU on the named interface.
func (c *NetlinkController) SetMTU(name string, mtu int) error {
	if err := linkSetMTU(name, mtu); err != nil {
		return fmt.Errorf("wireguard: set mtu: %w", err)
	}
	return nil
}

// AddPeer adds or updates a peer on the named WireGuard interface.
// A new wgctrl client is created per call to avoid stale netlink socket issues
// across long-lived controller instances.
func (c *NetlinkController) AddPeer(iface string, cfg PeerConfig) error {
	peerCfg, err := wgPeerConfig(cfg)
	if err != nil {
		return fmt.Errorf("wireguard: add peer: %w", err)
	}
	if err := configureDevice(iface, wgtypes.Config{Peers: []wgtypes.PeerConfig{peerCfg}}); err != nil {
		return fmt.Errorf("wireguard: add peer: %w", err)
	}
	c.logger.Debug("peer added", "interface", iface, "endpoint", cfg.Endpoint)
	return nil
}

// RemovePeer removes a peer from the named WireGuard interface by public key.
func (c *NetlinkController) RemovePeer(iface string, publicKey []byte) error {
	pubKey, err := wgtypes.NewKey(publicKey)
	if err != nil {
		return fmt.Errorf("wireguard: remove peer: parse public key: %w", err)
	}
	err = configureDevice(iface, wgtypes.Config{
		Peers: []wgtypes.PeerConfig{{PublicKey: pubKey, Remove: true}},
	})
	if err != nil {
		return fmt.Errorf("wireguard: remove peer: %w", err)
	}
	return nil
}

// PeerStats reads the peer list of the named device.
func (c *NetlinkController) PeerStats(iface string) ([]PeerStats, error) {
	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("wireguard: peer stats: open wgctrl: %w", err)
	}
	defer client.Close()

	dev, err := client.Device(iface)
	if err != nil {
		return nil, fmt.Errorf("wireguard: peer stats: %w", err)
	}

	stats := make([]PeerStats, 0, len(dev.Peers))
	for _, p := range dev.Peers {
		stats = append(stats, PeerStats{
			PublicKey:     append([]byte(nil), p.PublicKey[:]...),
			LastHandshake: p.LastHandshakeTime,
			RxBytes:       p.ReceiveBytes,
			TxBytes:       p.TransmitBytes,
		})
	}
	return stats, nil
}

// LinkExists reports whether the named interface is present.
func (c *NetlinkController) LinkExists(name string) (bool, error) {
	return linkExists(name)
}

func configureDevice(name string, cfg wgtypes.Config) error {
	client, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("open wgctrl: %w", err)
	}
	defer client.Close()

	if err := client.ConfigureDevice(name, cfg); err != nil {
		return fmt.Errorf("configure device: %w", err)
	}
	return nil
}

func deviceConfig(cfg InterfaceConfig) wgtypes.Config {
	out := wgtypes.Config{ListenPort: &cfg.ListenPort, FirewallMark: &cfg.FirewallMark}
	if key, err := wgtypes.NewKey(cfg.PrivateKey); err == nil {
		out.PrivateKey = &key
	}
	return out
}

func wgPeerConfig(cfg PeerConfig) (wgtypes.PeerConfig, error) {
	pubKey, err := wgtypes.NewKey(cfg.PublicKey)
	if err != nil {
		return wgtypes.PeerConfig{}, fmt.Errorf("parse public key: %w", err)
	}

	peerCfg := wgtypes.PeerConfig{
		PublicKey:         pubKey,
		ReplaceAllowedIPs: true,
	}
	if cfg.Endpoint.IsValid() {
		peerCfg.Endpoint = net.UDPAddrFromAddrPort(cfg.Endpoint)
	}
	for _, prefix := range cfg.AllowedIPs {
		peerCfg.AllowedIPs = append(peerCfg.AllowedIPs, net.IPNet{
			IP:   prefix.Masked().Addr().AsSlice(),
			Mask: net.CIDRMask(prefix.Bits(), prefix.Addr().BitLen()),
		})
	}
	if len(cfg.PSK) > 0 {
		psk, err := wgtypes.NewKey(cfg.PSK)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("parse psk: %w", err)
		}
		peerCfg.PresharedKey = &psk
	}
	if cfg.PersistentKeepalive > 0 {
		keepalive := cfg.PersistentKeepalive
		peerCfg.PersistentKeepaliveInterval = &keepalive
	}
	return peerCfg, nil
}
