// Package wireguard creates and configures the WireGuard device that carries
// the VPN tunnel, either through the kernel module or wireguard-go.
package wireguard

import (
	"net/netip"
	"time"
)

// WGController abstracts OS-level WireGuard operations for testability.
type WGController interface {
	CreateInterface(name string, cfg InterfaceConfig) error
	// DeleteInterface deletes the named WireGuard interface.
	// Implementations must be idempotent: deleting a non-existent interface must return nil.
	DeleteInterface(name string) error
	ConfigureAddress(name string, address netip.Prefix) error
	SetInterfaceUp(name string) error
	SetMTU(name string, mtu int) error
	AddPeer(iface string, cfg PeerConfig) error
	RemovePeer(iface string, publicKey []byte) error
	// PeerStats reports handshake and transfer counters for every peer.
	PeerStats(iface string) ([]PeerStats, error)
	// LinkExists reports whether the named interface is present.
	LinkExists(name string) (bool, error)
}

// InterfaceConfig holds the device-level WireGuard settings.
type InterfaceConfig struct {
	PrivateKey   []byte
	ListenPort   int
	FirewallMark int
}

// PeerConfig holds the WireGuard-native configuration for a single peer.
type PeerConfig struct {
	PublicKey           []byte
	Endpoint            netip.AddrPort
	AllowedIPs          []netip.Prefix
	PSK                 []byte // nil if no PSK
	PersistentKeepalive time.Duration
}

// PeerStats is a snapshot of a peer's runtime state.
type PeerStats struct {
	PublicKey     []byte
	LastHandshake time.Time
	RxBytes       int64
	TxBytes       int64
}
