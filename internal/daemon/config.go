// Package daemon wires the tunnel state machine to its platform components,
// persists user settings and serves the control API.
package daemon

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plexsphere/plexvpn/internal/connectivity"
	"github.com/plexsphere/plexvpn/internal/controlapi"
	"github.com/plexsphere/plexvpn/internal/dns"
	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/metrics"
	"github.com/plexsphere/plexvpn/internal/resolver"
	"github.com/plexsphere/plexvpn/internal/splittunnel"
	"github.com/plexsphere/plexvpn/internal/tunnel"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultDataDir is the default data directory.
	DefaultDataDir = "/var/lib/plexvpn"

	// DefaultPersistentKeepalive is the default keepalive towards the peer.
	DefaultPersistentKeepalive = 25 * time.Second
)

var defaultAllowedIPs = []string{"0.0.0.0/0", "::/0"}

// PeerConfig describes the WireGuard server the tunnel connects to.
type PeerConfig struct {
	// Endpoints are the server addresses as "ip:port". Retries rotate
	// through them.
	Endpoints []string `yaml:"endpoints"`

	// PublicKey is the server's base64 public key.
	PublicKey string `yaml:"public_key"`

	// PresharedKey is an optional base64 preshared key.
	PresharedKey string `yaml:"preshared_key"`

	// PrivateKey is the client's base64 private key. When empty the key
	// is read from PrivateKeyFile, or generated and stored in the data
	// directory.
	PrivateKey string `yaml:"private_key"`

	// PrivateKeyFile holds the client's base64 private key.
	PrivateKeyFile string `yaml:"private_key_file"`

	// Addresses are assigned to the tunnel interface.
	Addresses []string `yaml:"addresses"`

	// AllowedIPs are routed through the tunnel.
	// Default: 0.0.0.0/0, ::/0
	AllowedIPs []string `yaml:"allowed_ips"`

	// DNSServers are used while connected unless custom servers are set.
	DNSServers []string `yaml:"dns_servers"`

	// PersistentKeepalive is the keepalive interval towards the server.
	// Default: 25s
	PersistentKeepalive time.Duration `yaml:"persistent_keepalive"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *PeerConfig) ApplyDefaults() {
	if len(c.AllowedIPs) == 0 {
		c.AllowedIPs = append([]string(nil), defaultAllowedIPs...)
	}
	if c.PersistentKeepalive == 0 {
		c.PersistentKeepalive = DefaultPersistentKeepalive
	}
}

// Validate checks that every address and key parses.
func (c *PeerConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("daemon: config: peer: at least one endpoint is required")
	}
	for _, ep := range c.Endpoints {
		if _, err := netip.ParseAddrPort(ep); err != nil {
			return fmt.Errorf("daemon: config: peer: endpoint %q: %w", ep, err)
		}
	}
	if _, err := wireguard.ParseKey(c.PublicKey); err != nil {
		return fmt.Errorf("daemon: config: peer: public_key: %w", err)
	}
	if c.PresharedKey != "" {
		if _, err := wireguard.ParseKey(c.PresharedKey); err != nil {
			return fmt.Errorf("daemon: config: peer: preshared_key: %w", err)
		}
	}
	if c.PrivateKey != "" {
		if _, err := wireguard.ParseKey(c.PrivateKey); err != nil {
			return fmt.Errorf("daemon: config: peer: private_key: %w", err)
		}
	}
	if len(c.Addresses) == 0 {
		return errors.New("daemon: config: peer: at least one address is required")
	}
	if _, err := parsePrefixes(c.Addresses); err != nil {
		return fmt.Errorf("daemon: config: peer: addresses: %w", err)
	}
	if _, err := parsePrefixes(c.AllowedIPs); err != nil {
		return fmt.Errorf("daemon: config: peer: allowed_ips: %w", err)
	}
	if _, err := parseAddrs(c.DNSServers); err != nil {
		return fmt.Errorf("daemon: config: peer: dns_servers: %w", err)
	}
	if c.PersistentKeepalive < 0 {
		return errors.New("daemon: config: peer: persistent_keepalive must not be negative")
	}
	return nil
}

// AllowedEndpointConfig is an endpoint that stays reachable while traffic
// is blocked, such as the API serving the server list.
type AllowedEndpointConfig struct {
	// Address is the endpoint as "ip:port".
	Address string `yaml:"address"`

	// Protocol is "tcp" or "udp".
	// Default: "tcp"
	Protocol string `yaml:"protocol"`

	// RootOnly limits the exemption to processes running as root.
	RootOnly bool `yaml:"root_only"`
}

// Endpoint returns the firewall exemption described by c.
func (c *AllowedEndpointConfig) Endpoint() (*firewall.AllowedEndpoint, error) {
	ep, err := firewall.ParseEndpoint(c.Address, c.Protocol)
	if err != nil {
		return nil, fmt.Errorf("daemon: config: allowed_endpoint: %w", err)
	}
	return &firewall.AllowedEndpoint{Endpoint: ep, RootOnly: c.RootOnly}, nil
}

// Config is the top-level configuration for the plexvpn daemon.
// It aggregates all subsystem configurations and is populated from
// a YAML configuration file via ParseConfig.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// DataDir is the directory for persistent daemon data.
	// Default: /var/lib/plexvpn
	DataDir string `yaml:"data_dir"`

	Peer         PeerConfig          `yaml:"peer"`

	// AllowedEndpoint is kept reachable while traffic is blocked. Unset
	// means no exemption.
	AllowedEndpoint *AllowedEndpointConfig `yaml:"allowed_endpoint"`

	TunnelState  tunnelstate.Config  `yaml:"tunnel_state"`
	Firewall     firewall.Config     `yaml:"firewall"`
	DNS          dns.Config          `yaml:"dns"`
	Resolver     resolver.Config     `yaml:"resolver"`
	SplitTunnel  splittunnel.Config  `yaml:"split_tunnel"`
	WireGuard    wireguard.Config    `yaml:"wireguard"`
	Tunnel       tunnel.Config       `yaml:"tunnel"`
	Connectivity connectivity.Config `yaml:"connectivity"`
	ControlAPI   controlapi.Config   `yaml:"control_api"`
	Metrics      metrics.Config      `yaml:"metrics"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.SplitTunnel.DataDir == "" {
		c.SplitTunnel.DataDir = c.DataDir
	}
	c.Peer.ApplyDefaults()
	c.TunnelState.ApplyDefaults()
	c.Firewall.ApplyDefaults()
	c.DNS.ApplyDefaults()
	c.Resolver.ApplyDefaults()
	c.SplitTunnel.ApplyDefaults()
	c.WireGuard.ApplyDefaults()
	c.Tunnel.ApplyDefaults()
	c.Connectivity.ApplyDefaults()
	c.ControlAPI.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon: config: invalid log_level %q", c.LogLevel)
	}
	if c.AllowedEndpoint != nil {
		if _, err := c.AllowedEndpoint.Endpoint(); err != nil {
			return err
		}
	}
	validators := []interface{ Validate() error }{
		&c.Peer,
		&c.TunnelState,
		&c.Firewall,
		&c.DNS,
		&c.Resolver,
		&c.SplitTunnel,
		&c.WireGuard,
		&c.Tunnel,
		&c.Connectivity,
		&c.ControlAPI,
		&c.Metrics,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.SplitTunnel.IsEnabled() && c.SplitTunnel.Mark == uint32(c.WireGuard.FirewallMark) {
		return errors.New("daemon: config: split_tunnel mark must differ from the wireguard firewall mark")
	}
	return nil
}

// ParseConfig reads a YAML configuration file and returns a Config.
// It applies defaults and validates the configuration.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("daemon: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parsePrefixes(ss []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(ss))
	for _, s := range ss {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseAddrs(ss []string) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(ss))
	for _, s := range ss {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
