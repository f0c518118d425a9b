package tunnelstate

import (
	"net/netip"

	"github.com/plexsphere/plexvpn/internal/dns"
	"github.com/plexsphere/plexvpn/internal/firewall"
)

// Command is a request to the state machine. Commands are handled one at
// a time in the order they are received.
type Command interface {
	isCommand()
}

// AllowLAN sets whether local network traffic may bypass the tunnel.
type AllowLAN struct {
	Allow bool
}

// AllowEndpoint replaces the endpoint reachable while blocked. Done is
// signalled once the change has taken effect.
type AllowEndpoint struct {
	Endpoint *firewall.AllowedEndpoint
	Done     chan<- struct{}
}

// SetDNS replaces the custom DNS servers. Nil restores the tunnel's own servers.
type SetDNS struct {
	Servers []netip.Addr
}

// BlockWhenDisconnected sets whether traffic stays blocked while disconnected.
type BlockWhenDisconnected struct {
	Block bool
}

// IsOffline reports a change in host connectivity.
type IsOffline struct {
	Offline bool
}

// Connect requests a tunnel.
type Connect struct{}

// Disconnect requests tearing the tunnel down.
type Disconnect struct{}

// Block requests the error state with Reason.
type Block struct {
	Reason ErrorCause
}

// BypassSocket exempts an open socket from the tunnel.
type BypassSocket struct {
	FD   int
	Done chan<- error
}

// SetExcludedApps replaces the applications excluded from the tunnel.
type SetExcludedApps struct {
	Paths  []string
	Result chan<- error
}

// SetCustomResolver enables or disables the local forwarding resolver.
type SetCustomResolver struct {
	Enable bool
	Result chan<- error
}

// HostDNSConfig reports the host's own resolver configuration.
type HostDNSConfig struct {
	Config *dns.SystemConfig
}

// AddAllowedIPs adds addresses reachable while blocked.
type AddAllowedIPs struct {
	IPs  []netip.Addr
	Done chan<- struct{}
}

func (AllowLAN) isCommand()              {}
func (AllowEndpoint) isCommand()         {}
func (SetDNS) isCommand()                {}
func (BlockWhenDisconnected) isCommand() {}
func (IsOffline) isCommand()             {}
func (Connect) isCommand()               {}
func (Disconnect) isCommand()            {}
func (Block) isCommand()                 {}
func (BypassSocket) isCommand()          {}
func (SetExcludedApps) isCommand()       {}
func (SetCustomResolver) isCommand()     {}
func (HostDNSConfig) isCommand()         {}
func (AddAllowedIPs) isCommand()         {}

// NewAllowEndpoint returns an AllowEndpoint command and its acknowledgment channel.
func NewAllowEndpoint(ep *firewall.AllowedEndpoint) (AllowEndpoint, <-chan struct{}) {
	done := make(chan struct{}, 1)
	return AllowEndpoint{Endpoint: ep, Done: done}, done
}

// NewBypassSocket returns a BypassSocket command and its result channel.
func NewBypassSocket(fd int) (BypassSocket, <-chan error) {
	done := make(chan error, 1)
	return BypassSocket{FD: fd, Done: done}, done
}

// NewSetExcludedApps returns a SetExcludedApps command and its result channel.
func NewSetExcludedApps(paths []string) (SetExcludedApps, <-chan error) {
	result := make(chan error, 1)
	return SetExcludedApps{Paths: paths, Result: result}, result
}

// NewSetCustomResolver returns a SetCustomResolver command and its result channel.
func NewSetCustomResolver(enable bool) (SetCustomResolver, <-chan error) {
	result := make(chan error, 1)
	return SetCustomResolver{Enable: enable, Result: result}, result
}

// NewAddAllowedIPs returns an AddAllowedIPs command and its acknowledgment channel.
func NewAddAllowedIPs(ips []netip.Addr) (AddAllowedIPs, <-chan struct{}) {
	done := make(chan struct{}, 1)
	return AddAllowedIPs{IPs: ips, Done: done}, done
}

// Acknowledgment channels must have room for one value. A channel that is
// full or unbuffered without a waiting receiver loses the acknowledgment
// rather than stalling the machine.

func ack(done chan<- struct{}) {
	if done == nil {
		return
	}
	select {
	case done <- struct{}{}:
	default:
	}
}

func ackErr(result chan<- error, err error) {
	if result == nil {
		return
	}
	select {
	case result <- err:
	default:
	}
}
