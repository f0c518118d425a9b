package tunnelstate

import (
	"net/netip"
	"time"

	"github.com/plexsphere/plexvpn/internal/firewall"
)

// TunnelParameters describe one tunnel attempt.
type TunnelParameters struct {
	Endpoint firewall.Endpoint

	PrivateKey    []byte
	PeerPublicKey []byte
	PresharedKey  []byte

	// Addresses are assigned to the tunnel interface.
	Addresses []netip.Prefix
	// AllowedIPs are routed through the tunnel.
	AllowedIPs []netip.Prefix
	// DNSServers are used when no custom servers are configured.
	DNSServers []netip.Addr

	PersistentKeepalive time.Duration
}

// TunnelMetadata describes a tunnel that is up.
type TunnelMetadata struct {
	Interface string
	Addresses []netip.Prefix
	Gateway   netip.Addr
}

// TunnelEventKind is Up or Down.
type TunnelEventKind int

// Tunnel event kinds.
const (
	TunnelUp TunnelEventKind = iota + 1
	TunnelDown
)

func (k TunnelEventKind) String() string {
	switch k {
	case TunnelUp:
		return "up"
	case TunnelDown:
		return "down"
	default:
		return "unknown"
	}
}

// TunnelEvent is reported by a tunnel monitor. Every tunnel reports at most
// one Up and exactly one Down.
type TunnelEvent struct {
	// Generation identifies the tunnel the event belongs to.
	Generation uint64
	Kind       TunnelEventKind
	// Metadata is set on Up.
	Metadata TunnelMetadata
	// Err is set on Down, unless the tunnel was stopped on request.
	Err error
}

// Tunnel is a running tunnel monitor.
type Tunnel interface {
	// Stop asks the monitor to tear the tunnel down. It does not block and
	// may be called more than once.
	Stop()
	// Wait blocks until the tunnel is torn down and returns its final error.
	Wait() error
}

// TunnelLauncher starts tunnel monitors. Events must be reported through
// sink, tagged with generation.
type TunnelLauncher interface {
	Launch(generation uint64, params TunnelParameters, sink func(TunnelEvent)) (Tunnel, error)
}

// ParametersGenerator produces the parameters of a tunnel attempt.
// retryAttempt is zero for the first attempt after a user request.
type ParametersGenerator interface {
	Generate(retryAttempt int) (TunnelParameters, error)
}

// event is anything a state handles: a Command, a TunnelEvent or
// commandsClosed.
type event interface{}

// commandsClosed is delivered once when the command source ends.
type commandsClosed struct{}
