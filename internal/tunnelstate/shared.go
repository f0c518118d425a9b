package tunnelstate

import (
	"log/slog"
	"net/netip"
	"reflect"
	"slices"
	"sync/atomic"

	"github.com/plexsphere/plexvpn/internal/dns"
	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/splittunnel"
)

// Firewall applies packet filter policies.
type Firewall interface {
	ApplyPolicy(p firewall.Policy) error
	ResetPolicy() error
}

// DNSMonitor controls the host resolver configuration.
type DNSMonitor interface {
	Set(iface string, servers []netip.Addr) error
	// Reset restores the host configuration. It must be safe to call when
	// nothing was set.
	Reset() error
	SystemConfig() (*dns.SystemConfig, error)
}

// SplitTunnel keeps excluded applications outside the tunnel.
type SplitTunnel interface {
	SetTunnelAddresses(addresses *splittunnel.Addresses) error
	ClearTunnelAddresses() error
	// SetPaths sends exactly one value on result.
	SetPaths(paths []string, result chan<- error)
	ExclusionMark() uint32
}

// TunProvider owns the TUN device of a userspace tunnel.
type TunProvider interface {
	CloseTun()
}

// CustomResolver is the local forwarding resolver.
type CustomResolver interface {
	// SetActive forwards to the servers of sc, or stops forwarding when sc is nil.
	SetActive(sc *dns.SystemConfig) error
	// HostAddr is the address the host is pointed at while it is active.
	HostAddr() netip.Addr
}

// SocketBypasser exempts individual sockets from the tunnel.
type SocketBypasser interface {
	BypassSocket(fd int) error
}

// Capabilities are the optional platform components. A nil field means
// the platform lacks it and commands needing it are refused.
type Capabilities struct {
	SplitTunnel    SplitTunnel
	TunProvider    TunProvider
	CustomResolver CustomResolver
	SocketBypasser SocketBypasser
}

// Dependencies are the collaborators of the machine.
type Dependencies struct {
	Firewall   Firewall
	DNS        DNSMonitor
	Launcher   TunnelLauncher
	Parameters ParametersGenerator
	Capabilities
}

// Settings are the user settings the machine starts with.
type Settings struct {
	AllowLAN              bool
	AllowedEndpoint       *firewall.AllowedEndpoint
	BlockWhenDisconnected bool
	DNSServers            []netip.Addr
	CustomResolver        bool
	IsOffline             bool
}

const loopbackInterface = "lo"

// sharedState is owned by the driver loop and passed to every state.
type sharedState struct {
	firewall Firewall
	dns      DNSMonitor
	launcher TunnelLauncher
	params   ParametersGenerator
	caps     Capabilities
	cfg      Config
	logger   *slog.Logger

	allowLAN              bool
	allowedEndpoint       *firewall.AllowedEndpoint
	blockWhenDisconnected bool
	dnsServers            []netip.Addr
	enableCustomResolver  bool
	isOffline             bool

	// lastPolicy is the policy known to be in effect, nil when unknown or reset.
	lastPolicy firewall.Policy

	generation       uint64
	activeGeneration *atomic.Uint64
	tunnelSink       func(TunnelEvent)
}

// applyPolicy applies p unless it is already in effect.
func (s *sharedState) applyPolicy(p firewall.Policy) error {
	if s.lastPolicy != nil && firewall.Equal(s.lastPolicy, p) {
		return nil
	}
	if err := s.firewall.ApplyPolicy(p); err != nil {
		s.lastPolicy = nil
		return err
	}
	s.lastPolicy = p
	return nil
}

func (s *sharedState) resetPolicy() error {
	s.lastPolicy = nil
	return s.firewall.ResetPolicy()
}

func (s *sharedState) resetDNS() {
	if err := s.dns.Reset(); err != nil {
		s.logger.Error("failed to reset DNS", "error", err)
	}
}

func (s *sharedState) setAllowLAN(allow bool) bool {
	if s.allowLAN == allow {
		return false
	}
	s.allowLAN = allow
	return true
}

func (s *sharedState) setAllowedEndpoint(ep *firewall.AllowedEndpoint) bool {
	if reflect.DeepEqual(s.allowedEndpoint, ep) {
		return false
	}
	s.allowedEndpoint = ep
	return true
}

func (s *sharedState) setDNSServers(servers []netip.Addr) bool {
	if len(servers) == 0 {
		servers = nil
	}
	if slices.Equal(s.dnsServers, servers) {
		return false
	}
	s.dnsServers = slices.Clone(servers)
	return true
}

// nextGeneration allocates the generation of a new tunnel and makes it the
// only one whose events are delivered.
func (s *sharedState) nextGeneration() uint64 {
	s.generation++
	s.activeGeneration.Store(s.generation)
	return s.generation
}

// retireGeneration stops delivery of events from the current tunnel.
func (s *sharedState) retireGeneration() {
	s.activeGeneration.Store(0)
}

// closeTunnel stops t and waits for it to finish. Its remaining events are
// discarded.
func (s *sharedState) closeTunnel(t Tunnel) {
	s.retireGeneration()
	t.Stop()
	if err := t.Wait(); err != nil {
		s.logger.Debug("tunnel closed with error", "error", err)
	}
}

func (s *sharedState) exclusionMark() uint32 {
	if s.caps.SplitTunnel == nil {
		return 0
	}
	return s.caps.SplitTunnel.ExclusionMark()
}

// setCustomResolverEnabled records the setting. Disabling stops the
// resolver and restores DNS so nothing points at it anymore.
func (s *sharedState) setCustomResolverEnabled(enable bool) error {
	s.enableCustomResolver = enable
	if enable {
		return nil
	}
	if err := s.caps.CustomResolver.SetActive(nil); err != nil {
		return err
	}
	s.resetDNS()
	return nil
}

// Handlers for commands that behave the same in every state.

func (s *sharedState) bypassSocket(cmd BypassSocket) {
	if s.caps.SocketBypasser == nil {
		ackErr(cmd.Done, ErrCapabilityUnavailable)
		return
	}
	err := s.caps.SocketBypasser.BypassSocket(cmd.FD)
	if err != nil {
		s.logger.Error("failed to bypass socket", "fd", cmd.FD, "error", err)
	}
	ackErr(cmd.Done, err)
}

func (s *sharedState) setExcludedApps(cmd SetExcludedApps) {
	if s.caps.SplitTunnel == nil {
		ackErr(cmd.Result, ErrCapabilityUnavailable)
		return
	}
	s.caps.SplitTunnel.SetPaths(cmd.Paths, cmd.Result)
}

// setCustomResolverOutsideDisconnected handles SetCustomResolver in states
// where the resolver is not in use. The setting takes effect on the next
// disconnected state.
func (s *sharedState) setCustomResolverOutsideDisconnected(cmd SetCustomResolver) {
	if s.caps.CustomResolver == nil {
		ackErr(cmd.Result, ErrCapabilityUnavailable)
		return
	}
	s.enableCustomResolver = cmd.Enable
	if !cmd.Enable {
		if err := s.caps.CustomResolver.SetActive(nil); err != nil {
			ackErr(cmd.Result, err)
			return
		}
	}
	ackErr(cmd.Result, nil)
}

func newSharedState(cfg Config, deps Dependencies, settings Settings, active *atomic.Uint64, sink func(TunnelEvent), logger *slog.Logger) *sharedState {
	s := &sharedState{
		firewall:              deps.Firewall,
		dns:                   deps.DNS,
		launcher:              deps.Launcher,
		params:                deps.Parameters,
		caps:                  deps.Capabilities,
		cfg:                   cfg,
		logger:                logger,
		allowLAN:              settings.AllowLAN,
		allowedEndpoint:       settings.AllowedEndpoint,
		blockWhenDisconnected: settings.BlockWhenDisconnected,
		enableCustomResolver:  settings.CustomResolver && deps.CustomResolver != nil,
		isOffline:             settings.IsOffline,
		activeGeneration:      active,
		tunnelSink:            sink,
	}
	s.setDNSServers(settings.DNSServers)
	return s
}
