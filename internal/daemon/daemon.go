package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/plexsphere/plexvpn/internal/connectivity"
	"github.com/plexsphere/plexvpn/internal/controlapi"
	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/metrics"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
)

const (
	commandBuffer    = 16
	transitionBuffer = 8
)

// ErrStopped is returned by requests made after the daemon stopped
// accepting commands.
var ErrStopped = errors.New("daemon: stopped")

// Components are the platform collaborators of the daemon.
type Components struct {
	Machine tunnelstate.Dependencies
	// Routes feeds offline detection. It may be nil when connectivity
	// monitoring is disabled.
	Routes connectivity.RouteSource
	// Stats reads tunnel counters. It may be nil.
	Stats metrics.TunnelStatsReader
	// Close releases the components once the machine has stopped.
	Close func() error
}

// Daemon runs the tunnel state machine and serves the control API.
type Daemon struct {
	cfg     Config
	comps   Components
	store   *SettingsStore
	status  *statusTracker
	metrics *metrics.Manager
	logger  *slog.Logger

	commands chan tunnelstate.Command

	mu     sync.RWMutex
	closed bool
}

var _ controlapi.Controller = (*Daemon)(nil)

// New creates a Daemon. cfg must have passed Validate.
func New(cfg Config, comps Components, store *SettingsStore, logger *slog.Logger) *Daemon {
	var tunnelStats *metrics.TunnelCollector
	if comps.Stats != nil {
		tunnelStats = metrics.NewTunnelCollector(comps.Stats, cfg.Metrics.StaleThreshold, logger)
	}
	return &Daemon{
		cfg:      cfg,
		comps:    comps,
		store:    store,
		status:   newStatusTracker(time.Now),
		metrics:  metrics.NewManager(cfg.Metrics, tunnelStats, metrics.NewSystemCollector(metrics.NewRuntimeReader()), logger),
		logger:   logger.With("component", "daemon"),
		commands: make(chan tunnelstate.Command, commandBuffer),
	}
}

// Run starts the state machine, the connectivity monitor and the control
// API server, and blocks until ctx is cancelled. Shutdown stops accepting
// requests first and then lets the machine apply its final policy.
func (d *Daemon) Run(ctx context.Context) error {
	var allowed *firewall.AllowedEndpoint
	if d.cfg.AllowedEndpoint != nil {
		ep, err := d.cfg.AllowedEndpoint.Endpoint()
		if err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
		allowed = ep
	}

	settings := d.store.Get()
	machine, err := tunnelstate.NewMachine(d.cfg.TunnelState, d.comps.Machine, tunnelstate.Settings{
		AllowLAN:              settings.AllowLAN,
		AllowedEndpoint:       allowed,
		BlockWhenDisconnected: settings.BlockWhenDisconnected,
		DNSServers:            settings.DNSAddrs(),
		CustomResolver:        settings.CustomResolver,
	}, d.logger)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	transitions := make(chan tunnelstate.Transition, transitionBuffer)
	machineErr := make(chan error, 1)
	go func() {
		// The machine outlives ctx: it stops when the command channel closes.
		machineErr <- machine.Run(context.Background(), d.commands, transitions)
		close(transitions)
	}()

	var consumers sync.WaitGroup
	consumers.Add(1)
	go func() {
		defer consumers.Done()
		for t := range transitions {
			d.status.record(t)
		}
	}()

	var senders sync.WaitGroup

	monitor := connectivity.NewMonitor(d.comps.Routes, d.cfg.Connectivity, d.logger)
	senders.Add(1)
	go func() {
		defer senders.Done()
		if err := monitor.Run(ctx, func(offline bool) { d.reportConnectivity(ctx, offline) }); err != nil {
			d.logger.Error("connectivity monitor stopped", "error", err)
		}
	}()

	senders.Add(1)
	go func() {
		defer senders.Done()
		_ = d.metrics.Run(ctx)
	}()

	if scanner, ok := d.comps.Machine.SplitTunnel.(interface{ Run(context.Context) error }); ok {
		senders.Add(1)
		go func() {
			defer senders.Done()
			if err := scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("split tunnel process scan stopped", "error", err)
			}
		}()
	}

	srv := controlapi.NewServer(d.cfg.ControlAPI, d, d.logger)
	senders.Add(1)
	go func() {
		defer senders.Done()
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("control API server stopped", "error", err)
		}
	}()

	if settings.AutoConnect {
		d.logger.Info("auto-connecting")
		if err := d.send(ctx, tunnelstate.Connect{}); err != nil {
			d.logger.Warn("auto-connect failed", "error", err)
		}
	}

	<-ctx.Done()
	d.logger.Info("shutting down", "reason", ctx.Err())

	senders.Wait()
	d.closeCommands()
	err = <-machineErr
	consumers.Wait()

	if d.comps.Close != nil {
		if cerr := d.comps.Close(); cerr != nil {
			d.logger.Warn("failed to release components", "error", cerr)
		}
	}
	d.logger.Info("daemon stopped")
	return err
}

// reportConnectivity forwards an offline change. Coming online also
// refreshes the host resolver configuration used by the custom resolver.
func (d *Daemon) reportConnectivity(ctx context.Context, offline bool) {
	if err := d.send(ctx, tunnelstate.IsOffline{Offline: offline}); err != nil || offline {
		return
	}
	sc, err := d.comps.Machine.DNS.SystemConfig()
	if err != nil {
		d.logger.Warn("failed to read host DNS config", "error", err)
		return
	}
	_ = d.send(ctx, tunnelstate.HostDNSConfig{Config: sc})
}

func (d *Daemon) send(ctx context.Context, cmd tunnelstate.Command) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrStopped
	}
	select {
	case d.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeCommands ends the command stream once every sender has returned.
func (d *Daemon) closeCommands() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.commands)
}

func await[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Status returns the current tunnel state.
func (d *Daemon) Status() controlapi.Status {
	return d.status.get()
}

// Stats returns the latest tunnel and daemon statistics.
func (d *Daemon) Stats() metrics.Snapshot {
	return d.metrics.Snapshot()
}

// Settings returns the persisted user settings.
func (d *Daemon) Settings() controlapi.Settings {
	s := d.store.Get()
	out := controlapi.Settings{
		AllowLAN:              s.AllowLAN,
		BlockWhenDisconnected: s.BlockWhenDisconnected,
		DNSServers:            s.DNSServers,
		ExcludedApps:          []string{},
		CustomResolver:        s.CustomResolver,
		AutoConnect:           s.AutoConnect,
	}
	if out.DNSServers == nil {
		out.DNSServers = []string{}
	}
	if p, ok := d.comps.Machine.SplitTunnel.(interface{ Paths() []string }); ok {
		if paths := p.Paths(); paths != nil {
			out.ExcludedApps = paths
		}
	}
	return out
}

func (d *Daemon) Connect(ctx context.Context) error {
	return d.send(ctx, tunnelstate.Connect{})
}

func (d *Daemon) Disconnect(ctx context.Context) error {
	return d.send(ctx, tunnelstate.Disconnect{})
}

// SetAllowLAN changes whether LAN traffic is allowed. The setting is
// stored only once the machine accepted the command.
func (d *Daemon) SetAllowLAN(ctx context.Context, allow bool) error {
	if err := d.send(ctx, tunnelstate.AllowLAN{Allow: allow}); err != nil {
		return err
	}
	return d.store.Update(func(s *UserSettings) { s.AllowLAN = allow })
}

func (d *Daemon) SetBlockWhenDisconnected(ctx context.Context, block bool) error {
	if err := d.send(ctx, tunnelstate.BlockWhenDisconnected{Block: block}); err != nil {
		return err
	}
	return d.store.Update(func(s *UserSettings) { s.BlockWhenDisconnected = block })
}

// SetDNSServers replaces the custom DNS servers. An empty list restores
// the servers of the tunnel.
func (d *Daemon) SetDNSServers(ctx context.Context, servers []netip.Addr) error {
	strs := make([]string, 0, len(servers))
	for _, s := range servers {
		strs = append(strs, s.String())
	}
	cmd := tunnelstate.SetDNS{Servers: servers}
	if len(servers) == 0 {
		cmd.Servers = nil
	}
	if err := d.send(ctx, cmd); err != nil {
		return err
	}
	return d.store.Update(func(s *UserSettings) { s.DNSServers = strs })
}

// AllowEndpoint replaces the endpoint reachable while traffic is blocked
// and waits until the firewall reflects it. A nil endpoint removes the
// exemption.
func (d *Daemon) AllowEndpoint(ctx context.Context, ep *firewall.AllowedEndpoint) error {
	cmd, done := tunnelstate.NewAllowEndpoint(ep)
	if err := d.send(ctx, cmd); err != nil {
		return err
	}
	_, err := await(ctx, done)
	return err
}

// AddAllowedIPs lets the given addresses through the blocking policy of
// the disconnected state. Other states acknowledge without change.
func (d *Daemon) AddAllowedIPs(ctx context.Context, ips []netip.Addr) error {
	cmd, done := tunnelstate.NewAddAllowedIPs(ips)
	if err := d.send(ctx, cmd); err != nil {
		return err
	}
	_, err := await(ctx, done)
	return err
}

// BypassSocket exempts fd from the tunnel. File descriptors cannot cross
// the control socket, so only in-process callers use it.
func (d *Daemon) BypassSocket(ctx context.Context, fd int) error {
	cmd, result := tunnelstate.NewBypassSocket(fd)
	if err := d.send(ctx, cmd); err != nil {
		return err
	}
	err, waitErr := await(ctx, result)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// SetExcludedApps replaces the applications excluded from the tunnel and
// waits until the list is stored.
func (d *Daemon) SetExcludedApps(ctx context.Context, paths []string) error {
	cmd, result := tunnelstate.NewSetExcludedApps(paths)
	if err := d.send(ctx, cmd); err != nil {
		return err
	}
	err, waitErr := await(ctx, result)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// SetCustomResolver enables or disables the local resolver. The setting is
// stored only once the machine accepted it.
func (d *Daemon) SetCustomResolver(ctx context.Context, enable bool) error {
	cmd, result := tunnelstate.NewSetCustomResolver(enable)
	if err := d.send(ctx, cmd); err != nil {
		return err
	}
	err, waitErr := await(ctx, result)
	if waitErr != nil {
		return waitErr
	}
	if err != nil {
		return err
	}
	return d.store.Update(func(s *UserSettings) { s.CustomResolver = enable })
}

func (d *Daemon) SetAutoConnect(_ context.Context, enable bool) error {
	return d.store.Update(func(s *UserSettings) { s.AutoConnect = enable })
}
