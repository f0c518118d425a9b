package splittunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/plexsphere/plexvpn/internal/fsutil"
)

const excludedAppsFile = "excluded-apps.yaml"

// Addresses are the tunnel interface addresses that excluded traffic must
// not be sourced from.
type Addresses struct {
	IPv4 netip.Addr
	IPv6 netip.Addr
}

// RuleController abstracts OS routing rule operations for testability.
type RuleController interface {
	// AddExclusionRule routes packets carrying mark through table.
	// Implementations must be idempotent: adding an existing rule must return nil.
	AddExclusionRule(mark uint32, table, priority int) error
	// DeleteExclusionRule removes the rule added by AddExclusionRule.
	// Implementations must be idempotent: deleting a missing rule must return nil.
	DeleteExclusionRule(mark uint32, table, priority int) error
}

// CgroupRef identifies the exclusion cgroup in socket matches.
type CgroupRef struct {
	ID uint64
	// Level is the depth of the cgroup below the hierarchy root.
	Level uint32
}

// Cgroup is the cgroup holding processes whose traffic is excluded.
type Cgroup interface {
	// Ref creates the cgroup when missing and returns its identity.
	Ref() (CgroupRef, error)
	// Add moves pid into the cgroup.
	Add(pid int) error
	// Restore moves pid back to the cgroup it was in before Add.
	Restore(pid int) error
	// PIDs lists the processes in the cgroup.
	PIDs() ([]int, error)
}

// Process is a running process and the executable it runs.
type Process struct {
	PID int
	Exe string
}

// ProcessLister enumerates running processes.
type ProcessLister interface {
	Processes() ([]Process, error)
}

// MarkRule describes how excluded traffic is recognised and marked.
type MarkRule struct {
	Cgroup CgroupRef
	Mark   uint32
	// Addresses, when set, are rewritten to the physical address on
	// excluded packets that were sourced from the tunnel.
	Addresses *Addresses
}

// Marker installs the packet marking for excluded traffic.
type Marker interface {
	// Apply replaces the installed marking with rule.
	Apply(rule MarkRule) error
	// Remove deletes the marking. Removing when nothing is installed
	// returns nil.
	Remove() error
}

// Deps are the OS facilities driven by a Driver.
type Deps struct {
	Rules     RuleController
	Cgroup    Cgroup
	Processes ProcessLister
	Marker    Marker
}

type excludedApps struct {
	Paths []string `yaml:"paths"`
}

// Driver keeps excluded traffic on the physical network. Processes running
// an excluded executable are moved into a dedicated cgroup, the marker sets
// the exclusion fwmark on their sockets and a routing rule sends marked
// packets through the main table.
type Driver struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	addresses *Addresses
	installed bool
	marked    bool
	paths     []string
}

// New creates a Driver and loads the persisted exclusion list.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Driver, error) {
	cfg.ApplyDefaults()
	switch {
	case deps.Rules == nil:
		return nil, errors.New("splittunnel: new: rule controller is required")
	case deps.Cgroup == nil:
		return nil, errors.New("splittunnel: new: cgroup is required")
	case deps.Processes == nil:
		return nil, errors.New("splittunnel: new: process lister is required")
	case deps.Marker == nil:
		return nil, errors.New("splittunnel: new: marker is required")
	}
	d := &Driver{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "splittunnel"),
	}

	var apps excludedApps
	if _, err := fsutil.ReadYAML(filepath.Join(cfg.DataDir, excludedAppsFile), &apps); err != nil {
		return nil, fmt.Errorf("splittunnel: load excluded apps: %w", err)
	}
	d.paths = apps.Paths
	slices.Sort(d.paths)
	return d, nil
}

// ExclusionMark returns the fwmark of excluded traffic, or zero when split
// tunneling is disabled.
func (d *Driver) ExclusionMark() uint32 {
	if !d.cfg.IsEnabled() {
		return 0
	}
	return d.cfg.Mark
}

// SetTunnelAddresses registers the tunnel addresses, installs the
// exclusion rule and marks excluded traffic. A nil addresses keeps the
// marking but forgets the tunnel, as used while all traffic is blocked.
func (d *Driver) SetTunnelAddresses(addresses *Addresses) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.addresses = addresses
	if !d.cfg.IsEnabled() {
		return nil
	}
	if !d.installed {
		if err := d.deps.Rules.AddExclusionRule(d.cfg.Mark, mainTable, d.cfg.Priority); err != nil {
			return fmt.Errorf("splittunnel: set tunnel addresses: %w", err)
		}
		d.installed = true
		d.logger.Debug("exclusion rule installed", "mark", d.cfg.Mark, "priority", d.cfg.Priority)
	}

	ref, err := d.deps.Cgroup.Ref()
	if err != nil {
		return fmt.Errorf("splittunnel: set tunnel addresses: %w", err)
	}
	if err := d.deps.Marker.Apply(MarkRule{Cgroup: ref, Mark: d.cfg.Mark, Addresses: addresses}); err != nil {
		return fmt.Errorf("splittunnel: set tunnel addresses: %w", err)
	}
	d.marked = true
	return nil
}

// ClearTunnelAddresses forgets the tunnel and removes the marking and the
// exclusion rule.
func (d *Driver) ClearTunnelAddresses() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.addresses = nil
	if d.marked {
		if err := d.deps.Marker.Remove(); err != nil {
			return fmt.Errorf("splittunnel: clear tunnel addresses: %w", err)
		}
		d.marked = false
	}
	if !d.installed {
		return nil
	}
	if err := d.deps.Rules.DeleteExclusionRule(d.cfg.Mark, mainTable, d.cfg.Priority); err != nil {
		return fmt.Errorf("splittunnel: clear tunnel addresses: %w", err)
	}
	d.installed = false
	d.logger.Debug("exclusion rule removed", "mark", d.cfg.Mark)
	return nil
}

// TunnelAddresses returns the registered tunnel addresses.
func (d *Driver) TunnelAddresses() *Addresses {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addresses
}

// SetPaths replaces the list of excluded applications and persists it.
// Exactly one value is sent on result, which must be buffered.
func (d *Driver) SetPaths(paths []string, result chan<- error) {
	err := d.setPaths(paths)
	select {
	case result <- err:
	default:
		d.logger.Warn("dropped set paths result: channel not ready")
	}
}

func (d *Driver) setPaths(paths []string) error {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("splittunnel: set paths: %q is not an absolute path", p)
		}
		cleaned = append(cleaned, filepath.Clean(p))
	}
	slices.Sort(cleaned)
	cleaned = slices.Compact(cleaned)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := fsutil.WriteYAMLAtomic(d.cfg.DataDir, excludedAppsFile, excludedApps{Paths: cleaned}, 0o600); err != nil {
		return fmt.Errorf("splittunnel: set paths: %w", err)
	}
	d.paths = cleaned
	d.logger.Info("excluded applications updated", "count", len(cleaned))

	if !d.cfg.IsEnabled() {
		return nil
	}
	if err := d.releaseLocked(); err != nil {
		d.logger.Warn("failed to release processes no longer excluded", "error", err)
	}
	if err := d.scanLocked(); err != nil {
		d.logger.Warn("failed to exclude running applications", "error", err)
	}
	return nil
}

// Run matches running processes against the excluded applications every
// ScanInterval until ctx is cancelled. Processes started by an excluded
// application inherit its cgroup.
func (d *Driver) Run(ctx context.Context) error {
	if !d.cfg.IsEnabled() {
		d.logger.Info("split tunneling disabled, skipping process scan")
		return nil
	}

	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		d.mu.Lock()
		err := d.scanLocked()
		d.mu.Unlock()
		if err != nil {
			d.logger.Warn("process scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scanLocked moves every running process of an excluded application into
// the exclusion cgroup.
func (d *Driver) scanLocked() error {
	if !d.cfg.IsEnabled() || len(d.paths) == 0 {
		return nil
	}
	procs, err := d.deps.Processes.Processes()
	if err != nil {
		return fmt.Errorf("splittunnel: scan: %w", err)
	}
	members, err := d.deps.Cgroup.PIDs()
	if err != nil {
		return fmt.Errorf("splittunnel: scan: %w", err)
	}
	in := make(map[int]struct{}, len(members))
	for _, pid := range members {
		in[pid] = struct{}{}
	}

	for _, p := range procs {
		if _, ok := in[p.PID]; ok {
			continue
		}
		if _, excluded := slices.BinarySearch(d.paths, p.Exe); !excluded {
			continue
		}
		// The process may exit between listing and moving it.
		if err := d.deps.Cgroup.Add(p.PID); err != nil {
			d.logger.Debug("failed to exclude process", "pid", p.PID, "exe", p.Exe, "error", err)
			continue
		}
		d.logger.Debug("process excluded", "pid", p.PID, "exe", p.Exe)
	}
	return nil
}

// releaseLocked moves processes out of the exclusion cgroup unless they
// run an excluded application.
func (d *Driver) releaseLocked() error {
	members, err := d.deps.Cgroup.PIDs()
	if err != nil {
		return fmt.Errorf("splittunnel: release: %w", err)
	}
	if len(members) == 0 {
		return nil
	}
	procs, err := d.deps.Processes.Processes()
	if err != nil {
		return fmt.Errorf("splittunnel: release: %w", err)
	}
	exes := make(map[int]string, len(procs))
	for _, p := range procs {
		exes[p.PID] = p.Exe
	}

	for _, pid := range members {
		if _, excluded := slices.BinarySearch(d.paths, exes[pid]); excluded {
			continue
		}
		if err := d.deps.Cgroup.Restore(pid); err != nil {
			d.logger.Debug("failed to release process", "pid", pid, "error", err)
			continue
		}
		d.logger.Debug("process released", "pid", pid)
	}
	return nil
}

// Paths returns the excluded application paths.
func (d *Driver) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.paths)
}
