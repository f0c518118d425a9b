package dns

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	D "github.com/miekg/dns"

	"github.com/plexsphere/plexvpn/internal/fsutil"
)

// SystemConfig is the host resolver configuration outside of plexvpn's control.
type SystemConfig struct {
	Servers []netip.Addr
	Search  []string
}

// backup is the on-disk record of the resolver configuration found before
// the first Set.
type backup struct {
	Symlink string `yaml:"symlink,omitempty"`
	Content string `yaml:"content"`
}

// Monitor manages the resolver configuration file.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	cfg.ApplyDefaults()
	return &Monitor{
		cfg:    cfg,
		logger: logger.With("component", "dns"),
	}
}

// Set points the host resolver at servers. The configuration found before
// the first Set is backed up and restored by Reset.
func (m *Monitor) Set(iface string, servers []netip.Addr) error {
	if len(servers) == 0 {
		return errors.New("dns: set: no servers")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureBackup(); err != nil {
		return fmt.Errorf("dns: set: backup: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by plexvpn for %s. Do not edit.\n", iface)
	for _, s := range servers {
		fmt.Fprintf(&b, "nameserver %s\n", s)
	}

	dir, name := filepath.Split(m.cfg.ResolvConfPath)
	if err := fsutil.WriteFileAtomic(dir, name, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("dns: set: write %s: %w", m.cfg.ResolvConfPath, err)
	}

	m.logger.Info("DNS servers set", "interface", iface, "servers", servers)
	return nil
}

// Reset restores the backed up configuration. It is a no-op when nothing
// was changed.
func (m *Monitor) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b backup
	found, err := fsutil.ReadYAML(m.cfg.BackupPath, &b)
	if err != nil {
		return fmt.Errorf("dns: reset: %w", err)
	}
	if !found {
		return nil
	}

	if err := m.restore(b); err != nil {
		return fmt.Errorf("dns: reset: restore %s: %w", m.cfg.ResolvConfPath, err)
	}
	if err := os.Remove(m.cfg.BackupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dns: reset: remove backup: %w", err)
	}

	m.logger.Info("DNS configuration restored")
	return nil
}

// SystemConfig returns the host resolver configuration as it was before
// plexvpn changed it, or the live configuration when nothing was changed.
func (m *Monitor) SystemConfig() (*SystemConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b backup
	found, err := fsutil.ReadYAML(m.cfg.BackupPath, &b)
	if err != nil {
		return nil, fmt.Errorf("dns: system config: %w", err)
	}
	content := b.Content
	if !found {
		data, err := os.ReadFile(m.cfg.ResolvConfPath)
		if err != nil {
			return nil, fmt.Errorf("dns: system config: %w", err)
		}
		content = string(data)
	}

	cc, err := D.ClientConfigFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("dns: system config: parse: %w", err)
	}

	sc := &SystemConfig{Search: cc.Search}
	for _, s := range cc.Servers {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			m.logger.Warn("ignoring invalid nameserver", "server", s, "error", err)
			continue
		}
		sc.Servers = append(sc.Servers, addr.WithZone(""))
	}
	return sc, nil
}

// ensureBackup records the current configuration unless a backup already
// exists. A leftover backup belongs to an earlier run and is kept.
func (m *Monitor) ensureBackup() error {
	if _, err := os.Stat(m.cfg.BackupPath); err == nil {
		return nil
	}

	var b backup
	if target, err := os.Readlink(m.cfg.ResolvConfPath); err == nil {
		b.Symlink = target
	}
	data, err := os.ReadFile(m.cfg.ResolvConfPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	b.Content = string(data)

	dir, name := filepath.Split(m.cfg.BackupPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return fsutil.WriteYAMLAtomic(dir, name, b, 0o600)
}

func (m *Monitor) restore(b backup) error {
	if b.Symlink == "" {
		dir, name := filepath.Split(m.cfg.ResolvConfPath)
		return fsutil.WriteFileAtomic(dir, name, []byte(b.Content), 0o644)
	}
	tmp := m.cfg.ResolvConfPath + ".plexvpn-tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(b.Symlink, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, m.cfg.ResolvConfPath)
}
