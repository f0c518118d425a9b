package daemon

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/plexsphere/plexvpn/internal/fsutil"
)

const settingsFile = "settings.yaml"

// UserSettings are the settings changed through the control API. They
// survive restarts.
type UserSettings struct {
	AllowLAN              bool     `yaml:"allow_lan"`
	BlockWhenDisconnected bool     `yaml:"block_when_disconnected"`
	DNSServers            []string `yaml:"dns_servers,omitempty"`
	CustomResolver        bool     `yaml:"custom_resolver"`
	AutoConnect           bool     `yaml:"auto_connect"`
}

// DNSAddrs returns the parsed custom DNS servers. Entries that do not
// parse are skipped.
func (s UserSettings) DNSAddrs() []netip.Addr {
	var out []netip.Addr
	for _, str := range s.DNSServers {
		if a, err := netip.ParseAddr(str); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// SettingsStore keeps UserSettings in dir/settings.yaml.
type SettingsStore struct {
	dir string

	mu       sync.Mutex
	settings UserSettings
}

// OpenSettingsStore loads the settings in dir. A missing file yields the
// zero settings.
func OpenSettingsStore(dir string) (*SettingsStore, error) {
	s := &SettingsStore{dir: dir}
	if _, err := fsutil.ReadYAML(filepath.Join(dir, settingsFile), &s.settings); err != nil {
		return nil, fmt.Errorf("daemon: load settings: %w", err)
	}
	return s, nil
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.settings
	out.DNSServers = slices.Clone(s.settings.DNSServers)
	return out
}

// Update applies fn to a copy of the settings and persists the result. The
// stored settings are unchanged if writing fails.
func (s *SettingsStore) Update(fn func(*UserSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	next.DNSServers = slices.Clone(s.settings.DNSServers)
	fn(&next)

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("daemon: save settings: %w", err)
	}
	if err := fsutil.WriteYAMLAtomic(s.dir, settingsFile, next, 0o600); err != nil {
		return fmt.Errorf("daemon: save settings: %w", err)
	}
	s.settings = next
	return nil
}
