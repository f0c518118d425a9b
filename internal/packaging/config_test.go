package packaging

import (
	"strings"
	"testing"
)

func TestInstallConfig_ApplyDefaults(t *testing.T) {
	cfg := InstallConfig{}
	cfg.ApplyDefaults()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"BinaryPath", cfg.BinaryPath, "/usr/local/bin/plexvpn"},
		{"ConfigDir", cfg.ConfigDir, "/etc/plexvpn"},
		{"DataDir", cfg.DataDir, "/var/lib/plexvpn"},
		{"RunDir", cfg.RunDir, "/var/run/plexvpn"},
		{"UnitDir", cfg.UnitDir, "/etc/systemd/system"},
		{"ServiceName", cfg.ServiceName, "plexvpn"},
		{"EarlyBootServiceName", cfg.EarlyBootServiceName, "plexvpn-early-boot-blocking"},
		{"UnitFilePath", cfg.UnitFilePath(), "/etc/systemd/system/plexvpn.service"},
		{"EarlyBootUnitFilePath", cfg.EarlyBootUnitFilePath(), "/etc/systemd/system/plexvpn-early-boot-blocking.service"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestInstallConfig_ApplyDefaultsPreservesValues(t *testing.T) {
	cfg := InstallConfig{BinaryPath: "/opt/bin/plexvpn", ServiceName: "vpn"}
	cfg.ApplyDefaults()

	if cfg.BinaryPath != "/opt/bin/plexvpn" {
		t.Errorf("BinaryPath = %q, want preserved", cfg.BinaryPath)
	}
	if cfg.ServiceName != "vpn" {
		t.Errorf("ServiceName = %q, want preserved", cfg.ServiceName)
	}
}

func TestInstallConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*InstallConfig)
		wantErr string
	}{
		{"valid", func(*InstallConfig) {}, ""},
		{"empty binary path", func(c *InstallConfig) { c.BinaryPath = "" }, "BinaryPath"},
		{"empty unit dir", func(c *InstallConfig) { c.UnitDir = "" }, "UnitDir"},
		{"same service names", func(c *InstallConfig) { c.EarlyBootServiceName = c.ServiceName }, "must differ"},
		{"endpoint without key", func(c *InstallConfig) { c.Peer.Endpoint = "198.51.100.1:51820" }, "public key"},
		{"full peer", func(c *InstallConfig) {
			c.Peer = PeerTemplate{Endpoint: "198.51.100.1:51820", PublicKey: "c2VydmVy"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := InstallConfig{}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
