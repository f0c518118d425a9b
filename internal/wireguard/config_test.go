package wireguard

import "testing"

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.InterfaceName != DefaultInterfaceName {
		t.Errorf("InterfaceName = %q, want %q", cfg.InterfaceName, DefaultInterfaceName)
	}
	if cfg.MTU != DefaultMTU {
		t.Errorf("MTU = %d, want %d", cfg.MTU, DefaultMTU)
	}
	if cfg.FirewallMark != DefaultFirewallMark {
		t.Errorf("FirewallMark = %d, want %d", cfg.FirewallMark, DefaultFirewallMark)
	}
	if cfg.ListenPort != 0 {
		t.Errorf("ListenPort = %d, want 0", cfg.ListenPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() defaults error = %v", err)
	}
}

func TestConfig_DefaultsPreserveExisting(t *testing.T) {
	cfg := Config{InterfaceName: "wg0", MTU: 1420}
	cfg.ApplyDefaults()

	if cfg.InterfaceName != "wg0" {
		t.Errorf("InterfaceName = %q, want %q", cfg.InterfaceName, "wg0")
	}
	if cfg.MTU != 1420 {
		t.Errorf("MTU = %d, want 1420", cfg.MTU)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		c := Config{}
		c.ApplyDefaults()
		return c
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port too large", mutate: func(c *Config) { c.ListenPort = 70000 }},
		{name: "negative port", mutate: func(c *Config) { c.ListenPort = -1 }},
		{name: "mtu too small", mutate: func(c *Config) { c.MTU = 100 }},
		{name: "long name", mutate: func(c *Config) { c.InterfaceName = "wg-plexvpn-too-long" }},
		{name: "negative mark", mutate: func(c *Config) { c.FirewallMark = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
