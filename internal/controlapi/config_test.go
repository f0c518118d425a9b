package controlapi

import (
	"testing"
	"time"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, DefaultSocketPath)
	}
	if cfg.SocketGroup != DefaultSocketGroup {
		t.Errorf("SocketGroup = %q, want %q", cfg.SocketGroup, DefaultSocketGroup)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
}

func TestConfig_ApplyDefaultsPreservesValues(t *testing.T) {
	cfg := Config{SocketPath: "/tmp/x.sock", SocketGroup: "wheel", ShutdownTimeout: time.Second}
	cfg.ApplyDefaults()

	if cfg.SocketPath != "/tmp/x.sock" || cfg.SocketGroup != "wheel" || cfg.ShutdownTimeout != time.Second {
		t.Errorf("ApplyDefaults overwrote values: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{SocketPath: DefaultSocketPath, ShutdownTimeout: time.Second}, false},
		{"missing socket", Config{ShutdownTimeout: time.Second}, true},
		{"negative timeout", Config{SocketPath: DefaultSocketPath, ShutdownTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
