package packaging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Mock SystemdController ---

type mockSystemdController struct {
	available       bool
	active          bool
	daemonReloadErr error
	enableErr       error
	startErr        error

	daemonReloadCalls int
	enableCalls       []string
	disableCalls      []string
	startCalls        []string
	stopCalls         []string
}

func (m *mockSystemdController) IsAvailable() bool      { return m.available }
func (m *mockSystemdController) IsActive(_ string) bool { return m.active }

func (m *mockSystemdController) DaemonReload() error {
	m.daemonReloadCalls++
	return m.daemonReloadErr
}

func (m *mockSystemdController) Enable(service string) error {
	m.enableCalls = append(m.enableCalls, service)
	return m.enableErr
}

func (m *mockSystemdController) Disable(service string) error {
	m.disableCalls = append(m.disableCalls, service)
	return nil
}

func (m *mockSystemdController) Start(service string) error {
	m.startCalls = append(m.startCalls, service)
	return m.startErr
}

func (m *mockSystemdController) Stop(service string) error {
	m.stopCalls = append(m.stopCalls, service)
	return nil
}

// --- Mock RootChecker ---

type mockRootChecker struct {
	isRoot bool
}

func (m *mockRootChecker) IsRoot() bool { return m.isRoot }

// --- Test helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPaths returns cfg with every path remapped under tmpDir.
func testPaths(cfg InstallConfig, tmpDir string) InstallConfig {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = filepath.Join(tmpDir, "usr", "local", "bin", "plexvpn")
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = filepath.Join(tmpDir, "etc", "plexvpn")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(tmpDir, "var", "lib", "plexvpn")
	}
	if cfg.RunDir == "" {
		cfg.RunDir = filepath.Join(tmpDir, "var", "run", "plexvpn")
	}
	if cfg.UnitDir == "" {
		cfg.UnitDir = filepath.Join(tmpDir, "etc", "systemd", "system")
	}
	return cfg
}

func newTestInstaller(t *testing.T, cfg InstallConfig, systemd *mockSystemdController, root *mockRootChecker) (*Installer, InstallConfig) {
	t.Helper()
	cfg = testPaths(cfg, t.TempDir())
	cfg.ApplyDefaults()
	return NewInstaller(cfg, systemd, root, testLogger()), cfg
}

// preinstall creates the unit files and binary an earlier Install left behind.
func preinstall(t *testing.T, cfg InstallConfig) {
	t.Helper()
	for _, d := range []string{cfg.ConfigDir, cfg.DataDir, cfg.UnitDir, filepath.Dir(cfg.BinaryPath)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("MkdirAll(%q) = %v", d, err)
		}
	}
	files := map[string]string{
		cfg.UnitFilePath():          "[Unit]\n",
		cfg.EarlyBootUnitFilePath(): "[Unit]\n",
		cfg.BinaryPath:              "binary",
		cfg.configPath():            "log_level: info\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%q) = %v", path, err)
		}
	}
}

// --- Install tests ---

func TestInstall_RejectsNonRoot(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: false}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)

	err := ins.Install()
	if err == nil {
		t.Fatal("Install() = nil, want error for non-root")
	}
	if !strings.Contains(err.Error(), "root privileges") {
		t.Errorf("Install() error = %q, want message about root privileges", err)
	}
	if _, err := os.Stat(cfg.ConfigDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ConfigDir should not be created, stat = %v", err)
	}
}

func TestInstall_RejectsNoSystemd(t *testing.T) {
	systemd := &mockSystemdController{available: false}
	root := &mockRootChecker{isRoot: true}
	ins, _ := newTestInstaller(t, InstallConfig{}, systemd, root)

	err := ins.Install()
	if err == nil {
		t.Fatal("Install() = nil, want error for unavailable systemd")
	}
	if !strings.Contains(err.Error(), "systemd") {
		t.Errorf("Install() error = %q, want message about systemd", err)
	}
}

func TestInstall_RejectsHalfPeer(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, _ := newTestInstaller(t, InstallConfig{Peer: PeerTemplate{Endpoint: "198.51.100.1:51820"}}, systemd, root)

	if err := ins.Install(); err == nil {
		t.Fatal("Install() = nil, want error for endpoint without public key")
	}
}

func TestInstall_CreatesDirectories(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	tests := []struct {
		name string
		path string
		perm os.FileMode
	}{
		{"ConfigDir", cfg.ConfigDir, 0o755},
		{"DataDir", cfg.DataDir, 0o700},
		{"RunDir", cfg.RunDir, 0o755},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := os.Stat(tt.path)
			if err != nil {
				t.Fatalf("Stat(%q) = %v", tt.path, err)
			}
			if !info.IsDir() {
				t.Errorf("%q is not a directory", tt.path)
			}
			if got := info.Mode().Perm(); got != tt.perm {
				t.Errorf("%q perm = %04o, want %04o", tt.path, got, tt.perm)
			}
		})
	}
}

func TestInstall_CopiesBinary(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	info, err := os.Stat(cfg.BinaryPath)
	if err != nil {
		t.Fatalf("Stat(%q) = %v", cfg.BinaryPath, err)
	}
	if info.Size() == 0 {
		t.Error("binary file is empty")
	}
	if perm := info.Mode().Perm(); perm != 0o755 {
		t.Errorf("binary perm = %04o, want 0755", perm)
	}
}

func TestInstall_WritesDaemonUnitOnly(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	data, err := os.ReadFile(cfg.UnitFilePath())
	if err != nil {
		t.Fatalf("ReadFile(%q) = %v", cfg.UnitFilePath(), err)
	}
	if !strings.Contains(string(data), cfg.BinaryPath+" up --config") {
		t.Errorf("unit file missing ExecStart, got:\n%s", data)
	}
	if _, err := os.Stat(cfg.EarlyBootUnitFilePath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("early boot unit should not be written, stat = %v", err)
	}
	if len(systemd.enableCalls) != 0 {
		t.Errorf("Enable calls = %v, want none", systemd.enableCalls)
	}
	if systemd.daemonReloadCalls != 1 {
		t.Errorf("DaemonReload calls = %d, want 1", systemd.daemonReloadCalls)
	}
}

func TestInstall_EarlyBoot(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{EarlyBoot: true}, systemd, root)

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	data, err := os.ReadFile(cfg.EarlyBootUnitFilePath())
	if err != nil {
		t.Fatalf("ReadFile(%q) = %v", cfg.EarlyBootUnitFilePath(), err)
	}
	if !strings.Contains(string(data), "initialize-early-boot-firewall") {
		t.Errorf("early boot unit missing command, got:\n%s", data)
	}
	if len(systemd.enableCalls) != 1 || systemd.enableCalls[0] != DefaultEarlyBootServiceName {
		t.Errorf("Enable calls = %v, want [%s]", systemd.enableCalls, DefaultEarlyBootServiceName)
	}
	if len(systemd.startCalls) != 0 {
		t.Errorf("Start calls = %v, want none", systemd.startCalls)
	}
}

func TestInstall_Start(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, _ := newTestInstaller(t, InstallConfig{Start: true}, systemd, root)

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}
	if len(systemd.enableCalls) != 1 || systemd.enableCalls[0] != DefaultServiceName {
		t.Errorf("Enable calls = %v, want [%s]", systemd.enableCalls, DefaultServiceName)
	}
	if len(systemd.startCalls) != 1 || systemd.startCalls[0] != DefaultServiceName {
		t.Errorf("Start calls = %v, want [%s]", systemd.startCalls, DefaultServiceName)
	}
}

func TestInstall_StartFailure(t *testing.T) {
	systemd := &mockSystemdController{available: true, startErr: errors.New("unit failed")}
	root := &mockRootChecker{isRoot: true}
	ins, _ := newTestInstaller(t, InstallConfig{Start: true}, systemd, root)

	err := ins.Install()
	if err == nil {
		t.Fatal("Install() = nil, want error")
	}
	if !strings.Contains(err.Error(), "start") {
		t.Errorf("Install() error = %q, want message about start", err)
	}
}

func TestInstall_WritesDefaultConfig(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	peer := PeerTemplate{Endpoint: "198.51.100.1:51820", PublicKey: "c2VydmVy"}
	ins, cfg := newTestInstaller(t, InstallConfig{Peer: peer}, systemd, root)

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	data, err := os.ReadFile(cfg.configPath())
	if err != nil {
		t.Fatalf("ReadFile(%q) = %v", cfg.configPath(), err)
	}
	if !strings.Contains(string(data), "- 198.51.100.1:51820") {
		t.Errorf("config missing peer endpoint, got:\n%s", data)
	}
}

func TestInstall_PreservesExistingConfig(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)

	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%q) = %v", cfg.ConfigDir, err)
	}
	existing := "log_level: debug\n"
	if err := os.WriteFile(cfg.configPath(), []byte(existing), 0o644); err != nil {
		t.Fatalf("WriteFile(%q) = %v", cfg.configPath(), err)
	}

	if err := ins.Install(); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	data, err := os.ReadFile(cfg.configPath())
	if err != nil {
		t.Fatalf("ReadFile(%q) = %v", cfg.configPath(), err)
	}
	if string(data) != existing {
		t.Errorf("config = %q, want preserved %q", data, existing)
	}
}

func TestInstall_DaemonReloadFailure(t *testing.T) {
	systemd := &mockSystemdController{available: true, daemonReloadErr: errors.New("reload failed")}
	root := &mockRootChecker{isRoot: true}
	ins, _ := newTestInstaller(t, InstallConfig{EarlyBoot: true}, systemd, root)

	err := ins.Install()
	if err == nil {
		t.Fatal("Install() = nil, want error")
	}
	if !strings.Contains(err.Error(), "daemon-reload") {
		t.Errorf("Install() error = %q, want message about daemon-reload", err)
	}
	if len(systemd.enableCalls) != 0 {
		t.Errorf("Enable calls = %v, want none after reload failure", systemd.enableCalls)
	}
}

// --- Uninstall tests ---

func TestUninstall_StopsAndDisablesServices(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)
	preinstall(t, cfg)

	if err := ins.Uninstall(false); err != nil {
		t.Fatalf("Uninstall(false) = %v", err)
	}

	want := []string{DefaultEarlyBootServiceName, DefaultServiceName}
	if strings.Join(systemd.stopCalls, ",") != strings.Join(want, ",") {
		t.Errorf("Stop calls = %v, want %v", systemd.stopCalls, want)
	}
	if strings.Join(systemd.disableCalls, ",") != strings.Join(want, ",") {
		t.Errorf("Disable calls = %v, want %v", systemd.disableCalls, want)
	}
	for _, path := range []string{cfg.UnitFilePath(), cfg.EarlyBootUnitFilePath(), cfg.BinaryPath} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should be removed, stat = %v", path, err)
		}
	}
}

func TestUninstall_PurgeRemovesAllDirs(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)
	preinstall(t, cfg)

	if err := ins.Uninstall(true); err != nil {
		t.Fatalf("Uninstall(true) = %v", err)
	}

	for _, dir := range []string{cfg.ConfigDir, cfg.DataDir} {
		if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should be removed, stat = %v", dir, err)
		}
	}
}

func TestUninstall_NoPurgePreservesDirs(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)
	preinstall(t, cfg)

	if err := ins.Uninstall(false); err != nil {
		t.Fatalf("Uninstall(false) = %v", err)
	}

	for _, dir := range []string{cfg.ConfigDir, cfg.DataDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should be preserved, stat = %v", dir, err)
		}
	}
}

func TestUninstall_IdempotentWhenNotInstalled(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: true}
	ins, _ := newTestInstaller(t, InstallConfig{}, systemd, root)

	if err := ins.Uninstall(false); err != nil {
		t.Fatalf("Uninstall(false) = %v, want nil when not installed", err)
	}
	if len(systemd.stopCalls) != 0 {
		t.Errorf("Stop calls = %v, want none", systemd.stopCalls)
	}
}

func TestUninstall_RejectsNonRoot(t *testing.T) {
	systemd := &mockSystemdController{available: true}
	root := &mockRootChecker{isRoot: false}
	ins, _ := newTestInstaller(t, InstallConfig{}, systemd, root)

	err := ins.Uninstall(false)
	if err == nil {
		t.Fatal("Uninstall() = nil, want error for non-root")
	}
	if !strings.Contains(err.Error(), "root privileges") {
		t.Errorf("Uninstall() error = %q, want message about root privileges", err)
	}
}

func TestUninstall_DaemonReloadFailure(t *testing.T) {
	systemd := &mockSystemdController{available: true, daemonReloadErr: errors.New("reload failed")}
	root := &mockRootChecker{isRoot: true}
	ins, cfg := newTestInstaller(t, InstallConfig{}, systemd, root)
	preinstall(t, cfg)

	err := ins.Uninstall(false)
	if err == nil {
		t.Fatal("Uninstall() = nil, want error")
	}
	if !strings.Contains(err.Error(), "daemon-reload") {
		t.Errorf("Uninstall() error = %q, want message about daemon-reload", err)
	}
}
