package packaging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Installer handles installing and uninstalling plexvpn as a systemd service.
type Installer struct {
	cfg     InstallConfig
	systemd SystemdController
	root    RootChecker
	logger  *slog.Logger
}

// NewInstaller creates a new Installer with defaults applied.
func NewInstaller(cfg InstallConfig, systemd SystemdController, root RootChecker, logger *slog.Logger) *Installer {
	cfg.ApplyDefaults()
	return &Installer{
		cfg:     cfg,
		systemd: systemd,
		root:    root,
		logger:  logger.With("component", "packaging"),
	}
}

// Install installs plexvpn as a systemd service. The early boot blocking
// service is installed and enabled when configured.
func (ins *Installer) Install() error {
	if err := ins.cfg.Validate(); err != nil {
		return err
	}
	if !ins.root.IsRoot() {
		return errors.New("packaging: install requires root privileges")
	}
	if !ins.systemd.IsAvailable() {
		return errors.New("packaging: systemd is not available")
	}

	dirs := []struct {
		path string
		perm os.FileMode
	}{
		{ins.cfg.ConfigDir, 0o755},
		{ins.cfg.DataDir, 0o700},
		{ins.cfg.RunDir, 0o755},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("packaging: create directory %s: %w", d.path, err)
		}
		ins.logger.Info("directory created", "path", d.path, "perm", fmt.Sprintf("%04o", d.perm))
	}

	if err := ins.copyBinary(); err != nil {
		return err
	}

	configPath := ins.cfg.configPath()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		content := GenerateDefaultConfig(ins.cfg)
		if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("packaging: write config: %w", err)
		}
		ins.logger.Info("default config written", "path", configPath)
	} else if err == nil {
		ins.logger.Info("existing config preserved", "path", configPath)
	} else {
		return fmt.Errorf("packaging: stat config: %w", err)
	}

	if err := os.MkdirAll(ins.cfg.UnitDir, 0o755); err != nil {
		return fmt.Errorf("packaging: create unit file directory: %w", err)
	}
	if err := ins.writeUnit(ins.cfg.UnitFilePath(), GenerateUnitFile(ins.cfg)); err != nil {
		return err
	}
	if ins.cfg.EarlyBoot {
		if err := ins.writeUnit(ins.cfg.EarlyBootUnitFilePath(), GenerateEarlyBootUnitFile(ins.cfg)); err != nil {
			return err
		}
	}

	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}
	ins.logger.Info("systemd daemon reloaded")

	if ins.cfg.EarlyBoot {
		if err := ins.systemd.Enable(ins.cfg.EarlyBootServiceName); err != nil {
			return fmt.Errorf("packaging: enable %s: %w", ins.cfg.EarlyBootServiceName, err)
		}
		ins.logger.Info("early boot blocking enabled", "service", ins.cfg.EarlyBootServiceName)
	}

	if ins.cfg.Start {
		if err := ins.systemd.Enable(ins.cfg.ServiceName); err != nil {
			return fmt.Errorf("packaging: enable %s: %w", ins.cfg.ServiceName, err)
		}
		if err := ins.systemd.Start(ins.cfg.ServiceName); err != nil {
			return fmt.Errorf("packaging: start %s: %w", ins.cfg.ServiceName, err)
		}
		ins.logger.Info("service started", "service", ins.cfg.ServiceName)
	}

	return nil
}

// Uninstall removes the plexvpn systemd services. If purge is true, data and config dirs are also removed.
func (ins *Installer) Uninstall(purge bool) error {
	if !ins.root.IsRoot() {
		return errors.New("packaging: uninstall requires root privileges")
	}

	if _, err := os.Stat(ins.cfg.UnitFilePath()); errors.Is(err, os.ErrNotExist) {
		ins.logger.Info("plexvpn is not installed, nothing to do")
		return nil
	}

	for _, svc := range []string{ins.cfg.EarlyBootServiceName, ins.cfg.ServiceName} {
		if err := ins.systemd.Stop(svc); err != nil {
			ins.logger.Info("stop service", "service", svc, "error", err)
		}
		if err := ins.systemd.Disable(svc); err != nil {
			ins.logger.Info("disable service", "service", svc, "error", err)
		}
	}

	for _, path := range []string{ins.cfg.EarlyBootUnitFilePath(), ins.cfg.UnitFilePath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("packaging: remove unit file: %w", err)
		}
		ins.logger.Info("unit file removed", "path", path)
	}

	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}

	if err := os.Remove(ins.cfg.BinaryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("packaging: remove binary: %w", err)
	}
	ins.logger.Info("binary removed", "path", ins.cfg.BinaryPath)

	if purge {
		for _, dir := range []string{ins.cfg.DataDir, ins.cfg.ConfigDir} {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("packaging: remove directory %s: %w", dir, err)
			}
			ins.logger.Info("directory removed", "path", dir)
		}
	}

	return nil
}

func (ins *Installer) writeUnit(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("packaging: write unit file %s: %w", path, err)
	}
	ins.logger.Info("unit file written", "path", path)
	return nil
}

func (ins *Installer) copyBinary() error {
	srcPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("packaging: resolve executable path: %w", err)
	}

	srcPath, err = filepath.EvalSymlinks(srcPath)
	if err != nil {
		return fmt.Errorf("packaging: resolve symlinks: %w", err)
	}

	dstPath := ins.cfg.BinaryPath
	if srcPath == dstPath {
		ins.logger.Info("binary already at install path, skipping copy", "path", dstPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("packaging: create binary directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("packaging: open source binary: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("packaging: create destination binary: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("packaging: copy binary: %w", err)
	}

	ins.logger.Info("binary installed", "src", srcPath, "dst", dstPath)
	return nil
}
