package packaging

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const systemctl = "systemctl"

// systemctlController implements SystemdController by running systemctl.
type systemctlController struct{}

// NewSystemdController returns a SystemdController backed by systemctl.
func NewSystemdController() SystemdController {
	return systemctlController{}
}

func (systemctlController) IsAvailable() bool {
	_, err := exec.LookPath(systemctl)
	return err == nil
}

func (c systemctlController) DaemonReload() error          { return c.run("daemon-reload") }
func (c systemctlController) Enable(service string) error  { return c.run("enable", service) }
func (c systemctlController) Disable(service string) error { return c.run("disable", service) }
func (c systemctlController) Start(service string) error   { return c.run("start", service) }
func (c systemctlController) Stop(service string) error    { return c.run("stop", service) }

func (systemctlController) IsActive(service string) bool {
	return exec.Command(systemctl, "is-active", "--quiet", service).Run() == nil
}

func (systemctlController) run(args ...string) error {
	output, err := exec.Command(systemctl, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("packaging: systemctl %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}

type uidRootChecker struct{}

// NewRootChecker returns a RootChecker that checks the effective UID.
func NewRootChecker() RootChecker {
	return uidRootChecker{}
}

func (uidRootChecker) IsRoot() bool {
	return os.Geteuid() == 0
}
