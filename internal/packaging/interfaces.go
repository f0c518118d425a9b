package packaging

// SystemdController abstracts systemd service management for testability.
// Methods that modify state must be idempotent.
type SystemdController interface {
	// IsAvailable returns true if systemctl is available on the system.
	IsAvailable() bool

	DaemonReload() error
	Enable(service string) error
	Disable(service string) error

	// Start starts the named service. Returns nil if it is already running.
	Start(service string) error

	// Stop stops the named service. Returns nil if the service is not running.
	Stop(service string) error

	IsActive(service string) bool
}

// RootChecker abstracts privilege checking for testability.
type RootChecker interface {
	IsRoot() bool
}
