package tunnel

import (
	"errors"
	"fmt"

	"github.com/plexsphere/plexvpn/internal/tunnelstate"
)

// Sentinel errors reported by tunnel monitors.
var (
	ErrHandshakeTimeout = errors.New("tunnel: no handshake within timeout")
	ErrHandshakeStale   = errors.New("tunnel: handshake too old")
	ErrLinkLost         = errors.New("tunnel: interface disappeared")
)

// Error is a classified tunnel failure.
type Error struct {
	Kind  tunnelstate.ErrorCause
	Retry bool
	Err   error
}

var _ tunnelstate.TunnelError = (*Error)(nil)

func (e *Error) Error() string {
	return fmt.Sprintf("tunnel: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause returns the error state cause the failure maps to.
func (e *Error) Cause() tunnelstate.ErrorCause { return e.Kind }

// Recoverable reports whether retrying may succeed.
func (e *Error) Recoverable() bool { return e.Retry }

func recoverable(kind tunnelstate.ErrorCause, err error) *Error {
	return &Error{Kind: kind, Retry: true, Err: err}
}

func fatal(kind tunnelstate.ErrorCause, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
