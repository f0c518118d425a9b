package tunnelstate

import (
	"errors"
	"fmt"
)

// ErrorCause is the reason the machine entered the error state.
type ErrorCause int

// Error causes.
const (
	CauseAuthFailed ErrorCause = iota + 1
	CauseIsOffline
	CauseSetFirewallPolicyError
	CauseSetDNSError
	CauseStartTunnelError
	CauseTunnelFailure
	CauseTunnelParameterError
	CauseCustomResolverError
	CauseSplitTunnelError
	CauseUserBlock
)

var causeNames = map[ErrorCause]string{
	CauseAuthFailed:             "auth_failed",
	CauseIsOffline:              "is_offline",
	CauseSetFirewallPolicyError: "set_firewall_policy_error",
	CauseSetDNSError:            "set_dns_error",
	CauseStartTunnelError:       "start_tunnel_error",
	CauseTunnelFailure:          "tunnel_failure",
	CauseTunnelParameterError:   "tunnel_parameter_error",
	CauseCustomResolverError:    "custom_resolver_error",
	CauseSplitTunnelError:       "split_tunnel_error",
	CauseUserBlock:              "user_block",
}

func (c ErrorCause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_cause(%d)", int(c))
}

// ParseErrorCause is the inverse of ErrorCause.String.
func ParseErrorCause(s string) (ErrorCause, error) {
	for c, name := range causeNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("tunnelstate: unknown error cause %q", s)
}

// ErrorState describes the error state. BlockFailure is set when even the
// blocking policy could not be applied, meaning traffic may leak.
type ErrorState struct {
	Cause        ErrorCause
	BlockFailure error
}

// IsBlocking reports whether the blocking policy is in effect.
func (e ErrorState) IsBlocking() bool {
	return e.BlockFailure == nil
}

// TunnelError is implemented by errors reported by a tunnel monitor that
// carry their own classification. Unclassified errors are treated as a
// recoverable tunnel failure.
type TunnelError interface {
	error
	Cause() ErrorCause
	Recoverable() bool
}

// ErrCapabilityUnavailable is returned on acknowledgment channels when the
// platform lacks the component a command needs.
var ErrCapabilityUnavailable = errors.New("tunnelstate: capability unavailable on this platform")

func classifyTunnelError(err error) (ErrorCause, bool) {
	var te TunnelError
	if errors.As(err, &te) {
		return te.Cause(), te.Recoverable()
	}
	return CauseTunnelFailure, true
}
