package tunnelstate

import (
	"github.com/plexsphere/plexvpn/internal/firewall"
)

// StateName identifies one of the five tunnel states.
type StateName string

// Tunnel states.
const (
	StateDisconnected  StateName = "disconnected"
	StateConnecting    StateName = "connecting"
	StateConnected     StateName = "connected"
	StateDisconnecting StateName = "disconnecting"
	StateError         StateName = "error"
)

// AfterDisconnect is the action taken once a disconnect completes.
type AfterDisconnect int

// After-disconnect actions.
const (
	AfterNothing AfterDisconnect = iota
	AfterBlock
	AfterReconnect
)

func (a AfterDisconnect) String() string {
	switch a {
	case AfterBlock:
		return "block"
	case AfterReconnect:
		return "reconnect"
	default:
		return "nothing"
	}
}

// Transition is emitted every time the machine enters a new state.
type Transition struct {
	State StateName

	// Endpoint is set while connecting or connected.
	Endpoint *firewall.Endpoint
	// Metadata is set while connected.
	Metadata *TunnelMetadata
	// AfterDisconnect is set while disconnecting.
	AfterDisconnect AfterDisconnect
	// Error is set in the error state.
	Error *ErrorState
}
