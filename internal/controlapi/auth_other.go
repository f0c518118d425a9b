//go:build !linux

package controlapi

import (
	"context"
	"log/slog"
	"net"
	"os"
)

// connContextWithPeerCred is a no-op on non-Linux platforms. Without peer
// credentials every mutating request is refused.
func connContextWithPeerCred(_ *slog.Logger) func(ctx context.Context, c net.Conn) context.Context {
	return func(ctx context.Context, _ net.Conn) context.Context { return ctx }
}

// SetSocketPermissions restricts the socket to its owner on non-Linux platforms.
func SetSocketPermissions(socketPath, _ string, _ *slog.Logger) error {
	return os.Chmod(socketPath, 0600)
}
