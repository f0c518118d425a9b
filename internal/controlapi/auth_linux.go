//go:build linux

package controlapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// GetPeerCredentials extracts peer credentials from a Unix socket connection
// using the SO_PEERCRED socket option.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("controlapi: auth: not a Unix socket connection")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("controlapi: auth: get syscall conn: %w", err)
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("controlapi: auth: control: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("controlapi: auth: getsockopt SO_PEERCRED: %w", credErr)
	}
	return &PeerCredentials{
		PID: uint32(cred.Pid),
		UID: cred.Uid,
		GID: cred.Gid,
	}, nil
}

// connContextWithPeerCred returns a ConnContext function for http.Server
// that stores the peer credentials of each connection in its context.
func connContextWithPeerCred(logger *slog.Logger) func(ctx context.Context, c net.Conn) context.Context {
	return func(ctx context.Context, c net.Conn) context.Context {
		cred, err := GetPeerCredentials(c)
		if err != nil {
			logger.Debug("failed to get peer credentials", "error", err)
			return ctx
		}
		return withPeerCredentials(ctx, cred)
	}
}

// SetSocketPermissions sets ownership and permissions on the Unix socket file.
// If group exists, the socket is chowned to root:group with mode 0660.
// Otherwise it gets mode 0666 and writes stay limited to root by
// WriteAuthMiddleware.
func SetSocketPermissions(socketPath, group string, logger *slog.Logger) error {
	grp, err := user.LookupGroup(group)
	if err != nil {
		logger.Warn("socket group not found, only root may change state",
			"group", group,
			"error", err,
		)
		return os.Chmod(socketPath, 0666)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return fmt.Errorf("controlapi: auth: parse gid: %w", err)
	}
	if err := os.Chown(socketPath, 0, gid); err != nil {
		return fmt.Errorf("controlapi: auth: chown socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("controlapi: auth: chmod socket: %w", err)
	}
	return nil
}
