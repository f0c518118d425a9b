package controlapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/user"
	"strconv"
)

// PeerCredentials holds the credentials of the process on the other end of
// a Unix socket connection.
type PeerCredentials struct {
	PID uint32
	UID uint32
	GID uint32
}

// PeerCredGetter extracts peer credentials from a request.
type PeerCredGetter interface {
	GetPeerCredentials(r *http.Request) (*PeerCredentials, error)
}

// GroupChecker checks group membership for a given user.
type GroupChecker interface {
	// IsInGroup reports whether the user identified by uid belongs to the
	// named group, or if the user's primary group (gid) matches the group.
	IsInGroup(uid, gid uint32, groupName string) bool
}

// OSGroupChecker checks group membership using the OS user/group database.
type OSGroupChecker struct{}

func (OSGroupChecker) IsInGroup(uid, gid uint32, groupName string) bool {
	grp, err := user.LookupGroup(groupName)
	if err != nil {
		return false
	}
	groupGID, err := strconv.ParseUint(grp.Gid, 10, 32)
	if err != nil {
		return false
	}
	if gid == uint32(groupGID) {
		return true
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return false
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return false
	}
	for _, g := range groupIDs {
		if g == grp.Gid {
			return true
		}
	}
	return false
}

// peerCredKey is the context key for storing PeerCredentials.
type peerCredKey struct{}

func withPeerCredentials(ctx context.Context, cred *PeerCredentials) context.Context {
	return context.WithValue(ctx, peerCredKey{}, cred)
}

// contextPeerCredGetter extracts peer credentials stored by the server's
// ConnContext hook.
type contextPeerCredGetter struct{}

func (contextPeerCredGetter) GetPeerCredentials(r *http.Request) (*PeerCredentials, error) {
	cred, ok := r.Context().Value(peerCredKey{}).(*PeerCredentials)
	if !ok || cred == nil {
		return nil, fmt.Errorf("controlapi: peer credentials not available")
	}
	return cred, nil
}

// WriteAuthMiddleware restricts every request that is not a GET to root
// and to members of group.
func WriteAuthMiddleware(checker GroupChecker, getter PeerCredGetter, group string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			cred, err := getter.GetPeerCredentials(r)
			if err != nil {
				logger.Error("failed to get peer credentials", "error", err)
				writeError(w, http.StatusForbidden, "forbidden: unknown peer")
				return
			}
			if cred.UID == 0 || checker.IsInGroup(cred.UID, cred.GID, group) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("control access denied",
				"uid", cred.UID,
				"gid", cred.GID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			writeError(w, http.StatusForbidden, fmt.Sprintf("forbidden: requires root or membership in group %q", group))
		})
	}
}
