package daemon

import (
	"sync"
	"time"

	"github.com/plexsphere/plexvpn/internal/controlapi"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
)

// statusTracker records the latest transition for the control API.
type statusTracker struct {
	now func() time.Time

	mu     sync.Mutex
	status controlapi.Status
}

func newStatusTracker(now func() time.Time) *statusTracker {
	return &statusTracker{
		now:    now,
		status: controlapi.Status{State: "starting", Since: now()},
	}
}

func (s *statusTracker) record(t tunnelstate.Transition) {
	st := statusFromTransition(t, s.now())
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *statusTracker) get() controlapi.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Addresses = append([]string(nil), s.status.Addresses...)
	return st
}

func statusFromTransition(t tunnelstate.Transition, since time.Time) controlapi.Status {
	st := controlapi.Status{
		State: string(t.State),
		Since: since,
	}
	if t.Endpoint != nil {
		st.Endpoint = t.Endpoint.String()
	}
	if md := t.Metadata; md != nil {
		st.Interface = md.Interface
		for _, a := range md.Addresses {
			st.Addresses = append(st.Addresses, a.String())
		}
	}
	switch t.State {
	case tunnelstate.StateDisconnecting:
		st.AfterDisconnect = t.AfterDisconnect.String()
	case tunnelstate.StateError:
		if t.Error != nil {
			st.ErrorCause = t.Error.Cause.String()
			st.Blocking = t.Error.IsBlocking()
			if t.Error.BlockFailure != nil {
				st.BlockFailure = t.Error.BlockFailure.Error()
			}
		}
	}
	return st
}
