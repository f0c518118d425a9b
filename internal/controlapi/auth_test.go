package controlapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		method string
		getter fakeCredGetter
		member bool
		want   int
	}{
		{"get needs no credentials", http.MethodGet, fakeCredGetter{err: errors.New("none")}, false, http.StatusOK},
		{"root may write", http.MethodPost, fakeCredGetter{cred: &PeerCredentials{UID: 0}}, false, http.StatusOK},
		{"group member may write", http.MethodPut, fakeCredGetter{cred: &PeerCredentials{UID: 1000, GID: 1000}}, true, http.StatusOK},
		{"other user denied", http.MethodPost, fakeCredGetter{cred: &PeerCredentials{UID: 1000, GID: 1000}}, false, http.StatusForbidden},
		{"unknown peer denied", http.MethodPost, fakeCredGetter{err: errors.New("none")}, true, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			mw := WriteAuthMiddleware(fakeGroupChecker{member: tt.member}, tt.getter, "plexvpn", discardLogger())

			rec := httptest.NewRecorder()
			mw(inner).ServeHTTP(rec, httptest.NewRequest(tt.method, "/v1/connect", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("inner called = %v", called)
			}
		})
	}
}

func TestContextPeerCredGetter(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/connect", nil)
	if _, err := (contextPeerCredGetter{}).GetPeerCredentials(req); err == nil {
		t.Error("expected error without credentials in context")
	}

	want := &PeerCredentials{PID: 42, UID: 1000, GID: 1000}
	req = req.WithContext(withPeerCredentials(req.Context(), want))
	got, err := (contextPeerCredGetter{}).GetPeerCredentials(req)
	if err != nil {
		t.Fatalf("GetPeerCredentials: %v", err)
	}
	if *got != *want {
		t.Errorf("credentials = %+v, want %+v", got, want)
	}
}
