package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/plexsphere/plexvpn/internal/firewall"
	"github.com/plexsphere/plexvpn/internal/metrics"
	"github.com/plexsphere/plexvpn/internal/tunnelstate"
)

// maxBodyBytes bounds request bodies accepted by mutating routes.
const maxBodyBytes = 64 << 10

// Controller is the daemon surface exposed over the control socket.
type Controller interface {
	Status() Status
	Settings() Settings
	Stats() metrics.Snapshot
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SetAllowLAN(ctx context.Context, allow bool) error
	SetBlockWhenDisconnected(ctx context.Context, block bool) error
	SetDNSServers(ctx context.Context, servers []netip.Addr) error
	SetExcludedApps(ctx context.Context, paths []string) error
	SetCustomResolver(ctx context.Context, enable bool) error
	SetAutoConnect(ctx context.Context, enable bool) error
	AllowEndpoint(ctx context.Context, ep *firewall.AllowedEndpoint) error
	AddAllowedIPs(ctx context.Context, ips []netip.Addr) error
}

// Status is the response for GET /v1/status.
type Status struct {
	State           string    `json:"state"`
	Since           time.Time `json:"since"`
	Endpoint        string    `json:"endpoint,omitempty"`
	Interface       string    `json:"interface,omitempty"`
	Addresses       []string  `json:"addresses,omitempty"`
	AfterDisconnect string    `json:"after_disconnect,omitempty"`
	ErrorCause      string    `json:"error_cause,omitempty"`
	// Blocking reports whether the error state holds all traffic. It is
	// false when even the blocking policy failed, see BlockFailure.
	Blocking     bool   `json:"blocking,omitempty"`
	BlockFailure string `json:"block_failure,omitempty"`
}

// Settings is the response for GET /v1/settings.
type Settings struct {
	AllowLAN              bool     `json:"allow_lan"`
	BlockWhenDisconnected bool     `json:"block_when_disconnected"`
	DNSServers            []string `json:"dns_servers"`
	ExcludedApps          []string `json:"excluded_apps"`
	CustomResolver        bool     `json:"custom_resolver"`
	AutoConnect           bool     `json:"auto_connect"`
}

// ToggleRequest is the body of the boolean settings routes.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// DNSRequest is the body of PUT /v1/settings/dns.
type DNSRequest struct {
	Servers []string `json:"servers"`
}

// ExcludedAppsRequest is the body of PUT /v1/settings/excluded-apps.
type ExcludedAppsRequest struct {
	Paths []string `json:"paths"`
}

// AllowedEndpointRequest is the body of PUT /v1/firewall/allowed-endpoint.
// An empty address removes the exemption.
type AllowedEndpointRequest struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol,omitempty"`
	RootOnly bool   `json:"root_only,omitempty"`
}

// AllowedIPsRequest is the body of POST /v1/firewall/allowed-ips.
type AllowedIPsRequest struct {
	IPs []string `json:"ips"`
}

// Handler provides HTTP handlers for the control API.
type Handler struct {
	ctrl   Controller
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(ctrl Controller, logger *slog.Logger) *Handler {
	return &Handler{
		ctrl:   ctrl,
		logger: logger.With("component", "controlapi"),
	}
}

// Mux returns a configured ServeMux with all control API routes.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", h.handleGetStatus)
	mux.HandleFunc("GET /v1/settings", h.handleGetSettings)
	mux.HandleFunc("GET /v1/stats", h.handleGetStats)
	mux.HandleFunc("POST /v1/connect", h.handleConnect)
	mux.HandleFunc("POST /v1/disconnect", h.handleDisconnect)
	mux.HandleFunc("PUT /v1/settings/allow-lan", h.handleSetAllowLAN)
	mux.HandleFunc("PUT /v1/settings/block-when-disconnected", h.handleSetBlockWhenDisconnected)
	mux.HandleFunc("PUT /v1/settings/dns", h.handleSetDNS)
	mux.HandleFunc("PUT /v1/settings/excluded-apps", h.handleSetExcludedApps)
	mux.HandleFunc("PUT /v1/settings/custom-resolver", h.handleSetCustomResolver)
	mux.HandleFunc("PUT /v1/settings/auto-connect", h.handleSetAutoConnect)
	mux.HandleFunc("PUT /v1/firewall/allowed-endpoint", h.handleAllowEndpoint)
	mux.HandleFunc("POST /v1/firewall/allowed-ips", h.handleAddAllowedIPs)
	return mux
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Settings())
}

func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Stats())
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "connect", h.ctrl.Connect(r.Context()))
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "disconnect", h.ctrl.Disconnect(r.Context()))
}

func (h *Handler) handleSetAllowLAN(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "set allow-lan", h.ctrl.SetAllowLAN(r.Context(), req.Enabled))
}

func (h *Handler) handleSetBlockWhenDisconnected(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "set block-when-disconnected", h.ctrl.SetBlockWhenDisconnected(r.Context(), req.Enabled))
}

func (h *Handler) handleSetDNS(w http.ResponseWriter, r *http.Request) {
	var req DNSRequest
	if !decodeBody(w, r, &req) {
		return
	}
	servers := make([]netip.Addr, 0, len(req.Servers))
	for _, s := range req.Servers {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid DNS server %q", s))
			return
		}
		servers = append(servers, addr)
	}
	h.respond(w, "set dns", h.ctrl.SetDNSServers(r.Context(), servers))
}

func (h *Handler) handleSetExcludedApps(w http.ResponseWriter, r *http.Request) {
	var req ExcludedAppsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for _, p := range req.Paths {
		if p == "" {
			writeError(w, http.StatusBadRequest, "empty application path")
			return
		}
	}
	h.respond(w, "set excluded-apps", h.ctrl.SetExcludedApps(r.Context(), req.Paths))
}

func (h *Handler) handleSetCustomResolver(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "set custom-resolver", h.ctrl.SetCustomResolver(r.Context(), req.Enabled))
}

func (h *Handler) handleSetAutoConnect(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "set auto-connect", h.ctrl.SetAutoConnect(r.Context(), req.Enabled))
}

func (h *Handler) handleAllowEndpoint(w http.ResponseWriter, r *http.Request) {
	var req AllowedEndpointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var allowed *firewall.AllowedEndpoint
	if req.Address != "" {
		ep, err := firewall.ParseEndpoint(req.Address, req.Protocol)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid endpoint %q", req.Address))
			return
		}
		allowed = &firewall.AllowedEndpoint{Endpoint: ep, RootOnly: req.RootOnly}
	}
	h.respond(w, "allow endpoint", h.ctrl.AllowEndpoint(r.Context(), allowed))
}

func (h *Handler) handleAddAllowedIPs(w http.ResponseWriter, r *http.Request) {
	var req AllowedIPsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ips := make([]netip.Addr, 0, len(req.IPs))
	for _, s := range req.IPs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid IP %q", s))
			return
		}
		ips = append(ips, addr)
	}
	h.respond(w, "add allowed-ips", h.ctrl.AddAllowedIPs(r.Context(), ips))
}

// respond writes the outcome of a mutating request. Success returns the
// current status so clients need no second round trip.
func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.ctrl.Status())
	case errors.Is(err, tunnelstate.ErrCapabilityUnavailable):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
