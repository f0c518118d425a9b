package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	D "github.com/miekg/dns"

	"github.com/plexsphere/plexvpn/internal/dns"
)

// Resolver forwards queries received on a loopback address to the host's
// upstream resolvers.
type Resolver struct {
	cfg       Config
	logger    *slog.Logger
	udpClient *D.Client
	tcpClient *D.Client

	upstreams atomic.Pointer[[]string]

	mu  sync.Mutex
	udp *D.Server
	tcp *D.Server
	wg  sync.WaitGroup
}

// New creates a Resolver. It does not listen until SetActive is called.
func New(cfg Config, logger *slog.Logger) *Resolver {
	cfg.ApplyDefaults()
	return &Resolver{
		cfg:       cfg,
		logger:    logger.With("component", "resolver"),
		udpClient: &D.Client{Net: "udp", UDPSize: 4096, Timeout: cfg.Timeout},
		tcpClient: &D.Client{Net: "tcp", Timeout: cfg.Timeout},
	}
}

// SetActive starts forwarding to the servers in sc. A nil sc stops the
// resolver and releases its sockets.
func (r *Resolver) SetActive(sc *dns.SystemConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sc == nil {
		r.upstreams.Store(nil)
		r.stopLocked()
		return nil
	}

	upstreams := r.upstreamAddrs(sc.Servers)
	if len(upstreams) == 0 {
		return errors.New("resolver: set active: no usable upstream servers")
	}
	r.upstreams.Store(&upstreams)

	if r.udp != nil {
		r.logger.Info("resolver upstreams updated", "upstreams", upstreams)
		return nil
	}
	if err := r.startLocked(); err != nil {
		r.upstreams.Store(nil)
		return fmt.Errorf("resolver: set active: %w", err)
	}
	r.logger.Info("resolver started", "addr", r.udp.PacketConn.LocalAddr().String(), "upstreams", upstreams)
	return nil
}

// Addr returns the address the resolver listens on, or nil when inactive.
func (r *Resolver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.udp == nil {
		return nil
	}
	return r.udp.PacketConn.LocalAddr()
}

// HostAddr returns the address the host resolver configuration points at
// while the resolver is active.
func (r *Resolver) HostAddr() netip.Addr {
	ap, err := netip.ParseAddrPort(r.cfg.ListenAddr)
	if err != nil {
		return netip.MustParseAddrPort(DefaultListenAddr).Addr()
	}
	return ap.Addr()
}

// Close stops the resolver.
func (r *Resolver) Close() error {
	return r.SetActive(nil)
}

// ServeDNS implements D.Handler.
func (r *Resolver) ServeDNS(w D.ResponseWriter, req *D.Msg) {
	if ups := r.upstreams.Load(); ups != nil {
		for _, up := range *ups {
			resp, err := r.exchange(req, up)
			if err != nil {
				r.logger.Debug("upstream exchange failed", "upstream", up, "error", err)
				continue
			}
			resp.Compress = true
			_ = w.WriteMsg(resp)
			return
		}
	}

	m := new(D.Msg)
	m.SetRcode(req, D.RcodeServerFailure)
	// does not matter if this write fails
	_ = w.WriteMsg(m)
}

func (r *Resolver) exchange(req *D.Msg, upstream string) (*D.Msg, error) {
	resp, _, err := r.udpClient.Exchange(req, upstream)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		resp, _, err = r.tcpClient.Exchange(req, upstream)
	}
	return resp, err
}

func (r *Resolver) startLocked() error {
	pc, err := net.ListenPacket("udp", r.cfg.ListenAddr)
	if err != nil {
		return err
	}
	// Bind TCP to the port actually chosen for UDP.
	l, err := net.Listen("tcp", pc.LocalAddr().String())
	if err != nil {
		pc.Close()
		return err
	}

	udpStarted := make(chan struct{})
	tcpStarted := make(chan struct{})
	r.udp = &D.Server{PacketConn: pc, Handler: r, NotifyStartedFunc: func() { close(udpStarted) }}
	r.tcp = &D.Server{Listener: l, Handler: r, NotifyStartedFunc: func() { close(tcpStarted) }}

	for _, srv := range []*D.Server{r.udp, r.tcp} {
		r.wg.Add(1)
		go func(srv *D.Server) {
			defer r.wg.Done()
			if err := srv.ActivateAndServe(); err != nil {
				r.logger.Debug("resolver server stopped", "error", err)
			}
		}(srv)
	}

	// Shutdown fails on a server that has not started yet.
	<-udpStarted
	<-tcpStarted
	return nil
}

func (r *Resolver) stopLocked() {
	if r.udp == nil {
		return
	}
	if err := r.udp.Shutdown(); err != nil {
		r.logger.Debug("resolver udp shutdown", "error", err)
	}
	if err := r.tcp.Shutdown(); err != nil {
		r.logger.Debug("resolver tcp shutdown", "error", err)
	}
	r.wg.Wait()
	r.udp, r.tcp = nil, nil
	r.logger.Info("resolver stopped")
}

// upstreamAddrs drops servers that would loop back onto the resolver itself.
func (r *Resolver) upstreamAddrs(servers []netip.Addr) []string {
	listen, _ := netip.ParseAddrPort(r.cfg.ListenAddr)
	var out []string
	for _, s := range servers {
		if s == listen.Addr() && int(listen.Port()) == r.cfg.UpstreamPort {
			continue
		}
		out = append(out, net.JoinHostPort(s.String(), strconv.Itoa(r.cfg.UpstreamPort)))
	}
	return out
}
