package controlapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Server is the local control API server. It serves HTTP over a Unix socket.
type Server struct {
	cfg     Config
	ctrl    Controller
	checker GroupChecker
	logger  *slog.Logger
}

// NewServer creates a new Server. Config defaults are applied automatically.
func NewServer(cfg Config, ctrl Controller, logger *slog.Logger) *Server {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		checker: OSGroupChecker{},
		logger:  logger.With("component", "controlapi"),
	}
}

// Start listens on the socket and serves requests. It blocks until ctx is
// cancelled, then shuts down gracefully and removes the socket.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	handler := NewHandler(s.ctrl, s.logger)
	auth := WriteAuthMiddleware(s.checker, contextPeerCredGetter{}, s.cfg.SocketGroup, s.logger)

	// Remove stale socket.
	os.Remove(s.cfg.SocketPath)

	if dir := filepath.Dir(s.cfg.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("controlapi: create socket dir: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("controlapi: listen unix %s: %w", s.cfg.SocketPath, err)
	}
	if err := SetSocketPermissions(s.cfg.SocketPath, s.cfg.SocketGroup, s.logger); err != nil {
		s.logger.Warn("failed to set socket permissions", "error", err)
	}

	srv := &http.Server{
		Handler:     auth(handler.Mux()),
		ConnContext: connContextWithPeerCred(s.logger),
	}

	s.logger.Info("server started", "socket", s.cfg.SocketPath)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("unix server error", "error", err)
		}
	}()

	<-ctx.Done()

	s.logger.Info("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete", "error", err)
		srv.Close()
	}

	os.Remove(s.cfg.SocketPath)
	wg.Wait()

	s.logger.Info("server stopped")
	return ctx.Err()
}
