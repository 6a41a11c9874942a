package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

type Config struct {
	Listen          string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	ServiceName     string
	Version         string
}

// Server is the HTTP front end: the REST API under /api/v1 and the MCP
// endpoint at /mcp.
type Server struct {
	logger     zerolog.Logger
	cfg        Config
	runs       *runs.Service
	registry   *registry.Registry
	mcp        http.Handler
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates the HTTP server. mcpHandler may be nil.
func NewServer(logger zerolog.Logger, cfg Config, svc *runs.Service, reg *registry.Registry, mcpHandler http.Handler) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if reg == nil {
		reg = registry.New()
	}
	return &Server{
		logger:   logger.With().Str("component", "api").Logger(),
		cfg:      cfg,
		runs:     svc,
		registry: reg,
		mcp:      mcpHandler,
	}
}

// Handler returns the fully routed handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Bind synchronously so port conflicts fail fast.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info().Str("listen", ln.Addr().String()).Msg("HTTP server starting")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}
