package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/storage"
)

type Server struct {
	mcp.Server
	storage  storage.Storage
	runs     *runs.Service
	registry *registry.Registry
}

// NewServer creates the MCP server. A nil registry falls back to the
// built-in catalog.
func NewServer(impl *mcp.Implementation, store storage.Storage, svc *runs.Service, reg *registry.Registry) *Server {
	if reg == nil {
		reg = registry.New()
	}
	return &Server{
		Server:   *mcp.NewServer(impl, nil),
		storage:  store,
		runs:     svc,
		registry: reg,
	}
}

func (s *Server) Storage() storage.Storage {
	return s.storage
}

func (s *Server) Runs() *runs.Service {
	return s.runs
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
