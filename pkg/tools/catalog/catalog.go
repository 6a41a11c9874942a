package catalog

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools"
)

const toolName = "models"

type Input struct {
	IncludeUnavailable bool `json:"include_unavailable,omitempty"`
}

// Tool lists the selectable models.
type Tool struct {
	logger   zerolog.Logger
	registry *registry.Registry
}

func (t *Tool) Register(srv *server.Server) error {
	t.registry = srv.Registry()

	tool := &mcp.Tool{
		Name:        toolName,
		Description: "Lists the models a run can target, with provider and per-1k-token pricing.",
	}

	mcp.AddTool(&srv.Server, tool, tools.WrapToolHandler(t.logger, toolName, t.ModelsHandler))
	t.logger.Debug().Msg("models tool registered")

	return nil
}

func (t *Tool) ModelsHandler(_ context.Context, _ *mcp.CallToolRequest, input Input) (*mcp.CallToolResult, any, error) {
	list := t.registry.Available()
	if input.IncludeUnavailable {
		list = t.registry.List()
	}

	result, err := tools.JSONResult(map[string]any{
		"total":  len(list),
		"models": list,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list models: %w", err)
	}
	return result, nil, nil
}

func New(logger zerolog.Logger) tools.Tool {
	return &Tool{
		logger: logger.With().Str("tool", toolName).Logger(),
	}
}
