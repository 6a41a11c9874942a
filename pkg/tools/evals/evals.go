package evals

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/export"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools"
)

const toolName = "evals"

type Input struct {
	Action string `json:"action" validate:"required,oneof=list export"`
	Owner  string `json:"owner" validate:"required"`
	RunID  string `json:"run_id" validate:"required"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=json csv"`
}

type Tool struct {
	logger    zerolog.Logger
	validator *validator.Validate
	service   *runs.Service
}

func (t *Tool) Register(srv *server.Server) error {
	if srv.Runs() == nil {
		return fmt.Errorf("%s tool requires a run service", toolName)
	}
	t.service = srv.Runs()

	tool := &mcp.Tool{
		Name:        toolName,
		Description: "Inspect recorded model results for a run. Actions: list (all batches, oldest first), export (format json or csv).",
	}

	mcp.AddTool(&srv.Server, tool, tools.WrapToolHandler(t.logger, toolName, t.EvalsHandler))
	t.logger.Debug().Msg("evals tool registered")

	return nil
}

func (t *Tool) EvalsHandler(ctx context.Context, _ *mcp.CallToolRequest, input Input) (*mcp.CallToolResult, any, error) {
	if err := t.validator.Struct(input); err != nil {
		return nil, nil, fmt.Errorf("validation error: %w", err)
	}

	switch input.Action {
	case "export":
		doc, err := t.service.Export(ctx, input.RunID, input.Owner, input.Format)
		if err != nil {
			return nil, nil, fmt.Errorf("export failed: %w", err)
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, *doc); err != nil {
			return nil, nil, fmt.Errorf("export failed: %w", err)
		}
		return tools.TextResult(buf.String()), nil, nil

	default:
		evals, err := t.service.ListEvals(ctx, input.RunID, input.Owner)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list evals: %w", err)
		}
		result, err := tools.JSONResult(map[string]any{
			"run_id": input.RunID,
			"total":  len(evals),
			"evals":  evals,
		})
		if err != nil {
			return nil, nil, err
		}
		return result, nil, nil
	}
}

func New(logger zerolog.Logger) tools.Tool {
	return &Tool{
		logger:    logger.With().Str("tool", toolName).Logger(),
		validator: validator.New(),
	}
}
