package runs

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	runsvc "github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools"
)

const toolName = "runs"

type Input struct {
	Action    string            `json:"action" validate:"required,oneof=create get list update delete share unshare"`
	Owner     string            `json:"owner" validate:"required"`
	ID        string            `json:"id,omitempty"`
	Title     *string           `json:"title,omitempty"`
	Prompt    *string           `json:"prompt,omitempty"`
	Models    []string          `json:"models,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	Status    *runstate.Status  `json:"status,omitempty"`
	Limit     int               `json:"limit,omitempty" validate:"min=0,max=100"`
	Offset    int               `json:"offset,omitempty" validate:"min=0"`
}

type Tool struct {
	logger    zerolog.Logger
	validator *validator.Validate
	service   *runsvc.Service
}

func (t *Tool) Register(srv *server.Server) error {
	if srv.Runs() == nil {
		return fmt.Errorf("%s tool requires a run service", toolName)
	}

	tool := &mcp.Tool{
		Name:        toolName,
		Description: "Manage prompt runs. Actions: create (prompt, models, optional title/variables), get, list (paginated), update (title, prompt, models, variables, status draft|ready), delete, share, unshare.",
	}

	t.service = srv.Runs()

	mcp.AddTool(&srv.Server, tool, tools.WrapToolHandler(t.logger, toolName, t.RunsHandler))
	t.logger.Debug().Msg("runs tool registered")

	return nil
}

func (t *Tool) RunsHandler(ctx context.Context, _ *mcp.CallToolRequest, input Input) (*mcp.CallToolResult, any, error) {
	if err := t.validator.Struct(input); err != nil {
		return nil, nil, fmt.Errorf("validation error: %w", err)
	}
	if input.Action != "create" && input.Action != "list" && input.ID == "" {
		return nil, nil, fmt.Errorf("id is required for %s action", input.Action)
	}

	var (
		payload any
		err     error
	)

	switch input.Action {
	case "create":
		in := runsvc.CreateInput{
			Models:    input.Models,
			Variables: input.Variables,
		}
		if input.Title != nil {
			in.Title = *input.Title
		}
		if input.Prompt != nil {
			in.Prompt = *input.Prompt
		}
		payload, err = t.service.CreateRun(ctx, input.Owner, in)

	case "get":
		payload, err = t.service.GetRun(ctx, input.ID, input.Owner)

	case "list":
		payload, err = t.service.ListRuns(ctx, input.Owner, input.Limit, input.Offset)

	case "update":
		payload, err = t.service.UpdateRun(ctx, input.ID, input.Owner, runsvc.UpdateInput{
			Title:     input.Title,
			Prompt:    input.Prompt,
			Models:    input.Models,
			Variables: input.Variables,
			Status:    input.Status,
		})

	case "delete":
		if err := t.service.DeleteRun(ctx, input.ID, input.Owner); err != nil {
			return nil, nil, fmt.Errorf("failed to delete run: %w", err)
		}
		return tools.TextResult(fmt.Sprintf("Run %s deleted successfully", input.ID)), nil, nil

	case "share":
		payload, err = t.service.Share(ctx, input.ID, input.Owner)

	case "unshare":
		payload, err = t.service.Unshare(ctx, input.ID, input.Owner)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("%s failed: %w", input.Action, err)
	}

	result, err := tools.JSONResult(payload)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

func New(logger zerolog.Logger) tools.Tool {
	return &Tool{
		logger:    logger.With().Str("tool", toolName).Logger(),
		validator: validator.New(),
	}
}
