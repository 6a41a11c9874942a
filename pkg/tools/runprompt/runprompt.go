package runprompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools"
	"github.com/tb0hdan/polyprompt-mcp/pkg/types"
)

const (
	reportLineWidth = 78
	toolName        = "run_prompt"

	FormatJSON   = "json"
	FormatReport = "report"
)

// Input defines the MCP tool input parameters.
type Input struct {
	Owner    string `json:"owner" validate:"required"`
	RunID    string `json:"run_id" validate:"required"`
	Format   string `json:"format,omitempty" validate:"omitempty,oneof=json report"`
	MaxLines int    `json:"max_lines,omitempty" validate:"min=0"`
	Offset   int    `json:"offset,omitempty" validate:"min=0"`
}

// Tool implements the run_prompt tool.
type Tool struct {
	logger    zerolog.Logger
	validator *validator.Validate
	service   *runs.Service
	now       func() time.Time
}

// Register registers the run_prompt tool with the MCP server.
func (t *Tool) Register(srv *server.Server) error {
	if srv.Runs() == nil {
		return fmt.Errorf("%s tool requires a run service", toolName)
	}
	t.service = srv.Runs()

	tool := &mcp.Tool{
		Name:        toolName,
		Description: "Sends a run's prompt to every selected model in parallel and returns one result per model. Use format=report for a readable side-by-side report.",
	}

	mcp.AddTool(&srv.Server, tool, tools.WrapToolHandler(t.logger, toolName, t.RunPromptHandler))
	t.logger.Debug().Msgf("%s tool registered", toolName)

	return nil
}

// RunPromptHandler handles MCP tool requests.
func (t *Tool) RunPromptHandler(ctx context.Context, _ *mcp.CallToolRequest, input Input) (*mcp.CallToolResult, any, error) {
	if err := t.validator.Struct(input); err != nil {
		return nil, nil, fmt.Errorf("validation error: %w", err)
	}
	if input.MaxLines > types.MaxAllowedLines {
		return nil, nil, fmt.Errorf("validation error: max_lines must not exceed %d", types.MaxAllowedLines)
	}

	t.logger.Info().Str("run_id", input.RunID).Msg("Executing run")

	res, err := t.service.RunPrompt(ctx, input.RunID, input.Owner)
	if err != nil {
		return nil, nil, fmt.Errorf("run failed: %w", err)
	}

	if input.Format == FormatReport {
		report := t.buildReport(res)
		return tools.TextResult(paginate(report, input.MaxLines, input.Offset)), nil, nil
	}

	result, err := tools.JSONResult(map[string]any{
		"run_id":  res.RunID,
		"status":  res.Status,
		"results": res.Results,
	})
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// buildReport renders results as a side-by-side text report.
func (t *Tool) buildReport(res *runs.RunResult) string {
	var builder strings.Builder

	separator := "=" + strings.Repeat("=", reportLineWidth)
	dashLine := "-" + strings.Repeat("-", reportLineWidth)

	builder.WriteString(separator + "\n")
	builder.WriteString("                    PROMPT RUN REPORT\n")
	builder.WriteString(separator + "\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", res.RunID))
	builder.WriteString(fmt.Sprintf("Status: %s\n", res.Status))
	builder.WriteString(fmt.Sprintf("Date: %s\n", t.now().UTC().Format(time.RFC1123)))
	builder.WriteString(separator + "\n\n")

	builder.WriteString("SUMMARY\n")
	builder.WriteString(dashLine + "\n")

	var totalCost float64
	successCount := 0
	failCount := 0

	for _, result := range res.Results {
		totalCost += result.CostUSD
		status := "SUCCESS"
		if result.Failed() {
			status = "FAILED"
			failCount++
		} else {
			successCount++
		}
		builder.WriteString(fmt.Sprintf("  %-20s: %s (%dms, %d/%d tokens, $%.6f)\n",
			result.Model, status, result.LatencyMs, result.TokensIn, result.TokensOut, result.CostUSD))
	}

	builder.WriteString(fmt.Sprintf("\nTotal models: %d | Successful: %d | Failed: %d\n", len(res.Results), successCount, failCount))
	builder.WriteString(fmt.Sprintf("Total cost: $%.6f\n", totalCost))
	builder.WriteString("\n")

	for _, result := range res.Results {
		builder.WriteString(separator + "\n")
		builder.WriteString(fmt.Sprintf("                    %s (%s)\n", strings.ToUpper(result.Model), result.Provider))
		builder.WriteString(separator + "\n\n")
		builder.WriteString(resultBody(result))
		builder.WriteString("\n\n")
	}

	builder.WriteString(separator + "\n")
	builder.WriteString("                    END OF REPORT\n")
	builder.WriteString(separator + "\n")

	return builder.String()
}

func resultBody(result gateway.Result) string {
	if result.Error != nil {
		return "ERROR: " + *result.Error
	}
	if result.Output != nil {
		return strings.TrimSpace(*result.Output)
	}
	return ""
}

// paginate returns a window of the report's lines. A header is added when
// the window does not cover the whole report.
func paginate(output string, maxLines, offset int) string {
	if maxLines <= 0 {
		maxLines = types.MaxDefaultLines
	}
	maxLines = min(maxLines, types.MaxAllowedLines)

	lines := strings.Split(output, "\n")
	total := len(lines)
	if offset >= total {
		offset = 0
	}
	end := min(offset+maxLines, total)
	if offset == 0 && end == total {
		return output
	}

	header := fmt.Sprintf("[Lines %d-%d of %d. Pass offset to page through the report.]\n\n", offset+1, end, total)
	return header + strings.Join(lines[offset:end], "\n")
}

// New creates a new run_prompt tool.
func New(logger zerolog.Logger) tools.Tool {
	return &Tool{
		logger:    logger.With().Str("tool", toolName).Logger(),
		validator: validator.New(),
		now:       time.Now,
	}
}
