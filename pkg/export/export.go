package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tb0hdan/polyprompt-mcp/pkg/models"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrUnsupportedFormat is returned for formats other than json and csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

var csvHeader = []string{
	"Model",
	"Provider",
	"Latency (ms)",
	"Tokens In",
	"Tokens Out",
	"Total Tokens",
	"Cost (USD)",
	"Output",
	"Error",
}

type RunInfo struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Prompt    string            `json:"prompt"`
	Status    runstate.Status   `json:"status"`
	Models    []string          `json:"models"`
	Variables map[string]string `json:"variables"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type Row struct {
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	LatencyMs int64     `json:"latency_ms"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	CostUSD   float64   `json:"cost_usd"`
	Output    *string   `json:"output"`
	Error     *string   `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the exported form of a run and its evals.
type Document struct {
	Run          RunInfo   `json:"run"`
	Results      []Row     `json:"results"`
	ExportedAt   time.Time `json:"exported_at"`
	ExportFormat string    `json:"export_format"`
}

// ParseFormat normalizes a requested format; empty means json.
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Build assembles an export document.
func Build(run *models.Run, evals []models.Eval, format string, exportedAt time.Time) Document {
	doc := Document{
		Run: RunInfo{
			ID:        run.ID,
			Title:     run.Title,
			Prompt:    run.Prompt,
			Status:    run.Status,
			Models:    run.Models,
			Variables: run.Variables,
			CreatedAt: run.CreatedAt,
			UpdatedAt: run.UpdatedAt,
		},
		Results:      make([]Row, 0, len(evals)),
		ExportedAt:   exportedAt.UTC(),
		ExportFormat: format,
	}

	for _, ev := range evals {
		doc.Results = append(doc.Results, Row{
			Model:     ev.Model,
			Provider:  ev.Provider,
			LatencyMs: ev.LatencyMs,
			TokensIn:  ev.TokensIn,
			TokensOut: ev.TokensOut,
			CostUSD:   ev.CostUSD,
			Output:    ev.Output,
			Error:     ev.Error,
			CreatedAt: ev.CreatedAt,
		})
	}

	return doc
}

// Write renders doc in its ExportFormat.
func Write(w io.Writer, doc Document) error {
	switch doc.ExportFormat {
	case FormatCSV:
		return WriteCSV(w, doc)
	case FormatJSON, "":
		return WriteJSON(w, doc)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.ExportFormat)
	}
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteCSV writes a commented header (title, prompt, export time) followed by
// one row per result.
func WriteCSV(w io.Writer, doc Document) error {
	prompt := strings.NewReplacer("\r\n", " ", "\n", " ").Replace(doc.Run.Prompt)
	if _, err := fmt.Fprintf(w, "# %s\n# Prompt: %s\n# Exported: %s\n\n",
		doc.Run.Title, prompt, doc.ExportedAt.Format(time.RFC3339)); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range doc.Results {
		record := []string{
			row.Model,
			row.Provider,
			strconv.FormatInt(row.LatencyMs, 10),
			strconv.Itoa(row.TokensIn),
			strconv.Itoa(row.TokensOut),
			strconv.Itoa(row.TokensIn + row.TokensOut),
			strconv.FormatFloat(row.CostUSD, 'f', -1, 64),
			deref(row.Output),
			deref(row.Error),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename returns the attachment name for a run title.
func Filename(title, format string) string {
	return "poly-prompt-" + unsafeFilenameChars.ReplaceAllString(title, "-") + "." + format
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
