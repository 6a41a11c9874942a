package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/export"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"github.com/tb0hdan/polyprompt-mcp/pkg/models"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
	"github.com/tb0hdan/polyprompt-mcp/pkg/storage"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	shareIDLength    = 12
)

var (
	// ErrNotFound covers both missing runs and runs owned by someone else.
	ErrNotFound = errors.New("run not found")
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingOwner is returned when no owner identity was supplied.
	ErrMissingOwner = errors.New("owner is required")
)

// Executor runs one fan-out pass over a run.
type Executor interface {
	Execute(ctx context.Context, run *models.Run) ([]gateway.Result, error)
}

type CreateInput struct {
	Title     string            `json:"title" validate:"max=255"`
	Prompt    string            `json:"prompt" validate:"required"`
	Models    []string          `json:"models" validate:"required,min=1,max=32,dive,required"`
	Variables map[string]string `json:"variables,omitempty"`
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title     *string           `json:"title,omitempty" validate:"omitempty,max=255"`
	Prompt    *string           `json:"prompt,omitempty" validate:"omitempty,min=1"`
	Models    []string          `json:"models,omitempty" validate:"omitempty,min=1,max=32,dive,required"`
	Variables map[string]string `json:"variables,omitempty"`
	Status    *runstate.Status  `json:"status,omitempty" validate:"omitempty,oneof=draft ready"`
}

type ListResult struct {
	Runs   []models.Run `json:"runs"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type RunResult struct {
	RunID   string           `json:"run_id"`
	Status  runstate.Status  `json:"status"`
	Results []gateway.Result `json:"results"`
}

type SharedRun struct {
	Run   *models.Run   `json:"run"`
	Evals []models.Eval `json:"evals"`
}

// Service manages runs on behalf of an owner.
type Service struct {
	logger     zerolog.Logger
	store      storage.Storage
	executor   Executor
	validate   *validator.Validate
	now        func() time.Time
	newShareID func() string
}

func NewService(logger zerolog.Logger, store storage.Storage, executor Executor) *Service {
	return &Service{
		logger:     logger.With().Str("component", "runs").Logger(),
		store:      store,
		executor:   executor,
		validate:   validator.New(),
		now:        time.Now,
		newShareID: newShareID,
	}
}

func newShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shareIDLength]
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id, owner string) (*models.Run, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if id == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	run, err := s.store.GetRunForOwner(ctx, id, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

func (s *Service) CreateRun(ctx context.Context, owner string, in CreateInput) (*models.Run, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}

	run := &models.Run{
		UserID:    owner,
		Title:     strings.TrimSpace(in.Title),
		Prompt:    in.Prompt,
		Models:    in.Models,
		Variables: in.Variables,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Info().Str("run_id", run.ID).Int("models", len(run.Models)).Msg("Run created")
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id, owner string) (*models.Run, error) {
	return s.load(ctx, id, owner)
}

// ListRuns returns the owner's runs, newest first. A non-positive limit
// falls back to DefaultListLimit.
func (s *Service) ListRuns(ctx context.Context, owner string, limit, offset int) (*ListResult, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	runs, total, err := s.store.ListRuns(ctx, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []models.Run{}
	}

	return &ListResult{Runs: runs, Total: total, Limit: limit, Offset: offset}, nil
}

// UpdateRun applies a partial update. Runs that are currently executing
// cannot be edited, and the only status moves allowed here are between
// draft and ready.
func (s *Service) UpdateRun(ctx context.Context, id, owner string, in UpdateInput) (*models.Run, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	run, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if run.Status == runstate.Running {
		return nil, fmt.Errorf("%w: run is executing", runstate.ErrInvalidTransition)
	}
	loaded := run.Status

	if in.Title != nil {
		run.Title = strings.TrimSpace(*in.Title)
		if run.Title == "" {
			run.Title = models.DefaultRunTitle
		}
	}
	if in.Prompt != nil {
		run.Prompt = *in.Prompt
	}
	if in.Models != nil {
		run.Models = in.Models
	}
	if in.Variables != nil {
		run.Variables = in.Variables
	}
	if in.Status != nil && *in.Status != run.Status {
		if err := runstate.Transition(run.Status, *in.Status); err != nil {
			return nil, err
		}
		run.Status = *in.Status
	}

	// Guarded on the loaded status so a pass started meanwhile wins.
	if err := s.store.UpdateRun(ctx, run, loaded); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, runstate.ErrInvalidTransition):
			return nil, err
		}
		return nil, fmt.Errorf("failed to update run: %w", err)
	}
	return run, nil
}

func (s *Service) DeleteRun(ctx context.Context, id, owner string) error {
	if owner == "" {
		return ErrMissingOwner
	}
	if err := s.store.DeleteRun(ctx, id, owner); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	s.logger.Info().Str("run_id", id).Msg("Run deleted")
	return nil
}

// RunPrompt executes the run's prompt against every selected model. The
// owner check happens before anything is dispatched. Per-model failures are
// reported inside the results.
func (s *Service) RunPrompt(ctx context.Context, id, owner string) (*RunResult, error) {
	run, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	results, err := s.executor.Execute(ctx, run)
	if err != nil {
		return nil, err
	}

	return &RunResult{RunID: run.ID, Status: run.Status, Results: results}, nil
}

func (s *Service) ListEvals(ctx context.Context, id, owner string) ([]models.Eval, error) {
	run, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	evals, err := s.store.ListEvals(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evals: %w", err)
	}
	if evals == nil {
		evals = []models.Eval{}
	}
	return evals, nil
}

// Share makes the run publicly readable under a fresh share token.
func (s *Service) Share(ctx context.Context, id, owner string) (*models.Run, error) {
	run, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	shareID := s.newShareID()
	if err := s.store.UpdateRunSharing(ctx, run.ID, owner, true, &shareID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to share run: %w", err)
	}
	run.IsPublic = true
	run.ShareID = &shareID

	s.logger.Info().Str("run_id", run.ID).Str("share_id", shareID).Msg("Run shared")
	return run, nil
}

func (s *Service) Unshare(ctx context.Context, id, owner string) (*models.Run, error) {
	run, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateRunSharing(ctx, run.ID, owner, false, nil); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to unshare run: %w", err)
	}
	run.IsPublic = false
	run.ShareID = nil
	return run, nil
}

// GetShared looks up a public run by share token. No owner is needed.
func (s *Service) GetShared(ctx context.Context, shareID string) (*SharedRun, error) {
	if shareID == "" {
		return nil, ErrNotFound
	}
	run, err := s.store.GetRunByShareID(ctx, shareID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load shared run: %w", err)
	}

	evals, err := s.store.ListEvals(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evals: %w", err)
	}
	if evals == nil {
		evals = []models.Eval{}
	}
	return &SharedRun{Run: run, Evals: evals}, nil
}

// Export builds an export document for the run and its recorded evals.
func (s *Service) Export(ctx context.Context, id, owner, format string) (*export.Document, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	run, err := s.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	evals, err := s.store.ListEvals(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evals: %w", err)
	}

	doc := export.Build(run, evals, parsed, s.now())
	return &doc, nil
}
