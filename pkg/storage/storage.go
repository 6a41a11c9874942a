package storage

import (
	"context"
	"errors"

	"github.com/tb0hdan/polyprompt-mcp/pkg/models"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
)

// ErrNotFound is returned when a run does not exist or is not visible to
// the requesting owner.
var ErrNotFound = errors.New("record not found")

type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	GetRunForOwner(ctx context.Context, id, owner string) (*models.Run, error)
	GetRunByShareID(ctx context.Context, shareID string) (*models.Run, error)
	ListRuns(ctx context.Context, owner string, limit, offset int) ([]models.Run, int64, error)
	UpdateRun(ctx context.Context, run *models.Run, expected runstate.Status) error
	UpdateRunSharing(ctx context.Context, id, owner string, isPublic bool, shareID *string) error
	UpdateRunStatus(ctx context.Context, id string, status runstate.Status) error
	DeleteRun(ctx context.Context, id, owner string) error

	// Eval operations
	CreateEvals(ctx context.Context, evals []models.Eval) error
	ListEvals(ctx context.Context, runID string) ([]models.Eval, error)

	// Lifecycle
	Close() error
}
