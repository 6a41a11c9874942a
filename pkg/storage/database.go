package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tb0hdan/polyprompt-mcp/pkg/models"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	evalBatchSize = 100
)

type Config struct {
	Driver       string
	DatabasePath string
	Postgres     PostgresConfig
	Debug        bool
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (p PostgresConfig) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, sslMode,
	)
}

type DatabaseStorage struct {
	db *gorm.DB
}

// Compile-time interface check.
var _ Storage = (*DatabaseStorage)(nil)

func New(cfg Config) (*DatabaseStorage, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "", DriverSQLite:
		dialector = sqlite.Open(cfg.DatabasePath)
	case DriverPostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// Auto-migrate schema
	if err := database.AutoMigrate(&models.Run{}, &models.Eval{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DatabaseStorage{db: database}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *DatabaseStorage) CreateRun(ctx context.Context, run *models.Run) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *DatabaseStorage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (s *DatabaseStorage) GetRunForOwner(ctx context.Context, id, owner string) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, owner).
		First(&run).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (s *DatabaseStorage) GetRunByShareID(ctx context.Context, shareID string) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).
		Where("share_id = ? AND is_public = ?", shareID, true).
		First(&run).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (s *DatabaseStorage) ListRuns(ctx context.Context, owner string, limit, offset int) ([]models.Run, int64, error) {
	var runs []models.Run
	var total int64

	base := s.db.WithContext(ctx).Model(&models.Run{}).Where("user_id = ?", owner)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&runs).Error
	return runs, total, err
}

// UpdateRun writes the user-editable fields of run, status included, but
// only while the stored status still equals expected. A run whose status
// moved since it was read is left untouched and reported as an invalid
// transition.
func (s *DatabaseStorage) UpdateRun(ctx context.Context, run *models.Run, expected runstate.Status) error {
	run.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("id = ? AND user_id = ? AND status = ?", run.ID, run.UserID, expected).
		Select("title", "prompt", "models", "variables", "status", "updated_at").
		Updates(run)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx,
			fmt.Errorf("%w: run is no longer %s", runstate.ErrInvalidTransition, expected),
			"id = ? AND user_id = ?", run.ID, run.UserID)
	}
	return nil
}

// UpdateRunSharing writes only the share fields. A nil shareID clears the
// token.
func (s *DatabaseStorage) UpdateRunSharing(ctx context.Context, id, owner string, isPublic bool, shareID *string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("id = ? AND user_id = ?", id, owner).
		Updates(map[string]any{
			"is_public":  isPublic,
			"share_id":   shareID,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRunStatus moves the run to status only from a status the lifecycle
// allows, so two concurrent starts cannot both succeed.
func (s *DatabaseStorage) UpdateRunStatus(ctx context.Context, id string, status runstate.Status) error {
	res := s.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("id = ? AND status IN ?", id, runstate.Sources(status)).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx,
			fmt.Errorf("%w: cannot move run to %s", runstate.ErrInvalidTransition, status),
			"id = ?", id)
	}
	return nil
}

// missOrConflict tells a missing row apart from a guarded update that
// matched nothing.
func (s *DatabaseStorage) missOrConflict(ctx context.Context, conflict error, query string, args ...any) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Run{}).Where(query, args...).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return conflict
}

func (s *DatabaseStorage) DeleteRun(ctx context.Context, id, owner string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, owner).Delete(&models.Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("run_id = ?", id).Delete(&models.Eval{}).Error
	})
}

// CreateEvals inserts the batch atomically: either every row is stored or
// none is.
func (s *DatabaseStorage) CreateEvals(ctx context.Context, evals []models.Eval) error {
	if len(evals) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(evals, evalBatchSize).Error
	})
}

func (s *DatabaseStorage) ListEvals(ctx context.Context, runID string) ([]models.Eval, error) {
	var evals []models.Eval
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Order("position ASC").
		Find(&evals).Error
	return evals, err
}

func (s *DatabaseStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
