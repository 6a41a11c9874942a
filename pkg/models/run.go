package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
	"gorm.io/gorm"
)

// DefaultRunTitle is used when a run is created without a title.
const DefaultRunTitle = "Untitled Run"

type Run struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	UserID    string            `gorm:"type:varchar(255);index;not null" json:"user_id"`
	Title     string            `gorm:"type:varchar(255);not null" json:"title"`
	Prompt    string            `gorm:"type:text;not null" json:"prompt"`
	Status    runstate.Status   `gorm:"type:varchar(16);index;not null" json:"status"`
	Models    []string          `gorm:"serializer:json;type:text" json:"models"`
	Variables map[string]string `gorm:"serializer:json;type:text" json:"variables,omitempty"`
	IsPublic  bool              `gorm:"index" json:"is_public"`
	ShareID   *string           `gorm:"type:varchar(32);uniqueIndex" json:"share_id,omitempty"`
}

// BeforeCreate assigns an ID and the initial status.
func (r *Run) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = runstate.Draft
	}
	if r.Title == "" {
		r.Title = DefaultRunTitle
	}
	return nil
}
