package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusQueued  = "QUEUED"
	RunStatusStarted = "STARTED"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailure = "FAILURE"
)

// CourseRun tracks one pipeline run for the surrounding application.
type CourseRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceType string         `gorm:"column:source_type;not null;index" json:"source_type"`
	SourceRef  string         `gorm:"column:source_ref" json:"source_ref,omitempty"`
	Title      string         `gorm:"column:title" json:"title,omitempty"`
	Language   string         `gorm:"column:language;not null;default:'fr'" json:"language"`
	Status     string         `gorm:"column:status;not null;index" json:"status"`
	Error      string         `gorm:"column:error;type:text" json:"error,omitempty"`
	Meta       datatypes.JSON `gorm:"column:meta" json:"meta,omitempty"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CourseRun) TableName() string { return "course_run" }
