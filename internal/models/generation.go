package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenerationStatus is the lifecycle state of a generation. A generation is
// created pending and moves exactly once to completed or failed; neither
// terminal status ever changes again.
type GenerationStatus string

const (
	StatusPending   GenerationStatus = "pending"
	StatusCompleted GenerationStatus = "completed"
	StatusFailed    GenerationStatus = "failed"
)

// Valid reports whether s is a known status.
func (s GenerationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further status transition.
func (s GenerationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// GenerationMode records how the generation was requested.
type GenerationMode string

const (
	ModeManual GenerationMode = "manual"
	ModeAuto   GenerationMode = "auto"
)

func (m GenerationMode) Valid() bool {
	return m == ModeManual || m == ModeAuto
}

// Generation is one user-initiated request to produce test-case content for
// a JIRA issue. Content always holds the current (highest) version; only
// superseded content lives in Versions. Generations are hard-deleted
// together with their versions.
type Generation struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	IssueKey  string           `gorm:"type:varchar(64);index;not null" json:"issue_key" validate:"required"`
	CreatedBy string           `gorm:"index;not null" json:"created_by" validate:"required"`
	ProjectID *uuid.UUID       `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Mode      GenerationMode   `gorm:"type:varchar(16);not null" json:"mode" validate:"required,oneof=manual auto"`
	Status    GenerationStatus `gorm:"type:varchar(16);index;not null" json:"status" validate:"required,oneof=pending completed failed"`

	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Content  string `gorm:"type:text" json:"content,omitempty"`
	FileName string `gorm:"type:varchar(128)" json:"file_name,omitempty"`

	// IssueSnapshot records the issue fields the content was generated from.
	IssueSnapshot datatypes.JSON `gorm:"type:jsonb" json:"issue_snapshot,omitempty"`

	TokensUsed     int     `gorm:"not null;default:0" json:"tokens_used"`
	Cost           float64 `gorm:"not null;default:0" json:"cost"`
	ElapsedSeconds float64 `gorm:"not null;default:0" json:"elapsed_seconds"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	Published   bool       `gorm:"not null;default:false;index" json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	PublishedBy string     `json:"published_by,omitempty"`

	CurrentVersion int                 `gorm:"not null;default:1" json:"current_version" validate:"gte=1"`
	Versions       []GenerationVersion `gorm:"foreignKey:GenerationID;constraint:OnDelete:CASCADE" json:"versions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Generation) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// IsOwner reports whether actor is the generation's owner.
func (g *Generation) IsOwner(actor string) bool {
	return actor != "" && g.CreatedBy == actor
}
