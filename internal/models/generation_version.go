package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GenerationVersion is an immutable snapshot of content superseded by a
// later edit. Version numbers are unique per generation and never reused;
// insertion order is chronological order.
type GenerationVersion struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GenerationID  uuid.UUID `gorm:"type:uuid;not null;index:idx_versions_generation_number,unique" json:"generation_id"`
	VersionNumber int       `gorm:"not null;index:idx_versions_generation_number,unique" json:"version_number" validate:"gte=1"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	EditedBy      string    `gorm:"not null" json:"edited_by"`
	CreatedAt     time.Time `json:"created_at"`
}

func (v *GenerationVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
