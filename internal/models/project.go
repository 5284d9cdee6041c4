package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project aggregates generations sharing an issue-key prefix (the part of
// the key before the dash). Created lazily on first reference, never deleted
// by the engine.
type Project struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectKey       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"project_key" validate:"required,uppercase"`
	TotalGenerations int64     `gorm:"not null;default:0" json:"total_generations"`
	FirstGeneratedAt time.Time `gorm:"not null" json:"first_generated_at"`
	LastGeneratedAt  time.Time `gorm:"not null" json:"last_generated_at"`
	CreatedBy        string    `gorm:"not null" json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
