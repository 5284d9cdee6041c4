package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caseforge/engine/internal/models"
	appErr "github.com/caseforge/engine/pkg/errors"
)

// ListScope selects which generations a listing returns, relative to an actor.
type ListScope string

const (
	ScopeAll       ListScope = "all"       // actor's own plus published completed ones
	ScopeMine      ListScope = "mine"      // actor's own only
	ScopePublished ListScope = "published" // published completed ones only
)

func (s ListScope) Valid() bool {
	return s == ScopeAll || s == ScopeMine || s == ScopePublished
}

// ListFilter carries listing parameters. Page is 1-based.
type ListFilter struct {
	Actor    string
	Scope    ListScope
	Page     int
	PageSize int
}

type GenerationRepository interface {
	BaseRepository[models.Generation]
	GetWithVersions(ctx context.Context, id uuid.UUID, dest *models.Generation) error
	List(ctx context.Context, f ListFilter) ([]models.Generation, int64, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, fields map[string]any) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, at time.Time) error
	HasVersion(ctx context.Context, generationID uuid.UUID, number int) (bool, error)
	DeleteWithVersions(ctx context.Context, id uuid.UUID) error
	CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error)
}

type generationRepository struct {
	BaseRepository[models.Generation]
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{BaseRepository: NewBaseRepository[models.Generation](db), db: db}
}

func (r *generationRepository) GetWithVersions(ctx context.Context, id uuid.UUID, dest *models.Generation) error {
	err := r.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB { return db.Order("version_number ASC") }).
		First(dest, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "generation not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get generation failed")
	}
	return nil
}

func (r *generationRepository) List(ctx context.Context, f ListFilter) ([]models.Generation, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Generation{})
	switch f.Scope {
	case ScopeMine:
		q = q.Where("created_by = ?", f.Actor)
	case ScopePublished:
		q = q.Where("published = ? AND status = ?", true, models.StatusCompleted)
	default:
		q = q.Where("created_by = ? OR (published = ? AND status = ?)", f.Actor, true, models.StatusCompleted)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "count generations failed")
	}

	page := f.Page
	if page <= 0 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	var out []models.Generation
	err := q.Order("started_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&out).Error
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "list generations failed")
	}
	return out, total, nil
}

// MarkCompleted applies the pending→completed transition. The status guard is
// part of the WHERE clause so a non-pending record is never overwritten.
func (r *generationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	fields["status"] = models.StatusCompleted
	return r.transition(ctx, id, fields)
}

// MarkFailed applies the pending→failed transition.
func (r *generationRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string, at time.Time) error {
	return r.transition(ctx, id, map[string]any{
		"status":        models.StatusFailed,
		"error_message": cause,
		"completed_at":  at,
	})
}

func (r *generationRepository) transition(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Generation{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(fields)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update generation status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeInvalidState, "generation is not pending")
	}
	return nil
}

func (r *generationRepository) HasVersion(ctx context.Context, generationID uuid.UUID, number int) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.GenerationVersion{}).
		Where("generation_id = ? AND version_number = ?", generationID, number).
		Count(&n).Error
	if err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "check version failed")
	}
	return n > 0, nil
}

// DeleteWithVersions permanently removes a generation and its version history.
func (r *generationRepository) DeleteWithVersions(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation_id = ?", id).Delete(&models.GenerationVersion{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "delete generation versions failed")
		}
		res := tx.Delete(&models.Generation{}, "id = ?", id)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "delete generation failed")
		}
		if res.RowsAffected == 0 {
			return appErr.New(appErr.CodeNotFound, "generation not found")
		}
		return nil
	})
}

func (r *generationRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Generation{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	if err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "count generations by project failed")
	}
	return n, nil
}
