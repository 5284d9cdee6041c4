package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caseforge/engine/internal/models"
	appErr "github.com/caseforge/engine/pkg/errors"
)

type ProjectRepository interface {
	BaseRepository[models.Project]
	GetByKey(ctx context.Context, projectKey string, dest *models.Project) error
	ListAll(ctx context.Context) ([]models.Project, error)
	UpdateCounters(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

type projectRepository struct {
	BaseRepository[models.Project]
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{BaseRepository: NewBaseRepository[models.Project](db), db: db}
}

func (r *projectRepository) GetByKey(ctx context.Context, projectKey string, dest *models.Project) error {
	if err := r.db.WithContext(ctx).Where("project_key = ?", projectKey).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "project not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get project by key failed")
	}
	return nil
}

func (r *projectRepository) ListAll(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	if err := r.db.WithContext(ctx).Order("project_key ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list projects failed")
	}
	return out, nil
}

func (r *projectRepository) UpdateCounters(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update project counters failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "project not found")
	}
	return nil
}

// IsDuplicateKey reports whether err looks like a uniqueness violation. Gorm
// normalizes this for postgres; sqlite in tests reports it as a plain error
// string, so the message is checked as a fallback.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if appErr.IsCode(err, appErr.CodeAlreadyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
