package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caseforge/engine/internal/models"
	"github.com/caseforge/engine/internal/repository"
	appErr "github.com/caseforge/engine/pkg/errors"
	"github.com/caseforge/engine/pkg/logger"
)

// ProjectRegistry maps issue-key prefixes to Project aggregates, creating
// them lazily and keeping generation counts honest.
type ProjectRegistry interface {
	FindOrCreate(ctx context.Context, projectKey, actor string) (*models.Project, error)
	RefreshCount(ctx context.Context, project *models.Project) error
	ListProjects(ctx context.Context) ([]models.Project, error)
}

type projectRegistry struct {
	projectRepo repository.ProjectRepository
	genRepo     repository.GenerationRepository
}

func NewProjectRegistry(projectRepo repository.ProjectRepository, genRepo repository.GenerationRepository) ProjectRegistry {
	return &projectRegistry{projectRepo: projectRepo, genRepo: genRepo}
}

var _ ProjectRegistry = (*projectRegistry)(nil)

// NormalizeProjectKey trims and uppercases a raw key.
func NormalizeProjectKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ProjectKeyFromIssue extracts the project key from an issue key ("TES-1"
// yields "TES"). An issue key without a dash is used whole.
func ProjectKeyFromIssue(issueKey string) string {
	key := strings.TrimSpace(issueKey)
	if i := strings.Index(key, "-"); i > 0 {
		key = key[:i]
	}
	return NormalizeProjectKey(key)
}

// FindOrCreate returns the project for a normalized key, creating it on
// first reference. Uniqueness is enforced by the store's unique index on
// project_key, not by locking here: a concurrent create that loses the race
// falls back to a fresh find.
func (r *projectRegistry) FindOrCreate(ctx context.Context, projectKey, actor string) (*models.Project, error) {
	key := NormalizeProjectKey(projectKey)
	if key == "" {
		return nil, appErr.New(appErr.CodeInvalid, "project key is required")
	}

	now := time.Now().UTC()

	var p models.Project
	err := r.projectRepo.GetByKey(ctx, key, &p)
	if err == nil {
		if uerr := r.projectRepo.UpdateCounters(ctx, p.ID, map[string]any{"last_generated_at": now}); uerr != nil {
			return nil, uerr
		}
		p.LastGeneratedAt = now
		return &p, nil
	}
	if !appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, err
	}

	p = models.Project{
		ProjectKey:       key,
		TotalGenerations: 0,
		FirstGeneratedAt: now,
		LastGeneratedAt:  now,
		CreatedBy:        actor,
	}
	if cerr := r.projectRepo.Create(ctx, &p); cerr != nil {
		if repository.IsDuplicateKey(cerr) {
			logger.L().Info("project created concurrently, retrying find", zap.String("project_key", key))
			var existing models.Project
			if gerr := r.projectRepo.GetByKey(ctx, key, &existing); gerr != nil {
				return nil, gerr
			}
			return &existing, nil
		}
		return nil, cerr
	}

	logger.L().Info("project registered", zap.String("project_key", key), zap.String("created_by", actor))
	return &p, nil
}

// RefreshCount recomputes total_generations as an exact count of generations
// referencing the project. Always a recount, never an increment, so it
// self-heals from drift.
func (r *projectRegistry) RefreshCount(ctx context.Context, project *models.Project) error {
	n, err := r.genRepo.CountByProject(ctx, project.ID)
	if err != nil {
		return err
	}
	if err := r.projectRepo.UpdateCounters(ctx, project.ID, map[string]any{"total_generations": n}); err != nil {
		return err
	}
	project.TotalGenerations = n
	return nil
}

func (r *projectRegistry) ListProjects(ctx context.Context) ([]models.Project, error) {
	return r.projectRepo.ListAll(ctx)
}
