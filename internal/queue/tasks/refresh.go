package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/caseforge/engine/internal/models"
	"github.com/caseforge/engine/internal/repository"
	"github.com/caseforge/engine/internal/services"
	"github.com/caseforge/engine/pkg/logger"
)

// RefreshTaskHandler reconciles project generation counts in the background.
// The engine recounts synchronously on attach; this handler repairs any
// drift left behind by failed or skipped recounts.
type RefreshTaskHandler struct {
	projectRepo repository.ProjectRepository
	registry    services.ProjectRegistry
}

func NewRefreshTaskHandler(projectRepo repository.ProjectRepository, registry services.ProjectRegistry) *RefreshTaskHandler {
	return &RefreshTaskHandler{projectRepo: projectRepo, registry: registry}
}

func (h *RefreshTaskHandler) HandleRefreshProjectCount(ctx context.Context, t *asynq.Task) error {
	var p services.RefreshProjectCountPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid refresh task payload", zap.Error(err))
		return err
	}
	id, err := uuid.Parse(p.ProjectID)
	if err != nil {
		logger.L().Error("invalid project id in refresh task", zap.String("project_id", p.ProjectID), zap.Error(err))
		return err
	}

	var project models.Project
	if err := h.projectRepo.GetByID(ctx, id, &project); err != nil {
		logger.L().Error("load project for refresh failed", zap.String("project_id", id.String()), zap.Error(err))
		return err
	}

	if err := h.registry.RefreshCount(ctx, &project); err != nil {
		logger.L().Error("refresh project count failed", zap.String("project_id", id.String()), zap.Error(err))
		return err
	}

	logger.L().Info("project count refreshed",
		zap.String("project_id", id.String()),
		zap.String("project_key", project.ProjectKey),
		zap.Int64("total_generations", project.TotalGenerations),
	)
	return nil
}
