package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/caseforge/engine/internal/generator"
	"github.com/caseforge/engine/internal/models"
	"github.com/caseforge/engine/internal/policy"
	"github.com/caseforge/engine/internal/repository"
	appErr "github.com/caseforge/engine/pkg/errors"
	"github.com/caseforge/engine/pkg/logger"
)

// TaskRefreshProjectCount is the asynq task type for background count
// reconciliation.
const TaskRefreshProjectCount = "project:refresh_count"

// RefreshProjectCountPayload is the task payload for TaskRefreshProjectCount.
type RefreshProjectCountPayload struct {
	ProjectID string `json:"project_id"`
}

// GenerationService is the generation lifecycle engine: creation, the
// pending→completed / pending→failed transitions, content revision with
// version history, publication, and deletion. All access decisions go
// through the policy package; denials render as not found.
type GenerationService interface {
	CreateGeneration(ctx context.Context, actor string, input *CreateGenerationInput) (*models.Generation, error)
	GetGeneration(ctx context.Context, id uuid.UUID, actor string) (*models.Generation, error)
	ListGenerations(ctx context.Context, actor string, f *GenerationFilters) ([]models.Generation, int64, error)
	ReviseContent(ctx context.Context, id uuid.UUID, actor, content string) (*models.Generation, error)
	SetPublished(ctx context.Context, id uuid.UUID, actor string, published bool) (*models.Generation, error)
	DeleteGeneration(ctx context.Context, id uuid.UUID, actor string) error

	// Transitions out of pending. Exposed for the create flow and tests;
	// each is legal exactly once per generation.
	Complete(ctx context.Context, id uuid.UUID, input *CompleteInput) error
	Fail(ctx context.Context, id uuid.UUID, cause string) error
}

type CreateGenerationInput struct {
	IssueKey string
	Mode     models.GenerationMode
}

type CompleteInput struct {
	Content        string
	FileName       string
	IssueSnapshot  datatypes.JSON
	TokensUsed     int
	Cost           float64
	ElapsedSeconds float64
}

type GenerationFilters struct {
	Scope    repository.ListScope
	Page     int
	PageSize int
}

type generationService struct {
	db          *gorm.DB
	genRepo     repository.GenerationRepository
	registry    ProjectRegistry
	fetcher     generator.IssueFetcher
	contentGen  generator.ContentGenerator
	retry       generator.RetryPolicy
	asynqClient *asynq.Client
}

func NewGenerationService(
	db *gorm.DB,
	genRepo repository.GenerationRepository,
	registry ProjectRegistry,
	fetcher generator.IssueFetcher,
	contentGen generator.ContentGenerator,
	asynqClient *asynq.Client,
) GenerationService {
	return &generationService{
		db:          db,
		genRepo:     genRepo,
		registry:    registry,
		fetcher:     fetcher,
		contentGen:  contentGen,
		retry:       generator.NewRetryPolicy(),
		asynqClient: asynqClient,
	}
}

var _ GenerationService = (*generationService)(nil)

// CreateGeneration runs the full create flow: persist a pending record,
// fetch the issue, generate content with bounded retries, and transition to
// completed or failed. The record exists in pending before the external call
// begins. Registry failures never abort creation.
func (s *generationService) CreateGeneration(ctx context.Context, actor string, input *CreateGenerationInput) (*models.Generation, error) {
	issueKey := strings.TrimSpace(input.IssueKey)
	if issueKey == "" {
		return nil, appErr.New(appErr.CodeInvalid, "issue key is required")
	}
	mode := input.Mode
	if mode == "" {
		mode = models.ModeManual
	}
	if !mode.Valid() {
		return nil, appErr.Newf(appErr.CodeInvalid, "unknown generation mode %q", mode)
	}

	logger.L().Info("create generation", zap.String("issue_key", issueKey), zap.String("actor", actor), zap.String("mode", string(mode)))

	project := s.attachProject(ctx, issueKey, actor)

	g := &models.Generation{
		IssueKey:       issueKey,
		CreatedBy:      actor,
		Mode:           mode,
		Status:         models.StatusPending,
		StartedAt:      time.Now().UTC(),
		CurrentVersion: 1,
	}
	if project != nil {
		g.ProjectID = &project.ID
	}
	if err := s.genRepo.Create(ctx, g); err != nil {
		return nil, err
	}
	if project != nil {
		s.refreshProjectCount(ctx, project)
	}

	issue, err := s.fetcher.Fetch(ctx, issueKey)
	if err != nil {
		return nil, s.failWith(ctx, g.ID, err)
	}

	start := time.Now()
	var result *generator.Result
	genErr := s.retry.Do(ctx, "generate content", func() error {
		var gerr error
		result, gerr = s.contentGen.Generate(ctx, issue, mode)
		return gerr
	})
	if genErr != nil {
		return nil, s.failWith(ctx, g.ID, genErr)
	}

	snapshot, _ := json.Marshal(issue)
	if err := s.Complete(ctx, g.ID, &CompleteInput{
		Content:        result.Content,
		FileName:       fmt.Sprintf("%s-test-cases.md", issueKey),
		IssueSnapshot:  snapshot,
		TokensUsed:     result.TokensUsed,
		Cost:           result.Cost,
		ElapsedSeconds: time.Since(start).Seconds(),
	}); err != nil {
		return nil, err
	}

	var out models.Generation
	if err := s.genRepo.GetWithVersions(ctx, g.ID, &out); err != nil {
		return nil, err
	}
	logger.L().Info("generation completed",
		zap.String("generation_id", g.ID.String()),
		zap.String("issue_key", issueKey),
		zap.Int("tokens_used", out.TokensUsed),
	)
	return &out, nil
}

// attachProject resolves the project for an issue key. Best-effort: any
// registry failure is logged and the generation proceeds without a project.
func (s *generationService) attachProject(ctx context.Context, issueKey, actor string) *models.Project {
	key := ProjectKeyFromIssue(issueKey)
	if key == "" {
		return nil
	}
	project, err := s.registry.FindOrCreate(ctx, key, actor)
	if err != nil {
		logger.L().Warn("project attach failed, continuing without project",
			zap.String("project_key", key), zap.Error(err))
		return nil
	}
	return project
}

// refreshProjectCount recounts synchronously and additionally enqueues a
// background refresh so counts self-heal from drift. Both halves are
// best-effort.
func (s *generationService) refreshProjectCount(ctx context.Context, project *models.Project) {
	if err := s.registry.RefreshCount(ctx, project); err != nil {
		logger.L().Warn("project count refresh failed", zap.String("project_id", project.ID.String()), zap.Error(err))
	}
	if s.asynqClient == nil {
		return
	}
	payload, _ := json.Marshal(RefreshProjectCountPayload{ProjectID: project.ID.String()})
	if _, err := s.asynqClient.EnqueueContext(ctx, asynq.NewTask(TaskRefreshProjectCount, payload)); err != nil {
		logger.L().Warn("enqueue count refresh failed", zap.String("project_id", project.ID.String()), zap.Error(err))
	}
}

// failWith marks the generation failed and returns the API-facing error for
// the upstream failure that caused it.
func (s *generationService) failWith(ctx context.Context, id uuid.UUID, cause error) error {
	if err := s.Fail(ctx, id, cause.Error()); err != nil {
		logger.L().Error("mark generation failed errored", zap.String("generation_id", id.String()), zap.Error(err))
	}

	var fe *generator.FetchError
	if errors.As(cause, &fe) {
		return appErr.Wrap(cause, fe.AppCode(), "issue fetch failed")
	}
	return appErr.Wrap(cause, appErr.CodeUpstream, "content generation failed")
}

// Complete transitions pending→completed. The result content becomes version
// 1 with an empty version history.
func (s *generationService) Complete(ctx context.Context, id uuid.UUID, input *CompleteInput) error {
	now := time.Now().UTC()
	fields := map[string]any{
		"completed_at":    now,
		"content":         input.Content,
		"file_name":       input.FileName,
		"tokens_used":     input.TokensUsed,
		"cost":            input.Cost,
		"elapsed_seconds": input.ElapsedSeconds,
		"current_version": 1,
	}
	if input.IssueSnapshot != nil {
		fields["issue_snapshot"] = input.IssueSnapshot
	}
	return s.genRepo.MarkCompleted(ctx, id, fields)
}

// Fail transitions pending→failed, recording the cause.
func (s *generationService) Fail(ctx context.Context, id uuid.UUID, cause string) error {
	return s.genRepo.MarkFailed(ctx, id, cause, time.Now().UTC())
}

// GetGeneration applies the view policy; a denied actor gets the same "not
// found" a missing record gets.
func (s *generationService) GetGeneration(ctx context.Context, id uuid.UUID, actor string) (*models.Generation, error) {
	var g models.Generation
	if err := s.genRepo.GetWithVersions(ctx, id, &g); err != nil {
		return nil, err
	}
	if !policy.Allow(actor, &g, policy.ActionView) {
		return nil, appErr.New(appErr.CodeNotFound, "generation not found")
	}
	return &g, nil
}

func (s *generationService) ListGenerations(ctx context.Context, actor string, f *GenerationFilters) ([]models.Generation, int64, error) {
	scope := f.Scope
	if scope == "" {
		scope = repository.ScopeAll
	}
	if !scope.Valid() {
		return nil, 0, appErr.Newf(appErr.CodeInvalid, "unknown list filter %q", scope)
	}
	return s.genRepo.List(ctx, repository.ListFilter{
		Actor:    actor,
		Scope:    scope,
		Page:     f.Page,
		PageSize: f.PageSize,
	})
}

// ReviseContent replaces the current content, archiving the superseded
// content as a version snapshot. Identical content is a no-op. The archival
// is skipped when a snapshot with the current version number already exists,
// so a retry after a partial failure never duplicates a version.
func (s *generationService) ReviseContent(ctx context.Context, id uuid.UUID, actor, content string) (*models.Generation, error) {
	var g models.Generation
	if err := s.genRepo.GetByID(ctx, id, &g); err != nil {
		return nil, err
	}
	if !g.IsOwner(actor) {
		return nil, appErr.New(appErr.CodeNotFound, "generation not found")
	}
	if g.Status != models.StatusCompleted {
		return nil, appErr.Newf(appErr.CodeInvalidState, "cannot edit a %s generation", g.Status)
	}

	newContent := strings.TrimSpace(content)
	if newContent == "" {
		return nil, appErr.New(appErr.CodeInvalid, "content must not be empty")
	}
	if newContent == g.Content {
		logger.L().Debug("revision identical to current content, skipping", zap.String("generation_id", id.String()))
		return s.GetGeneration(ctx, id, actor)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archived int64
		if herr := tx.Model(&models.GenerationVersion{}).
			Where("generation_id = ? AND version_number = ?", g.ID, g.CurrentVersion).
			Count(&archived).Error; herr != nil {
			return appErr.Wrap(herr, appErr.CodeInternal, "check archived version failed")
		}
		if archived == 0 {
			v := models.GenerationVersion{
				GenerationID:  g.ID,
				VersionNumber: g.CurrentVersion,
				Content:       g.Content,
				EditedBy:      actor,
			}
			if cerr := tx.Create(&v).Error; cerr != nil {
				return appErr.Wrap(cerr, appErr.CodeInternal, "archive version failed")
			}
		}

		res := tx.Model(&models.Generation{}).Where("id = ?", g.ID).Updates(map[string]any{
			"current_version": g.CurrentVersion + 1,
			"content":         newContent,
		})
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "update content failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("generation revised",
		zap.String("generation_id", id.String()),
		zap.String("actor", actor),
		zap.Int("version", g.CurrentVersion+1),
	)
	return s.GetGeneration(ctx, id, actor)
}

// SetPublished toggles publication. Publishing stamps published_at and
// published_by; unpublishing clears both. Repeated toggles always re-stamp.
func (s *generationService) SetPublished(ctx context.Context, id uuid.UUID, actor string, published bool) (*models.Generation, error) {
	var g models.Generation
	if err := s.genRepo.GetByID(ctx, id, &g); err != nil {
		return nil, err
	}
	if !g.IsOwner(actor) {
		return nil, appErr.New(appErr.CodeNotFound, "generation not found")
	}
	if g.Status != models.StatusCompleted {
		return nil, appErr.Newf(appErr.CodeInvalidState, "cannot publish a %s generation", g.Status)
	}

	fields := map[string]any{
		"published":    published,
		"published_at": nil,
		"published_by": "",
	}
	if published {
		fields["published_at"] = time.Now().UTC()
		fields["published_by"] = actor
	}
	res := s.db.WithContext(ctx).Model(&models.Generation{}).Where("id = ?", g.ID).Updates(fields)
	if res.Error != nil {
		return nil, appErr.Wrap(res.Error, appErr.CodeInternal, "update publication failed")
	}

	logger.L().Info("generation publication changed",
		zap.String("generation_id", id.String()),
		zap.Bool("published", published),
		zap.String("actor", actor),
	)
	return s.GetGeneration(ctx, id, actor)
}

// DeleteGeneration permanently removes a generation in any status.
// Publication does not protect against deletion; it only earns a warning.
func (s *generationService) DeleteGeneration(ctx context.Context, id uuid.UUID, actor string) error {
	var g models.Generation
	if err := s.genRepo.GetByID(ctx, id, &g); err != nil {
		return err
	}
	if !g.IsOwner(actor) {
		return appErr.New(appErr.CodeNotFound, "generation not found")
	}
	if g.Published {
		logger.L().Warn("deleting a published generation",
			zap.String("generation_id", id.String()),
			zap.String("actor", actor),
		)
	}
	if err := s.genRepo.DeleteWithVersions(ctx, g.ID); err != nil {
		return err
	}
	logger.L().Info("generation deleted", zap.String("generation_id", id.String()), zap.String("actor", actor))
	return nil
}
