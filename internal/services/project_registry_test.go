package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caseforge/engine/internal/models"
	"github.com/caseforge/engine/internal/repository"
	appErr "github.com/caseforge/engine/pkg/errors"
)

func TestNormalizeProjectKey(t *testing.T) {
	cases := map[string]string{
		"tes":      "TES",
		"  TES  ":  "TES",
		"Proj":     "PROJ",
		"   ":      "",
		"ABC-DEF":  "ABC-DEF",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeProjectKey(in), "input %q", in)
	}
}

func TestProjectKeyFromIssue(t *testing.T) {
	cases := map[string]string{
		"TES-123":      "TES",
		"tes-1":        "TES",
		" PROJ-42 ":    "PROJ",
		"NODASH":       "NODASH",
		"-leadingdash": "-LEADINGDASH",
		"":             "",
	}
	for in, want := range cases {
		require.Equal(t, want, ProjectKeyFromIssue(in), "input %q", in)
	}
}

func TestFindOrCreateRegistersLazily(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeFetcher{}, succeedWith("unused"))

	p, err := env.registry.FindOrCreate(ctx, "tes", alice)
	require.NoError(t, err)
	require.Equal(t, "TES", p.ProjectKey)
	require.Equal(t, alice, p.CreatedBy)
	require.Zero(t, p.TotalGenerations)
	require.False(t, p.FirstGeneratedAt.IsZero())
	require.Equal(t, p.FirstGeneratedAt, p.LastGeneratedAt)

	// second reference reuses the row and bumps last_generated_at only
	time.Sleep(5 * time.Millisecond)
	again, err := env.registry.FindOrCreate(ctx, "TES", bob)
	require.NoError(t, err)
	require.Equal(t, p.ID, again.ID)
	require.Equal(t, alice, again.CreatedBy, "creator never changes")
	require.True(t, again.LastGeneratedAt.After(p.FirstGeneratedAt))

	var stored models.Project
	require.NoError(t, env.projRepo.GetByKey(ctx, "TES", &stored))
	require.Equal(t, p.FirstGeneratedAt.Unix(), stored.FirstGeneratedAt.UTC().Unix())
}

func TestFindOrCreateRejectsEmptyKey(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{}, succeedWith("unused"))
	_, err := env.registry.FindOrCreate(context.Background(), "   ", alice)
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

// racingProjectRepo reports not-found for the first GetByKey calls even when
// the row exists, reproducing the window where a concurrent request inserts
// the project between find and create.
type racingProjectRepo struct {
	repository.ProjectRepository
	misses int
}

func (r *racingProjectRepo) GetByKey(ctx context.Context, key string, dest *models.Project) error {
	if r.misses > 0 {
		r.misses--
		return appErr.New(appErr.CodeNotFound, "project not found")
	}
	return r.ProjectRepository.GetByKey(ctx, key, dest)
}

func TestFindOrCreateLostRaceFallsBackToFind(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeFetcher{}, succeedWith("unused"))

	existing, err := env.registry.FindOrCreate(ctx, "TES", alice)
	require.NoError(t, err)

	// this registry misses the existing row on its first find, so its insert
	// collides with the unique index and must recover by re-finding
	racing := NewProjectRegistry(&racingProjectRepo{ProjectRepository: env.projRepo, misses: 1}, env.genRepo)
	got, err := racing.FindOrCreate(ctx, "TES", bob)
	require.NoError(t, err)
	require.Equal(t, existing.ID, got.ID)
	require.Equal(t, alice, got.CreatedBy, "the winner's row survives")

	var n int64
	require.NoError(t, env.db.Model(&models.Project{}).Where("project_key = ?", "TES").Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestRefreshCountHealsDrift(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeFetcher{}, succeedWith("unused"))

	p, err := env.registry.FindOrCreate(ctx, "TES", alice)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		g := env.seedCompleted(t, alice, "content")
		require.NoError(t, env.db.Model(&models.Generation{}).Where("id = ?", g.ID).
			Update("project_id", p.ID).Error)
	}
	// poison the counter
	require.NoError(t, env.projRepo.UpdateCounters(ctx, p.ID, map[string]any{"total_generations": 99}))

	require.NoError(t, env.registry.RefreshCount(ctx, p))
	require.Equal(t, int64(3), p.TotalGenerations)

	var stored models.Project
	require.NoError(t, env.projRepo.GetByKey(ctx, "TES", &stored))
	require.Equal(t, int64(3), stored.TotalGenerations)
}

func TestListProjectsOrdersByKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeFetcher{}, succeedWith("unused"))

	for _, key := range []string{"ZED", "ALPHA", "MID"} {
		_, err := env.registry.FindOrCreate(ctx, key, alice)
		require.NoError(t, err)
	}

	projects, err := env.registry.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	require.Equal(t, "ALPHA", projects[0].ProjectKey)
	require.Equal(t, "MID", projects[1].ProjectKey)
	require.Equal(t, "ZED", projects[2].ProjectKey)
}
