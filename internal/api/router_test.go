package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/caseforge/engine/internal/api/handlers"
	"github.com/caseforge/engine/internal/generator"
	"github.com/caseforge/engine/internal/models"
	"github.com/caseforge/engine/internal/repository"
	"github.com/caseforge/engine/internal/services"
	"github.com/caseforge/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, issueKey string) (*generator.Issue, error) {
	return &generator.Issue{Key: issueKey, Title: "stub issue", Description: "stub description"}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, issue *generator.Issue, mode models.GenerationMode) (*generator.Result, error) {
	return &generator.Result{Content: "# Test Cases for " + issue.Key, TokensUsed: 100, Cost: 0.001}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Project{}, &models.Generation{}, &models.GenerationVersion{},
	))

	secret := []byte("test-secret")
	userRepo := repository.NewUserRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	projRepo := repository.NewProjectRepository(db)
	registry := services.NewProjectRegistry(projRepo, genRepo)
	genSvc := services.NewGenerationService(db, genRepo, registry, stubFetcher{}, stubGenerator{}, nil)
	authSvc := services.NewAuthService(userRepo, secret)

	srv := httptest.NewServer(NewRouter(Dependencies{
		HMACSecret:         secret,
		AuthHandler:        handlers.NewAuthHandler(authSvc),
		GenerationsHandler: handlers.NewGenerationsHandler(genSvc),
		ProjectsHandler:    handlers.NewProjectsHandler(registry),
	}))
	t.Cleanup(srv.Close)
	return srv
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
		Total    int64 `json:"total"`
	} `json:"meta"`
}

func do(t *testing.T, method, url, token string, body any) (int, *apiEnvelope) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env apiEnvelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	}
	return resp.StatusCode, &env
}

func signup(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	status, _ := do(t, http.MethodPost, srv.URL+"/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "hunter2hunter2", "name": "QA",
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, status)

	var data struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.AccessToken)
	return data.AccessToken
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		status, env := do(t, http.MethodGet, srv.URL+path, "", nil)
		require.Equal(t, http.StatusOK, status)
		require.True(t, env.Success)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	status, _ := do(t, http.MethodGet, srv.URL+"/api/v1/generations/", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/v1/generations/", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestGenerationLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := signup(t, srv, "alice@example.com")

	// create
	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/generations/", token, map[string]string{
		"issue_key": "TES-1",
	})
	require.Equal(t, http.StatusCreated, status)
	var created models.Generation
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, models.StatusCompleted, created.Status)
	require.Equal(t, "# Test Cases for TES-1", created.Content)
	require.Equal(t, "TES-1-test-cases.md", created.FileName)
	require.Equal(t, 1, created.CurrentVersion)

	base := fmt.Sprintf("%s/api/v1/generations/%s", srv.URL, created.ID)

	// revise
	status, env = do(t, http.MethodPut, base+"/content", token, map[string]string{
		"content": "# Revised",
	})
	require.Equal(t, http.StatusOK, status)
	var revised struct {
		Content        string `json:"content"`
		CurrentVersion int    `json:"current_version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &revised))
	require.Equal(t, "# Revised", revised.Content)
	require.Equal(t, 2, revised.CurrentVersion)

	// publish
	status, env = do(t, http.MethodPut, base+"/publish", token, map[string]any{"published": true})
	require.Equal(t, http.StatusOK, status)
	var pub struct {
		Published   bool   `json:"published"`
		PublishedBy string `json:"published_by"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pub))
	require.True(t, pub.Published)
	require.Equal(t, "alice@example.com", pub.PublishedBy)

	// get includes version history
	status, env = do(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, status)
	var fetched models.Generation
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	require.Len(t, fetched.Versions, 1)
	require.Equal(t, "# Test Cases for TES-1", fetched.Versions[0].Content)

	// list
	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/generations/?filter=mine", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	require.Equal(t, int64(1), env.Meta.Total)

	// projects picked up the key
	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/projects", token, nil)
	require.Equal(t, http.StatusOK, status)
	var projects []models.Project
	require.NoError(t, json.Unmarshal(env.Data, &projects))
	require.Len(t, projects, 1)
	require.Equal(t, "TES", projects[0].ProjectKey)

	// delete
	status, _ = do(t, http.MethodDelete, base, token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestAccessDenialsRenderAsNotFound(t *testing.T) {
	srv := newTestServer(t)
	alice := signup(t, srv, "alice@example.com")
	bob := signup(t, srv, "bob@example.com")

	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/generations/", alice, map[string]string{
		"issue_key": "TES-2",
	})
	require.Equal(t, http.StatusCreated, status)
	var created models.Generation
	require.NoError(t, json.Unmarshal(env.Data, &created))

	base := fmt.Sprintf("%s/api/v1/generations/%s", srv.URL, created.ID)

	// unpublished record is invisible to bob on every verb
	for _, probe := range []struct {
		method, url string
		body        any
	}{
		{http.MethodGet, base, nil},
		{http.MethodPut, base + "/content", map[string]string{"content": "x"}},
		{http.MethodPut, base + "/publish", map[string]any{"published": true}},
		{http.MethodDelete, base, nil},
	} {
		status, env := do(t, probe.method, probe.url, bob, probe.body)
		require.Equal(t, http.StatusNotFound, status, "%s %s", probe.method, probe.url)
		require.NotNil(t, env.Error)
		require.Equal(t, "not_found", env.Error.Code)
	}

	// a malformed id looks exactly the same
	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/generations/not-a-uuid", bob, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", env.Error.Code)
}

func TestValidationAndConflictStatuses(t *testing.T) {
	srv := newTestServer(t)
	token := signup(t, srv, "alice@example.com")

	// missing issue key fails validation
	status, _ := do(t, http.MethodPost, srv.URL+"/api/v1/generations/", token, map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)

	// unknown mode fails validation
	status, _ = do(t, http.MethodPost, srv.URL+"/api/v1/generations/", token, map[string]string{
		"issue_key": "TES-3", "mode": "turbo",
	})
	require.Equal(t, http.StatusBadRequest, status)

	// publish body must carry the flag
	st, env := do(t, http.MethodPost, srv.URL+"/api/v1/generations/", token, map[string]string{"issue_key": "TES-3"})
	require.Equal(t, http.StatusCreated, st)
	var created models.Generation
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, _ = do(t, http.MethodPut,
		fmt.Sprintf("%s/api/v1/generations/%s/publish", srv.URL, created.ID), token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv := newTestServer(t)
	signup(t, srv, "alice@example.com")

	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "hunter2hunter2", "name": "QA",
	})
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
}
