package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caseforge/engine/internal/api/middleware"
	"github.com/caseforge/engine/internal/api/types"
	"github.com/caseforge/engine/internal/api/validators"
	"github.com/caseforge/engine/internal/models"
	"github.com/caseforge/engine/internal/repository"
	"github.com/caseforge/engine/internal/services"
	appErr "github.com/caseforge/engine/pkg/errors"
)

type GenerationsHandler struct {
	svc services.GenerationService
}

func NewGenerationsHandler(svc services.GenerationService) *GenerationsHandler {
	return &GenerationsHandler{svc: svc}
}

// generationID parses the path id. A malformed id renders the same not-found
// a missing record would, so the URL shape leaks nothing.
func generationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, appErr.New(appErr.CodeNotFound, "generation not found"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *GenerationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.GenerationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.svc.CreateGeneration(r.Context(), middleware.GetActor(r.Context()), &services.CreateGenerationInput{
		IssueKey: req.IssueKey,
		Mode:     models.GenerationMode(req.Mode),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: g})
}

func (h *GenerationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	scope := repository.ListScope(q.Get("filter"))

	items, total, err := h.svc.ListGenerations(r.Context(), middleware.GetActor(r.Context()), &services.GenerationFilters{
		Scope:    scope,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    items,
		Meta:    &types.Meta{Page: page, PageSize: size, Total: total},
	})
}

func (h *GenerationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := generationID(w, r)
	if !ok {
		return
	}
	g, err := h.svc.GetGeneration(r.Context(), id, middleware.GetActor(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: g})
}

func (h *GenerationsHandler) Revise(w http.ResponseWriter, r *http.Request) {
	id, ok := generationID(w, r)
	if !ok {
		return
	}
	var req types.GenerationReviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}

	g, err := h.svc.ReviseContent(r.Context(), id, middleware.GetActor(r.Context()), req.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data: map[string]any{
			"content":         g.Content,
			"current_version": g.CurrentVersion,
		},
	})
}

func (h *GenerationsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := generationID(w, r)
	if !ok {
		return
	}
	var req types.GenerationPublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Published == nil {
		writeErrorStr(w, http.StatusBadRequest, "published is required")
		return
	}

	g, err := h.svc.SetPublished(r.Context(), id, middleware.GetActor(r.Context()), *req.Published)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data: map[string]any{
			"published":    g.Published,
			"published_at": g.PublishedAt,
			"published_by": g.PublishedBy,
		},
	})
}

func (h *GenerationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := generationID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteGeneration(r.Context(), id, middleware.GetActor(r.Context())); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
