package handlers

import (
	"net/http"

	"github.com/caseforge/engine/internal/api/types"
	"github.com/caseforge/engine/internal/services"
)

type ProjectsHandler struct {
	registry services.ProjectRegistry
}

func NewProjectsHandler(registry services.ProjectRegistry) *ProjectsHandler {
	return &ProjectsHandler{registry: registry}
}

// List returns all registered projects with their aggregate counts.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.registry.ListProjects(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}
