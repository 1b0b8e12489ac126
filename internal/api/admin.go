package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/Foreman/internal/orchestrator"
	"github.com/MikeSquared-Agency/Foreman/internal/prompt"
	"github.com/MikeSquared-Agency/Foreman/internal/registry"
	"github.com/MikeSquared-Agency/Foreman/internal/scaffold"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

type AdminHandler struct {
	registry *registry.Registry
	composer *prompt.Composer
	disp     *orchestrator.Dispatcher
	tickets  *ticket.Service
	scaffold scaffold.Client
}

func NewAdminHandler(reg *registry.Registry, composer *prompt.Composer, disp *orchestrator.Dispatcher, tickets *ticket.Service, sc scaffold.Client) *AdminHandler {
	return &AdminHandler{registry: reg, composer: composer, disp: disp, tickets: tickets, scaffold: sc}
}

func (h *AdminHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.registry.ListRoles()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *AdminHandler) Role(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	p, err := h.registry.Resolve(role)
	if err != nil {
		if errors.Is(err, registry.ErrProfileNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Invalidate busts a role's cached profile, forcing the next resolve to
// re-read the tier directories.
func (h *AdminHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if role == "all" {
		h.registry.InvalidateAll()
	} else {
		h.registry.Invalidate(role)
	}
	writeJSON(w, http.StatusOK, map[string]string{"invalidated": role})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	workloads, err := h.tickets.Workloads(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile_cache": h.registry.Metrics(),
		"prompt_cache":  h.composer.Stats(),
		"queue_depth":   h.disp.QueueDepth(),
		"workloads":     workloads,
	})
}

func (h *AdminHandler) ScaffoldDeploy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TemplateID string `json:"template_id"`
		Target     string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TemplateID == "" || body.Target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "template_id and target required"})
		return
	}
	res, err := h.scaffold.Deploy(r.Context(), body.TemplateID, body.Target)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) ScaffoldBackup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path required"})
		return
	}
	res, err := h.scaffold.Backup(r.Context(), body.Path)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) ScaffoldRestore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BackupID string `json:"backup_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BackupID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "backup_id required"})
		return
	}
	if err := h.scaffold.Restore(r.Context(), body.BackupID); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"restored": body.BackupID})
}
