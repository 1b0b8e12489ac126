package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/enforce"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

type EnforcementHandler struct {
	monitor *enforce.Monitor
	store   ticket.Store
}

func NewEnforcementHandler(monitor *enforce.Monitor, store ticket.Store) *EnforcementHandler {
	return &EnforcementHandler{monitor: monitor, store: store}
}

// Check evaluates a role against a file category or a concrete path. The
// decision is returned either way; denials have already been recorded by the
// monitor when this responds.
func (h *EnforcementHandler) Check(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role     string `json:"role"`
		Category string `json:"category,omitempty"`
		Path     string `json:"path,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role required"})
		return
	}
	if body.Category == "" && body.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "category or path required"})
		return
	}

	var d enforce.Decision
	if body.Path != "" {
		d = h.monitor.CheckPath(r.Context(), body.Role, body.Path)
	} else {
		d = h.monitor.Check(r.Context(), body.Role, enforce.FileCategory(body.Category))
	}
	if !d.Allowed || d.Flagged {
		violationsTotal.WithLabelValues(string(d.Severity)).Inc()
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *EnforcementHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	violations, err := h.store.ListViolations(r.Context(), !includeResolved)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if violations == nil {
		violations = []*ticket.ViolationRecord{}
	}
	writeJSON(w, http.StatusOK, violations)
}

// Chain reports the delegation chain recorded for a task. Useful when a
// cycle rejection needs explaining.
func (h *EnforcementHandler) Chain(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	chain := h.monitor.Chain(taskID)
	if chain == nil {
		chain = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task_id": taskID, "chain": chain})
}

// EndChain drops a task's delegation chain so the task id can be reused once
// the work it tracked is finished.
func (h *EnforcementHandler) EndChain(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	h.monitor.EndChain(taskID)
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "chain": "ended"})
}

func (h *EnforcementHandler) ResolveViolation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid violation id"})
		return
	}
	if err := h.store.ResolveViolation(r.Context(), id); err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "violation not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "resolved": "true"})
}
