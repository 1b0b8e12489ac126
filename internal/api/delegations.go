package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/enforce"
	"github.com/MikeSquared-Agency/Foreman/internal/orchestrator"
	"github.com/MikeSquared-Agency/Foreman/internal/registry"
)

type DelegationsHandler struct {
	disp *orchestrator.Dispatcher
	orch *orchestrator.Orchestrator
}

func NewDelegationsHandler(disp *orchestrator.Dispatcher, orch *orchestrator.Orchestrator) *DelegationsHandler {
	return &DelegationsHandler{disp: disp, orch: orch}
}

func (h *DelegationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.DelegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	handle, err := h.disp.Submit(req)
	if err != nil {
		writeDelegationError(w, err)
		return
	}

	go func() {
		<-handle.Done()
		res, _ := handle.Result()
		if res != nil {
			delegationsTotal.WithLabelValues(res.Status).Inc()
			if res.PromptCacheHit {
				promptCacheHits.Inc()
			} else if res.Status != "cancelled" {
				promptCacheMisses.Inc()
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":       handle.ID.String(),
		"status":   "queued",
		"priority": string(handle.Priority),
	})
}

func (h *DelegationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delegation id"})
		return
	}
	handle, ok := h.disp.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "delegation not found"})
		return
	}

	select {
	case <-handle.Done():
		res, derr := handle.Result()
		if res == nil {
			msg := "delegation failed"
			if derr != nil {
				msg = derr.Error()
			}
			writeJSON(w, http.StatusOK, map[string]string{
				"id":     id.String(),
				"status": "failed",
				"error":  msg,
			})
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"id":     id.String(),
			"status": handle.Status(),
		})
	}
}

func (h *DelegationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delegation id"})
		return
	}
	handle, ok := h.disp.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "delegation not found"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "cancelled by " + r.Header.Get("X-Agent-ID")
	}

	handle.Cancel(body.Reason)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id.String(), "status": "cancelling"})
}

// Preview runs the selection pipeline without invoking the executor, so a
// caller can inspect the composed prompt and tier choice.
func (h *DelegationsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.DelegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	plan, err := h.orch.PlanDelegation(req)
	if err != nil {
		writeDelegationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score":         plan.Score,
		"bracket":       plan.Bracket,
		"factors":       plan.Factors,
		"resource_tier": plan.ResourceTier,
		"tier_warning":  plan.TierWarning,
		"coordinated":   plan.Coordinated,
		"artifact":      plan.Artifact,
	})
}

func writeDelegationError(w http.ResponseWriter, err error) {
	var cycle *enforce.CycleError
	switch {
	case errors.Is(err, registry.ErrProfileNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrQueueFull):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.As(err, &cycle):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
			"chain": cycle.Chain,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}
