package api

import (
	"encoding/json"
	"net/http"

	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
)

type ExplainHandler struct {
	scorer   *scoring.Scorer
	selector *scoring.Selector
}

func NewExplainHandler(scorer *scoring.Scorer, selector *scoring.Selector) *ExplainHandler {
	return &ExplainHandler{scorer: scorer, selector: selector}
}

// Explain scores a hypothetical request and returns the factor breakdown and
// the tier the heuristic would pick, without delegating anything.
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskDescription string   `json:"task_description"`
		Requirements    []string `json:"requirements,omitempty"`
		Deliverables    []string `json:"deliverables,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TaskDescription == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_description required"})
		return
	}

	score := h.scorer.Score(body.TaskDescription, body.Requirements, body.Deliverables)
	tier, _ := h.selector.Select(score, "")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score":         score,
		"bracket":       h.scorer.Bracket(score),
		"coordinated":   h.scorer.Coordinated(body.TaskDescription),
		"factors":       h.scorer.Explain(body.TaskDescription, body.Requirements, body.Deliverables),
		"resource_tier": tier,
	})
}
