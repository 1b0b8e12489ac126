package scoring

import (
	"math"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
)

// Bracket partitions the 0–100 complexity range into five bands.
type Bracket string

const (
	BracketTrivial  Bracket = "trivial"
	BracketSimple   Bracket = "simple"
	BracketModerate Bracket = "moderate"
	BracketComplex  Bracket = "complex"
	BracketExpert   Bracket = "expert"
)

// FactorResult captures one signal's contribution to the total score.
type FactorResult struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
	Reason   string  `json:"reason"`
}

// Scorer maps delegation request text to a 0–100 complexity score.
// Deterministic and pure: identical inputs always produce identical output.
type Scorer struct {
	weights WeightSet
	bounds  config.BracketBounds
}

func NewScorer(weights WeightSet, bounds config.BracketBounds) *Scorer {
	return &Scorer{weights: weights, bounds: bounds}
}

// Score computes the complexity score for a task. Empty requirement and
// deliverable lists do not zero the result: the description-derived signals
// still apply.
func (s *Scorer) Score(description string, requirements, deliverables []string) int {
	v := ExtractSignals(description, requirements, deliverables)
	total := v.VerbScore*s.weights.Verb +
		v.VolumeScore*s.weights.Volume +
		v.ScopeScore*s.weights.Scope +
		v.CoordinationScore*s.weights.Coordination

	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Bracket maps a score onto its complexity band using the configured bounds.
func (s *Scorer) Bracket(score int) Bracket {
	switch {
	case score <= s.bounds.Trivial:
		return BracketTrivial
	case score <= s.bounds.Simple:
		return BracketSimple
	case score <= s.bounds.Moderate:
		return BracketModerate
	case score <= s.bounds.Complex:
		return BracketComplex
	default:
		return BracketExpert
	}
}

// Coordinated reports whether the task text implies cross-agent work.
func (s *Scorer) Coordinated(description string) bool {
	return ExtractSignals(description, nil, nil).Coordinated
}

// Explain returns the per-signal factor breakdown for a request, in the same
// shape the explain API serves.
func (s *Scorer) Explain(description string, requirements, deliverables []string) []FactorResult {
	v := ExtractSignals(description, requirements, deliverables)
	factors := []FactorResult{
		{Name: "verb", Score: v.VerbScore, Weight: s.weights.Verb, Reason: verbReason(v.VerbScore)},
		{Name: "volume", Score: v.VolumeScore, Weight: s.weights.Volume, Reason: "requirement and deliverable count, capped"},
		{Name: "scope", Score: v.ScopeScore, Weight: s.weights.Scope, Reason: scopeReason(v.ScopeScore)},
		{Name: "coordination", Score: v.CoordinationScore, Weight: s.weights.Coordination, Reason: coordinationReason(v.Coordinated)},
	}
	for i := range factors {
		factors[i].Weighted = factors[i].Score * factors[i].Weight
	}
	return factors
}

func verbReason(score float64) string {
	switch score {
	case verbScoreComplex:
		return "complex action verb matched"
	case verbScoreModerate:
		return "moderate action verb matched"
	case verbScoreSimple:
		return "simple action verb matched"
	default:
		return "no action verb matched"
	}
}

func scopeReason(score float64) string {
	switch score {
	case scopeScoreSystem:
		return "system/architecture scope"
	case scopeScoreModule:
		return "module scope"
	case scopeScoreFunction:
		return "function scope"
	default:
		return "no scope keyword matched"
	}
}

func coordinationReason(coordinated bool) string {
	if coordinated {
		return "cross-agent coordination keywords"
	}
	return "single-agent task"
}
