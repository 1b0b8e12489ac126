package scoring

import (
	"github.com/MikeSquared-Agency/Foreman/internal/config"
)

// ResourceTier is a resolved execution-capability tier with its model list
// and output-size ceiling.
type ResourceTier struct {
	Name            string   `json:"name"`
	Models          []string `json:"models"`
	MaxOutputTokens int      `json:"max_output_tokens"`
}

// OverrideWarning records an explicit tier override that named an unknown
// tier. A bad override never blocks work: selection downgrades to the
// heuristic mapping and the warning is surfaced to the caller.
type OverrideWarning struct {
	Requested string `json:"requested"`
	Reason    string `json:"reason"`
}

// tierRank orders tiers from least to most capable, for the retry path.
var tierRank = []string{"lightweight", "standard", "standard-plus", "advanced"}

// Selector picks a resource tier from a complexity score, honouring valid
// explicit overrides unconditionally.
type Selector struct {
	cfg    config.ResourcesConfig
	scorer *Scorer
}

func NewSelector(cfg config.ResourcesConfig, scorer *Scorer) *Selector {
	return &Selector{cfg: cfg, scorer: scorer}
}

// Select resolves the tier for a score. A present, valid override wins
// unconditionally; an unknown override falls back to the heuristic mapping
// and returns a non-nil warning.
func (s *Selector) Select(score int, override string) (ResourceTier, *OverrideWarning) {
	if override != "" {
		if tier, ok := s.tierByName(override); ok {
			return tier, nil
		}
		tier := s.heuristic(score)
		return tier, &OverrideWarning{
			Requested: override,
			Reason:    "unknown resource tier, heuristic selection used",
		}
	}
	return s.heuristic(score), nil
}

// NextTierUp returns the next more capable tier, used when retrying a failed
// executor invocation. The top tier returns itself.
func (s *Selector) NextTierUp(name string) ResourceTier {
	for i, n := range tierRank {
		if n == name && i+1 < len(tierRank) {
			if tier, ok := s.tierByName(tierRank[i+1]); ok {
				return tier
			}
		}
	}
	tier, _ := s.tierByName(name)
	return tier
}

func (s *Selector) heuristic(score int) ResourceTier {
	var name string
	switch s.scorer.Bracket(score) {
	case BracketTrivial:
		name = "lightweight"
	case BracketSimple, BracketModerate:
		name = "standard"
	case BracketComplex:
		name = "standard-plus"
	default:
		name = "advanced"
	}
	if tier, ok := s.tierByName(name); ok {
		return tier
	}
	tier, _ := s.tierByName(s.cfg.DefaultTier)
	return tier
}

func (s *Selector) tierByName(name string) (ResourceTier, bool) {
	for _, t := range s.cfg.Tiers {
		if t.Name == name {
			return ResourceTier{Name: t.Name, Models: t.Models, MaxOutputTokens: t.MaxOutputTokens}, true
		}
	}
	return ResourceTier{Name: name}, false
}
