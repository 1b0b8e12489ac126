package scoring

import "strings"

// SignalVector is the enumerated feature set the scorer works from. Signals
// are extracted once from the request text so scoring stays a pure function
// over explicit inputs.
type SignalVector struct {
	VerbScore         float64 `json:"verb_score"`
	VolumeScore       float64 `json:"volume_score"`
	ScopeScore        float64 `json:"scope_score"`
	CoordinationScore float64 `json:"coordination_score"`
	Coordinated       bool    `json:"coordinated"`
}

// Verb categories. When a description matches verbs from more than one
// category the highest-complexity match wins: under-estimating starves the
// agent of context, over-estimating only costs tokens.
var (
	simpleVerbs = []string{
		"list", "show", "print", "display", "echo", "read", "fetch",
		"get", "run", "check", "view",
	}
	moderateVerbs = []string{
		"add", "update", "fix", "implement", "write", "create", "modify",
		"test", "document", "rename", "extend", "validate",
	}
	complexVerbs = []string{
		"design", "refactor", "architect", "migrate", "migration",
		"redesign", "restructure", "rearchitect", "overhaul", "optimize",
		"consolidate", "coordinate",
	}
)

// Scope keywords, ordered by unit of change.
var (
	functionScope = []string{"function", "method", "variable", "typo", "one-liner", "single line"}
	moduleScope   = []string{"module", "package", "file", "component", "class", "service", "endpoint"}
	systemScope   = []string{
		"system", "architecture", "platform", "codebase", "infrastructure",
		"end-to-end", "cross-cutting", "framework",
	}
)

// Coordination keywords indicating cross-agent work.
var coordinationKeywords = []string{
	"coordinate", "coordination", "across", "multi-agent", "multiple agents",
	"handoff", "hand off", "collaborate", "between agents", "cross-team",
	"orchestrate", "delegate to", "agents",
}

const (
	verbScoreSimple   = 10
	verbScoreModerate = 50
	verbScoreComplex  = 90
	verbScoreDefault  = 30

	scopeScoreFunction = 15
	scopeScoreModule   = 55
	scopeScoreSystem   = 95
	scopeScoreDefault  = 35

	coordinationScoreHigh = 90
	coordinationScoreLow  = 10

	// Item counts at or beyond this cap score 100 on the volume signal.
	volumeCap = 8
)

// ExtractSignals derives the feature vector from a delegation request's text
// fields. Pure string matching, no I/O.
func ExtractSignals(description string, requirements, deliverables []string) SignalVector {
	text := strings.ToLower(description)

	v := SignalVector{
		VerbScore:         verbScoreDefault,
		ScopeScore:        scopeScoreDefault,
		CoordinationScore: coordinationScoreLow,
	}

	// Highest-complexity verb match wins.
	switch {
	case matchesAny(text, complexVerbs):
		v.VerbScore = verbScoreComplex
	case matchesAny(text, moderateVerbs):
		v.VerbScore = verbScoreModerate
	case matchesAny(text, simpleVerbs):
		v.VerbScore = verbScoreSimple
	}

	switch {
	case matchesAny(text, systemScope):
		v.ScopeScore = scopeScoreSystem
	case matchesAny(text, moduleScope):
		v.ScopeScore = scopeScoreModule
	case matchesAny(text, functionScope):
		v.ScopeScore = scopeScoreFunction
	}

	if matchesAny(text, coordinationKeywords) {
		v.CoordinationScore = coordinationScoreHigh
		v.Coordinated = true
	}

	items := len(requirements) + len(deliverables)
	if items > volumeCap {
		items = volumeCap
	}
	v.VolumeScore = float64(items) / float64(volumeCap) * 100

	return v
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
