// Package prompt renders delegation instructions from a resolved agent
// profile and a scored request. Rendering is a pure step: for a fixed
// (profile, request, score) the output text is byte-identical, which is what
// makes the artifact cache safe.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
)

// TemplateTier selects how much context the rendered instruction carries.
// Each tier is a strict superset of the one below it.
type TemplateTier string

const (
	TierMinimal  TemplateTier = "minimal"
	TierSimple   TemplateTier = "simple"
	TierStandard TemplateTier = "standard"
	TierFull     TemplateTier = "full"
)

// TierForBracket maps a complexity bracket onto a template tier.
func TierForBracket(b scoring.Bracket) TemplateTier {
	switch b {
	case scoring.BracketTrivial:
		return TierMinimal
	case scoring.BracketSimple:
		return TierSimple
	case scoring.BracketModerate:
		return TierStandard
	default:
		return TierFull
	}
}

// Request carries the rendering inputs. A zero field is omitted from output,
// never rendered as a placeholder.
type Request struct {
	AgentType          string
	TaskDescription    string
	Requirements       []string
	Deliverables       []string
	Priority           string
	EscalationTriggers []string
	IntegrationNotes   string
	SubmittedAt        time.Time
}

// ContentHash fingerprints the cacheable request content. Field values are
// length-prefix framed so concatenation ambiguity cannot collide keys.
func (r Request) ContentHash() string {
	h := sha256.New()
	writeFramed(h, r.TaskDescription)
	for _, s := range r.Requirements {
		writeFramed(h, s)
	}
	h.Write([]byte{0})
	for _, s := range r.Deliverables {
		writeFramed(h, s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFramed(h hash.Hash, s string) {
	var lenBuf [4]byte
	n := len(s)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

// Profile is the slice of the resolved agent profile the composer needs.
type Profile struct {
	Role         string
	Nickname     string
	Capabilities []string
	RawText      string
}

// Artifact is a fully composed instruction plus the selection that produced
// it.
type Artifact struct {
	Text         string               `json:"text"`
	Length       int                  `json:"length"`
	TemplateTier TemplateTier         `json:"template_tier"`
	Bracket      scoring.Bracket      `json:"bracket"`
	ResourceTier scoring.ResourceTier `json:"resource_tier"`
	CacheHit     bool                 `json:"cache_hit"`
}

// Render produces the instruction text for one tier. Sections appear in a
// fixed order; absent request fields are skipped.
func Render(tier TemplateTier, profile Profile, req Request, score int, rt scoring.ResourceTier) string {
	var b strings.Builder

	// minimal: role + task + expected result
	b.WriteString("## Delegation: ")
	b.WriteString(profile.Role)
	if profile.Nickname != "" {
		b.WriteString(" (")
		b.WriteString(profile.Nickname)
		b.WriteString(")")
	}
	b.WriteString("\n\n")
	b.WriteString("**Task**: ")
	b.WriteString(req.TaskDescription)
	b.WriteString("\n")
	if len(req.Deliverables) > 0 {
		b.WriteString("**Expected Results**:\n")
		for _, d := range req.Deliverables {
			b.WriteString("- ")
			b.WriteString(d)
			b.WriteString("\n")
		}
	}

	if tier == TierMinimal {
		return b.String()
	}

	// simple adds requirements and temporal context
	if len(req.Requirements) > 0 {
		b.WriteString("\n**Requirements**:\n")
		for _, r := range req.Requirements {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	if !req.SubmittedAt.IsZero() {
		b.WriteString("\n**Temporal Context**: submitted ")
		b.WriteString(req.SubmittedAt.UTC().Format("2006-01-02"))
		b.WriteString(". Apply date awareness to sprint planning and deadlines.\n")
	}
	if req.Priority != "" {
		b.WriteString("**Priority**: ")
		b.WriteString(req.Priority)
		b.WriteString("\n")
	}

	if tier == TierSimple {
		return b.String()
	}

	// standard adds profile authority and an escalation summary
	if profile.RawText != "" {
		b.WriteString("\n**Agent Profile**:\n")
		b.WriteString(strings.TrimRight(profile.RawText, "\n"))
		b.WriteString("\n")
	}
	if len(profile.Capabilities) > 0 {
		b.WriteString("**Authority**: ")
		b.WriteString(strings.Join(profile.Capabilities, ", "))
		b.WriteString("\n")
	}
	if len(req.EscalationTriggers) > 0 {
		b.WriteString("**Escalation**: ")
		b.WriteString(req.EscalationTriggers[0])
		if len(req.EscalationTriggers) > 1 {
			b.WriteString(" (and others)")
		}
		b.WriteString("\n")
	}

	if tier == TierStandard {
		return b.String()
	}

	// full adds coordination notes, resource configuration, and the complete
	// trigger list
	if req.IntegrationNotes != "" {
		b.WriteString("\n**Cross-Agent Coordination**: ")
		b.WriteString(req.IntegrationNotes)
		b.WriteString("\n")
	}
	b.WriteString("\n**Resource Configuration**:\n")
	b.WriteString("- tier: ")
	b.WriteString(rt.Name)
	b.WriteString("\n")
	if len(rt.Models) > 0 {
		b.WriteString("- model: ")
		b.WriteString(rt.Models[0])
		b.WriteString("\n")
	}
	if rt.MaxOutputTokens > 0 {
		b.WriteString("- max output tokens: ")
		b.WriteString(strconv.Itoa(rt.MaxOutputTokens))
		b.WriteString("\n")
	}
	if len(req.EscalationTriggers) > 0 {
		b.WriteString("\n**Escalation Triggers**:\n")
		for _, tr := range req.EscalationTriggers {
			b.WriteString("- ")
			b.WriteString(tr)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n**Complexity Score**: ")
	b.WriteString(strconv.Itoa(score))
	b.WriteString("/100\n")

	return b.String()
}
