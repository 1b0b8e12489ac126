package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProfileTier is a precedence level for role definitions. Project overrides
// user, user overrides system.
type ProfileTier string

const (
	TierProject ProfileTier = "project"
	TierUser    ProfileTier = "user"
	TierSystem  ProfileTier = "system"
)

// tierOrder lists tiers from highest to lowest precedence.
var tierOrder = []ProfileTier{TierProject, TierUser, TierSystem}

// AgentProfile is the effective role definition after precedence resolution.
type AgentProfile struct {
	Role           string   `json:"role"`
	Tier           string   `json:"tier"`
	Nickname       string   `json:"nickname,omitempty"`
	Capabilities   []string `json:"capabilities"`
	FileCategories []string `json:"file_categories"`
	MaxConcurrent  int      `json:"max_concurrent"`
	RawText        string   `json:"-"`

	// SourceHash fingerprints the contributing profile files so the cache
	// can detect source mutation without re-parsing.
	SourceHash string `json:"-"`
}

// profileDoc is the on-disk shape: YAML frontmatter between "---" fences,
// followed by the free-text role body.
type profileDoc struct {
	frontmatter profileFrontmatter
	body        string
}

type profileFrontmatter struct {
	Role           string   `yaml:"role"`
	Nickname       string   `yaml:"nickname"`
	Capabilities   []string `yaml:"capabilities"`
	FileCategories []string `yaml:"file_categories"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
}

func parseProfileFile(path string) (*profileDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseProfile(string(data))
}

func parseProfile(content string) (*profileDoc, error) {
	doc := &profileDoc{body: content}

	trimmed := strings.TrimLeft(content, "\n")
	if !strings.HasPrefix(trimmed, "---") {
		return doc, nil
	}
	rest := trimmed[len("---"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return doc, nil
	}
	front := rest[:end]
	body := rest[end+len("\n---"):]

	if err := yaml.Unmarshal([]byte(front), &doc.frontmatter); err != nil {
		return nil, fmt.Errorf("parse profile frontmatter: %w", err)
	}
	doc.body = strings.TrimLeft(body, "\n")
	return doc, nil
}

// mergeProfiles folds tier documents into one effective profile. docs must be
// ordered highest precedence first; a field set at a higher tier wins, absent
// fields fall through to the next tier down.
func mergeProfiles(role string, docs []tierDoc) *AgentProfile {
	p := &AgentProfile{Role: role}
	var bodies []string

	for _, td := range docs {
		fm := td.doc.frontmatter
		if p.Tier == "" {
			p.Tier = string(td.tier)
		}
		if p.Nickname == "" && fm.Nickname != "" {
			p.Nickname = fm.Nickname
		}
		if p.Capabilities == nil && len(fm.Capabilities) > 0 {
			p.Capabilities = normalize(fm.Capabilities)
		}
		if p.FileCategories == nil && len(fm.FileCategories) > 0 {
			p.FileCategories = normalize(fm.FileCategories)
		}
		if p.MaxConcurrent == 0 && fm.MaxConcurrent > 0 {
			p.MaxConcurrent = fm.MaxConcurrent
		}
		if td.doc.body != "" {
			bodies = append(bodies, td.doc.body)
		}
	}

	if p.MaxConcurrent == 0 {
		p.MaxConcurrent = 1
	}
	// Highest-precedence body becomes the prompt source text. Lower tiers are
	// only used when higher tiers carry frontmatter overrides without a body.
	if len(bodies) > 0 {
		p.RawText = bodies[0]
	}
	return p
}

type tierDoc struct {
	tier ProfileTier
	doc  *profileDoc
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
