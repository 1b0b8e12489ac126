package registry

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeProfile(t *testing.T, dir, role, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, role+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testRegistry(t *testing.T) (*Registry, string, string, string) {
	t.Helper()
	base := t.TempDir()
	project := filepath.Join(base, "project")
	user := filepath.Join(base, "user")
	system := filepath.Join(base, "system")

	reg, err := New(config.ProfilesConfig{
		ProjectDir: project,
		UserDir:    user,
		SystemDir:  system,
		CacheSize:  8,
		WatchDirs:  false,
	}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(reg.Close)
	return reg, project, user, system
}

const engineerSystemProfile = `---
role: engineer
capabilities: [code, refactor, debug]
file_categories: [source_code, tests]
max_concurrent: 2
---
# Engineer

Implements and refactors source code. Writes tests alongside changes.
`

func TestResolveSystemTier(t *testing.T) {
	reg, _, _, system := testRegistry(t)
	writeProfile(t, system, "engineer", engineerSystemProfile)

	p, err := reg.Resolve("engineer")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.Role != "engineer" {
		t.Errorf("expected role engineer, got %s", p.Role)
	}
	if p.Tier != "system" {
		t.Errorf("expected system tier, got %s", p.Tier)
	}
	if len(p.Capabilities) != 3 || p.Capabilities[0] != "code" {
		t.Errorf("unexpected capabilities: %v", p.Capabilities)
	}
	if p.MaxConcurrent != 2 {
		t.Errorf("expected max_concurrent 2, got %d", p.MaxConcurrent)
	}
	if p.RawText == "" {
		t.Error("expected raw profile body")
	}
}

func TestResolvePrecedence(t *testing.T) {
	reg, project, user, system := testRegistry(t)
	writeProfile(t, system, "qa", `---
role: qa
capabilities: [test]
file_categories: [tests]
max_concurrent: 1
---
System QA body.
`)
	writeProfile(t, user, "qa", `---
role: qa
max_concurrent: 3
---
User QA body.
`)
	writeProfile(t, project, "qa", `---
role: qa
capabilities: [test, regression]
---
Project QA body.
`)

	p, err := reg.Resolve("qa")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.Tier != "project" {
		t.Errorf("expected project tier to win, got %s", p.Tier)
	}
	// Field present at a higher tier overrides; absent falls through.
	if len(p.Capabilities) != 2 || p.Capabilities[1] != "regression" {
		t.Errorf("expected project capabilities, got %v", p.Capabilities)
	}
	if p.MaxConcurrent != 3 {
		t.Errorf("expected user max_concurrent 3 to fall through, got %d", p.MaxConcurrent)
	}
	if len(p.FileCategories) != 1 || p.FileCategories[0] != "tests" {
		t.Errorf("expected system file_categories to fall through, got %v", p.FileCategories)
	}
	if p.RawText != "Project QA body.\n" {
		t.Errorf("expected project body, got %q", p.RawText)
	}
}

func TestResolveNotFound(t *testing.T) {
	reg, _, _, _ := testRegistry(t)
	_, err := reg.Resolve("nonexistent")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestResolveCachesWithoutReread(t *testing.T) {
	reg, _, _, system := testRegistry(t)
	writeProfile(t, system, "engineer", engineerSystemProfile)

	first, err := reg.Resolve("engineer")
	if err != nil {
		t.Fatal(err)
	}

	// Mutate the source without marking the role dirty: without a watcher
	// event the cached value must be returned as-is.
	writeProfile(t, system, "engineer", "---\nrole: engineer\ncapabilities: [other]\n---\nChanged.\n")

	second, err := reg.Resolve("engineer")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("expected identical cached profile instance")
	}

	m := reg.Metrics()
	if m.Hits != 1 || m.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %+v", m)
	}
}

func TestDirtyRoleRevalidatesByHash(t *testing.T) {
	reg, _, _, system := testRegistry(t)
	writeProfile(t, system, "engineer", engineerSystemProfile)

	if _, err := reg.Resolve("engineer"); err != nil {
		t.Fatal(err)
	}

	// Dirty but unchanged: hash matches, cache entry survives.
	reg.markDirty("engineer")
	p, err := reg.Resolve("engineer")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Capabilities) != 3 {
		t.Errorf("expected original capabilities, got %v", p.Capabilities)
	}

	// Dirty and changed: reload picks up the new content.
	writeProfile(t, system, "engineer", "---\nrole: engineer\ncapabilities: [ship]\n---\nNew body.\n")
	reg.markDirty("engineer")
	p, err = reg.Resolve("engineer")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Capabilities) != 1 || p.Capabilities[0] != "ship" {
		t.Errorf("expected reloaded capabilities, got %v", p.Capabilities)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	reg, _, _, system := testRegistry(t)
	writeProfile(t, system, "ops", "---\nrole: ops\nfile_categories: [configuration]\n---\nOps.\n")

	if _, err := reg.Resolve("ops"); err != nil {
		t.Fatal(err)
	}
	writeProfile(t, system, "ops", "---\nrole: ops\nfile_categories: [configuration, scaffolding]\n---\nOps v2.\n")
	reg.Invalidate("ops")

	p, err := reg.Resolve("ops")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.FileCategories) != 2 {
		t.Errorf("expected reloaded categories, got %v", p.FileCategories)
	}
}

func TestListRoles(t *testing.T) {
	reg, project, _, system := testRegistry(t)
	writeProfile(t, system, "engineer", engineerSystemProfile)
	writeProfile(t, system, "qa", "---\nrole: qa\n---\nQA.\n")
	writeProfile(t, project, "engineer", "---\nrole: engineer\n---\nOverride.\n")

	roles, err := reg.ListRoles()
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[0] != "engineer" || roles[1] != "qa" {
		t.Errorf("unexpected roles: %v", roles)
	}
}

func TestParseProfileWithoutFrontmatter(t *testing.T) {
	doc, err := parseProfile("Just a body, no frontmatter.\n")
	if err != nil {
		t.Fatal(err)
	}
	if doc.frontmatter.Role != "" {
		t.Errorf("expected empty frontmatter, got %+v", doc.frontmatter)
	}
	if doc.body == "" {
		t.Error("expected body preserved")
	}
}
