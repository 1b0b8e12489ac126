package enforce

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// FileCategory buckets the kinds of files an agent role may touch.
type FileCategory string

const (
	CategoryCoordination  FileCategory = "coordination"
	CategorySourceCode    FileCategory = "source_code"
	CategoryTests         FileCategory = "tests"
	CategoryConfiguration FileCategory = "configuration"
	CategoryResearch      FileCategory = "research"
	CategoryScaffolding   FileCategory = "scaffolding"
)

// classifyOrder fixes the precedence when a path matches globs from several
// categories. Tests outrank source_code so *_test.go lands in tests even
// though it also matches *.go.
var classifyOrder = []FileCategory{
	CategoryTests,
	CategoryScaffolding,
	CategoryResearch,
	CategoryConfiguration,
	CategoryCoordination,
	CategorySourceCode,
}

// KnownCategory reports whether c names one of the six categories.
func KnownCategory(c FileCategory) bool {
	for _, k := range classifyOrder {
		if c == k {
			return true
		}
	}
	return false
}

// Classifier maps file paths onto categories using configured glob patterns.
type Classifier struct {
	globs map[FileCategory][]glob.Glob
}

func NewClassifier(patterns map[string][]string) (*Classifier, error) {
	c := &Classifier{globs: make(map[FileCategory][]glob.Glob)}
	for cat, pats := range patterns {
		fc := FileCategory(cat)
		if !KnownCategory(fc) {
			return nil, fmt.Errorf("unknown file category %q in classifier config", cat)
		}
		for _, p := range pats {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, fmt.Errorf("compile glob %q for %s: %w", p, cat, err)
			}
			c.globs[fc] = append(c.globs[fc], g)
		}
	}
	return c, nil
}

// Classify returns the category for a path, or false when nothing matches.
// Matching walks categories in fixed precedence order; within a category,
// both the full path and its basename are tried so "*.go" covers nested
// files.
func (c *Classifier) Classify(path string) (FileCategory, bool) {
	path = strings.TrimPrefix(path, "./")
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	for _, cat := range classifyOrder {
		for _, g := range c.globs[cat] {
			if g.Match(path) || g.Match(base) {
				return cat, true
			}
		}
	}
	return "", false
}

// Categories lists the categories the classifier has patterns for, sorted.
func (c *Classifier) Categories() []FileCategory {
	out := make([]FileCategory, 0, len(c.globs))
	for cat := range c.globs {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
