// Package enforce validates that agent roles only touch file categories they
// are allowed to, and guards delegation chains against cycles. Every denial
// and every flagged-but-allowed action is recorded; nothing is silently
// dropped.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MikeSquared-Agency/Foreman/internal/hermes"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownRole      = errors.New("role has no allow-list")
)

// CycleError reports a delegation chain that would revisit a role.
type CycleError struct {
	Chain []string
	Role  string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("delegation cycle: %s -> %s", strings.Join(e.Chain, " -> "), e.Role)
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed  bool         `json:"allowed"`
	Flagged  bool         `json:"flagged"`
	Severity Severity     `json:"severity,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Role     string       `json:"role"`
	Category FileCategory `json:"category"`
}

// roleRule is one role's parsed allow-list. Entries prefixed with "~" in the
// config are allowed but flagged: the access goes through and a low/medium
// severity record is written.
type roleRule struct {
	allowed map[FileCategory]bool
	flagged map[FileCategory]bool
}

// Monitor is the table-driven enforcement layer. It holds the per-role
// allow-sets, the path classifier, and the rolling delegation chains.
type Monitor struct {
	rules      map[string]roleRule
	classifier *Classifier
	store      ticket.Store
	bus        hermes.Client
	logger     *slog.Logger

	chainMu sync.Mutex
	chains  map[string][]string
}

func NewMonitor(allowLists map[string][]string, classifier *Classifier, store ticket.Store, bus hermes.Client, logger *slog.Logger) (*Monitor, error) {
	rules := make(map[string]roleRule, len(allowLists))
	for role, cats := range allowLists {
		rule := roleRule{
			allowed: make(map[FileCategory]bool),
			flagged: make(map[FileCategory]bool),
		}
		for _, c := range cats {
			flagged := strings.HasPrefix(c, "~")
			c = strings.TrimPrefix(c, "~")
			fc := FileCategory(c)
			if !KnownCategory(fc) {
				return nil, fmt.Errorf("unknown file category %q for role %q", c, role)
			}
			rule.allowed[fc] = true
			if flagged {
				rule.flagged[fc] = true
			}
		}
		rules[strings.ToLower(role)] = rule
	}
	return &Monitor{
		rules:      rules,
		classifier: classifier,
		store:      store,
		bus:        bus,
		logger:     logger,
		chains:     make(map[string][]string),
	}, nil
}

// Check decides whether a role may touch a file category. A role whose
// allow-set excludes source_code touching source_code is always a critical
// denial: that is the one failure mode that corrupts the division of labor,
// so it is logged before this function returns.
func (m *Monitor) Check(ctx context.Context, role string, category FileCategory) Decision {
	role = strings.ToLower(strings.TrimSpace(role))
	d := Decision{Role: role, Category: category}

	rule, known := m.rules[role]
	if known && rule.allowed[category] {
		d.Allowed = true
		if rule.flagged[category] {
			d.Flagged = true
			d.Severity = SeverityMedium
			d.Reason = fmt.Sprintf("role %q access to %s is allowed but flagged", role, category)
			m.record(ctx, d)
		}
		return d
	}

	if category == CategorySourceCode {
		d.Severity = SeverityCritical
		d.Reason = fmt.Sprintf("role %q is not permitted to touch implementation files", role)
		m.logger.Error("critical enforcement violation",
			"role", role, "category", category, "reason", d.Reason)
		m.record(ctx, d)
		return d
	}

	d.Severity = SeverityHigh
	if !known {
		d.Reason = fmt.Sprintf("role %q has no allow-list", role)
	} else {
		d.Reason = fmt.Sprintf("category %s is outside role %q allow-set", category, role)
	}
	m.record(ctx, d)
	return d
}

// CheckPath classifies a path and checks the resulting category. Paths that
// match no classifier pattern are denied: unclassifiable files are outside
// every allow-set.
func (m *Monitor) CheckPath(ctx context.Context, role, path string) Decision {
	category, ok := m.classifier.Classify(path)
	if !ok {
		d := Decision{
			Role:     strings.ToLower(role),
			Severity: SeverityHigh,
			Reason:   fmt.Sprintf("path %q matches no known file category", path),
		}
		m.record(ctx, d)
		return d
	}
	return m.Check(ctx, role, category)
}

// BeginChain starts the delegation chain for a task with its first role.
func (m *Monitor) BeginChain(taskID, role string) {
	m.chainMu.Lock()
	defer m.chainMu.Unlock()
	m.chains[taskID] = []string{strings.ToLower(role)}
}

// Advance appends the next hop to a task's delegation chain, rejecting any
// hop that would revisit a role already in the chain.
func (m *Monitor) Advance(taskID, role string) error {
	role = strings.ToLower(role)
	m.chainMu.Lock()
	defer m.chainMu.Unlock()

	chain := m.chains[taskID]
	for _, r := range chain {
		if r == role {
			err := &CycleError{Chain: append([]string(nil), chain...), Role: role}
			m.logger.Warn("delegation cycle detected", "task_id", taskID, "chain", err.Error())
			return err
		}
	}
	m.chains[taskID] = append(chain, role)
	return nil
}

// Chain returns a copy of a task's current delegation chain.
func (m *Monitor) Chain(taskID string) []string {
	m.chainMu.Lock()
	defer m.chainMu.Unlock()
	return append([]string(nil), m.chains[taskID]...)
}

// EndChain drops a finished task's chain.
func (m *Monitor) EndChain(taskID string) {
	m.chainMu.Lock()
	defer m.chainMu.Unlock()
	delete(m.chains, taskID)
}

func (m *Monitor) record(ctx context.Context, d Decision) {
	v := &ticket.ViolationRecord{
		AgentType:    d.Role,
		FileCategory: string(d.Category),
		Severity:     string(d.Severity),
		Reason:       d.Reason,
	}
	if err := m.store.CreateViolation(ctx, v); err != nil {
		m.logger.Error("failed to record violation", "role", d.Role, "error", err)
	}
	if m.bus != nil {
		_ = m.bus.Publish(hermes.SubjectViolationRecorded(v.ID.String()), hermes.ViolationRecordedEvent{
			ViolationID:  v.ID.String(),
			AgentType:    d.Role,
			FileCategory: string(d.Category),
			Severity:     string(d.Severity),
			Reason:       d.Reason,
		})
	}
}
