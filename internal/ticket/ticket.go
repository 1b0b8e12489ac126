package ticket

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidPriority reports whether p is one of the four known levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Ticket is one tracked unit of work. IDs are UUIDv7 so they sort by creation
// time while staying opaque.
type Ticket struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	AgentType   string     `json:"agent_type,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`

	// Metadata is an open bag: dependencies, estimated effort, orchestration
	// plan.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is one append-only progress entry. History is never edited in
// place: every change is a new row, appended in arrival order.
type Update struct {
	ID        uuid.UUID `json:"id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	Agent     string    `json:"agent"`
	Note      string    `json:"note"`
	NewStatus Status    `json:"new_status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Filter struct {
	Status   *Status
	Priority *Priority
	Agent    string
	ParentID *uuid.UUID
	Limit    int
	Offset   int
}

// Workload summarizes one agent's open work for load-aware delegation.
type Workload struct {
	Agent        string `json:"agent"`
	Open         int    `json:"open"`
	InProgress   int    `json:"in_progress"`
	HighPriority int    `json:"high_priority"`
}

// ViolationRecord is an append-only record of a denied or flagged
// file-category access. Records are never mutated, only marked resolved.
type ViolationRecord struct {
	ID           uuid.UUID `json:"id"`
	AgentType    string    `json:"agent_type"`
	FileCategory string    `json:"file_category"`
	Severity     string    `json:"severity"`
	Reason       string    `json:"reason,omitempty"`
	Resolved     bool      `json:"resolved"`
	CreatedAt    time.Time `json:"created_at"`
}

// terminal statuses admit no further transitions.
func terminal(s Status) bool {
	return s == StatusResolved || s == StatusClosed
}

// CanTransition encodes the monotonic status machine. The single recoverable
// backward edge is blocked -> in_progress.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if terminal(from) {
		return false
	}
	switch from {
	case StatusOpen:
		return to == StatusInProgress || to == StatusBlocked || to == StatusClosed
	case StatusInProgress:
		return to == StatusResolved || to == StatusBlocked || to == StatusClosed
	case StatusBlocked:
		return to == StatusInProgress || to == StatusClosed
	}
	return false
}

// ErrInvalidTransition reports a rejected status change.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid ticket transition %s -> %s", e.From, e.To)
}
