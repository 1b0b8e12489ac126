package ticket

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of unknown ticket or violation IDs.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary for tickets, their append-only update
// logs, and violation records. Implementations provide last-writer-wins
// semantics per key; no operation spans more than one ticket.
type Store interface {
	CreateTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)
	ListTickets(ctx context.Context, filter Filter) ([]*Ticket, error)
	UpdateTicket(ctx context.Context, t *Ticket) error

	AppendUpdate(ctx context.Context, u *Update) error
	GetUpdates(ctx context.Context, ticketID uuid.UUID) ([]*Update, error)

	GetWorkload(ctx context.Context, agent string) (*Workload, error)
	ListWorkloads(ctx context.Context) ([]*Workload, error)

	CreateViolation(ctx context.Context, v *ViolationRecord) error
	ListViolations(ctx context.Context, unresolvedOnly bool) ([]*ViolationRecord, error)
	ResolveViolation(ctx context.Context, id uuid.UUID) error

	Close() error
}
