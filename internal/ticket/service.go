package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
)

// ErrChildrenUnresolved blocks resolving a ticket whose sub-tickets are still
// live. Enforced here, not by storage.
var ErrChildrenUnresolved = errors.New("ticket has unresolved sub-tickets")

// Service wraps the Store with the ticketing rules: auto-open policy, the
// status machine, and the parent/sub-ticket soft invariant.
type Service struct {
	store  Store
	cfg    config.TicketingConfig
	logger *slog.Logger
}

func NewService(store Store, cfg config.TicketingConfig, logger *slog.Logger) *Service {
	return &Service{store: store, cfg: cfg, logger: logger}
}

func (s *Service) Store() Store { return s.store }

// OpenParams is the shape of a ticket creation request.
type OpenParams struct {
	Title       string
	Description string
	Priority    Priority
	AgentType   string
	ParentID    *uuid.UUID
	Metadata    map[string]interface{}
}

// Open creates a ticket in the open state.
func (s *Service) Open(ctx context.Context, p OpenParams) (*Ticket, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("ticket title required")
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if !ValidPriority(p.Priority) {
		return nil, fmt.Errorf("unknown priority %q", p.Priority)
	}

	t := &Ticket{
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		Status:      StatusOpen,
		AgentType:   p.AgentType,
		ParentID:    p.ParentID,
		Metadata:    p.Metadata,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("ticket opened", "ticket_id", t.ID, "priority", t.Priority, "agent", t.AgentType)
	return t, nil
}

// ShouldAutoOpen applies the auto-ticket policy: high/critical priority, item
// count at or above the configured threshold, cross-agent coordination, or
// explicit escalation triggers.
func (s *Service) ShouldAutoOpen(priority Priority, itemCount int, coordinated, hasTriggers bool) bool {
	if priority == PriorityHigh || priority == PriorityCritical {
		return true
	}
	if itemCount >= s.cfg.AutoOpenItemThreshold {
		return true
	}
	return coordinated || hasTriggers
}

// Comment appends a progress note without changing status.
func (s *Service) Comment(ctx context.Context, id uuid.UUID, agent, note string) (*Update, error) {
	u := &Update{TicketID: id, Agent: agent, Note: note}
	if err := s.store.AppendUpdate(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Transition moves a ticket through the status machine, recording the change
// in the append-only log. Resolving a ticket with live sub-tickets is
// rejected.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, agent, note string) (*Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, to) {
		return nil, &ErrInvalidTransition{From: t.Status, To: to}
	}

	if to == StatusResolved {
		children, err := s.store.ListTickets(ctx, Filter{ParentID: &id})
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if !terminal(c.Status) {
				return nil, fmt.Errorf("%w: %s is %s", ErrChildrenUnresolved, c.ID, c.Status)
			}
		}
	}

	t.Status = to
	if err := s.store.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}
	u := &Update{TicketID: id, Agent: agent, Note: note, NewStatus: to}
	if err := s.store.AppendUpdate(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("ticket transitioned", "ticket_id", id, "status", to, "agent", agent)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	return s.store.GetTicket(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Ticket, error) {
	return s.store.ListTickets(ctx, filter)
}

func (s *Service) Updates(ctx context.Context, id uuid.UUID) ([]*Update, error) {
	return s.store.GetUpdates(ctx, id)
}

func (s *Service) Workload(ctx context.Context, agent string) (*Workload, error) {
	return s.store.GetWorkload(ctx, agent)
}

func (s *Service) Workloads(ctx context.Context) ([]*Workload, error) {
	return s.store.ListWorkloads(ctx)
}
