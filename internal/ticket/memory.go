package ticket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used in tests and when no database is
// configured. Snapshots are copied on the way in and out so callers cannot
// mutate stored state behind the lock.
type MemoryStore struct {
	mu         sync.RWMutex
	tickets    map[uuid.UUID]*Ticket
	updates    map[uuid.UUID][]*Update
	violations []*ViolationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[uuid.UUID]*Ticket),
		updates: make(map[uuid.UUID][]*Update),
	}
}

func (s *MemoryStore) CreateTicket(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		t.ID = id
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusOpen
	}

	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTicket(_ context.Context, id uuid.UUID) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTickets(_ context.Context, filter Filter) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Ticket
	for _, t := range s.tickets {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		if filter.Agent != "" && t.AgentType != filter.Agent {
			continue
		}
		if filter.ParentID != nil && (t.ParentID == nil || *t.ParentID != *filter.ParentID) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateTicket(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *MemoryStore) AppendUpdate(_ context.Context, u *Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[u.TicketID]; !ok {
		return ErrNotFound
	}
	if u.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		u.ID = id
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	s.updates[u.TicketID] = append(s.updates[u.TicketID], &cp)
	return nil
}

func (s *MemoryStore) GetUpdates(_ context.Context, ticketID uuid.UUID) ([]*Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.updates[ticketID]
	out := make([]*Update, 0, len(src))
	for _, u := range src {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) GetWorkload(_ context.Context, agent string) (*Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := &Workload{Agent: agent}
	for _, t := range s.tickets {
		if t.AgentType != agent {
			continue
		}
		countInto(w, t)
	}
	return w, nil
}

func (s *MemoryStore) ListWorkloads(_ context.Context) ([]*Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAgent := map[string]*Workload{}
	for _, t := range s.tickets {
		if t.AgentType == "" {
			continue
		}
		w, ok := byAgent[t.AgentType]
		if !ok {
			w = &Workload{Agent: t.AgentType}
			byAgent[t.AgentType] = w
		}
		countInto(w, t)
	}
	out := make([]*Workload, 0, len(byAgent))
	for _, w := range byAgent {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}

func countInto(w *Workload, t *Ticket) {
	switch t.Status {
	case StatusOpen:
		w.Open++
	case StatusInProgress:
		w.InProgress++
	}
	if !terminal(t.Status) && (t.Priority == PriorityHigh || t.Priority == PriorityCritical) {
		w.HighPriority++
	}
}

func (s *MemoryStore) CreateViolation(_ context.Context, v *ViolationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		v.ID = id
	}
	v.CreatedAt = time.Now().UTC()
	cp := *v
	s.violations = append(s.violations, &cp)
	return nil
}

func (s *MemoryStore) ListViolations(_ context.Context, unresolvedOnly bool) ([]*ViolationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ViolationRecord
	for _, v := range s.violations {
		if unresolvedOnly && v.Resolved {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ResolveViolation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.violations {
		if v.ID == id {
			v.Resolved = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Close() error { return nil }
