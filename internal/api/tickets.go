package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/hermes"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

type TicketsHandler struct {
	svc *ticket.Service
	bus hermes.Client
}

func NewTicketsHandler(svc *ticket.Service, bus hermes.Client) *TicketsHandler {
	return &TicketsHandler{svc: svc, bus: bus}
}

type CreateTicketRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Priority    string                 `json:"priority,omitempty"`
	AgentType   string                 `json:"agent_type,omitempty"`
	ParentID    string                 `json:"parent_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *TicketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := ticket.OpenParams{
		Title:       req.Title,
		Description: req.Description,
		Priority:    ticket.Priority(req.Priority),
		AgentType:   req.AgentType,
		Metadata:    req.Metadata,
	}
	if req.ParentID != "" {
		pid, err := uuid.Parse(req.ParentID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid parent_id"})
			return
		}
		params.ParentID = &pid
	}

	t, err := h.svc.Open(r.Context(), params)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	ticketsTotal.WithLabelValues(string(ticket.StatusOpen)).Inc()
	if h.bus != nil {
		_ = h.bus.Publish(hermes.SubjectTicketOpened(t.ID.String()), hermes.TicketOpenedEvent{
			TicketID:  t.ID.String(),
			Title:     t.Title,
			Priority:  string(t.Priority),
			AgentType: t.AgentType,
		})
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TicketsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ticket.Filter{Agent: q.Get("agent")}
	if s := q.Get("status"); s != "" {
		status := ticket.Status(s)
		filter.Status = &status
	}
	if p := q.Get("priority"); p != "" {
		priority := ticket.Priority(p)
		filter.Priority = &priority
	}
	if pid := q.Get("parent_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid parent_id"})
			return
		}
		filter.ParentID = &id
	}
	if l := q.Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := q.Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	tickets, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []*ticket.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *TicketsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTicketID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Transition moves a ticket through the status machine. The note is recorded
// in the append-only update log alongside the change.
func (h *TicketsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTicketID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
		Note   string `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status required"})
		return
	}

	agent := r.Header.Get("X-Agent-ID")
	t, err := h.svc.Transition(r.Context(), id, ticket.Status(body.Status), agent, body.Note)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	ticketsTotal.WithLabelValues(string(t.Status)).Inc()
	if h.bus != nil {
		_ = h.bus.Publish(hermes.SubjectTicketTransitioned(t.ID.String()), hermes.TicketTransitionedEvent{
			TicketID: t.ID.String(),
			Status:   string(t.Status),
			Agent:    agent,
		})
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TicketsHandler) Comment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTicketID(w, r)
	if !ok {
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Note == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "note required"})
		return
	}

	// the ticket must exist, comments on ghosts are silent data loss
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeTicketError(w, err)
		return
	}

	u, err := h.svc.Comment(r.Context(), id, r.Header.Get("X-Agent-ID"), body.Note)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	if h.bus != nil {
		_ = h.bus.Publish(hermes.SubjectTicketUpdated(id.String()), u)
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *TicketsHandler) Updates(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTicketID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeTicketError(w, err)
		return
	}
	updates, err := h.svc.Updates(r.Context(), id)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	if updates == nil {
		updates = []*ticket.Update{}
	}
	writeJSON(w, http.StatusOK, updates)
}

func (h *TicketsHandler) Workloads(w http.ResponseWriter, r *http.Request) {
	workloads, err := h.svc.Workloads(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if workloads == nil {
		workloads = []*ticket.Workload{}
	}
	writeJSON(w, http.StatusOK, workloads)
}

func (h *TicketsHandler) Workload(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")
	wl, err := h.svc.Workload(r.Context(), agent)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func parseTicketID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
		return uuid.UUID{}, false
	}
	return id, true
}

func writeTicketError(w http.ResponseWriter, err error) {
	var invalid *ticket.ErrInvalidTransition
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
	case errors.As(err, &invalid), errors.Is(err, ticket.ErrChildrenUnresolved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
