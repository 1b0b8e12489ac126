package ticket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const ticketColumns = `id, title, description, priority, status, agent_type,
	parent_id, metadata, created_at, updated_at`

func (s *PostgresStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	metadataJSON, _ := json.Marshal(t.Metadata)

	return s.pool.QueryRow(ctx, `
		INSERT INTO foreman_tickets (id, title, description, priority, status,
			agent_type, parent_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		t.ID, t.Title, t.Description, t.Priority, t.Status,
		t.AgentType, t.ParentID, metadataJSON,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (s *PostgresStore) GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM foreman_tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter Filter) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM foreman_tickets WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		n++
		query += fmt.Sprintf(" AND priority = $%d", n)
		args = append(args, string(*filter.Priority))
	}
	if filter.Agent != "" {
		n++
		query += fmt.Sprintf(" AND agent_type = $%d", n)
		args = append(args, filter.Agent)
	}
	if filter.ParentID != nil {
		n++
		query += fmt.Sprintf(" AND parent_id = $%d", n)
		args = append(args, *filter.ParentID)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateTicket(ctx context.Context, t *Ticket) error {
	metadataJSON, _ := json.Marshal(t.Metadata)
	tag, err := s.pool.Exec(ctx, `
		UPDATE foreman_tickets
		SET title = $2, description = $3, priority = $4, status = $5,
			agent_type = $6, parent_id = $7, metadata = $8, updated_at = now()
		WHERE id = $1`,
		t.ID, t.Title, t.Description, t.Priority, t.Status,
		t.AgentType, t.ParentID, metadataJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendUpdate(ctx context.Context, u *Update) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		u.ID = id
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO foreman_ticket_updates (id, ticket_id, agent, note, new_status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at`,
		u.ID, u.TicketID, u.Agent, u.Note, string(u.NewStatus),
	).Scan(&u.CreatedAt)
}

func (s *PostgresStore) GetUpdates(ctx context.Context, ticketID uuid.UUID) ([]*Update, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticket_id, agent, note, COALESCE(new_status, ''), created_at
		FROM foreman_ticket_updates
		WHERE ticket_id = $1
		ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Update{}
	for rows.Next() {
		u := &Update{}
		var status string
		if err := rows.Scan(&u.ID, &u.TicketID, &u.Agent, &u.Note, &status, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.NewStatus = Status(status)
		out = append(out, u)
	}
	return out, rows.Err()
}

const workloadQuery = `
	SELECT agent_type,
		COUNT(*) FILTER (WHERE status = 'open') AS open,
		COUNT(*) FILTER (WHERE status = 'in_progress') AS in_progress,
		COUNT(*) FILTER (WHERE status NOT IN ('resolved', 'closed')
			AND priority IN ('high', 'critical')) AS high_priority
	FROM foreman_tickets
	WHERE agent_type <> ''`

func (s *PostgresStore) GetWorkload(ctx context.Context, agent string) (*Workload, error) {
	w := &Workload{Agent: agent}
	err := s.pool.QueryRow(ctx, workloadQuery+` AND agent_type = $1 GROUP BY agent_type`, agent).
		Scan(&w.Agent, &w.Open, &w.InProgress, &w.HighPriority)
	if err == pgx.ErrNoRows {
		return w, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *PostgresStore) ListWorkloads(ctx context.Context) ([]*Workload, error) {
	rows, err := s.pool.Query(ctx, workloadQuery+` GROUP BY agent_type ORDER BY agent_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Workload
	for rows.Next() {
		w := &Workload{}
		if err := rows.Scan(&w.Agent, &w.Open, &w.InProgress, &w.HighPriority); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateViolation(ctx context.Context, v *ViolationRecord) error {
	if v.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		v.ID = id
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO foreman_violations (id, agent_type, file_category, severity, reason, resolved)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		v.ID, v.AgentType, v.FileCategory, v.Severity, v.Reason, v.Resolved,
	).Scan(&v.CreatedAt)
}

func (s *PostgresStore) ListViolations(ctx context.Context, unresolvedOnly bool) ([]*ViolationRecord, error) {
	query := `SELECT id, agent_type, file_category, severity, reason, resolved, created_at
		FROM foreman_violations`
	if unresolvedOnly {
		query += ` WHERE NOT resolved`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ViolationRecord
	for rows.Next() {
		v := &ViolationRecord{}
		if err := rows.Scan(&v.ID, &v.AgentType, &v.FileCategory, &v.Severity,
			&v.Reason, &v.Resolved, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ResolveViolation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE foreman_violations SET resolved = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*Ticket, error) {
	t := &Ticket{}
	var metadataJSON []byte
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.AgentType, &t.ParentID, &metadataJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &t.Metadata)
	}
	return t, nil
}
