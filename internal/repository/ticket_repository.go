package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Update enforces
// optimistic locking: the row's version must match the version the caller
// read, and a successful write bumps it.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByTitle(ctx context.Context, title string) (*domain.Ticket, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Ticket, error)
	ListExpired(ctx context.Context, now time.Time, statuses []domain.TicketStatus) ([]domain.Ticket, error)
	ListIdle(ctx context.Context, status domain.TicketStatus, changedBefore time.Time) ([]domain.Ticket, error)
	ListOpenByAssignee(ctx context.Context, assigneeID string) ([]domain.Ticket, error)
}

// ErrVersionConflict is returned by Update when the persisted version no
// longer matches the one the caller read.
var ErrVersionConflict = errors.New("ticket version conflict")

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, account_id, title, description, category, creator_id, assignee_id,
               priority_id, status, start_time, deadline, version, created_at, last_changed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (account_id, title, description, category, creator_id, assignee_id,
                             priority_id, status, start_time, deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, version, created_at, last_changed_at`
	return r.pool.QueryRow(ctx, query,
		ticket.AccountID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.CreatorID,
		ticket.AssigneeID,
		ticket.PriorityID,
		ticket.Status,
		ticket.StartTime,
		ticket.Deadline,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.LastChangedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, assignee_id=$4, priority_id=$5,
            status=$6, start_time=$7, deadline=$8, version=version+1, last_changed_at=$9
        WHERE id=$10 AND version=$11`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.AssigneeID,
		ticket.PriorityID,
		ticket.Status,
		ticket.StartTime,
		ticket.Deadline,
		ticket.LastChangedAt,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByTitle(ctx context.Context, title string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE title=$1`
	return r.fetchSingle(ctx, query, title)
}

func (r *ticketRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE account_id=$1 ORDER BY last_changed_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListExpired(ctx context.Context, now time.Time, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE deadline IS NOT NULL AND deadline < $1 AND status = ANY($2)
        ORDER BY deadline ASC`
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	rows, err := r.pool.Query(ctx, query, now, values)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListIdle(ctx context.Context, status domain.TicketStatus, changedBefore time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status=$1 AND last_changed_at < $2
        ORDER BY last_changed_at ASC`
	rows, err := r.pool.Query(ctx, query, status, changedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOpenByAssignee(ctx context.Context, assigneeID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE assignee_id=$1 AND status IN ($2,$3,$4,$5)
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, assigneeID,
		domain.TicketStatusTodo,
		domain.TicketStatusInProgress,
		domain.TicketStatusWaiting,
		domain.TicketStatusEscalated,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, query, arg))
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.AccountID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.PriorityID,
		&ticket.Status,
		&ticket.StartTime,
		&ticket.Deadline,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.LastChangedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
