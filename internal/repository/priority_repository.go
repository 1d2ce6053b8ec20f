package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// PriorityRepository reads the priority/SLA reference table.
type PriorityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.TicketPriority, error)
	GetByLabel(ctx context.Context, label string) (*domain.TicketPriority, error)
	List(ctx context.Context) ([]domain.TicketPriority, error)
}

type priorityRepository struct {
	pool *pgxpool.Pool
}

// NewPriorityRepository returns a Postgres-backed implementation.
func NewPriorityRepository(pool *pgxpool.Pool) PriorityRepository {
	return &priorityRepository{pool: pool}
}

// sla_seconds is stored as an integer column; durations convert at the edge.

func (r *priorityRepository) GetByID(ctx context.Context, id string) (*domain.TicketPriority, error) {
	const query = `SELECT id, label, sla_seconds, created_at FROM ticket_priorities WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *priorityRepository) GetByLabel(ctx context.Context, label string) (*domain.TicketPriority, error) {
	const query = `SELECT id, label, sla_seconds, created_at FROM ticket_priorities WHERE label=$1`
	return r.fetchSingle(ctx, query, label)
}

func (r *priorityRepository) List(ctx context.Context) ([]domain.TicketPriority, error) {
	const query = `SELECT id, label, sla_seconds, created_at FROM ticket_priorities ORDER BY sla_seconds ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketPriority
	for rows.Next() {
		var priority domain.TicketPriority
		var slaSeconds int64
		if err := rows.Scan(&priority.ID, &priority.Label, &slaSeconds, &priority.CreatedAt); err != nil {
			return nil, err
		}
		priority.Duration = time.Duration(slaSeconds) * time.Second
		result = append(result, priority)
	}
	return result, rows.Err()
}

func (r *priorityRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.TicketPriority, error) {
	var priority domain.TicketPriority
	var slaSeconds int64
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&priority.ID, &priority.Label, &slaSeconds, &priority.CreatedAt); err != nil {
		return nil, err
	}
	priority.Duration = time.Duration(slaSeconds) * time.Second
	return &priority, nil
}
