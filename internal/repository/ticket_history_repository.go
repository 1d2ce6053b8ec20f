package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketHistoryRepository stores audit entries. Pure append: there is no
// update or delete on this table.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds the repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	changes, err := json.Marshal(history.Changes)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_history (ticket_id, actor_type, actor_id, changes)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ActorType,
		history.ActorID,
		changes,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, actor_type, actor_id, changes, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		var changes []byte
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ActorType,
			&history.ActorID,
			&changes,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changes, &history.Changes); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
