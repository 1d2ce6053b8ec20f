package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ThreadRepository persists comment threads. A thread group is created by
// writing its first message together with the anchoring comment; replies
// only add messages to the group.
type ThreadRepository interface {
	CreateThread(ctx context.Context, ticketID string, message *domain.ThreadMessage) (*domain.Comment, error)
	CreateReply(ctx context.Context, message *domain.ThreadMessage) error
	GetCommentByGroup(ctx context.Context, threadGroup string) (*domain.Comment, error)
	GetMessage(ctx context.Context, messageID string) (*domain.ThreadMessage, error)
	ListMessagesByGroup(ctx context.Context, threadGroup string) ([]domain.ThreadMessage, error)
	ListThreadsByTicket(ctx context.Context, ticketID string) ([]domain.CommentThread, error)
	ListCommenterIDs(ctx context.Context, threadGroup string) ([]string, error)
}

type threadRepository struct {
	pool *pgxpool.Pool
}

// NewThreadRepository builds the repository.
func NewThreadRepository(pool *pgxpool.Pool) ThreadRepository {
	return &threadRepository{pool: pool}
}

const insertMessage = `
        INSERT INTO thread_messages (thread_group, body, author_id)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`

func (r *threadRepository) CreateThread(ctx context.Context, ticketID string, message *domain.ThreadMessage) (*domain.Comment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx, insertMessage,
		message.ThreadGroup,
		message.Body,
		message.AuthorID,
	).Scan(&message.ID, &message.CreatedAt); err != nil {
		return nil, err
	}

	comment := &domain.Comment{TicketID: ticketID, MessageID: message.ID}
	const insertComment = `
        INSERT INTO comments (ticket_id, message_id)
        VALUES ($1,$2)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertComment, ticketID, message.ID).Scan(&comment.ID, &comment.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return comment, nil
}

func (r *threadRepository) CreateReply(ctx context.Context, message *domain.ThreadMessage) error {
	return r.pool.QueryRow(ctx, insertMessage,
		message.ThreadGroup,
		message.Body,
		message.AuthorID,
	).Scan(&message.ID, &message.CreatedAt)
}

func (r *threadRepository) GetCommentByGroup(ctx context.Context, threadGroup string) (*domain.Comment, error) {
	const query = `
        SELECT c.id, c.ticket_id, c.message_id, c.created_at
        FROM comments c
        JOIN thread_messages m ON m.id = c.message_id
        WHERE m.thread_group=$1`
	var comment domain.Comment
	if err := r.pool.QueryRow(ctx, query, threadGroup).Scan(
		&comment.ID,
		&comment.TicketID,
		&comment.MessageID,
		&comment.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *threadRepository) GetMessage(ctx context.Context, messageID string) (*domain.ThreadMessage, error) {
	const query = `
        SELECT id, thread_group, body, author_id, created_at
        FROM thread_messages WHERE id=$1`
	var message domain.ThreadMessage
	if err := r.pool.QueryRow(ctx, query, messageID).Scan(
		&message.ID,
		&message.ThreadGroup,
		&message.Body,
		&message.AuthorID,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *threadRepository) ListMessagesByGroup(ctx context.Context, threadGroup string) ([]domain.ThreadMessage, error) {
	const query = `
        SELECT id, thread_group, body, author_id, created_at
        FROM thread_messages WHERE thread_group=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, threadGroup)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *threadRepository) ListThreadsByTicket(ctx context.Context, ticketID string) ([]domain.CommentThread, error) {
	const query = `
        SELECT c.id, c.ticket_id, c.message_id, c.created_at
        FROM comments c WHERE c.ticket_id=$1 ORDER BY c.created_at DESC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		if err := rows.Scan(&comment.ID, &comment.TicketID, &comment.MessageID, &comment.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	threads := make([]domain.CommentThread, 0, len(comments))
	for _, comment := range comments {
		anchor, err := r.GetMessage(ctx, comment.MessageID)
		if err != nil {
			return nil, err
		}
		messages, err := r.ListMessagesByGroup(ctx, anchor.ThreadGroup)
		if err != nil {
			return nil, err
		}
		threads = append(threads, domain.CommentThread{Comment: comment, Messages: messages})
	}
	return threads, nil
}

func (r *threadRepository) ListCommenterIDs(ctx context.Context, threadGroup string) ([]string, error) {
	const query = `
        SELECT DISTINCT author_id FROM thread_messages WHERE thread_group=$1`
	rows, err := r.pool.Query(ctx, query, threadGroup)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func scanMessages(rows pgx.Rows) ([]domain.ThreadMessage, error) {
	var result []domain.ThreadMessage
	for rows.Next() {
		var message domain.ThreadMessage
		if err := rows.Scan(
			&message.ID,
			&message.ThreadGroup,
			&message.Body,
			&message.AuthorID,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, message)
	}
	return result, rows.Err()
}
