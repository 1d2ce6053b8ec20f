package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationRepository persists notifications and their per-recipient
// read-state rows. CreateWithRecipients is transactional: either the
// notification and every recipient row exist, or none do.
type NotificationRepository interface {
	CreateWithRecipients(ctx context.Context, notification *domain.Notification, recipientIDs []string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.NotificationFeedItem, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds the repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) CreateWithRecipients(ctx context.Context, notification *domain.Notification, recipientIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertNotification = `
        INSERT INTO notifications (ticket_id, notifier_id, purpose)
        VALUES ($1,$2,$3)
        RETURNING id, sent_at`
	if err := tx.QueryRow(ctx, insertNotification,
		notification.TicketID,
		notification.NotifierID,
		notification.Purpose,
	).Scan(&notification.ID, &notification.SentAt); err != nil {
		return err
	}

	const insertRecipient = `
        INSERT INTO notification_recipients (notification_id, user_id)
        VALUES ($1,$2)`
	for _, userID := range recipientIDs {
		if _, err := tx.Exec(ctx, insertRecipient, notification.ID, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `
        UPDATE notification_recipients SET is_read=TRUE
        WHERE user_id=$1 AND is_read=FALSE`
	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.NotificationFeedItem, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
        SELECT nr.id, n.purpose, n.ticket_id, nr.is_read, n.sent_at
        FROM notification_recipients nr
        JOIN notifications n ON n.id = nr.notification_id
        WHERE nr.user_id=$1
        ORDER BY n.sent_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NotificationFeedItem
	for rows.Next() {
		var item domain.NotificationFeedItem
		if err := rows.Scan(&item.RecipientID, &item.Purpose, &item.TicketID, &item.IsRead, &item.SentAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM notification_recipients
        WHERE user_id=$1 AND is_read=FALSE`
	var count int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
