package domain

import "time"

// Notification records one qualifying ticket event: created, assigned,
// status changed, commented, replied, or a system-forced transition.
// NotifierID is nil for system-initiated events.
type Notification struct {
	ID         string
	TicketID   string
	NotifierID *string
	Purpose    string
	SentAt     time.Time
}

// NotificationRecipient is the per-user read-state row. One row per
// distinct recipient, created in the same transaction as the notification.
type NotificationRecipient struct {
	ID             string
	NotificationID string
	UserID         string
	IsRead         bool
}

// NotificationFeedItem pairs a recipient row with its notification for the
// per-user feed.
type NotificationFeedItem struct {
	RecipientID string
	Purpose     string
	TicketID    string
	IsRead      bool
	SentAt      time.Time
}
