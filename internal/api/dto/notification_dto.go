package dto

import "time"

// NotificationItem is one entry of the user's feed.
type NotificationItem struct {
	RecipientID string    `json:"recipient_id"`
	TicketID    string    `json:"ticket_id"`
	Purpose     string    `json:"purpose"`
	IsRead      bool      `json:"is_read"`
	SentAt      time.Time `json:"sent_at"`
}

// NotificationFeedResponse is the per-user feed with the unread counter.
type NotificationFeedResponse struct {
	Items       []NotificationItem `json:"items"`
	UnreadCount int64              `json:"unread_count"`
}

// MarkReadResponse reports how many rows were flipped.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
