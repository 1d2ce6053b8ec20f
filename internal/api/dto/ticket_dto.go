package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	PriorityID  string  `json:"priority_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	// SLAOverrideSeconds replaces the priority duration for the initial
	// deadline of a pre-assigned ticket.
	SLAOverrideSeconds *int64 `json:"sla_override_seconds,omitempty"`
}

// UpdateTicketRequest payload; absent fields stay unchanged.
type UpdateTicketRequest struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Category      *string    `json:"category,omitempty"`
	PriorityID    *string    `json:"priority_id,omitempty"`
	Status        *string    `json:"status,omitempty"`
	AssigneeID    *string    `json:"assignee_id,omitempty"`
	ClearAssignee bool       `json:"clear_assignee,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Category      string              `json:"category"`
	Status        domain.TicketStatus `json:"status"`
	PriorityID    string              `json:"priority_id"`
	CreatorID     string              `json:"creator_id"`
	AssigneeID    *string             `json:"assignee_id,omitempty"`
	StartTime     *time.Time          `json:"start_time,omitempty"`
	Deadline      *time.Time          `json:"deadline,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	LastChangedAt time.Time           `json:"last_changed_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description       string                  `json:"description"`
	Version           int64                   `json:"version"`
	TransitionOptions []domain.TicketStatus   `json:"transition_options"`
	Threads           []ThreadResponse        `json:"threads"`
	History           []TicketHistoryResponse `json:"history"`
}

// ThreadResponse is one comment thread: the anchoring comment plus its
// messages in posting order.
type ThreadResponse struct {
	CommentID string            `json:"comment_id"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []MessageResponse `json:"messages"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID          string    `json:"id"`
	ThreadGroup string    `json:"thread_group"`
	Body        string    `json:"body"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateMessageRequest posts a comment or a reply.
type CreateMessageRequest struct {
	Body    string  `json:"body"`
	ReplyTo *string `json:"reply_to,omitempty"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID        string                        `json:"id"`
	ActorType domain.HistoryActorType       `json:"actor_type"`
	ActorID   *string                       `json:"actor_id,omitempty"`
	Changes   map[string]domain.FieldChange `json:"changes"`
	CreatedAt time.Time                     `json:"created_at"`
}

// PriorityResponse is one SLA priority level.
type PriorityResponse struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	SLASeconds int64  `json:"sla_seconds"`
}
