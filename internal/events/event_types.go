package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketCommented     EventType = "ticket_commented"
	EventTicketReplied       EventType = "ticket_replied"
)

// Actor identifies who caused an event. A nil UserID means the system
// (SLA sweeper, agent-deactivation cascade) acted on its own.
type Actor struct {
	UserID *string `json:"user_id,omitempty"`
}

// SystemActor returns the actor used for system-initiated transitions.
func SystemActor() Actor {
	return Actor{}
}

// UserActor returns an actor for the given user.
func UserActor(userID string) Actor {
	return Actor{UserID: &userID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	AccountID string      `json:"account_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title      string  `json:"title"`
	CreatorID  string  `json:"creator_id"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Title      string `json:"title"`
	CreatorID  string `json:"creator_id"`
	AssigneeID string `json:"assignee_id"`
}

// TicketStatusChangedPayload payload. Forced marks system transitions
// (escalation, idle-close) that bypassed the operator transition table.
type TicketStatusChangedPayload struct {
	Title      string              `json:"title"`
	CreatorID  string              `json:"creator_id"`
	AssigneeID *string             `json:"assignee_id,omitempty"`
	OldStatus  domain.TicketStatus `json:"old_status"`
	NewStatus  domain.TicketStatus `json:"new_status"`
	Forced     bool                `json:"forced,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	Title       string  `json:"title"`
	CreatorID   string  `json:"creator_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	ThreadGroup string  `json:"thread_group"`
	Body        string  `json:"body"`
}

// TicketRepliedPayload payload.
type TicketRepliedPayload struct {
	Title       string `json:"title"`
	ThreadGroup string `json:"thread_group"`
	Body        string `json:"body"`
}
