package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. The catalog is
// closed; new states require a migration and a transition-table change.
type TicketStatus string

const (
	TicketStatusTodo       TicketStatus = "TODO"
	TicketStatusInProgress TicketStatus = "In-Progress"
	TicketStatusWaiting    TicketStatus = "Waiting-For-Customer"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusClosed     TicketStatus = "Closed"
	TicketStatusEscalated  TicketStatus = "Escalated"
)

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusTodo:       {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusWaiting, TicketStatusResolved},
	TicketStatusWaiting:    {TicketStatusInProgress, TicketStatusResolved},
	TicketStatusResolved:   {TicketStatusClosed},
	TicketStatusClosed:     {},
	TicketStatusEscalated:  {TicketStatusInProgress},
}

// KnownStatus reports whether the value belongs to the catalog.
func KnownStatus(status TicketStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// AllowedTransitions returns the statuses reachable from current. The
// returned slice is a copy; callers may mutate it.
func AllowedTransitions(current TicketStatus) []TicketStatus {
	return append([]TicketStatus{}, allowedTransitions[current]...)
}

// CanTransition reports whether an operator-facing update may move a ticket
// from current to next. Staying on the current status is always allowed;
// system-forced escalation and idle-close bypass this table entirely.
func CanTransition(current, next TicketStatus) bool {
	if current == next {
		return true
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a status has no outgoing edges.
func TerminalStatus(status TicketStatus) bool {
	return len(allowedTransitions[status]) == 0 && KnownStatus(status)
}

// Ticket is the central aggregate. StartTime and Deadline are set together
// the first time the ticket enters In-Progress and survive later
// transitions. Version backs optimistic locking: every persisted update
// must carry the version it read.
type Ticket struct {
	ID            string
	AccountID     string
	Title         string
	Description   string
	Category      string
	CreatorID     string
	AssigneeID    *string
	PriorityID    string
	Status        TicketStatus
	StartTime     *time.Time
	Deadline      *time.Time
	Version       int64
	CreatedAt     time.Time
	LastChangedAt time.Time
}

// LastActivity returns the timestamp the idle-close rule measures from.
func (t *Ticket) LastActivity() time.Time {
	if t.LastChangedAt.IsZero() {
		return t.CreatedAt
	}
	return t.LastChangedAt
}

// Open reports whether the ticket still needs agent attention.
func (t *Ticket) Open() bool {
	switch t.Status {
	case TicketStatusTodo, TicketStatusInProgress, TicketStatusWaiting, TicketStatusEscalated:
		return true
	}
	return false
}
