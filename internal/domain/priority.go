package domain

import "time"

// TicketPriority is reference data mapping a priority label to the SLA
// duration used when computing a ticket's deadline.
type TicketPriority struct {
	ID        string
	Label     string
	Duration  time.Duration
	CreatedAt time.Time
}
