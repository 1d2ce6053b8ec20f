package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Sweeps are batch entry points over the same applyUpdate path used by
// user writes. Each candidate is re-fetched and re-checked right before
// its forced transition, so a sweep that races a user update simply skips
// the ticket and a repeated sweep finds nothing left to do.

// EscalateExpiredTickets forces every overdue In-Progress or
// Waiting-For-Customer ticket into Escalated and returns how many tickets
// were escalated.
func (s *TicketService) EscalateExpiredTickets(ctx context.Context) (int, error) {
	now := s.clock()
	candidates, err := s.tickets.ListExpired(ctx, now, []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusWaiting,
	})
	if err != nil {
		return 0, err
	}

	escalated := 0
	status := domain.TicketStatusEscalated
	for i := range candidates {
		ticketID := candidates[i].ID
		_, err := s.retryOnConflict(func() (*domain.Ticket, error) {
			ticket, err := s.loadTicket(ctx, ticketID)
			if err != nil {
				return nil, err
			}
			if !expiredForEscalation(ticket, now) {
				return ticket, nil
			}
			updated, err := s.applyUpdate(ctx, nil, ticket, TicketUpdateInput{Status: &status}, updateOptions{systemForced: true})
			if err != nil {
				return nil, err
			}
			escalated++
			return updated, nil
		})
		if err != nil {
			s.logger.Error("escalation sweep failed for ticket",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return escalated, nil
}

// AutoCloseInactiveTickets force-closes Waiting-For-Customer tickets whose
// last activity predates the idle window and returns how many were closed.
func (s *TicketService) AutoCloseInactiveTickets(ctx context.Context) (int, error) {
	now := s.clock()
	cutoff := now.Add(-s.lifecycle.IdleCloseWindow)
	candidates, err := s.tickets.ListIdle(ctx, domain.TicketStatusWaiting, cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	status := domain.TicketStatusClosed
	for i := range candidates {
		ticketID := candidates[i].ID
		_, err := s.retryOnConflict(func() (*domain.Ticket, error) {
			ticket, err := s.loadTicket(ctx, ticketID)
			if err != nil {
				return nil, err
			}
			if ticket.Status != domain.TicketStatusWaiting || ticket.LastActivity().After(cutoff) {
				return ticket, nil
			}
			updated, err := s.applyUpdate(ctx, nil, ticket, TicketUpdateInput{Status: &status}, updateOptions{systemForced: true})
			if err != nil {
				return nil, err
			}
			closed++
			return updated, nil
		})
		if err != nil {
			s.logger.Error("idle-close sweep failed for ticket",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return closed, nil
}

func expiredForEscalation(ticket *domain.Ticket, now time.Time) bool {
	switch ticket.Status {
	case domain.TicketStatusInProgress, domain.TicketStatusWaiting:
	default:
		return false
	}
	return ticket.Deadline != nil && now.After(*ticket.Deadline)
}
