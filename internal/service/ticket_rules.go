package service

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// The update pipeline is an explicit, ordered list of named rules run
// inside every persisting update: assignment-start, reassign-recompute,
// escalation-check, idle-close-check, validation-gate. Each rule takes the
// prior state plus the working copy and either adjusts the working copy or
// rejects the update, so ordering and precedence stay testable in
// isolation.

type ruleContext struct {
	now time.Time
	// priority is the resolved priority of the working copy; nil when the
	// lookup failed on a system path, in which case schedule computation
	// degrades to a no-op.
	priority              *domain.TicketPriority
	statusChangedByCaller bool
	deadlineSetByCaller   bool
	reassigned            bool
	recomputeOnReassign   bool
	idleCloseWindow       time.Duration
}

// applyAssignmentStart starts the SLA clock the first time a ticket enters
// In-Progress. StartTime and Deadline are set together exactly once; later
// transitions through In-Progress leave them alone.
func applyAssignmentStart(prior, next *domain.Ticket, rc ruleContext) {
	if next.Status != domain.TicketStatusInProgress || prior.Status == domain.TicketStatusInProgress {
		return
	}
	if next.StartTime != nil {
		return
	}
	start := rc.now
	next.StartTime = &start
	if !rc.deadlineSetByCaller && rc.priority != nil {
		deadline := start.Add(rc.priority.Duration)
		next.Deadline = &deadline
	}
}

// applyReassignRecompute optionally restarts the SLA clock when an
// in-progress ticket moves between agents. Off by default; policy flag.
func applyReassignRecompute(prior, next *domain.Ticket, rc ruleContext) {
	if !rc.recomputeOnReassign || !rc.reassigned {
		return
	}
	if prior.AssigneeID == nil || next.Status != domain.TicketStatusInProgress {
		return
	}
	if rc.priority == nil {
		return
	}
	start := rc.now
	deadline := start.Add(rc.priority.Duration)
	next.StartTime = &start
	next.Deadline = &deadline
}

// applyEscalationCheck forces Escalated when a write happens after the
// deadline passed. A status change requested in the same update takes
// precedence and suppresses the check.
func applyEscalationCheck(next *domain.Ticket, rc ruleContext) bool {
	if next.Deadline == nil || rc.statusChangedByCaller {
		return false
	}
	switch next.Status {
	case domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusEscalated:
		return false
	}
	if !rc.now.After(*next.Deadline) {
		return false
	}
	next.Status = domain.TicketStatusEscalated
	return true
}

// applyIdleCloseCheck forces Closed when a ticket would end up
// Waiting-For-Customer after the customer has been silent for the whole
// idle window. Measures from the state before this update.
func applyIdleCloseCheck(prior, next *domain.Ticket, rc ruleContext) bool {
	if next.Status != domain.TicketStatusWaiting {
		return false
	}
	if rc.now.Sub(prior.LastActivity()) < rc.idleCloseWindow {
		return false
	}
	next.Status = domain.TicketStatusClosed
	return true
}

// validateInProgressAssigned rejects any resulting state where a ticket is
// In-Progress with nobody working on it.
func validateInProgressAssigned(next *domain.Ticket) error {
	if next.Status == domain.TicketStatusInProgress && next.AssigneeID == nil {
		return apperrors.NewValidationError("a ticket cannot be in progress without an assignee", nil)
	}
	return nil
}
