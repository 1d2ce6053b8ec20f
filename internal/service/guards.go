package service

import (
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// Access checks are plain guard functions composed at the start of each
// operation, not middleware: every engine entry point states its own
// requirements explicitly.

func requireRole(user *domain.User, role domain.UserRole) error {
	if user == nil || user.Role != role {
		return apperrors.NewPermissionError(string(role) + " role required")
	}
	return nil
}

func requireSameAccount(a, b *domain.User) error {
	if a == nil || b == nil || a.AccountID != b.AccountID {
		return apperrors.NewPermissionError("users belong to different accounts")
	}
	return nil
}

func requireAccountMember(user *domain.User, ticket *domain.Ticket) error {
	if user == nil || ticket == nil || user.AccountID != ticket.AccountID {
		return apperrors.NewPermissionError("ticket belongs to a different account")
	}
	return nil
}

// requireParticipant admits only the ticket's creator or current assignee.
func requireParticipant(user *domain.User, ticket *domain.Ticket) error {
	if err := requireAccountMember(user, ticket); err != nil {
		return err
	}
	if user.ID == ticket.CreatorID {
		return nil
	}
	if ticket.AssigneeID != nil && user.ID == *ticket.AssigneeID {
		return nil
	}
	return apperrors.NewPermissionError("only the ticket creator or assignee may do this")
}
