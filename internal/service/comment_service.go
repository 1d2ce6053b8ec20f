package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// CommentService manages comment threads on tickets. A top-level comment
// opens a fresh thread group and anchors it to the ticket; a reply joins
// the group of the message it answers.
type CommentService struct {
	tickets    repository.TicketRepository
	threads    repository.ThreadRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	newGroupID func() string
}

// CommentDependencies bundles collaborators for the service.
type CommentDependencies struct {
	TicketRepo repository.TicketRepository
	ThreadRepo repository.ThreadRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewCommentService constructs the service.
func NewCommentService(deps CommentDependencies) *CommentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{
		tickets:    deps.TicketRepo,
		threads:    deps.ThreadRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		newGroupID: uuid.NewString,
	}
}

// PostMessage writes a comment or a reply. Only the ticket's creator or
// current assignee may post. With replyTo set, the new message reuses the
// referenced message's thread group; otherwise a new group is started with
// its anchoring comment.
func (s *CommentService) PostMessage(ctx context.Context, author *domain.User, ticketID, body string, replyTo *string) (*domain.ThreadMessage, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(author, ticket); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}

	if replyTo == nil {
		message := &domain.ThreadMessage{
			ThreadGroup: s.newGroupID(),
			Body:        body,
			AuthorID:    author.ID,
		}
		if _, err := s.threads.CreateThread(ctx, ticket.ID, message); err != nil {
			return nil, apperrors.MapError(err)
		}
		if err := s.publish(ctx, events.Event{
			Type:      events.EventTicketCommented,
			TicketID:  ticket.ID,
			AccountID: ticket.AccountID,
			Actor:     events.UserActor(author.ID),
			Payload: events.TicketCommentedPayload{
				Title:       ticket.Title,
				CreatorID:   ticket.CreatorID,
				AssigneeID:  ticket.AssigneeID,
				ThreadGroup: message.ThreadGroup,
				Body:        body,
			},
		}); err != nil {
			return nil, err
		}
		return message, nil
	}

	parent, err := s.threads.GetMessage(ctx, *replyTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("message", map[string]any{"message_id": *replyTo})
		}
		return nil, apperrors.MapError(err)
	}
	anchor, err := s.threads.GetCommentByGroup(ctx, parent.ThreadGroup)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if anchor.TicketID != ticket.ID {
		return nil, apperrors.NewValidationError("message belongs to a different ticket", map[string]any{"message_id": *replyTo})
	}

	message := &domain.ThreadMessage{
		ThreadGroup: parent.ThreadGroup,
		Body:        body,
		AuthorID:    author.ID,
	}
	if err := s.threads.CreateReply(ctx, message); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.publish(ctx, events.Event{
		Type:      events.EventTicketReplied,
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Actor:     events.UserActor(author.ID),
		Payload: events.TicketRepliedPayload{
			Title:       ticket.Title,
			ThreadGroup: message.ThreadGroup,
			Body:        body,
		},
	}); err != nil {
		return nil, err
	}
	return message, nil
}

// ListThreads returns a ticket's threads, newest thread first with each
// thread's messages in posting order. Participant only.
func (s *CommentService) ListThreads(ctx context.Context, viewer *domain.User, ticketID string) ([]domain.CommentThread, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(viewer, ticket); err != nil {
		return nil, err
	}
	threads, err := s.threads.ListThreadsByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return threads, nil
}

func (s *CommentService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *CommentService) publish(ctx context.Context, event events.Event) error {
	if s.dispatcher == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return apperrors.MapError(err)
	}
	return nil
}
