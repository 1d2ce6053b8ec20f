package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const (
	unreadCountKeyPrefix = "helpdesk:unread:"
	unreadCountTTL       = 5 * time.Minute
)

// NotificationService turns lifecycle events into notification rows with
// per-recipient read state, and serves the per-user feed. The unread
// counter is cached in Redis and invalidated on every fan-out and
// mark-read.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	threads       repository.ThreadRepository
	cache         *redis.Client
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators for the service.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	ThreadRepo       repository.ThreadRepository
	Cache            *redis.Client
	Logger           *zap.Logger
}

// NewNotificationService constructs the service. Cache may be nil; the
// unread count then always hits the database.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		threads:       deps.ThreadRepo,
		cache:         deps.Cache,
		logger:        logger,
	}
}

// Subscribe registers the fan-out handlers on the dispatcher.
func (s *NotificationService) Subscribe(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, s.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketAssigned, s.handleTicketAssigned)
	dispatcher.Subscribe(events.EventTicketStatusChanged, s.handleStatusChanged)
	dispatcher.Subscribe(events.EventTicketCommented, s.handleCommented)
	dispatcher.Subscribe(events.EventTicketReplied, s.handleReplied)
}

func (s *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	recipients := []string{payload.CreatorID}
	if payload.AssigneeID != nil {
		recipients = append(recipients, *payload.AssigneeID)
	} else {
		agents, err := s.users.ListActiveAgents(ctx, event.AccountID)
		if err != nil {
			return err
		}
		for _, agent := range agents {
			recipients = append(recipients, agent.ID)
		}
	}
	return s.fanOut(ctx, event.TicketID, event.Actor.UserID, "Ticket Created", recipients)
}

func (s *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	recipients := []string{payload.AssigneeID, payload.CreatorID}
	return s.fanOut(ctx, event.TicketID, event.Actor.UserID, "Ticket Assigned", recipients)
}

func (s *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	var purpose string
	if payload.Forced || event.Actor.UserID == nil {
		purpose = fmt.Sprintf("System has changed the ticket status from '%s' to '%s'",
			payload.OldStatus, payload.NewStatus)
	} else {
		purpose = fmt.Sprintf("%s changed status of Ticket: '%s' from '%s' to '%s'",
			s.actorName(ctx, event.Actor.UserID), payload.Title, payload.OldStatus, payload.NewStatus)
	}
	recipients := []string{payload.CreatorID}
	if payload.AssigneeID != nil {
		recipients = append(recipients, *payload.AssigneeID)
	}
	return s.fanOut(ctx, event.TicketID, event.Actor.UserID, purpose, recipients)
}

func (s *NotificationService) handleCommented(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	purpose := fmt.Sprintf("%s has commented on Ticket '%s': %s",
		s.actorName(ctx, event.Actor.UserID), payload.Title, payload.Body)
	recipients := []string{payload.CreatorID}
	if payload.AssigneeID != nil {
		recipients = append(recipients, *payload.AssigneeID)
	} else {
		agents, err := s.users.ListActiveAgents(ctx, event.AccountID)
		if err != nil {
			return err
		}
		for _, agent := range agents {
			recipients = append(recipients, agent.ID)
		}
	}
	return s.fanOut(ctx, event.TicketID, event.Actor.UserID, purpose, recipients)
}

func (s *NotificationService) handleReplied(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketRepliedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	purpose := fmt.Sprintf("%s replied on Ticket '%s': %s",
		s.actorName(ctx, event.Actor.UserID), payload.Title, payload.Body)
	recipients, err := s.threads.ListCommenterIDs(ctx, payload.ThreadGroup)
	if err != nil {
		return err
	}
	return s.fanOut(ctx, event.TicketID, event.Actor.UserID, purpose, recipients)
}

// fanOut writes one notification plus recipient rows, deduplicated by
// user. Empty recipient sets are a no-op, not an error.
func (s *NotificationService) fanOut(ctx context.Context, ticketID string, notifierID *string, purpose string, recipients []string) error {
	distinct := make([]string, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		distinct = append(distinct, userID)
	}
	if len(distinct) == 0 {
		return nil
	}

	notification := &domain.Notification{
		TicketID:   ticketID,
		NotifierID: notifierID,
		Purpose:    purpose,
	}
	if err := s.notifications.CreateWithRecipients(ctx, notification, distinct); err != nil {
		return err
	}
	for _, userID := range distinct {
		s.invalidateUnreadCount(ctx, userID)
	}
	return nil
}

// Feed returns the user's most recent notifications plus their unread
// count.
func (s *NotificationService) Feed(ctx context.Context, user *domain.User, limit int) ([]domain.NotificationFeedItem, int64, error) {
	if user == nil {
		return nil, 0, apperrors.NewUnauthorized("viewer required")
	}
	items, err := s.notifications.ListForUser(ctx, user.ID, limit)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	unread, err := s.UnreadCount(ctx, user.ID)
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

// UnreadCount is cache-aside over Redis with a short TTL.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	key := unreadCountKeyPrefix + userID
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			if count, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return count, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("unread count cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	count, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, strconv.FormatInt(count, 10), unreadCountTTL).Err(); err != nil {
			s.logger.Warn("unread count cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return count, nil
}

// MarkAllRead flips every unread recipient row of the requesting user and
// returns how many rows changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, user *domain.User) (int64, error) {
	if user == nil {
		return 0, apperrors.NewUnauthorized("viewer required")
	}
	updated, err := s.notifications.MarkAllRead(ctx, user.ID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	s.invalidateUnreadCount(ctx, user.ID)
	return updated, nil
}

func (s *NotificationService) invalidateUnreadCount(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, unreadCountKeyPrefix+userID).Err(); err != nil {
		s.logger.Warn("unread count cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *NotificationService) actorName(ctx context.Context, actorID *string) string {
	if actorID == nil {
		return "System"
	}
	user, err := s.users.GetByID(ctx, *actorID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("actor lookup failed", zap.String("user_id", *actorID), zap.Error(err))
		}
		return *actorID
	}
	return user.Name
}
