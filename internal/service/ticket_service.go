package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService is the lifecycle engine: it owns status transitions, SLA
// deadline computation, forced escalation/idle-close, the audit trail, and
// the events that drive notification fan-out.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	priorities repository.PriorityRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	lifecycle  config.LifecycleConfig

	// clock is swappable for tests.
	clock func() time.Time
}

// TicketDependencies bundles collaborators for the engine.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	PriorityRepo repository.PriorityRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewTicketService constructs the engine.
func NewTicketService(lifecycle config.LifecycleConfig, deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if lifecycle.IdleCloseWindow <= 0 {
		lifecycle.IdleCloseWindow = 24 * time.Hour
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		priorities: deps.PriorityRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		lifecycle:  lifecycle,
		clock:      time.Now,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	PriorityID  string
	AssigneeID  *string
	// SLAOverride replaces the priority's duration for the initial
	// deadline when the ticket is created pre-assigned.
	SLAOverride *time.Duration
}

// TicketUpdateInput carries the field changes of one update operation.
// Nil pointers leave a field untouched.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	PriorityID  *string
	Status      *domain.TicketStatus
	AssigneeID  *string
	// ClearAssignee unassigns; it wins over AssigneeID.
	ClearAssignee bool
	// Deadline explicitly sets the deadline in this change, suppressing
	// the assignment-start computation.
	Deadline *time.Time
	// ClearSchedule wipes start_time and deadline; used when a ticket is
	// returned to the backlog.
	ClearSchedule bool
}

type updateOptions struct {
	// systemForced bypasses the operator transition table; reserved for
	// escalation, idle-close, and the agent-deactivation cascade.
	systemForced bool
	// assignEvent publishes ticket_assigned instead of the generic
	// status-changed event.
	assignEvent bool
}

// Create opens a new ticket for a customer. A pre-assigned ticket enters
// In-Progress immediately and starts its SLA clock.
func (s *TicketService) Create(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireRole(creator, domain.RoleCustomer); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if err := s.requireUniqueTitle(ctx, title); err != nil {
		return nil, err
	}
	priority, err := s.priorities.GetByID(ctx, input.PriorityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("priority", map[string]any{"priority_id": input.PriorityID})
		}
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		AccountID:   creator.AccountID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Category:    strings.TrimSpace(input.Category),
		CreatorID:   creator.ID,
		PriorityID:  priority.ID,
		Status:      domain.TicketStatusTodo,
	}

	if input.AssigneeID != nil {
		assignee, err := s.resolveAssignee(ctx, creator.AccountID, *input.AssigneeID)
		if err != nil {
			return nil, err
		}
		now := s.clock()
		sla := priority.Duration
		if input.SLAOverride != nil {
			sla = *input.SLAOverride
		}
		deadline := now.Add(sla)
		ticket.AssigneeID = &assignee.ID
		ticket.Status = domain.TicketStatusInProgress
		ticket.StartTime = &now
		ticket.Deadline = &deadline
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.publish(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Actor:     events.UserActor(creator.ID),
		Payload: events.TicketCreatedPayload{
			Title:      ticket.Title,
			CreatorID:  ticket.CreatorID,
			AssigneeID: ticket.AssigneeID,
		},
	}); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Update applies field changes from an actor, runs the rule pipeline, and
// records history plus notifications for whatever actually changed. A
// version conflict is retried once against fresh state before being
// surfaced.
func (s *TicketService) Update(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	return s.retryOnConflict(func() (*domain.Ticket, error) {
		ticket, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if actor != nil {
			if err := requireParticipant(actor, ticket); err != nil {
				return nil, err
			}
		}
		return s.applyUpdate(ctx, actor, ticket, input, updateOptions{})
	})
}

// Assign hands an unassigned ticket to an agent; the assignment-start rule
// computes start_time and deadline exactly as in Update.
func (s *TicketService) Assign(ctx context.Context, actor *domain.User, ticketID, agentID string) (*domain.Ticket, error) {
	return s.retryOnConflict(func() (*domain.Ticket, error) {
		ticket, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if err := requireAccountMember(actor, ticket); err != nil {
			return nil, err
		}
		if ticket.AssigneeID != nil {
			return nil, apperrors.NewValidationError("ticket already assigned", map[string]any{"ticket_id": ticket.ID})
		}
		status := domain.TicketStatusInProgress
		input := TicketUpdateInput{AssigneeID: &agentID, Status: &status}
		return s.applyUpdate(ctx, actor, ticket, input, updateOptions{assignEvent: true})
	})
}

// DeactivateAgent soft-deletes an agent and returns every open ticket they
// held to the backlog: unassigned, TODO, schedule cleared, one history row
// per ticket.
func (s *TicketService) DeactivateAgent(ctx context.Context, actor *domain.User, agentID string) error {
	if err := requireRole(actor, domain.RoleCustomer); err != nil {
		return err
	}
	agent, err := s.users.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return apperrors.MapError(err)
	}
	if err := requireRole(agent, domain.RoleAgent); err != nil {
		return err
	}
	if err := requireSameAccount(actor, agent); err != nil {
		return err
	}
	if !agent.Active {
		return nil
	}

	now := s.clock()
	agent.Active = false
	agent.DeactivatedAt = &now
	if err := s.users.Update(ctx, agent); err != nil {
		return apperrors.MapError(err)
	}

	open, err := s.tickets.ListOpenByAssignee(ctx, agent.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	status := domain.TicketStatusTodo
	input := TicketUpdateInput{ClearAssignee: true, ClearSchedule: true, Status: &status}

	var errs []error
	for i := range open {
		ticketID := open[i].ID
		_, err := s.retryOnConflict(func() (*domain.Ticket, error) {
			ticket, err := s.loadTicket(ctx, ticketID)
			if err != nil {
				return nil, err
			}
			if ticket.AssigneeID == nil || *ticket.AssigneeID != agent.ID {
				return ticket, nil
			}
			return s.applyUpdate(ctx, actor, ticket, input, updateOptions{systemForced: true})
		})
		if err != nil {
			s.logger.Error("failed to unassign ticket from deactivated agent",
				zap.String("ticket_id", ticketID), zap.String("agent_id", agent.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetForParticipant fetches a ticket, admitting only its creator or
// assignee.
func (s *TicketService) GetForParticipant(ctx context.Context, viewer *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(viewer, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListByAccount returns the viewer's account tickets, most recently
// changed first.
func (s *TicketService) ListByAccount(ctx context.Context, viewer *domain.User, limit, offset int) ([]domain.Ticket, error) {
	if viewer == nil {
		return nil, apperrors.NewUnauthorized("viewer required")
	}
	tickets, err := s.tickets.ListByAccount(ctx, viewer.AccountID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListHistory returns a ticket's audit trail newest-first, participant
// only.
func (s *TicketService) ListHistory(ctx context.Context, viewer *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(viewer, ticket); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ListPriorities exposes the SLA priority reference table.
func (s *TicketService) ListPriorities(ctx context.Context) ([]domain.TicketPriority, error) {
	priorities, err := s.priorities.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return priorities, nil
}

// TransitionOptions returns the statuses an operator may pick from the
// given one. The current status is always included as the no-op choice.
func TransitionOptions(current domain.TicketStatus) []domain.TicketStatus {
	options := []domain.TicketStatus{current}
	for _, next := range domain.AllowedTransitions(current) {
		if next != current {
			options = append(options, next)
		}
	}
	return options
}

// applyUpdate is the single write path every mutation funnels through:
// validate requested changes, run the rule pipeline, persist with the
// version check, diff for history, and emit the matching event.
func (s *TicketService) applyUpdate(ctx context.Context, actor *domain.User, ticket *domain.Ticket, input TicketUpdateInput, opts updateOptions) (*domain.Ticket, error) {
	prior := *ticket
	next := *ticket
	now := s.clock()

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title required", nil)
		}
		if title != next.Title {
			if err := s.requireUniqueTitle(ctx, title); err != nil {
				return nil, err
			}
			next.Title = title
		}
	}
	if input.Description != nil {
		next.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		next.Category = strings.TrimSpace(*input.Category)
	}
	if input.PriorityID != nil && *input.PriorityID != next.PriorityID {
		if _, err := s.priorities.GetByID(ctx, *input.PriorityID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("priority", map[string]any{"priority_id": *input.PriorityID})
			}
			return nil, apperrors.MapError(err)
		}
		next.PriorityID = *input.PriorityID
	}

	reassigned := false
	if input.AssigneeID != nil {
		assignee, err := s.resolveAssignee(ctx, next.AccountID, *input.AssigneeID)
		if err != nil {
			return nil, err
		}
		if next.AssigneeID == nil || *next.AssigneeID != assignee.ID {
			reassigned = next.AssigneeID != nil
			id := assignee.ID
			next.AssigneeID = &id
		}
	}
	if input.ClearAssignee {
		next.AssigneeID = nil
	}
	if input.Deadline != nil {
		deadline := *input.Deadline
		next.Deadline = &deadline
	}
	if input.ClearSchedule {
		next.StartTime = nil
		next.Deadline = nil
	}

	statusChanged := false
	if input.Status != nil && *input.Status != next.Status {
		if !domain.KnownStatus(*input.Status) {
			return nil, apperrors.NewNotFound("status", map[string]any{"status": *input.Status})
		}
		if !opts.systemForced && !domain.CanTransition(prior.Status, *input.Status) {
			return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
				"from": prior.Status,
				"to":   *input.Status,
			})
		}
		next.Status = *input.Status
		statusChanged = true
	}

	rc := ruleContext{
		now:                   now,
		priority:              s.lookupPriority(ctx, next.PriorityID),
		statusChangedByCaller: statusChanged,
		deadlineSetByCaller:   input.Deadline != nil,
		reassigned:            reassigned,
		recomputeOnReassign:   s.lifecycle.RecomputeDeadlineOnReassign,
		idleCloseWindow:       s.lifecycle.IdleCloseWindow,
	}

	applyAssignmentStart(&prior, &next, rc)
	applyReassignRecompute(&prior, &next, rc)
	forced := applyEscalationCheck(&next, rc)
	forced = applyIdleCloseCheck(&prior, &next, rc) || forced
	if err := validateInProgressAssigned(&next); err != nil {
		return nil, err
	}

	next.LastChangedAt = now
	if err := s.tickets.Update(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.NewConflict("ticket was modified concurrently, please retry", map[string]any{"ticket_id": next.ID})
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.recordHistory(ctx, actor, &prior, &next); err != nil {
		return nil, err
	}
	if err := s.publishTicketUpdated(ctx, actor, &prior, &next, forced || opts.systemForced, opts.assignEvent); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *TicketService) recordHistory(ctx context.Context, actor *domain.User, prior, next *domain.Ticket) error {
	changes := diffTracked(prior, next, s.renderContextFor(ctx, prior, next))
	if len(changes) == 0 {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:  next.ID,
		ActorType: domain.HistoryActorSystem,
		Changes:   changes,
	}
	if actor != nil {
		entry.ActorType = domain.HistoryActorUser
		actorID := actor.ID
		entry.ActorID = &actorID
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) publishTicketUpdated(ctx context.Context, actor *domain.User, prior, next *domain.Ticket, forced, assignEvent bool) error {
	eventActor := events.SystemActor()
	if actor != nil {
		eventActor = events.UserActor(actor.ID)
	}
	if assignEvent && next.AssigneeID != nil {
		return s.publish(ctx, events.Event{
			Type:      events.EventTicketAssigned,
			TicketID:  next.ID,
			AccountID: next.AccountID,
			Actor:     eventActor,
			Payload: events.TicketAssignedPayload{
				Title:      next.Title,
				CreatorID:  next.CreatorID,
				AssigneeID: *next.AssigneeID,
			},
		})
	}
	if next.Status == prior.Status {
		return nil
	}
	return s.publish(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TicketID:  next.ID,
		AccountID: next.AccountID,
		Actor:     eventActor,
		Payload: events.TicketStatusChangedPayload{
			Title:      next.Title,
			CreatorID:  next.CreatorID,
			AssigneeID: next.AssigneeID,
			OldStatus:  prior.Status,
			NewStatus:  next.Status,
			Forced:     forced,
		},
	})
}

func (s *TicketService) renderContextFor(ctx context.Context, states ...*domain.Ticket) renderContext {
	rc := renderContext{
		priorityLabels: make(map[string]string),
		userLabels:     make(map[string]string),
	}
	for _, state := range states {
		if _, ok := rc.priorityLabels[state.PriorityID]; !ok {
			if priority := s.lookupPriority(ctx, state.PriorityID); priority != nil {
				rc.priorityLabels[state.PriorityID] = priority.Label
			}
		}
		if state.AssigneeID != nil {
			if _, ok := rc.userLabels[*state.AssigneeID]; !ok {
				if user, err := s.users.GetByID(ctx, *state.AssigneeID); err == nil {
					rc.userLabels[*state.AssigneeID] = user.DisplayLabel()
				}
			}
		}
	}
	return rc
}

// lookupPriority resolves a priority for rule evaluation and label
// rendering. Failures degrade to nil: a missing reference row must never
// block an otherwise valid write.
func (s *TicketService) lookupPriority(ctx context.Context, priorityID string) *domain.TicketPriority {
	priority, err := s.priorities.GetByID(ctx, priorityID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("priority lookup failed", zap.String("priority_id", priorityID), zap.Error(err))
		}
		return nil
	}
	return priority
}

func (s *TicketService) resolveAssignee(ctx context.Context, accountID, assigneeID string) (*domain.User, error) {
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assignee", map[string]any{"assignee_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if assignee.Role != domain.RoleAgent {
		return nil, apperrors.NewValidationError("assignee must be an agent", map[string]any{"assignee_id": assigneeID})
	}
	if !assignee.Active {
		return nil, apperrors.NewValidationError("assignee is deactivated", map[string]any{"assignee_id": assigneeID})
	}
	if assignee.AccountID != accountID {
		return nil, apperrors.NewPermissionError("assignee belongs to a different account")
	}
	return assignee, nil
}

func (s *TicketService) requireUniqueTitle(ctx context.Context, title string) error {
	existing, err := s.tickets.GetByTitle(ctx, title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperrors.MapError(err)
	}
	if existing != nil {
		return apperrors.NewValidationError("ticket title already in use", map[string]any{"title": title})
	}
	return nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// retryOnConflict runs op and retries it exactly once when the optimistic
// version check failed; op re-reads the ticket so the second attempt sees
// fresh state.
func (s *TicketService) retryOnConflict(op func() (*domain.Ticket, error)) (*domain.Ticket, error) {
	ticket, err := op()
	if err != nil && apperrors.IsConflict(err) {
		ticket, err = op()
	}
	return ticket, err
}

func (s *TicketService) publish(ctx context.Context, event events.Event) error {
	if s.dispatcher == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
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
