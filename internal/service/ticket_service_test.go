package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

type engineFixture struct {
	now           time.Time
	tickets       *fakeTicketRepo
	users         *fakeUserRepo
	priorities    *fakePriorityRepo
	history       *fakeHistoryRepo
	notifications *fakeNotificationRepo
	threads       *fakeThreadRepo
	engine        *TicketService

	customer *domain.User
	agent    *domain.User
	agent2   *domain.User
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		now:           time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		tickets:       newFakeTicketRepo(),
		users:         newFakeUserRepo(),
		priorities:    newFakePriorityRepo(),
		history:       newFakeHistoryRepo(),
		notifications: newFakeNotificationRepo(),
		threads:       newFakeThreadRepo(),
	}

	fx.customer = &domain.User{ID: "customer-1", AccountID: "account-1", Name: "Dana", Email: "dana@acme.test", JobTitle: "Owner", Role: domain.RoleCustomer, Active: true}
	fx.agent = &domain.User{ID: "agent-1", AccountID: "account-1", Name: "Rui", Email: "rui@acme.test", JobTitle: "Support Engineer", Role: domain.RoleAgent, Active: true}
	fx.agent2 = &domain.User{ID: "agent-2", AccountID: "account-1", Name: "Sam", Email: "sam@acme.test", JobTitle: "Support Engineer", Role: domain.RoleAgent, Active: true}
	fx.users.add(fx.customer)
	fx.users.add(fx.agent)
	fx.users.add(fx.agent2)

	fx.priorities.add(&domain.TicketPriority{ID: "priority-high", Label: "High", Duration: time.Hour})
	fx.priorities.add(&domain.TicketPriority{ID: "priority-low", Label: "Low", Duration: 8 * time.Hour})

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := NewNotificationService(NotificationDependencies{
		NotificationRepo: fx.notifications,
		UserRepo:         fx.users,
		ThreadRepo:       fx.threads,
	})
	notificationService.Subscribe(dispatcher)

	fx.engine = NewTicketService(config.LifecycleConfig{IdleCloseWindow: 24 * time.Hour}, TicketDependencies{
		TicketRepo:   fx.tickets,
		UserRepo:     fx.users,
		PriorityRepo: fx.priorities,
		HistoryRepo:  fx.history,
		Dispatcher:   dispatcher,
	})
	fx.engine.clock = func() time.Time { return fx.now }
	return fx
}

func (fx *engineFixture) createTicket(t *testing.T, input TicketCreateInput) *domain.Ticket {
	t.Helper()
	if input.Title == "" {
		input.Title = fmt.Sprintf("Ticket %d", fx.tickets.seq+1)
	}
	if input.PriorityID == "" {
		input.PriorityID = "priority-high"
	}
	ticket, err := fx.engine.Create(context.Background(), fx.customer, input)
	require.NoError(t, err)
	return ticket
}

func TestCreateUnassignedTicket(t *testing.T) {
	fx := newEngineFixture(t)

	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down", Description: "3rd floor"})

	assert.Equal(t, domain.TicketStatusTodo, ticket.Status)
	assert.Nil(t, ticket.AssigneeID)
	assert.Nil(t, ticket.StartTime)
	assert.Nil(t, ticket.Deadline)
	assert.Empty(t, fx.history.byTicket(ticket.ID), "creation must not write history")

	stored := fx.notifications.last()
	require.NotNil(t, stored)
	assert.Equal(t, "Ticket Created", stored.notification.Purpose)
	assert.ElementsMatch(t, []string{"customer-1", "agent-1", "agent-2"}, stored.recipients)
}

func TestCreateAssignedTicketStartsSLA(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID

	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	require.NotNil(t, ticket.StartTime)
	require.NotNil(t, ticket.Deadline)
	assert.Equal(t, fx.now, *ticket.StartTime)
	assert.Equal(t, fx.now.Add(time.Hour), *ticket.Deadline)

	stored := fx.notifications.last()
	require.NotNil(t, stored)
	assert.ElementsMatch(t, []string{"customer-1", "agent-1"}, stored.recipients)
}

func TestCreateWithSLAOverride(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	override := 30 * time.Minute

	ticket := fx.createTicket(t, TicketCreateInput{Title: "Urgent outage", AssigneeID: &agentID, SLAOverride: &override})

	require.NotNil(t, ticket.Deadline)
	assert.Equal(t, fx.now.Add(30*time.Minute), *ticket.Deadline)
}

func TestCreateDuplicateTitleRejected(t *testing.T) {
	fx := newEngineFixture(t)
	fx.createTicket(t, TicketCreateInput{Title: "Printer down"})

	_, err := fx.engine.Create(context.Background(), fx.customer, TicketCreateInput{Title: "Printer down", PriorityID: "priority-high"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateRequiresCustomerRole(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.engine.Create(context.Background(), fx.agent, TicketCreateInput{Title: "By agent", PriorityID: "priority-high"})
	require.Error(t, err)
	assert.True(t, apperrors.IsPermission(err))
}

func TestUpdateInvalidTransitionRejected(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down"})
	created := len(fx.notifications.all())

	status := domain.TicketStatusResolved
	_, err := fx.engine.Update(context.Background(), fx.customer, ticket.ID, TicketUpdateInput{Status: &status})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	assert.Empty(t, fx.history.byTicket(ticket.ID))
	assert.Len(t, fx.notifications.all(), created, "rejected update must not notify")

	persisted, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusTodo, persisted.Status)
}

func TestUpdateUnknownStatusRejected(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down"})

	status := domain.TicketStatus("Archived")
	_, err := fx.engine.Update(context.Background(), fx.customer, ticket.ID, TicketUpdateInput{Status: &status})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateDiffsTrackedFieldsIntoOneHistoryRow(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down", Description: "3rd floor"})

	title := "Printer offline"
	description := "3rd floor, building B"
	priorityID := "priority-low"
	_, err := fx.engine.Update(context.Background(), fx.customer, ticket.ID, TicketUpdateInput{
		Title:       &title,
		Description: &description,
		PriorityID:  &priorityID,
	})
	require.NoError(t, err)

	entries := fx.history.byTicket(ticket.ID)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, domain.HistoryActorUser, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "customer-1", *entry.ActorID)
	require.Len(t, entry.Changes, 3)
	assert.Equal(t, domain.FieldChange{Old: "Printer down", New: "Printer offline"}, entry.Changes["title"])
	assert.Equal(t, domain.FieldChange{Old: "High", New: "Low"}, entry.Changes["priority"])
	assert.Equal(t, domain.FieldChange{Old: "3rd floor", New: "3rd floor, building B"}, entry.Changes["description"])
}

func TestUpdateRendersAssigneeAndTimeLabels(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken"})

	_, err := fx.engine.Assign(context.Background(), fx.customer, ticket.ID, fx.agent.ID)
	require.NoError(t, err)

	entries := fx.history.byTicket(ticket.ID)
	require.Len(t, entries, 1)
	changes := entries[0].Changes
	assert.Equal(t, domain.FieldChange{Old: "", New: "Rui (Support Engineer)"}, changes["assignee"])
	assert.Equal(t, domain.FieldChange{Old: string(domain.TicketStatusTodo), New: string(domain.TicketStatusInProgress)}, changes["status"])
	assert.Equal(t, domain.FieldChange{Old: "", New: "2025-03-10 09:00"}, changes["start_time"])
	assert.Equal(t, domain.FieldChange{Old: "", New: "2025-03-10 10:00"}, changes["deadline"])
}

func TestUpdateStatusChangeNotifiesWithActorName(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	status := domain.TicketStatusResolved
	_, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)

	stored := fx.notifications.last()
	require.NotNil(t, stored)
	assert.Equal(t, "Rui changed status of Ticket: 'VPN broken' from 'In-Progress' to 'Resolved'", stored.notification.Purpose)
	assert.ElementsMatch(t, []string{"customer-1", "agent-1"}, stored.recipients)
}

func TestOverdueUpdateForcesEscalation(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	fx.now = fx.now.Add(time.Hour + time.Minute)
	description := "still broken"
	updated, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Description: &description})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, updated.Status)

	entries := fx.history.byTicket(ticket.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.FieldChange{
		Old: string(domain.TicketStatusInProgress),
		New: string(domain.TicketStatusEscalated),
	}, entries[0].Changes["status"])
	assert.Contains(t, entries[0].Changes, "description")

	stored := fx.notifications.last()
	require.NotNil(t, stored)
	assert.Equal(t, "System has changed the ticket status from 'In-Progress' to 'Escalated'", stored.notification.Purpose)
	assert.ElementsMatch(t, []string{"customer-1", "agent-1"}, stored.recipients)
}

func TestCallerStatusChangeSuppressesEscalation(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	fx.now = fx.now.Add(2 * time.Hour)
	status := domain.TicketStatusResolved
	updated, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
}

func TestTerminalStatusNeverEscalates(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	status := domain.TicketStatusResolved
	_, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)

	fx.now = fx.now.Add(3 * time.Hour)
	description := "wrap up notes"
	updated, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Description: &description})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
}

func TestInProgressWithoutAssigneeRejected(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})
	historyBefore := len(fx.history.byTicket(ticket.ID))
	notificationsBefore := len(fx.notifications.all())

	_, err := fx.engine.Update(context.Background(), fx.customer, ticket.ID, TicketUpdateInput{ClearAssignee: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	assert.Len(t, fx.history.byTicket(ticket.ID), historyBefore)
	assert.Len(t, fx.notifications.all(), notificationsBefore)

	persisted, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted.AssigneeID)
}

func TestIdleTicketMovingToWaitingIsForceClosed(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	fx.tickets.mu.Lock()
	fx.tickets.tickets[ticket.ID].LastChangedAt = fx.now.Add(-25 * time.Hour)
	fx.tickets.mu.Unlock()

	status := domain.TicketStatusWaiting
	updated, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, updated.Status)

	stored := fx.notifications.last()
	require.NotNil(t, stored)
	assert.Equal(t, "System has changed the ticket status from 'In-Progress' to 'Closed'", stored.notification.Purpose)
}

func TestStartTimeAndDeadlineSetOnlyOnce(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})
	originalStart := *ticket.StartTime
	originalDeadline := *ticket.Deadline

	waiting := domain.TicketStatusWaiting
	_, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Status: &waiting})
	require.NoError(t, err)

	fx.now = fx.now.Add(10 * time.Minute)
	inProgress := domain.TicketStatusInProgress
	updated, err := fx.engine.Update(context.Background(), fx.agent, ticket.ID, TicketUpdateInput{Status: &inProgress})
	require.NoError(t, err)

	require.NotNil(t, updated.StartTime)
	require.NotNil(t, updated.Deadline)
	assert.Equal(t, originalStart, *updated.StartTime)
	assert.Equal(t, originalDeadline, *updated.Deadline)
}

func TestUpdateRetriesOnceOnVersionConflict(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down"})

	fx.tickets.failUpdates = 1
	description := "updated"
	_, err := fx.engine.Update(context.Background(), fx.customer, ticket.ID, TicketUpdateInput{Description: &description})
	require.NoError(t, err)

	fx.tickets.failUpdates = 2
	description = "updated again"
	_, err = fx.engine.Update(context.Background(), fx.customer, ticket.ID, TicketUpdateInput{Description: &description})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestAssignUnassignedTicket(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down"})

	updated, err := fx.engine.Assign(context.Background(), fx.customer, ticket.ID, fx.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, "agent-1", *updated.AssigneeID)
	require.NotNil(t, updated.StartTime)
	assert.Equal(t, fx.now, *updated.StartTime)
	require.NotNil(t, updated.Deadline)
	assert.Equal(t, fx.now.Add(time.Hour), *updated.Deadline)

	stored := fx.notifications.last()
	require.NotNil(t, stored)
	assert.Equal(t, "Ticket Assigned", stored.notification.Purpose)
	assert.ElementsMatch(t, []string{"agent-1", "customer-1"}, stored.recipients)
}

func TestAssignAlreadyAssignedTicketRejected(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	_, err := fx.engine.Assign(context.Background(), fx.customer, ticket.ID, fx.agent2.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAssignInactiveAgentRejected(t *testing.T) {
	fx := newEngineFixture(t)
	ticket := fx.createTicket(t, TicketCreateInput{Title: "Printer down"})

	fx.agent.Active = false
	fx.users.add(fx.agent)

	_, err := fx.engine.Assign(context.Background(), fx.customer, ticket.ID, fx.agent.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeactivateAgentReturnsTicketsToBacklog(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	first := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})
	second := fx.createTicket(t, TicketCreateInput{Title: "Mail bounce", AssigneeID: &agentID})

	err := fx.engine.DeactivateAgent(context.Background(), fx.customer, fx.agent.ID)
	require.NoError(t, err)

	agent, err := fx.users.GetByID(context.Background(), fx.agent.ID)
	require.NoError(t, err)
	assert.False(t, agent.Active)
	require.NotNil(t, agent.DeactivatedAt)

	for _, ticketID := range []string{first.ID, second.ID} {
		persisted, err := fx.tickets.GetByID(context.Background(), ticketID)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusTodo, persisted.Status)
		assert.Nil(t, persisted.AssigneeID)
		assert.Nil(t, persisted.StartTime)
		assert.Nil(t, persisted.Deadline)
		assert.NotEmpty(t, fx.history.byTicket(ticketID))
	}

	// Second deactivation is a no-op.
	historyCount := len(fx.history.entries)
	require.NoError(t, fx.engine.DeactivateAgent(context.Background(), fx.customer, fx.agent.ID))
	assert.Len(t, fx.history.entries, historyCount)
}

func TestDeactivateAgentRequiresCustomer(t *testing.T) {
	fx := newEngineFixture(t)

	err := fx.engine.DeactivateAgent(context.Background(), fx.agent2, fx.agent.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermission(err))
}

func TestParticipantGuardOnReads(t *testing.T) {
	fx := newEngineFixture(t)
	agentID := fx.agent.ID
	ticket := fx.createTicket(t, TicketCreateInput{Title: "VPN broken", AssigneeID: &agentID})

	_, err := fx.engine.GetForParticipant(context.Background(), fx.agent2, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermission(err))

	_, err = fx.engine.GetForParticipant(context.Background(), fx.agent, ticket.ID)
	require.NoError(t, err)
	_, err = fx.engine.GetForParticipant(context.Background(), fx.customer, ticket.ID)
	require.NoError(t, err)
}

func TestTransitionOptionsIncludeCurrent(t *testing.T) {
	options := TransitionOptions(domain.TicketStatusInProgress)
	assert.Equal(t, domain.TicketStatusInProgress, options[0])
	assert.Contains(t, options, domain.TicketStatusWaiting)
	assert.Contains(t, options, domain.TicketStatusResolved)
	assert.Len(t, options, 3)

	closed := TransitionOptions(domain.TicketStatusClosed)
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusClosed}, closed)
}
