package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// In-memory repository fakes. They mirror the SQL behavior the real
// repositories rely on: pgx.ErrNoRows for misses and the version check on
// ticket updates.

type fakeTicketRepo struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	seq         int
	failUpdates int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	ticket.Version = 1
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	if ticket.LastChangedAt.IsZero() {
		ticket.LastChangedAt = ticket.CreatedAt
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates > 0 {
		r.failUpdates--
		return repository.ErrVersionConflict
	}
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeTicketRepo) GetByTitle(_ context.Context, title string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tickets {
		if stored.Title == title {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.AccountID == accountID {
			result = append(result, *stored)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastChangedAt.After(result[j].LastChangedAt)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeTicketRepo) ListExpired(_ context.Context, now time.Time, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := make(map[domain.TicketStatus]struct{}, len(statuses))
	for _, status := range statuses {
		allowed[status] = struct{}{}
	}
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if _, ok := allowed[stored.Status]; !ok {
			continue
		}
		if stored.Deadline != nil && stored.Deadline.Before(now) {
			result = append(result, *stored)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) ListIdle(_ context.Context, status domain.TicketStatus, changedBefore time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Status == status && stored.LastChangedAt.Before(changedBefore) {
			result = append(result, *stored)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) ListOpenByAssignee(_ context.Context, assigneeID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.AssigneeID != nil && *stored.AssigneeID == assigneeID && stored.Open() {
			result = append(result, *stored)
		}
	}
	return result, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	seq   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	user.ID = fmt.Sprintf("user-%d", r.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, accountID, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.users {
		if stored.AccountID == accountID && stored.Email == email {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListActiveAgents(_ context.Context, accountID string) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, stored := range r.users {
		if stored.AccountID == accountID && stored.Role == domain.RoleAgent && stored.Active {
			result = append(result, *stored)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// add inserts a prebuilt user with its ID already set.
func (r *fakeUserRepo) add(user *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
}

type fakePriorityRepo struct {
	mu         sync.Mutex
	priorities map[string]*domain.TicketPriority
}

func newFakePriorityRepo() *fakePriorityRepo {
	return &fakePriorityRepo{priorities: make(map[string]*domain.TicketPriority)}
}

func (r *fakePriorityRepo) add(priority *domain.TicketPriority) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *priority
	r.priorities[priority.ID] = &copied
}

func (r *fakePriorityRepo) GetByID(_ context.Context, id string) (*domain.TicketPriority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.priorities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakePriorityRepo) GetByLabel(_ context.Context, label string) (*domain.TicketPriority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.priorities {
		if stored.Label == label {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakePriorityRepo) List(_ context.Context) ([]domain.TicketPriority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketPriority
	for _, stored := range r.priorities {
		result = append(result, *stored)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Duration < result[j].Duration })
	return result, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
	seq     int
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{}
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.ID = fmt.Sprintf("history-%d", r.seq)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].TicketID == ticketID {
			result = append(result, r.entries[i])
		}
	}
	return result, nil
}

func (r *fakeHistoryRepo) byTicket(ticketID string) []domain.TicketHistory {
	result, _ := r.ListByTicket(context.Background(), ticketID)
	return result
}

type storedNotification struct {
	notification domain.Notification
	recipients   []string
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []storedNotification
	readState     map[string]bool
	seq           int
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{readState: make(map[string]bool)}
}

func (r *fakeNotificationRepo) CreateWithRecipients(_ context.Context, notification *domain.Notification, recipientIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	notification.ID = fmt.Sprintf("notification-%d", r.seq)
	notification.SentAt = time.Now()
	r.notifications = append(r.notifications, storedNotification{
		notification: *notification,
		recipients:   append([]string{}, recipientIDs...),
	})
	for _, userID := range recipientIDs {
		r.readState[notification.ID+"|"+userID] = false
	}
	return nil
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, stored := range r.notifications {
		for _, recipient := range stored.recipients {
			if recipient != userID {
				continue
			}
			key := stored.notification.ID + "|" + userID
			if !r.readState[key] {
				r.readState[key] = true
				updated++
			}
		}
	}
	return updated, nil
}

func (r *fakeNotificationRepo) ListForUser(_ context.Context, userID string, limit int) ([]domain.NotificationFeedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var result []domain.NotificationFeedItem
	for i := len(r.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		stored := r.notifications[i]
		for _, recipient := range stored.recipients {
			if recipient != userID {
				continue
			}
			result = append(result, domain.NotificationFeedItem{
				RecipientID: stored.notification.ID + "|" + userID,
				Purpose:     stored.notification.Purpose,
				TicketID:    stored.notification.TicketID,
				IsRead:      r.readState[stored.notification.ID+"|"+userID],
				SentAt:      stored.notification.SentAt,
			})
		}
	}
	return result, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, stored := range r.notifications {
		for _, recipient := range stored.recipients {
			if recipient == userID && !r.readState[stored.notification.ID+"|"+userID] {
				count++
			}
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) all() []storedNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storedNotification{}, r.notifications...)
}

func (r *fakeNotificationRepo) last() *storedNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notifications) == 0 {
		return nil
	}
	stored := r.notifications[len(r.notifications)-1]
	return &stored
}

type fakeThreadRepo struct {
	mu       sync.Mutex
	messages map[string]*domain.ThreadMessage
	comments map[string]*domain.Comment
	seq      int
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{
		messages: make(map[string]*domain.ThreadMessage),
		comments: make(map[string]*domain.Comment),
	}
}

func (r *fakeThreadRepo) CreateThread(_ context.Context, ticketID string, message *domain.ThreadMessage) (*domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeMessage(message)
	r.seq++
	comment := &domain.Comment{
		ID:        fmt.Sprintf("comment-%d", r.seq),
		TicketID:  ticketID,
		MessageID: message.ID,
		CreatedAt: message.CreatedAt,
	}
	copied := *comment
	r.comments[comment.ID] = &copied
	return comment, nil
}

func (r *fakeThreadRepo) CreateReply(_ context.Context, message *domain.ThreadMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeMessage(message)
	return nil
}

func (r *fakeThreadRepo) storeMessage(message *domain.ThreadMessage) {
	r.seq++
	message.ID = fmt.Sprintf("message-%d", r.seq)
	message.CreatedAt = time.Now()
	copied := *message
	r.messages[message.ID] = &copied
}

func (r *fakeThreadRepo) GetCommentByGroup(_ context.Context, threadGroup string) (*domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, comment := range r.comments {
		anchor, ok := r.messages[comment.MessageID]
		if ok && anchor.ThreadGroup == threadGroup {
			copied := *comment
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeThreadRepo) GetMessage(_ context.Context, messageID string) (*domain.ThreadMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.messages[messageID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeThreadRepo) ListMessagesByGroup(_ context.Context, threadGroup string) ([]domain.ThreadMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.ThreadMessage
	for _, stored := range r.messages {
		if stored.ThreadGroup == threadGroup {
			result = append(result, *stored)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeThreadRepo) ListThreadsByTicket(ctx context.Context, ticketID string) ([]domain.CommentThread, error) {
	r.mu.Lock()
	var comments []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			comments = append(comments, *comment)
		}
	}
	r.mu.Unlock()
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID > comments[j].ID })

	threads := make([]domain.CommentThread, 0, len(comments))
	for _, comment := range comments {
		anchor, err := r.GetMessage(ctx, comment.MessageID)
		if err != nil {
			return nil, err
		}
		messages, err := r.ListMessagesByGroup(ctx, anchor.ThreadGroup)
		if err != nil {
			return nil, err
		}
		threads = append(threads, domain.CommentThread{Comment: comment, Messages: messages})
	}
	return threads, nil
}

func (r *fakeThreadRepo) ListCommenterIDs(_ context.Context, threadGroup string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var result []string
	for _, stored := range r.messages {
		if stored.ThreadGroup != threadGroup {
			continue
		}
		if _, ok := seen[stored.AuthorID]; ok {
			continue
		}
		seen[stored.AuthorID] = struct{}{}
		result = append(result, stored.AuthorID)
	}
	sort.Strings(result)
	return result, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	seq      int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	account.ID = fmt.Sprintf("account-%d", r.seq)
	account.CreatedAt = time.Now()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeAccountRepo) GetByPortal(_ context.Context, portal string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.accounts {
		if stored.Portal == portal {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}
