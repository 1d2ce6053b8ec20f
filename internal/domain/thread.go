package domain

import "time"

// ThreadMessage is one message in a comment thread. Messages sharing a
// ThreadGroup form one conversation: the original comment plus its replies,
// ordered by creation time.
type ThreadMessage struct {
	ID          string
	ThreadGroup string
	Body        string
	AuthorID    string
	CreatedAt   time.Time
}

// Comment anchors the first message of a thread group to a ticket. Replies
// reuse the group and never get their own Comment row.
type Comment struct {
	ID        string
	TicketID  string
	MessageID string
	CreatedAt time.Time
}

// CommentThread is a read-model grouping for ticket detail pages: the
// anchoring comment plus every message in its group.
type CommentThread struct {
	Comment  Comment
	Messages []ThreadMessage
}
