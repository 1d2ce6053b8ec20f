package domain

import "time"

// HistoryActorType indicates who performed a recorded mutation.
type HistoryActorType string

const (
	HistoryActorUser   HistoryActorType = "USER"
	HistoryActorSystem HistoryActorType = "SYSTEM"
)

// FieldChange stores the rendered old and new value of one tracked field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// TicketHistory is an append-only audit entry: one row per update operation
// that changed at least one tracked field, with all of that operation's
// diffs in a single Changes map. Never mutated or deleted after creation.
type TicketHistory struct {
	ID        string
	TicketID  string
	ActorType HistoryActorType
	ActorID   *string
	Changes   map[string]FieldChange
	CreatedAt time.Time
}
