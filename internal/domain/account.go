package domain

import "time"

// Account is the tenant boundary. Every user and ticket belongs to exactly
// one account; nothing is ever visible across accounts.
type Account struct {
	ID        string
	Portal    string
	CreatedAt time.Time
}
