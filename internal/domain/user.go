package domain

import (
	"fmt"
	"time"
)

// UserRole enumerates who a user acts as inside their account.
type UserRole string

const (
	RoleCustomer UserRole = "CUSTOMER"
	RoleAgent    UserRole = "AGENT"
	RoleSystem   UserRole = "SYSTEM"
)

// User is the domain model for everyone who can touch a ticket: the
// customers who open them and the agents who resolve them. Agents are
// soft-deleted (Active=false, DeactivatedAt set) and never removed while
// tickets or history still reference them.
type User struct {
	ID            string
	AccountID     string
	Name          string
	Email         string
	PasswordHash  string
	JobTitle      string
	Role          UserRole
	Active        bool
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayLabel renders a user the way history entries show people.
func (u *User) DisplayLabel() string {
	if u == nil {
		return ""
	}
	if u.JobTitle == "" {
		return u.Name
	}
	return fmt.Sprintf("%s (%s)", u.Name, u.JobTitle)
}
