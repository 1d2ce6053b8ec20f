package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SignupRequest creates a tenant account with its first customer.
type SignupRequest struct {
	Portal   string `json:"portal"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	JobTitle string `json:"job_title"`
}

// CreateAgentRequest adds an agent to the caller's account.
type CreateAgentRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	JobTitle string `json:"job_title"`
}

// LoginRequest payload.
type LoginRequest struct {
	Portal   string `json:"portal"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the access token.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse public user representation.
type UserResponse struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	JobTitle  string          `json:"job_title"`
	Role      domain.UserRole `json:"role"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		AccountID: user.AccountID,
		Name:      user.Name,
		Email:     user.Email,
		JobTitle:  user.JobTitle,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}
}
