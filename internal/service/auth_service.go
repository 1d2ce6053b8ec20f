package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// AuthService handles account signup, agent provisioning, and login.
type AuthService struct {
	accounts repository.AccountRepository
	users    repository.UserRepository
	tokens   *auth.TokenManager
	logger   *zap.Logger
	cfg      config.AuthConfig
}

// AuthDependencies bundles collaborators for the service.
type AuthDependencies struct {
	AccountRepo repository.AccountRepository
	UserRepo    repository.UserRepository
	Tokens      *auth.TokenManager
	Logger      *zap.Logger
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts: deps.AccountRepo,
		users:    deps.UserRepo,
		tokens:   deps.Tokens,
		logger:   logger,
		cfg:      cfg,
	}
}

// SignupInput describes a new tenant signup: the account portal plus its
// first customer user.
type SignupInput struct {
	Portal   string
	Name     string
	Email    string
	Password string
	JobTitle string
}

// AgentInput describes a new agent created by a customer inside their own
// account.
type AgentInput struct {
	Name     string
	Email    string
	Password string
	JobTitle string
}

// LoginInput identifies a user within a portal.
type LoginInput struct {
	Portal   string
	Email    string
	Password string
}

// LoginResult carries the issued token and the authenticated user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// SignupCustomer creates a tenant account with its first customer. The
// portal name is the tenant key and must be unique.
func (s *AuthService) SignupCustomer(ctx context.Context, input SignupInput) (*domain.User, error) {
	portal := strings.ToLower(strings.TrimSpace(input.Portal))
	if portal == "" {
		return nil, apperrors.NewValidationError("portal required", nil)
	}
	if _, err := s.accounts.GetByPortal(ctx, portal); err == nil {
		return nil, apperrors.NewValidationError("portal already in use", map[string]any{"portal": portal})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	account := &domain.Account{Portal: portal}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.createUser(ctx, account.ID, domain.RoleCustomer, input.Name, input.Email, input.Password, input.JobTitle)
}

// CreateAgent adds an agent to the creator's account. Customer only; the
// email must be unused within the account.
func (s *AuthService) CreateAgent(ctx context.Context, creator *domain.User, input AgentInput) (*domain.User, error) {
	if err := requireRole(creator, domain.RoleCustomer); err != nil {
		return nil, err
	}
	return s.createUser(ctx, creator.AccountID, domain.RoleAgent, input.Name, input.Email, input.Password, input.JobTitle)
}

// Login authenticates a user by portal, email, and password. Deactivated
// users cannot log in.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	portal := strings.ToLower(strings.TrimSpace(input.Portal))
	email := normalizeEmail(input.Email)

	account, err := s.accounts.GetByPortal(ctx, portal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	user, err := s.users.GetByEmail(ctx, account.ID, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.Active {
		return nil, apperrors.NewUnauthorized("user is deactivated")
	}

	token, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) createUser(ctx context.Context, accountID string, role domain.UserRole, name, email, password, jobTitle string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, apperrors.NewValidationError("name required", nil)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("valid email required", nil)
	}
	if len(password) < 8 {
		return nil, apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	if _, err := s.users.GetByEmail(ctx, accountID, email); err == nil {
		return nil, apperrors.NewValidationError("email already in use", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	user := &domain.User{
		AccountID:    accountID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		JobTitle:     strings.TrimSpace(jobTitle),
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
