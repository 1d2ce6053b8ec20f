package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// AccountRepository defines persistence access for tenant accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByPortal(ctx context.Context, portal string) (*domain.Account, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (portal)
        VALUES ($1)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, account.Portal).Scan(&account.ID, &account.CreatedAt)
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT id, portal, created_at FROM accounts WHERE id=$1`
	var account domain.Account
	if err := r.pool.QueryRow(ctx, query, id).Scan(&account.ID, &account.Portal, &account.CreatedAt); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByPortal(ctx context.Context, portal string) (*domain.Account, error) {
	const query = `SELECT id, portal, created_at FROM accounts WHERE portal=$1`
	var account domain.Account
	if err := r.pool.QueryRow(ctx, query, portal).Scan(&account.ID, &account.Portal, &account.CreatedAt); err != nil {
		return nil, err
	}
	return &account, nil
}
