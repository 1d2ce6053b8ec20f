package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// UserRepository defines persistence access for customers and agents.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, accountID, email string) (*domain.User, error)
	ListActiveAgents(ctx context.Context, accountID string) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, account_id, name, email, password_hash, job_title, role, active_flag, deactivated_at, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (account_id, name, email, password_hash, job_title, role, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		user.AccountID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.JobTitle,
		user.Role,
		user.Active,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, password_hash=$3, job_title=$4, role=$5,
            active_flag=$6, deactivated_at=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.JobTitle,
		user.Role,
		user.Active,
		user.DeactivatedAt,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, accountID, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE account_id=$1 AND email=$2`
	return r.fetchSingle(ctx, query, accountID, email)
}

func (r *userRepository) ListActiveAgents(ctx context.Context, accountID string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
        WHERE account_id=$1 AND role=$2 AND active_flag=TRUE
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, accountID, domain.RoleAgent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, query, args...))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.AccountID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.JobTitle,
		&user.Role,
		&user.Active,
		&user.DeactivatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
