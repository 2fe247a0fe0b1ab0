package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	TouchLogin(ctx context.Context, userID string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername fetches a credential by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	const query = `SELECT id, username, password_hash, is_active, last_login_at
FROM users WHERE username = $1`
	var cred Credential
	err := r.pool.QueryRow(ctx, query, username).Scan(&cred.ID, &cred.Username, &cred.PasswordHash, &cred.IsActive, &cred.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return &cred, nil
}

// TouchLogin stamps the last successful login.
func (r *PGRepository) TouchLogin(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("auth: touch login: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
