package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samudra-erp/samudra-erp/internal/platform/db"
	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns every role with its permission codes.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.code, r.name, r.description, r.created_at,
	COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code) FILTER (WHERE rp.permission_code IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_code = r.code
GROUP BY r.code, r.name, r.description, r.created_at
ORDER BY r.code`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var role Role
		err := row.Scan(&role.Code, &role.Name, &role.Description, &role.CreatedAt, &role.Permissions)
		return role, err
	})
	if err != nil {
		return nil, fmt.Errorf("roles: scan: %w", err)
	}
	return roles, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (code, name, description) VALUES ($1, $2, $3) RETURNING created_at`,
		role.Code, role.Name, role.Description).Scan(&role.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, fmt.Errorf("roles: %q: %w", role.Code, httpx.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return role, nil
}

// SetPermissions replaces the role's permission set and returns the ids of
// users holding the role.
func (r *Repository) SetPermissions(ctx context.Context, code string, perms []string) ([]string, error) {
	var holders []string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE code = $1)`, code).Scan(&exists); err != nil {
			return fmt.Errorf("roles: lookup: %w", err)
		}
		if !exists {
			return httpx.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_code = $1`, code); err != nil {
			return fmt.Errorf("roles: clear permissions: %w", err)
		}
		if len(perms) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"role_permissions"}, []string{"role_code", "permission_code"},
				pgx.CopyFromSlice(len(perms), func(i int) ([]any, error) {
					return []any{code, perms[i]}, nil
				}))
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23503" {
					return fmt.Errorf("roles: unknown permission: %w", httpx.ErrValidation)
				}
				return fmt.Errorf("roles: insert permissions: %w", err)
			}
		}
		rows, err := tx.Query(ctx, `SELECT user_id FROM user_roles WHERE role_code = $1
UNION SELECT id FROM users WHERE role = $1`, code)
		if err != nil {
			return fmt.Errorf("roles: holders: %w", err)
		}
		holders, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, err
	}
	return holders, nil
}
