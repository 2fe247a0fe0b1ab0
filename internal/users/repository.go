package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samudra-erp/samudra-erp/internal/platform/db"
	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record loads the authoritative access record of an active user: legacy
// role, role set, and the union of role and direct permissions.
func (r *Repository) Record(ctx context.Context, userID string) (rbac.User, error) {
	var user rbac.User
	err := r.pool.QueryRow(ctx, `SELECT id, username, name, COALESCE(role, ''), COALESCE(cabang_id, '')
FROM users WHERE id = $1 AND is_active`, userID).Scan(&user.ID, &user.Username, &user.Name, &user.Role, &user.CabangID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.User{}, httpx.ErrNotFound
		}
		return rbac.User{}, fmt.Errorf("users: load record: %w", err)
	}

	if user.Roles, err = r.roles(ctx, userID); err != nil {
		return rbac.User{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT code FROM (
	SELECT rp.permission_code AS code FROM role_permissions rp
	JOIN user_roles ur ON ur.role_code = rp.role_code WHERE ur.user_id = $1
	UNION
	SELECT rp.permission_code FROM role_permissions rp
	JOIN users u ON u.role = rp.role_code WHERE u.id = $1
	UNION
	SELECT permission_code FROM user_permissions WHERE user_id = $1
) p ORDER BY code`, userID)
	if err != nil {
		return rbac.User{}, fmt.Errorf("users: load permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return rbac.User{}, fmt.Errorf("users: scan permissions: %w", err)
	}
	user.Permissions = perms
	return user, nil
}

// ResourceData returns the scope attributes of a user record for scoped checks.
func (r *Repository) ResourceData(ctx context.Context, userID string) (*rbac.ResourceData, error) {
	data := rbac.ResourceData{ID: userID, UserID: userID}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(cabang_id, ''), COALESCE(created_by, '') FROM users WHERE id = $1`, userID).
		Scan(&data.CabangID, &data.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("users: load resource data: %w", err)
	}
	return &data, nil
}

// Get returns a single account including inactive ones.
func (r *Repository) Get(ctx context.Context, userID string) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT id, username, name, COALESCE(cabang_id, ''), is_active, COALESCE(created_by, ''), created_at
FROM users WHERE id = $1`, userID).Scan(&s.ID, &s.Username, &s.Name, &s.CabangID, &s.IsActive, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, httpx.ErrNotFound
		}
		return Summary{}, fmt.Errorf("users: get: %w", err)
	}
	if s.Roles, err = r.roles(ctx, userID); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// List returns a page of accounts and the total count.
func (r *Repository) List(ctx context.Context, filters shared.ListFilters) ([]Summary, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.CabangID != "" {
		args = append(args, filters.CabangID)
		where += ` AND cabang_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (username ILIKE $` + strconv.Itoa(len(args)) + ` OR name ILIKE $` + strconv.Itoa(len(args)) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	query := `SELECT id, username, name, COALESCE(cabang_id, ''), is_active, COALESCE(created_by, ''), created_at FROM users` +
		where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Username, &s.Name, &s.CabangID, &s.IsActive, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("users: scan: %w", err)
		}
		s.Roles = []rbac.Role{}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ReplaceRoles swaps the user's role set and syncs the legacy role column
// to the primary role.
func (r *Repository) ReplaceRoles(ctx context.Context, userID string, roles []RoleAssignment) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var primary string
		for _, role := range roles {
			if role.IsPrimary {
				primary = role.Code
			}
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET role = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`, userID, primary)
		if err != nil {
			return fmt.Errorf("users: update legacy role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("users: clear roles: %w", err)
		}
		batch := &pgx.Batch{}
		for _, role := range roles {
			batch.Queue(`INSERT INTO user_roles (user_id, role_code, is_primary) VALUES ($1, $2, $3)`, userID, role.Code, role.IsPrimary)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return fmt.Errorf("users: unknown role: %w", httpx.ErrValidation)
			}
			return fmt.Errorf("users: insert roles: %w", err)
		}
		return nil
	})
}

func (r *Repository) roles(ctx context.Context, userID string) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT ur.role_code, r.name, r.description, ur.is_primary
FROM user_roles ur JOIN roles r ON r.code = ur.role_code
WHERE ur.user_id = $1 ORDER BY ur.is_primary DESC, ur.role_code`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: load roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Role, error) {
		var role rbac.Role
		err := row.Scan(&role.Code, &role.Name, &role.Description, &role.IsPrimary)
		return role, err
	})
	if err != nil {
		return nil, fmt.Errorf("users: scan roles: %w", err)
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	return roles, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case "username":
		return "username " + dir
	case "created":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
