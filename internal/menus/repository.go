package menus

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

const menuColumns = `m.id, m.code, m.name, COALESCE(m.path, ''), COALESCE(m.icon, ''), COALESCE(m.parent_id, ''), m.sort_order, m.is_active,
	COALESCE(array_agg(mp.permission_code ORDER BY mp.permission_code) FILTER (WHERE mp.permission_code IS NOT NULL), '{}')`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns every active menu with its required permissions.
func (r *Repository) ListActive(ctx context.Context) ([]rbac.Menu, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+menuColumns+`
FROM menus m LEFT JOIN menu_permissions mp ON mp.menu_id = m.id
WHERE m.is_active
GROUP BY m.id
ORDER BY m.sort_order, m.name`)
	if err != nil {
		return nil, fmt.Errorf("menus: list: %w", err)
	}
	menus, err := pgx.CollectRows(rows, scanMenu)
	if err != nil {
		return nil, fmt.Errorf("menus: scan: %w", err)
	}
	return menus, nil
}

// Get returns one menu.
func (r *Repository) Get(ctx context.Context, id string) (rbac.Menu, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+menuColumns+`
FROM menus m LEFT JOIN menu_permissions mp ON mp.menu_id = m.id
WHERE m.id = $1
GROUP BY m.id`, id)
	if err != nil {
		return rbac.Menu{}, fmt.Errorf("menus: get: %w", err)
	}
	menu, err := pgx.CollectExactlyOneRow(rows, scanMenu)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Menu{}, httpx.ErrNotFound
		}
		return rbac.Menu{}, fmt.Errorf("menus: get: %w", err)
	}
	return menu, nil
}

func scanMenu(row pgx.CollectableRow) (rbac.Menu, error) {
	var m rbac.Menu
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Path, &m.Icon, &m.ParentID, &m.Order, &m.IsActive, &m.RequiredPermissions)
	return m, err
}
