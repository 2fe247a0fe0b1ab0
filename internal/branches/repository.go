package branches

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

const branchColumns = `id, code, name, COALESCE(address, ''), is_active, created_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a page of branches and the total count. filters.CabangID
// narrows the result to a single branch.
func (r *Repository) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.CabangID != "" {
		args = append(args, filters.CabangID)
		where += ` AND id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM branches`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("branches: count: %w", err)
	}

	query := `SELECT ` + branchColumns + ` FROM branches` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("branches: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanBranch)
	if err != nil {
		return nil, 0, fmt.Errorf("branches: scan: %w", err)
	}
	return out, total, nil
}

// Get returns one branch.
func (r *Repository) Get(ctx context.Context, id string) (Branch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id)
	if err != nil {
		return Branch{}, fmt.Errorf("branches: get: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBranch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, httpx.ErrNotFound
		}
		return Branch{}, fmt.Errorf("branches: get: %w", err)
	}
	return b, nil
}

// Create inserts a branch.
func (r *Repository) Create(ctx context.Context, b Branch) (Branch, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO branches (id, code, name, address) VALUES ($1, $2, $3, NULLIF($4, ''))
RETURNING created_at, is_active`, b.ID, b.Code, b.Name, b.Address).Scan(&b.CreatedAt, &b.IsActive)
	if err != nil {
		return Branch{}, mapWriteErr(b.Code, err)
	}
	return b, nil
}

// Update rewrites the editable fields of a branch.
func (r *Repository) Update(ctx context.Context, id string, form BranchForm) error {
	tag, err := r.pool.Exec(ctx, `UPDATE branches SET code = $1, name = $2, address = NULLIF($3, ''), updated_at = NOW() WHERE id = $4`,
		form.Code, form.Name, form.Address, id)
	if err != nil {
		return mapWriteErr(form.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func mapWriteErr(code string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("branches: code %q: %w", code, httpx.ErrDuplicate)
	}
	return fmt.Errorf("branches: write: %w", err)
}

func scanBranch(row pgx.CollectableRow) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt)
	return b, err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	default:
		return "name " + dir
	}
}
