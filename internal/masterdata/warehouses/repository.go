package warehouses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists warehouses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) List(ctx context.Context, includeArchived bool) ([]Warehouse, error) {
	query := `SELECT id, code, name, address, stock_control_enabled, requires_approval, status, created_at, updated_at
FROM warehouses`
	if !includeArchived {
		query += ` WHERE status = 'ACTIVE'`
	}
	query += ` ORDER BY code ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.StockControlEnabled, &w.RequiresApproval, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address, stock_control_enabled, requires_approval, status, created_at, updated_at
FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.StockControlEnabled, &w.RequiresApproval, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

func (r *Repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, stock_control_enabled, requires_approval, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		w.Code, w.Name, w.Address, w.StockControlEnabled, w.RequiresApproval, string(w.Status)).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Warehouse{}, ErrDuplicateCode
		}
		return Warehouse{}, err
	}
	return w, nil
}

func (r *Repository) Update(ctx context.Context, id int64, w Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses
SET name=$2, address=$3, stock_control_enabled=$4, requires_approval=$5, updated_at=NOW()
WHERE id=$1`, id, w.Name, w.Address, w.StockControlEnabled, w.RequiresApproval)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive marks the warehouse ARCHIVED. Records are never deleted so movement
// history stays resolvable.
func (r *Repository) Archive(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET status='ARCHIVED', updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
