package woodtypes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists wood types in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) List(ctx context.Context) ([]WoodType, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, grade, density, origin, created_at
FROM wood_types ORDER BY name ASC, grade ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []WoodType{}
	for rows.Next() {
		var wt WoodType
		if err := rows.Scan(&wt.ID, &wt.Name, &wt.Grade, &wt.Density, &wt.Origin, &wt.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, wt)
	}
	return list, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (WoodType, error) {
	var wt WoodType
	err := r.pool.QueryRow(ctx, `SELECT id, name, grade, density, origin, created_at
FROM wood_types WHERE id=$1`, id).
		Scan(&wt.ID, &wt.Name, &wt.Grade, &wt.Density, &wt.Origin, &wt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WoodType{}, ErrNotFound
		}
		return WoodType{}, err
	}
	return wt, nil
}

func (r *Repository) Create(ctx context.Context, wt WoodType) (WoodType, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO wood_types (name, grade, density, origin, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`, wt.Name, wt.Grade, wt.Density, wt.Origin).
		Scan(&wt.ID, &wt.CreatedAt)
	if err != nil {
		return WoodType{}, err
	}
	return wt, nil
}
