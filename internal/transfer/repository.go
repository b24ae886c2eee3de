package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timberline-erp/timberline/internal/platform/db"
	"github.com/timberline-erp/timberline/internal/stock"
)

// Tx groups the transactional operations of a single transfer transition. The
// Stock accessor binds ledger writes to the same transaction so transfer rows
// and bucket mutations commit or roll back together.
type Tx interface {
	Stock() stock.TxRepository
	NextNumber(ctx context.Context) (string, error)
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	InsertItems(ctx context.Context, transferID int64, items []Item) error
	GetForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateStatus(ctx context.Context, id int64, update StatusUpdate) error
}

// StatusUpdate carries the fields written on a status transition.
type StatusUpdate struct {
	Status         Status
	ConditionAfter string
	Notes          string
	At             time.Time
}

// ListFilter narrows a transfer listing.
type ListFilter struct {
	Status          Status
	FromWarehouseID int64
	ToWarehouseID   int64
	Limit           int
}

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx    pgx.Tx
	stock stock.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction shared with
// the stock ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil {
		return errors.New("transfer repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: stock.NewTxRepository(tx)})
	})
}

func (t *txRepository) Stock() stock.TxRepository {
	return t.stock
}

func (t *txRepository) NextNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('transfer_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("TRF-%s-%05d", time.Now().UTC().Format("20060102"), seq), nil
}

func (t *txRepository) InsertTransfer(ctx context.Context, tr Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfers
(number, ref_id, from_warehouse_id, to_warehouse_id, status, requires_approval, transfer_date, notes, actor_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		tr.Number, tr.RefID, tr.FromWarehouseID, tr.ToWarehouseID, string(tr.Status),
		tr.RequiresApproval, tr.TransferDate, tr.Notes, tr.ActorID).Scan(&id)
	return id, err
}

func (t *txRepository) InsertItems(ctx context.Context, transferID int64, items []Item) error {
	for _, item := range items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO transfer_items
(transfer_id, wood_type_id, thickness, quantity, bucket) VALUES ($1,$2,$3,$4,$5)`,
			transferID, item.WoodTypeID, item.Thickness, item.Quantity, string(item.Bucket)); err != nil {
			return err
		}
	}
	return nil
}

const transferColumns = `id, number, ref_id, from_warehouse_id, to_warehouse_id, status, requires_approval,
transfer_date, notes, condition_after, dispatched_at, completed_at, cancelled_at, actor_id, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var tr Transfer
	var status string
	err := row.Scan(&tr.ID, &tr.Number, &tr.RefID, &tr.FromWarehouseID, &tr.ToWarehouseID, &status,
		&tr.RequiresApproval, &tr.TransferDate, &tr.Notes, &tr.ConditionAfter,
		&tr.DispatchedAt, &tr.CompletedAt, &tr.CancelledAt, &tr.ActorID, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	tr.Status = Status(status)
	return tr, nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	tr, err := scanTransfer(t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Transfer{}, err
	}
	tr.Items, err = loadItems(ctx, t.tx, id)
	return tr, err
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) error {
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var column string
	switch update.Status {
	case StatusInTransit:
		column = "dispatched_at"
	case StatusCompleted:
		column = "completed_at"
	case StatusCancelled:
		column = "cancelled_at"
	default:
		return fmt.Errorf("%w: cannot persist status %q", ErrInvalidTransition, update.Status)
	}
	_, err := t.tx.Exec(ctx, `UPDATE transfers
SET status=$2, `+column+`=$3, condition_after=COALESCE(NULLIF($4,''), condition_after),
notes=COALESCE(NULLIF($5,''), notes), updated_at=NOW() WHERE id=$1`,
		id, string(update.Status), at, update.ConditionAfter, update.Notes)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q queryer, transferID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, wood_type_id, thickness, quantity, bucket
FROM transfer_items WHERE transfer_id=$1 ORDER BY id ASC`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		var bucket string
		if err := rows.Scan(&item.ID, &item.TransferID, &item.WoodTypeID, &item.Thickness, &item.Quantity, &bucket); err != nil {
			return nil, err
		}
		item.Bucket = stock.Bucket(bucket)
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetByID returns one transfer with its items.
func (r *Repository) GetByID(ctx context.Context, id int64) (Transfer, error) {
	tr, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id))
	if err != nil {
		return Transfer{}, err
	}
	tr.Items, err = loadItems(ctx, r.pool, id)
	return tr, err
}

// List returns transfers newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		query += ` AND status=` + arg(string(filter.Status))
	}
	if filter.FromWarehouseID != 0 {
		query += ` AND from_warehouse_id=` + arg(filter.FromWarehouseID)
	}
	if filter.ToWarehouseID != 0 {
		query += ` AND to_warehouse_id=` + arg(filter.ToWarehouseID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	transfers := []Transfer{}
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range transfers {
		if transfers[i].Items, err = loadItems(ctx, r.pool, transfers[i].ID); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}
