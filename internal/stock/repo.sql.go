package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timberline-erp/timberline/internal/platform/db"
)

// Repository persists stock records and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the ledger.
type TxRepository interface {
	GetRecordForUpdate(ctx context.Context, warehouseID, woodTypeID int64, thickness int) (StockRecord, error)
	UpsertRecord(ctx context.Context, rec StockRecord) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	WarehouseControl(ctx context.Context, warehouseID int64) (WarehouseControl, error)
	WoodTypeExists(ctx context.Context, woodTypeID int64) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds stock operations to an externally managed transaction.
// The transfer and drying services use this to keep their own rows and the
// ledger writes in a single atomic scope.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const recordColumns = `id, warehouse_id, wood_type_id, thickness, not_dried, under_drying, dried, damaged, in_transit_out, minimum_stock_level, created_at, updated_at`

func scanRecord(row pgx.Row) (StockRecord, error) {
	var rec StockRecord
	err := row.Scan(&rec.ID, &rec.WarehouseID, &rec.WoodTypeID, &rec.Thickness,
		&rec.NotDried, &rec.UnderDrying, &rec.Dried, &rec.Damaged, &rec.InTransitOut,
		&rec.MinimumStockLevel, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// ListByWarehouse returns the stock records held at one warehouse.
func (r *Repository) ListByWarehouse(ctx context.Context, warehouseID int64) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
FROM stock_records WHERE warehouse_id=$1 ORDER BY wood_type_id ASC, thickness ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListActive returns stock records belonging to active, stock-controlled
// warehouses. Archived warehouses keep their rows but drop out of aggregates.
func (r *Repository) ListActive(ctx context.Context) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.`+recordColumnsPrefixed()+`
FROM stock_records s
JOIN warehouses w ON w.id = s.warehouse_id
WHERE w.status = 'ACTIVE' AND w.stock_control_enabled
ORDER BY s.wood_type_id ASC, s.thickness ASC, s.warehouse_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListWithMinimum returns active records carrying a configured minimum level.
func (r *Repository) ListWithMinimum(ctx context.Context) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.`+recordColumnsPrefixed()+`
FROM stock_records s
JOIN warehouses w ON w.id = s.warehouse_id
WHERE w.status = 'ACTIVE' AND w.stock_control_enabled AND s.minimum_stock_level IS NOT NULL
ORDER BY s.warehouse_id ASC, s.wood_type_id ASC, s.thickness ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func recordColumnsPrefixed() string {
	return `id, s.warehouse_id, s.wood_type_id, s.thickness, s.not_dried, s.under_drying, s.dried, s.damaged, s.in_transit_out, s.minimum_stock_level, s.created_at, s.updated_at`
}

func collectRecords(rows pgx.Rows) ([]StockRecord, error) {
	records := []StockRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IncomingInTransit aggregates quantities on open transfers headed for each
// destination. Feeds the display-only in_transit_in figure; the ledger itself
// never writes that bucket.
func (r *Repository) IncomingInTransit(ctx context.Context) ([]IncomingTransit, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.to_warehouse_id, i.wood_type_id, i.thickness, SUM(i.quantity)
FROM transfers t
JOIN transfer_items i ON i.transfer_id = t.id
WHERE t.status IN ('PENDING','IN_TRANSIT')
GROUP BY t.to_warehouse_id, i.wood_type_id, i.thickness`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var incoming []IncomingTransit
	for rows.Next() {
		var in IncomingTransit
		if err := rows.Scan(&in.WarehouseID, &in.WoodTypeID, &in.Thickness, &in.Quantity); err != nil {
			return nil, err
		}
		incoming = append(incoming, in)
	}
	return incoming, rows.Err()
}

// QueryMovements returns the movement log ordered by timestamp ascending.
func (r *Repository) QueryMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT id, warehouse_id, wood_type_id, thickness, movement_type, bucket, delta, qty_before, qty_after, reference, note, actor_id, created_at
FROM stock_movements WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.WarehouseID != 0 {
		query += ` AND warehouse_id=` + arg(filter.WarehouseID)
	}
	if filter.WoodTypeID != 0 {
		query += ` AND wood_type_id=` + arg(filter.WoodTypeID)
	}
	if filter.Thickness != 0 {
		query += ` AND thickness=` + arg(filter.Thickness)
	}
	if filter.Type != "" {
		query += ` AND movement_type=` + arg(string(filter.Type))
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= ` + arg(filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND created_at <= ` + arg(filter.To)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.WoodTypeID, &m.Thickness, &m.Type, &m.Bucket,
			&m.Delta, &m.QtyBefore, &m.QtyAfter, &m.Reference, &m.Note, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// SetMinimumLevel configures (or clears, when level is nil) the low-stock
// threshold, creating the record lazily if needed.
func (r *Repository) SetMinimumLevel(ctx context.Context, warehouseID, woodTypeID int64, thickness int, level *int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_records (warehouse_id, wood_type_id, thickness, minimum_stock_level, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW())
ON CONFLICT (warehouse_id, wood_type_id, thickness)
DO UPDATE SET minimum_stock_level=EXCLUDED.minimum_stock_level, updated_at=NOW()`,
		warehouseID, woodTypeID, thickness, level)
	return err
}

func (r *txRepository) GetRecordForUpdate(ctx context.Context, warehouseID, woodTypeID int64, thickness int) (StockRecord, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+recordColumns+`
FROM stock_records WHERE warehouse_id=$1 AND wood_type_id=$2 AND thickness=$3 FOR UPDATE`,
		warehouseID, woodTypeID, thickness))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{WarehouseID: warehouseID, WoodTypeID: woodTypeID, Thickness: thickness}, ErrRecordNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

func (r *txRepository) UpsertRecord(ctx context.Context, rec StockRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_records (warehouse_id, wood_type_id, thickness, not_dried, under_drying, dried, damaged, in_transit_out, minimum_stock_level, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
ON CONFLICT (warehouse_id, wood_type_id, thickness)
DO UPDATE SET not_dried=EXCLUDED.not_dried, under_drying=EXCLUDED.under_drying, dried=EXCLUDED.dried,
damaged=EXCLUDED.damaged, in_transit_out=EXCLUDED.in_transit_out, updated_at=NOW()`,
		rec.WarehouseID, rec.WoodTypeID, rec.Thickness,
		rec.NotDried, rec.UnderDrying, rec.Dried, rec.Damaged, rec.InTransitOut, rec.MinimumStockLevel)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (warehouse_id, wood_type_id, thickness, movement_type, bucket, delta, qty_before, qty_after, reference, note, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,COALESCE($12, NOW())) RETURNING id`,
		m.WarehouseID, m.WoodTypeID, m.Thickness, string(m.Type), string(m.Bucket),
		m.Delta, m.QtyBefore, m.QtyAfter, m.Reference, m.Note, nullInt(m.ActorID), nullTimeValue(m)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (warehouse_id, wood_type_id, thickness, bucket, quantity_before, quantity_after, quantity_change, reason, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		adj.WarehouseID, adj.WoodTypeID, adj.Thickness, string(adj.Bucket),
		adj.QuantityBefore, adj.QuantityAfter, adj.QuantityChange, adj.Reason, nullInt(adj.ActorID)).Scan(&id)
	return id, err
}

func (r *txRepository) WarehouseControl(ctx context.Context, warehouseID int64) (WarehouseControl, error) {
	var c WarehouseControl
	err := r.tx.QueryRow(ctx, `SELECT status, stock_control_enabled, requires_approval FROM warehouses WHERE id=$1`, warehouseID).
		Scan(&c.Status, &c.StockControlEnabled, &c.RequiresApproval)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseControl{}, ErrUnknownReference
		}
		return WarehouseControl{}, err
	}
	return c, nil
}

func (r *txRepository) WoodTypeExists(ctx context.Context, woodTypeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT true FROM wood_types WHERE id=$1`, woodTypeID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTimeValue(m Movement) any {
	if m.CreatedAt.IsZero() {
		return nil
	}
	return m.CreatedAt
}
