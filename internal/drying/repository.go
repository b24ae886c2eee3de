package drying

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

// Tx groups the transactional operations of a drying transition. The Stock
// accessor binds ledger writes to the same transaction.
type Tx interface {
	Stock() stock.TxRepository
	NextBatchNumber(ctx context.Context) (string, error)
	InsertProcess(ctx context.Context, p Process) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Process, error)
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
}

// Repository persists drying processes in PostgreSQL.
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
		return errors.New("drying repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: stock.NewTxRepository(tx)})
	})
}

func (t *txRepository) Stock() stock.TxRepository {
	return t.stock
}

func (t *txRepository) NextBatchNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('drying_batch_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("DRY-%s-%05d", time.Now().UTC().Format("20060102"), seq), nil
}

func (t *txRepository) InsertProcess(ctx context.Context, p Process) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO drying_processes
(batch_number, source_warehouse_id, wood_type_id, thickness, quantity, status, start_time, starting_humidity, actor_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		p.BatchNumber, p.SourceWarehouseID, p.WoodTypeID, p.Thickness, p.Quantity,
		string(p.Status), p.StartTime, p.StartingHumidity, p.ActorID).Scan(&id)
	return id, err
}

const processColumns = `id, batch_number, source_warehouse_id, wood_type_id, thickness, quantity, status,
start_time, starting_humidity, completed_at, actor_id, created_at, updated_at`

func scanProcess(row pgx.Row) (Process, error) {
	var p Process
	var status string
	err := row.Scan(&p.ID, &p.BatchNumber, &p.SourceWarehouseID, &p.WoodTypeID, &p.Thickness,
		&p.Quantity, &status, &p.StartTime, &p.StartingHumidity, &p.CompletedAt,
		&p.ActorID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Process{}, ErrNotFound
		}
		return Process{}, err
	}
	p.Status = Status(status)
	return p, nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Process, error) {
	p, err := scanProcess(t.tx.QueryRow(ctx, `SELECT `+processColumns+` FROM drying_processes WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Process{}, err
	}
	p.Readings, err = loadReadings(ctx, t.tx, id)
	return p, err
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	if status == StatusCompleted {
		_, err := t.tx.Exec(ctx, `UPDATE drying_processes SET status=$2, completed_at=$3, updated_at=NOW() WHERE id=$1`,
			id, string(status), at)
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE drying_processes SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadReadings(ctx context.Context, q queryer, processID int64) ([]HumidityReading, error) {
	rows, err := q.Query(ctx, `SELECT id, process_id, reading_time, humidity
FROM humidity_readings WHERE process_id=$1 ORDER BY reading_time ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	readings := []HumidityReading{}
	for rows.Next() {
		var r HumidityReading
		if err := rows.Scan(&r.ID, &r.ProcessID, &r.ReadingTime, &r.Humidity); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertReading appends a humidity reading.
func (r *Repository) InsertReading(ctx context.Context, reading HumidityReading) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO humidity_readings (process_id, reading_time, humidity)
VALUES ($1,$2,$3) RETURNING id`, reading.ProcessID, reading.ReadingTime, reading.Humidity).Scan(&id)
	return id, err
}

// GetByID returns one process with its readings.
func (r *Repository) GetByID(ctx context.Context, id int64) (Process, error) {
	p, err := scanProcess(r.pool.QueryRow(ctx, `SELECT `+processColumns+` FROM drying_processes WHERE id=$1`, id))
	if err != nil {
		return Process{}, err
	}
	p.Readings, err = loadReadings(ctx, r.pool, id)
	return p, err
}

// List returns processes newest first, readings included.
func (r *Repository) List(ctx context.Context, status Status) ([]Process, error) {
	query := `SELECT ` + processColumns + ` FROM drying_processes`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 200`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	processes := []Process{}
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		processes = append(processes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range processes {
		if processes[i].Readings, err = loadReadings(ctx, r.pool, processes[i].ID); err != nil {
			return nil, err
		}
	}
	return processes, nil
}
