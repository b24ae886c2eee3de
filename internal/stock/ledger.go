package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/timberline-erp/timberline/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	QueryMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]StockRecord, error)
	ListActive(ctx context.Context) ([]StockRecord, error)
	ListWithMinimum(ctx context.Context) ([]StockRecord, error)
	IncomingInTransit(ctx context.Context) ([]IncomingTransit, error)
	SetMinimumLevel(ctx context.Context, warehouseID, woodTypeID int64, thickness int, level *int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives domain counters. Nil-safe at the call sites.
type MetricsPort interface {
	MovementPosted(movementType string)
}

// Ledger applies movements to stock records atomically, enforcing bucket
// invariants. Every quantity change flows through here.
type Ledger struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	cache       *ConsolidationCache
	logger      *slog.Logger
}

// NewLedger builds the Ledger. audit, idempotency, metrics and cache may be
// nil (tests wire only the repository).
func NewLedger(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, cache *ConsolidationCache, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, audit: audit, idempotency: idem, metrics: metrics, cache: cache, logger: logger}
}

// MovementParams describes a single signed bucket change.
type MovementParams struct {
	WarehouseID int64
	WoodTypeID  int64
	Thickness   int
	Type        MovementType
	Bucket      Bucket
	Delta       int64
	Reference   string
	Note        string
	ActorID     int64
}

func (p MovementParams) validate() error {
	if p.WarehouseID <= 0 || p.WoodTypeID <= 0 || p.Thickness <= 0 {
		return fmt.Errorf("%w: warehouse, wood type and thickness required", ErrUnknownReference)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMovementType, p.Type)
	}
	if !p.Bucket.IsValid() || p.Bucket == BucketInTransitIn {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, p.Bucket)
	}
	if p.Delta == 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ApplyMovement mutates one bucket and appends the movement log entry in a
// single transaction. The resulting bucket value must stay >= 0 or the whole
// operation fails with ErrInsufficientStock.
func (l *Ledger) ApplyMovement(ctx context.Context, params MovementParams) (Movement, error) {
	if err := params.validate(); err != nil {
		return Movement{}, err
	}

	key := ""
	if l.idempotency != nil && params.Reference != "" {
		key = fmt.Sprintf("%s:%s:%d:%d:%d:%s", params.Type, params.Reference,
			params.WarehouseID, params.WoodTypeID, params.Thickness, params.Bucket)
		if err := l.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
			return Movement{}, err
		}
	}

	var movement Movement
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = l.ApplyTx(ctx, tx, params)
		return err
	})
	if err != nil {
		if key != "" {
			_ = l.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	l.committed(ctx, movement)
	return movement, nil
}

// ApplyTx applies a movement inside an externally managed transaction. The
// transfer and drying services call this so their own rows and the ledger
// writes commit or roll back together.
func (l *Ledger) ApplyTx(ctx context.Context, tx TxRepository, params MovementParams) (Movement, error) {
	if err := params.validate(); err != nil {
		return Movement{}, err
	}

	control, err := tx.WarehouseControl(ctx, params.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	if !control.Active() {
		return Movement{}, fmt.Errorf("%w: warehouse %d archived or stock control disabled", ErrUnknownReference, params.WarehouseID)
	}
	ok, err := tx.WoodTypeExists(ctx, params.WoodTypeID)
	if err != nil {
		return Movement{}, err
	}
	if !ok {
		return Movement{}, fmt.Errorf("%w: wood type %d", ErrUnknownReference, params.WoodTypeID)
	}

	rec, err := tx.GetRecordForUpdate(ctx, params.WarehouseID, params.WoodTypeID, params.Thickness)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Movement{}, err
	}
	// Records are created lazily on first movement and never deleted.

	before := rec.BucketQty(params.Bucket)
	after := before + params.Delta
	if after < 0 {
		return Movement{}, fmt.Errorf("%w: bucket %s has %d, requested %d",
			ErrInsufficientStock, params.Bucket, before, -params.Delta)
	}
	rec.SetBucketQty(params.Bucket, after)

	if err := tx.UpsertRecord(ctx, rec); err != nil {
		return Movement{}, err
	}

	movement := Movement{
		WarehouseID: params.WarehouseID,
		WoodTypeID:  params.WoodTypeID,
		Thickness:   params.Thickness,
		Type:        params.Type,
		Bucket:      params.Bucket,
		Delta:       params.Delta,
		QtyBefore:   before,
		QtyAfter:    after,
		Reference:   params.Reference,
		Note:        params.Note,
		ActorID:     params.ActorID,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id
	return movement, nil
}

// TransitionBuckets moves a quantity between two buckets of the same record as
// a coupled decrement/increment pair within one transaction. Internal state
// changes (drying start/end) must never appear as a lone bucket write, so the
// pairing lives here rather than in the callers.
func (l *Ledger) TransitionBuckets(ctx context.Context, params TransitionParams) (Movement, Movement, error) {
	if params.Quantity <= 0 {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	if params.FromBucket == params.ToBucket {
		return Movement{}, Movement{}, fmt.Errorf("%w: transition requires distinct buckets", ErrInvalidBucket)
	}

	var out, in Movement
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, in, err = l.TransitionTx(ctx, tx, params)
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	l.committed(ctx, out)
	l.committed(ctx, in)
	return out, in, nil
}

// TransitionParams describes a paired bucket transition.
type TransitionParams struct {
	WarehouseID int64
	WoodTypeID  int64
	Thickness   int
	FromBucket  Bucket
	ToBucket    Bucket
	Quantity    int64
	Type        MovementType
	Reference   string
	Note        string
	ActorID     int64
}

// TransitionTx is the in-transaction form of TransitionBuckets.
func (l *Ledger) TransitionTx(ctx context.Context, tx TxRepository, params TransitionParams) (Movement, Movement, error) {
	base := MovementParams{
		WarehouseID: params.WarehouseID,
		WoodTypeID:  params.WoodTypeID,
		Thickness:   params.Thickness,
		Type:        params.Type,
		Reference:   params.Reference,
		Note:        params.Note,
		ActorID:     params.ActorID,
	}

	dec := base
	dec.Bucket = params.FromBucket
	dec.Delta = -params.Quantity
	out, err := l.ApplyTx(ctx, tx, dec)
	if err != nil {
		return Movement{}, Movement{}, err
	}

	inc := base
	inc.Bucket = params.ToBucket
	inc.Delta = params.Quantity
	in, err := l.ApplyTx(ctx, tx, inc)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	return out, in, nil
}

// AdjustmentParams describes a manual stock correction.
type AdjustmentParams struct {
	WarehouseID int64
	WoodTypeID  int64
	Thickness   int
	Bucket      Bucket
	Delta       int64
	Reason      string
	ActorID     int64
}

// AdjustStock posts a MANUAL_ADJUSTMENT movement together with the adjustment
// record carrying the human-entered reason, atomically.
func (l *Ledger) AdjustStock(ctx context.Context, params AdjustmentParams) (Adjustment, error) {
	if params.Reason == "" {
		return Adjustment{}, fmt.Errorf("%w: adjustment reason required", ErrInvalidQuantity)
	}

	var adjustment Adjustment
	var movement Movement
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = l.ApplyTx(ctx, tx, MovementParams{
			WarehouseID: params.WarehouseID,
			WoodTypeID:  params.WoodTypeID,
			Thickness:   params.Thickness,
			Type:        MovementManualAdjustment,
			Bucket:      params.Bucket,
			Delta:       params.Delta,
			Note:        params.Reason,
			ActorID:     params.ActorID,
		})
		if err != nil {
			return err
		}
		adjustment = Adjustment{
			WarehouseID:    params.WarehouseID,
			WoodTypeID:     params.WoodTypeID,
			Thickness:      params.Thickness,
			Bucket:         params.Bucket,
			QuantityBefore: movement.QtyBefore,
			QuantityAfter:  movement.QtyAfter,
			QuantityChange: params.Delta,
			Reason:         params.Reason,
			ActorID:        params.ActorID,
			CreatedAt:      movement.CreatedAt,
		}
		id, err := tx.InsertAdjustment(ctx, adjustment)
		if err != nil {
			return err
		}
		adjustment.ID = id
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	l.committed(ctx, movement)
	return adjustment, nil
}

// SyncReceipt credits confirmed goods-receipt inflow into a bucket.
func (l *Ledger) SyncReceipt(ctx context.Context, params ReceiptParams) (Movement, error) {
	if params.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	bucket := params.Bucket
	if bucket == "" {
		bucket = BucketNotDried
	}
	return l.ApplyMovement(ctx, MovementParams{
		WarehouseID: params.WarehouseID,
		WoodTypeID:  params.WoodTypeID,
		Thickness:   params.Thickness,
		Type:        MovementReceiptSync,
		Bucket:      bucket,
		Delta:       params.Quantity,
		Reference:   params.Reference,
		Note:        params.Note,
		ActorID:     params.ActorID,
	})
}

// ReceiptParams describes inbound stock from a confirmed receipt.
type ReceiptParams struct {
	WarehouseID int64
	WoodTypeID  int64
	Thickness   int
	Bucket      Bucket
	Quantity    int64
	Reference   string
	Note        string
	ActorID     int64
}

// QueryMovements lists the movement log for reporting and audit.
func (l *Ledger) QueryMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMovementType, filter.Type)
	}
	return l.repo.QueryMovements(ctx, filter)
}

// WarehouseStock lists the stock records held at one warehouse.
func (l *Ledger) WarehouseStock(ctx context.Context, warehouseID int64) ([]StockRecord, error) {
	if warehouseID <= 0 {
		return nil, fmt.Errorf("%w: invalid warehouse id", ErrUnknownReference)
	}
	return l.repo.ListByWarehouse(ctx, warehouseID)
}

// SetMinimumLevel configures the low-stock threshold for a record.
func (l *Ledger) SetMinimumLevel(ctx context.Context, warehouseID, woodTypeID int64, thickness int, level *int64) error {
	if warehouseID <= 0 || woodTypeID <= 0 || thickness <= 0 {
		return fmt.Errorf("%w: warehouse, wood type and thickness required", ErrUnknownReference)
	}
	if level != nil && *level < 0 {
		return ErrInvalidQuantity
	}
	return l.repo.SetMinimumLevel(ctx, warehouseID, woodTypeID, thickness, level)
}

// NotifyCommitted fans out post-commit side effects for movements applied
// through ApplyTx/TransitionTx under an externally managed transaction. Callers
// invoke it once their own commit succeeded.
func (l *Ledger) NotifyCommitted(ctx context.Context, movements ...Movement) {
	for _, m := range movements {
		l.committed(ctx, m)
	}
}

// committed fans out post-commit side effects: audit trail, metrics, cache
// invalidation. Failures here never fail the movement.
func (l *Ledger) committed(ctx context.Context, m Movement) {
	if l.metrics != nil {
		l.metrics.MovementPosted(string(m.Type))
	}
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx); err != nil {
			l.logger.Warn("invalidate consolidation cache", slog.Any("error", err))
		}
	}
	if l.audit != nil {
		_ = l.audit.Record(ctx, shared.AuditLog{
			ActorID:  m.ActorID,
			Action:   fmt.Sprintf("stock:%s", m.Type),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d:%d:%d", m.WarehouseID, m.WoodTypeID, m.Thickness),
			Meta: map[string]any{
				"bucket":    string(m.Bucket),
				"delta":     m.Delta,
				"qty_after": m.QtyAfter,
				"reference": m.Reference,
			},
		})
	}
}
