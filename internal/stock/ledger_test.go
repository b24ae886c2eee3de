package stock

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	records    map[string]StockRecord
	movements  []Movement
	adjust     []Adjustment
	warehouses map[int64]WarehouseControl
	woodTypes  map[int64]bool
	incoming   []IncomingTransit
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records: make(map[string]StockRecord),
		warehouses: map[int64]WarehouseControl{
			1: {Status: "ACTIVE", StockControlEnabled: true},
			2: {Status: "ACTIVE", StockControlEnabled: true},
			3: {Status: "ACTIVE", StockControlEnabled: true, RequiresApproval: true},
			9: {Status: "ARCHIVED", StockControlEnabled: true},
		},
		woodTypes: map[int64]bool{1: true, 2: true},
	}
}

func recordKey(warehouseID, woodTypeID int64, thickness int) string {
	return fmt.Sprintf("%d:%d:%d", warehouseID, woodTypeID, thickness)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot so a failed callback rolls everything back, mirroring the
	// all-or-nothing transaction scope of the SQL repository.
	records := make(map[string]StockRecord, len(r.records))
	for k, v := range r.records {
		records[k] = v
	}
	movements := len(r.movements)
	adjustments := len(r.adjust)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.records = records
		r.movements = r.movements[:movements]
		r.adjust = r.adjust[:adjustments]
		return err
	}
	return nil
}

func (r *memoryRepo) QueryMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := []Movement{}
	for _, m := range r.movements {
		if filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.WoodTypeID != 0 && m.WoodTypeID != filter.WoodTypeID {
			continue
		}
		if filter.Thickness != 0 && m.Thickness != filter.Thickness {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (r *memoryRepo) ListByWarehouse(ctx context.Context, warehouseID int64) ([]StockRecord, error) {
	result := []StockRecord{}
	for _, rec := range r.records {
		if rec.WarehouseID == warehouseID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (r *memoryRepo) ListActive(ctx context.Context) ([]StockRecord, error) {
	result := []StockRecord{}
	for _, rec := range r.records {
		if c, ok := r.warehouses[rec.WarehouseID]; ok && c.Active() {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].WoodTypeID != result[j].WoodTypeID {
			return result[i].WoodTypeID < result[j].WoodTypeID
		}
		if result[i].Thickness != result[j].Thickness {
			return result[i].Thickness < result[j].Thickness
		}
		return result[i].WarehouseID < result[j].WarehouseID
	})
	return result, nil
}

func (r *memoryRepo) ListWithMinimum(ctx context.Context) ([]StockRecord, error) {
	result := []StockRecord{}
	for _, rec := range r.records {
		if rec.MinimumStockLevel != nil {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (r *memoryRepo) IncomingInTransit(ctx context.Context) ([]IncomingTransit, error) {
	return r.incoming, nil
}

func (r *memoryRepo) SetMinimumLevel(ctx context.Context, warehouseID, woodTypeID int64, thickness int, level *int64) error {
	key := recordKey(warehouseID, woodTypeID, thickness)
	rec, ok := r.records[key]
	if !ok {
		rec = StockRecord{WarehouseID: warehouseID, WoodTypeID: woodTypeID, Thickness: thickness}
	}
	rec.MinimumStockLevel = level
	r.records[key] = rec
	return nil
}

func (tx *memoryTx) GetRecordForUpdate(ctx context.Context, warehouseID, woodTypeID int64, thickness int) (StockRecord, error) {
	if rec, ok := tx.repo.records[recordKey(warehouseID, woodTypeID, thickness)]; ok {
		return rec, nil
	}
	return StockRecord{WarehouseID: warehouseID, WoodTypeID: woodTypeID, Thickness: thickness}, ErrRecordNotFound
}

func (tx *memoryTx) UpsertRecord(ctx context.Context, rec StockRecord) error {
	key := recordKey(rec.WarehouseID, rec.WoodTypeID, rec.Thickness)
	if existing, ok := tx.repo.records[key]; ok {
		rec.MinimumStockLevel = existing.MinimumStockLevel
	}
	tx.repo.records[key] = rec
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	tx.repo.nextID++
	tx.repo.adjust = append(tx.repo.adjust, adj)
	return tx.repo.nextID, nil
}

func (tx *memoryTx) WarehouseControl(ctx context.Context, warehouseID int64) (WarehouseControl, error) {
	if c, ok := tx.repo.warehouses[warehouseID]; ok {
		return c, nil
	}
	return WarehouseControl{}, ErrUnknownReference
}

func (tx *memoryTx) WoodTypeExists(ctx context.Context, woodTypeID int64) (bool, error) {
	return tx.repo.woodTypes[woodTypeID], nil
}

func newTestLedger(repo *memoryRepo) *Ledger {
	return NewLedger(repo, nil, nil, nil, nil, nil)
}

func TestApplyMovementCreatesRecordLazily(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	m, err := ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketNotDried, Delta: 100,
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, m.QtyBefore)
	require.EqualValues(t, 100, m.QtyAfter)

	rec := repo.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 100, rec.NotDried)
	require.EqualValues(t, 100, rec.Available())
	require.EqualValues(t, 100, rec.Total())
}

func TestApplyMovementRejectsNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketNotDried, Delta: 50,
	})
	require.NoError(t, err)

	_, err = ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementManualAdjustment, Bucket: BucketNotDried, Delta: -51,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The failed movement left no trace: quantity intact, no log entry.
	rec := repo.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 50, rec.NotDried)
	require.Len(t, repo.movements, 1)
}

func TestApplyMovementUnknownReferences(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 77, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketNotDried, Delta: 10,
	})
	require.ErrorIs(t, err, ErrUnknownReference)

	// Archived warehouses keep history but refuse new movements.
	_, err = ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 9, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketNotDried, Delta: 10,
	})
	require.ErrorIs(t, err, ErrUnknownReference)

	_, err = ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 42, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketNotDried, Delta: 10,
	})
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestApplyMovementRejectsInTransitInBucket(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)

	_, err := ledger.ApplyMovement(context.Background(), MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementTransferIn, Bucket: BucketInTransitIn, Delta: 10,
	})
	require.ErrorIs(t, err, ErrInvalidBucket)
}

func TestTransitionBucketsIsPaired(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.SyncReceipt(ctx, ReceiptParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25, Quantity: 80, Reference: "GRN-1", ActorID: 7,
	})
	require.NoError(t, err)

	out, in, err := ledger.TransitionBuckets(ctx, TransitionParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		FromBucket: BucketNotDried, ToBucket: BucketUnderDrying,
		Quantity: 30, Type: MovementDryingStart, Reference: "BATCH-1",
	})
	require.NoError(t, err)
	require.EqualValues(t, -30, out.Delta)
	require.EqualValues(t, 30, in.Delta)
	require.Equal(t, MovementDryingStart, out.Type)
	require.Equal(t, MovementDryingStart, in.Type)

	rec := repo.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 50, rec.NotDried)
	require.EqualValues(t, 30, rec.UnderDrying)
	// Conservation: internal transitions never change the on-hand total.
	require.EqualValues(t, 80, rec.Total())
	require.Len(t, repo.movements, 3)
}

func TestTransitionBucketsInsufficientSourceRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.SyncReceipt(ctx, ReceiptParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25, Quantity: 10, Reference: "GRN-2", ActorID: 7,
	})
	require.NoError(t, err)

	_, _, err = ledger.TransitionBuckets(ctx, TransitionParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		FromBucket: BucketNotDried, ToBucket: BucketUnderDrying,
		Quantity: 11, Type: MovementDryingStart,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	rec := repo.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 10, rec.NotDried)
	require.EqualValues(t, 0, rec.UnderDrying)
	require.Len(t, repo.movements, 1)
}

func TestAdjustStockPairsMovementAndAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.SyncReceipt(ctx, ReceiptParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25, Quantity: 40, Reference: "GRN-3", ActorID: 7,
	})
	require.NoError(t, err)

	adj, err := ledger.AdjustStock(ctx, AdjustmentParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Bucket: BucketNotDried, Delta: -4, Reason: "forklift damage found during count", ActorID: 7,
	})
	require.NoError(t, err)
	require.EqualValues(t, 40, adj.QuantityBefore)
	require.EqualValues(t, 36, adj.QuantityAfter)
	require.EqualValues(t, -4, adj.QuantityChange)
	require.Len(t, repo.adjust, 1)
	require.Len(t, repo.movements, 2)
	require.Equal(t, MovementManualAdjustment, repo.movements[1].Type)

	_, err = ledger.AdjustStock(ctx, AdjustmentParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Bucket: BucketNotDried, Delta: -5, ActorID: 7,
	})
	require.Error(t, err) // reason is mandatory
}

func TestEvaluateLowStockShortfall(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	minimum := int64(100)
	require.NoError(t, repo.SetMinimumLevel(ctx, 1, 1, 25, &minimum))

	_, err := ledger.SyncReceipt(ctx, ReceiptParams{WarehouseID: 1, WoodTypeID: 1, Thickness: 25, Quantity: 30, Reference: "GRN-a", ActorID: 1})
	require.NoError(t, err)
	_, err = ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketDried, Delta: 40, Reference: "GRN-b",
	})
	require.NoError(t, err)

	alerts, err := ledger.EvaluateLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.EqualValues(t, 70, alerts[0].Available)
	require.EqualValues(t, 30, alerts[0].Shortfall)

	_, err = ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketDried, Delta: 20, Reference: "GRN-c",
	})
	require.NoError(t, err)
	alerts, err = ledger.EvaluateLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.EqualValues(t, 10, alerts[0].Shortfall)

	_, err = ledger.ApplyMovement(ctx, MovementParams{
		WarehouseID: 1, WoodTypeID: 1, Thickness: 25,
		Type: MovementReceiptSync, Bucket: BucketDried, Delta: 10, Reference: "GRN-d",
	})
	require.NoError(t, err)
	alerts, err = ledger.EvaluateLowStock(ctx)
	require.NoError(t, err)
	require.Empty(t, alerts) // available == minimum is not a shortfall
}

func TestConsolidateTotalsMatchBreakdown(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	seed := []struct {
		warehouseID int64
		bucket      Bucket
		qty         int64
	}{
		{1, BucketNotDried, 120},
		{1, BucketDried, 40},
		{2, BucketNotDried, 60},
		{2, BucketDamaged, 5},
	}
	for i, s := range seed {
		_, err := ledger.ApplyMovement(ctx, MovementParams{
			WarehouseID: s.warehouseID, WoodTypeID: 1, Thickness: 25,
			Type: MovementReceiptSync, Bucket: s.bucket, Delta: s.qty,
			Reference: fmt.Sprintf("GRN-%d", i),
		})
		require.NoError(t, err)
	}
	// A warehouse with zero stock for the combination still aggregates cleanly.
	require.NoError(t, repo.SetMinimumLevel(ctx, 3, 1, 25, nil))

	result, err := ledger.Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, result.Summary, 1)

	row := result.Summary[0]
	require.EqualValues(t, 1, row.WoodTypeID)
	require.Equal(t, 25, row.Thickness)
	require.EqualValues(t, 180, row.Totals.NotDried)
	require.EqualValues(t, 40, row.Totals.Dried)
	require.EqualValues(t, 5, row.Totals.Damaged)
	require.EqualValues(t, 225, row.Totals.Total)

	var sum BucketTotals
	for _, wh := range row.Warehouses {
		sum.NotDried += wh.Totals.NotDried
		sum.UnderDrying += wh.Totals.UnderDrying
		sum.Dried += wh.Totals.Dried
		sum.Damaged += wh.Totals.Damaged
		sum.InTransitOut += wh.Totals.InTransitOut
		sum.Total += wh.Totals.Total
		sum.Available += wh.Totals.Available
	}
	require.Equal(t, row.Totals.NotDried, sum.NotDried)
	require.Equal(t, row.Totals.Dried, sum.Dried)
	require.Equal(t, row.Totals.Damaged, sum.Damaged)
	require.Equal(t, row.Totals.Total, sum.Total)
	require.Equal(t, row.Totals.Available, sum.Available)
}

func TestConsolidateDerivesIncomingTransit(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	_, err := ledger.SyncReceipt(ctx, ReceiptParams{WarehouseID: 2, WoodTypeID: 1, Thickness: 25, Quantity: 15, Reference: "GRN-z", ActorID: 1})
	require.NoError(t, err)
	repo.incoming = []IncomingTransit{{WarehouseID: 2, WoodTypeID: 1, Thickness: 25, Quantity: 9}}

	result, err := ledger.Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, result.Detailed, 1)
	require.EqualValues(t, 9, result.Detailed[0].InTransitIn)
	require.EqualValues(t, 9, result.Summary[0].Totals.InTransitIn)
	// Derived display figure only: on-hand totals are untouched.
	require.EqualValues(t, 15, result.Summary[0].Totals.Total)
}
