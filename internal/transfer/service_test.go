package transfer

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/timberline-erp/timberline/internal/shared"
	"github.com/timberline-erp/timberline/internal/stock"
)

type stockState struct {
	records   map[string]stock.StockRecord
	movements []stock.Movement
}

func recordKey(warehouseID, woodTypeID int64, thickness int) string {
	return fmt.Sprintf("%d:%d:%d", warehouseID, woodTypeID, thickness)
}

type fakeStockTx struct {
	state *stockState
}

func (f *fakeStockTx) GetRecordForUpdate(ctx context.Context, warehouseID, woodTypeID int64, thickness int) (stock.StockRecord, error) {
	if rec, ok := f.state.records[recordKey(warehouseID, woodTypeID, thickness)]; ok {
		return rec, nil
	}
	return stock.StockRecord{WarehouseID: warehouseID, WoodTypeID: woodTypeID, Thickness: thickness}, stock.ErrRecordNotFound
}

func (f *fakeStockTx) UpsertRecord(ctx context.Context, rec stock.StockRecord) error {
	f.state.records[recordKey(rec.WarehouseID, rec.WoodTypeID, rec.Thickness)] = rec
	return nil
}

func (f *fakeStockTx) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	f.state.movements = append(f.state.movements, m)
	return int64(len(f.state.movements)), nil
}

func (f *fakeStockTx) InsertAdjustment(ctx context.Context, adj stock.Adjustment) (int64, error) {
	return 0, nil
}

func (f *fakeStockTx) WarehouseControl(ctx context.Context, warehouseID int64) (stock.WarehouseControl, error) {
	switch warehouseID {
	case 1, 2:
		return stock.WarehouseControl{Status: "ACTIVE", StockControlEnabled: true}, nil
	case 3:
		return stock.WarehouseControl{Status: "ACTIVE", StockControlEnabled: true, RequiresApproval: true}, nil
	default:
		return stock.WarehouseControl{}, stock.ErrUnknownReference
	}
}

func (f *fakeStockTx) WoodTypeExists(ctx context.Context, woodTypeID int64) (bool, error) {
	return woodTypeID == 1 || woodTypeID == 2, nil
}

type memoryRepo struct {
	stock     *stockState
	transfers map[int64]Transfer
	nextID    int64
	seq       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stock:     &stockState{records: make(map[string]stock.StockRecord)},
		transfers: make(map[int64]Transfer),
	}
}

func (r *memoryRepo) seed(warehouseID, woodTypeID int64, thickness int, bucket stock.Bucket, qty int64) {
	key := recordKey(warehouseID, woodTypeID, thickness)
	rec, ok := r.stock.records[key]
	if !ok {
		rec = stock.StockRecord{WarehouseID: warehouseID, WoodTypeID: woodTypeID, Thickness: thickness}
	}
	rec.SetBucketQty(bucket, qty)
	r.stock.records[key] = rec
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	records := make(map[string]stock.StockRecord, len(r.stock.records))
	for k, v := range r.stock.records {
		records[k] = v
	}
	movements := len(r.stock.movements)
	transfers := make(map[int64]Transfer, len(r.transfers))
	for k, v := range r.transfers {
		transfers[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.stock.records = records
		r.stock.movements = r.stock.movements[:movements]
		r.transfers = transfers
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Transfer, error) {
	if tr, ok := r.transfers[id]; ok {
		return tr, nil
	}
	return Transfer{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	result := []Transfer{}
	for _, tr := range r.transfers {
		if filter.Status != "" && tr.Status != filter.Status {
			continue
		}
		result = append(result, tr)
	}
	return result, nil
}

func (t *memoryTx) Stock() stock.TxRepository {
	return &fakeStockTx{state: t.repo.stock}
}

func (t *memoryTx) NextNumber(ctx context.Context) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("TRF-%05d", t.repo.seq), nil
}

func (t *memoryTx) InsertTransfer(ctx context.Context, tr Transfer) (int64, error) {
	t.repo.nextID++
	tr.ID = t.repo.nextID
	t.repo.transfers[tr.ID] = tr
	return tr.ID, nil
}

func (t *memoryTx) InsertItems(ctx context.Context, transferID int64, items []Item) error {
	tr := t.repo.transfers[transferID]
	tr.Items = append([]Item{}, items...)
	t.repo.transfers[transferID] = tr
	return nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	return t.repo.GetByID(ctx, id)
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) error {
	tr, ok := t.repo.transfers[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = update.Status
	if update.ConditionAfter != "" {
		tr.ConditionAfter = update.ConditionAfter
	}
	if update.Notes != "" {
		tr.Notes = update.Notes
	}
	t.repo.transfers[id] = tr
	return nil
}

type fakeApprovals struct {
	approved map[uuid.UUID]bool
}

func (f *fakeApprovals) IsApproved(ctx context.Context, module string, ref uuid.UUID) (bool, error) {
	return f.approved[ref], nil
}

func (f *fakeApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	if log.Action == shared.ApprovalApprove {
		f.approved[log.RefID] = true
	}
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *fakeApprovals) {
	ledger := stock.NewLedger(nil, nil, nil, nil, nil, nil)
	approvals := &fakeApprovals{approved: make(map[uuid.UUID]bool)}
	return NewService(repo, ledger, approvals, nil), approvals
}

func TestCreateReservesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 1, 25, stock.BucketDried, 100)
	service, _ := newTestService(repo)

	tr, err := service.Create(context.Background(), CreateParams{
		FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 30, Bucket: stock.BucketDried}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, tr.Status)
	require.NotEmpty(t, tr.Number)
	require.NotEqual(t, uuid.Nil, tr.RefID)

	rec := repo.stock.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 70, rec.Dried)
	require.EqualValues(t, 30, rec.InTransitOut)
	require.Len(t, repo.stock.movements, 2) // paired decrement/increment
}

func TestCreateInsufficientStockNoPartialReservation(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 1, 25, stock.BucketDried, 100)
	repo.seed(1, 2, 50, stock.BucketNotDried, 5)
	service, _ := newTestService(repo)

	_, err := service.Create(context.Background(), CreateParams{
		FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{
			{WoodTypeID: 1, Thickness: 25, Quantity: 30, Bucket: stock.BucketDried},
			{WoodTypeID: 2, Thickness: 50, Quantity: 6, Bucket: stock.BucketNotDried},
		},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// The first item's reservation rolled back with the rest.
	rec := repo.stock.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 100, rec.Dried)
	require.EqualValues(t, 0, rec.InTransitOut)
	require.Empty(t, repo.stock.movements)
	require.Empty(t, repo.transfers)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	service, _ := newTestService(repo)
	ctx := context.Background()

	_, err := service.Create(ctx, CreateParams{FromWarehouseID: 1, ToWarehouseID: 1, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 1, Bucket: stock.BucketDried}}})
	require.ErrorIs(t, err, ErrSameWarehouse)

	_, err = service.Create(ctx, CreateParams{FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = service.Create(ctx, CreateParams{FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 1, Bucket: stock.BucketInTransitOut}}})
	require.ErrorIs(t, err, ErrInvalidItem)
}

func TestLifecycleConservation(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 1, 25, stock.BucketDried, 100)
	service, _ := newTestService(repo)
	ctx := context.Background()

	tr, err := service.Create(ctx, CreateParams{
		FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 40, Bucket: stock.BucketDried}},
	})
	require.NoError(t, err)

	tr, err = service.Dispatch(ctx, tr.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)

	// Dispatch is a pure status transition: no ledger effect.
	require.Len(t, repo.stock.movements, 2)

	tr, err = service.Complete(ctx, tr.ID, 7, "dry, undamaged")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, tr.Status)
	require.Equal(t, "dry, undamaged", tr.ConditionAfter)

	source := repo.stock.records[recordKey(1, 1, 25)]
	require.EqualValues(t, 60, source.Dried)
	require.EqualValues(t, 0, source.InTransitOut)

	dest := repo.stock.records[recordKey(2, 1, 25)]
	require.EqualValues(t, 40, dest.Dried)

	// System-wide quantity for the combination is conserved.
	require.EqualValues(t, 100, source.Total()+dest.Total())
}

func TestCancelRoundTripIdentity(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 1, 25, stock.BucketNotDried, 55)
	service, _ := newTestService(repo)
	ctx := context.Background()

	before := repo.stock.records[recordKey(1, 1, 25)]

	tr, err := service.Create(ctx, CreateParams{
		FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 20, Bucket: stock.BucketNotDried}},
	})
	require.NoError(t, err)

	tr, err = service.Cancel(ctx, tr.ID, 7, "truck breakdown")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, tr.Status)

	after := repo.stock.records[recordKey(1, 1, 25)]
	require.Equal(t, before.NotDried, after.NotDried)
	require.Equal(t, before.InTransitOut, after.InTransitOut)
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 1, 25, stock.BucketDried, 50)
	service, _ := newTestService(repo)
	ctx := context.Background()

	tr, err := service.Create(ctx, CreateParams{
		FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 10, Bucket: stock.BucketDried}},
	})
	require.NoError(t, err)
	_, err = service.Dispatch(ctx, tr.ID, 7)
	require.NoError(t, err)
	_, err = service.Complete(ctx, tr.ID, 7, "")
	require.NoError(t, err)

	posted := len(repo.stock.movements)

	_, err = service.Complete(ctx, tr.ID, 7, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = service.Cancel(ctx, tr.ID, 7, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = service.Dispatch(ctx, tr.ID, 7)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Rejected transitions post nothing.
	require.Len(t, repo.stock.movements, posted)
}

func TestCompleteRequiresInTransit(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 1, 25, stock.BucketDried, 50)
	service, _ := newTestService(repo)
	ctx := context.Background()

	tr, err := service.Create(ctx, CreateParams{
		FromWarehouseID: 1, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 10, Bucket: stock.BucketDried}},
	})
	require.NoError(t, err)

	_, err = service.Complete(ctx, tr.ID, 7, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDispatchApprovalGate(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(3, 1, 25, stock.BucketDried, 50)
	service, approvals := newTestService(repo)
	ctx := context.Background()

	tr, err := service.Create(ctx, CreateParams{
		FromWarehouseID: 3, ToWarehouseID: 2, ActorID: 7,
		Items: []Item{{WoodTypeID: 1, Thickness: 25, Quantity: 10, Bucket: stock.BucketDried}},
	})
	require.NoError(t, err)
	require.True(t, tr.RequiresApproval)

	_, err = service.Dispatch(ctx, tr.ID, 7)
	require.ErrorIs(t, err, ErrApprovalRequired)

	require.NoError(t, service.Approve(ctx, tr.ID, 9, shared.ApprovalApprove, "ok to ship"))
	require.True(t, approvals.approved[tr.RefID])

	tr, err = service.Dispatch(ctx, tr.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)
}
