package warehouses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	warehouses map[int64]Warehouse
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{warehouses: make(map[int64]Warehouse)}
}

func (r *memoryRepo) List(ctx context.Context, includeArchived bool) ([]Warehouse, error) {
	list := []Warehouse{}
	for _, w := range r.warehouses {
		if !includeArchived && w.Status == StatusArchived {
			continue
		}
		list = append(list, w)
	}
	return list, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Warehouse, error) {
	if w, ok := r.warehouses[id]; ok {
		return w, nil
	}
	return Warehouse{}, ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	for _, existing := range r.warehouses {
		if existing.Code == w.Code {
			return Warehouse{}, ErrDuplicateCode
		}
	}
	r.nextID++
	w.ID = r.nextID
	r.warehouses[w.ID] = w
	return w, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, w Warehouse) error {
	existing, ok := r.warehouses[id]
	if !ok {
		return ErrNotFound
	}
	w.ID = id
	w.Status = existing.Status
	r.warehouses[id] = w
	return nil
}

func (r *memoryRepo) Archive(ctx context.Context, id int64) error {
	w, ok := r.warehouses[id]
	if !ok {
		return ErrNotFound
	}
	w.Status = StatusArchived
	r.warehouses[id] = w
	return nil
}

func TestCreateValidatesAndActivates(t *testing.T) {
	service := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := service.Create(ctx, Warehouse{Code: "WH-A", Name: "Sawmill North", StockControlEnabled: true})
	require.NoError(t, err)
	require.Equal(t, StatusActive, created.Status)

	_, err = service.Create(ctx, Warehouse{Code: "", Name: "No Code"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = service.Create(ctx, Warehouse{Code: "WH-A", Name: "Duplicate"})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestArchiveRetainsWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo)
	ctx := context.Background()

	created, err := service.Create(ctx, Warehouse{Code: "WH-B", Name: "Kiln Site"})
	require.NoError(t, err)

	require.NoError(t, service.Archive(ctx, created.ID))

	// Archived warehouses drop out of the default listing but stay loadable.
	active, err := service.List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := service.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, StatusArchived, all[0].Status)

	got, err := service.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, got.Status)
}

func TestArchiveUnknownWarehouse(t *testing.T) {
	service := NewService(newMemoryRepo())
	require.ErrorIs(t, service.Archive(context.Background(), 42), ErrNotFound)
}
