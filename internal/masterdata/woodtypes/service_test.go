package woodtypes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	woodTypes map[int64]WoodType
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{woodTypes: make(map[int64]WoodType)}
}

func (r *memoryRepo) List(ctx context.Context) ([]WoodType, error) {
	list := []WoodType{}
	for _, wt := range r.woodTypes {
		list = append(list, wt)
	}
	return list, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (WoodType, error) {
	if wt, ok := r.woodTypes[id]; ok {
		return wt, nil
	}
	return WoodType{}, ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, wt WoodType) (WoodType, error) {
	r.nextID++
	wt.ID = r.nextID
	r.woodTypes[wt.ID] = wt
	return wt, nil
}

func TestCreateValidatesInput(t *testing.T) {
	service := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := service.Create(ctx, WoodType{Name: "Oak", Grade: "A", Density: 0.75, Origin: "FR"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = service.Create(ctx, WoodType{Name: "  ", Grade: "B"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = service.Create(ctx, WoodType{Name: "Beech", Density: -1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetRejectsBadID(t *testing.T) {
	service := NewService(newMemoryRepo())

	_, err := service.Get(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = service.Get(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}
