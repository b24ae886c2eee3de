package woodtypes

import (
	"context"
	"fmt"
	"strings"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context) ([]WoodType, error)
	Get(ctx context.Context, id int64) (WoodType, error)
	Create(ctx context.Context, wt WoodType) (WoodType, error)
}

type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]WoodType, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (WoodType, error) {
	if id <= 0 {
		return WoodType{}, fmt.Errorf("%w: invalid wood type id", ErrInvalidInput)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, wt WoodType) (WoodType, error) {
	if strings.TrimSpace(wt.Name) == "" {
		return WoodType{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if wt.Density < 0 {
		return WoodType{}, fmt.Errorf("%w: density must be >= 0", ErrInvalidInput)
	}
	return s.repo.Create(ctx, wt)
}
