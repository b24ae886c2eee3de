package drying

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/timberline-erp/timberline/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	InsertReading(ctx context.Context, reading HumidityReading) (int64, error)
	GetByID(ctx context.Context, id int64) (Process, error)
	List(ctx context.Context, status Status) ([]Process, error)
}

// Service drives drying batch lifecycles and their ledger transitions.
type Service struct {
	repo   RepositoryPort
	ledger *stock.Ledger
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, ledger *stock.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, logger: logger}
}

// StartParams describes a new drying batch.
type StartParams struct {
	SourceWarehouseID int64
	WoodTypeID        int64
	Thickness         int
	Quantity          int64
	StartTime         time.Time
	StartingHumidity  float64
	ActorID           int64
}

// Start creates the batch and moves its quantity from not_dried to
// under_drying in one transaction.
func (s *Service) Start(ctx context.Context, params StartParams) (Process, error) {
	if params.Quantity <= 0 {
		return Process{}, stock.ErrInvalidQuantity
	}
	if params.StartingHumidity <= 0 || params.StartingHumidity > 100 {
		return Process{}, fmt.Errorf("%w: starting humidity %.1f out of range", ErrInvalidReading, params.StartingHumidity)
	}

	var created Process
	var movements []stock.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		number, err := tx.NextBatchNumber(ctx)
		if err != nil {
			return err
		}
		startTime := params.StartTime
		if startTime.IsZero() {
			startTime = time.Now().UTC()
		}
		created = Process{
			BatchNumber:       number,
			SourceWarehouseID: params.SourceWarehouseID,
			WoodTypeID:        params.WoodTypeID,
			Thickness:         params.Thickness,
			Quantity:          params.Quantity,
			Status:            StatusInProgress,
			StartTime:         startTime,
			StartingHumidity:  params.StartingHumidity,
			ActorID:           params.ActorID,
		}
		created.ID, err = tx.InsertProcess(ctx, created)
		if err != nil {
			return err
		}

		out, in, err := s.ledger.TransitionTx(ctx, tx.Stock(), stock.TransitionParams{
			WarehouseID: params.SourceWarehouseID,
			WoodTypeID:  params.WoodTypeID,
			Thickness:   params.Thickness,
			FromBucket:  stock.BucketNotDried,
			ToBucket:    stock.BucketUnderDrying,
			Quantity:    params.Quantity,
			Type:        stock.MovementDryingStart,
			Reference:   number,
			ActorID:     params.ActorID,
		})
		if err != nil {
			return err
		}
		movements = append(movements, out, in)
		return nil
	})
	if err != nil {
		return Process{}, err
	}
	s.ledger.NotifyCommitted(ctx, movements...)
	s.logger.Info("drying batch started", slog.String("batch", created.BatchNumber),
		slog.Int64("quantity", created.Quantity))
	return created, nil
}

// AddReading appends a humidity measurement to an in-progress batch.
func (s *Service) AddReading(ctx context.Context, processID int64, readingTime time.Time, humidity float64) (HumidityReading, error) {
	if humidity <= 0 || humidity > 100 {
		return HumidityReading{}, fmt.Errorf("%w: humidity %.1f out of range", ErrInvalidReading, humidity)
	}
	p, err := s.repo.GetByID(ctx, processID)
	if err != nil {
		return HumidityReading{}, err
	}
	if p.Status != StatusInProgress {
		return HumidityReading{}, fmt.Errorf("%w: readings only on %s batches", ErrInvalidState, StatusInProgress)
	}
	if readingTime.IsZero() {
		readingTime = time.Now().UTC()
	}
	if readingTime.Before(p.StartTime) {
		return HumidityReading{}, fmt.Errorf("%w: reading predates batch start", ErrInvalidReading)
	}
	reading := HumidityReading{ProcessID: processID, ReadingTime: readingTime, Humidity: humidity}
	reading.ID, err = s.repo.InsertReading(ctx, reading)
	if err != nil {
		return HumidityReading{}, err
	}
	return reading, nil
}

// Complete finishes the batch and moves its quantity from under_drying to
// dried in one transaction with the status change.
func (s *Service) Complete(ctx context.Context, processID, actorID int64) (Process, error) {
	var result Process
	var movements []stock.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.GetForUpdate(ctx, processID)
		if err != nil {
			return err
		}
		if p.Status != StatusInProgress {
			return fmt.Errorf("%w: complete requires %s, batch is %s", ErrInvalidState, StatusInProgress, p.Status)
		}
		out, in, err := s.ledger.TransitionTx(ctx, tx.Stock(), stock.TransitionParams{
			WarehouseID: p.SourceWarehouseID,
			WoodTypeID:  p.WoodTypeID,
			Thickness:   p.Thickness,
			FromBucket:  stock.BucketUnderDrying,
			ToBucket:    stock.BucketDried,
			Quantity:    p.Quantity,
			Type:        stock.MovementDryingEnd,
			Reference:   p.BatchNumber,
			ActorID:     actorID,
		})
		if err != nil {
			return err
		}
		movements = append(movements, out, in)

		now := time.Now().UTC()
		if err := tx.UpdateStatus(ctx, processID, StatusCompleted, now); err != nil {
			return err
		}
		p.Status = StatusCompleted
		p.CompletedAt = &now
		result = p
		return nil
	})
	if err != nil {
		return Process{}, err
	}
	s.ledger.NotifyCommitted(ctx, movements...)
	s.logger.Info("drying batch completed", slog.String("batch", result.BatchNumber))
	return result, nil
}

// Estimate projects completion for the batch from its humidity trend.
// Recomputed fresh on every call; nothing is persisted.
func (s *Service) Estimate(ctx context.Context, processID int64) (Estimate, error) {
	p, err := s.repo.GetByID(ctx, processID)
	if err != nil {
		return Estimate{}, err
	}
	if p.Status == StatusCompleted {
		return noEstimate("batch already completed"), nil
	}
	return EstimateCompletion(p.StartTime, p.StartingHumidity, p.Readings), nil
}

// Get returns one process with readings.
func (s *Service) Get(ctx context.Context, id int64) (Process, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns processes, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Process, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidState, status)
	}
	return s.repo.List(ctx, status)
}
