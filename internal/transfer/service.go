package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/timberline-erp/timberline/internal/shared"
	"github.com/timberline-erp/timberline/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetByID(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, error)
}

// ApprovalPort abstracts the approval gate for requires_approval sources.
type ApprovalPort interface {
	IsApproved(ctx context.Context, module string, ref uuid.UUID) (bool, error)
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the transfer state machine. Every transition runs in one
// transaction with its ledger movements.
type Service struct {
	repo      RepositoryPort
	ledger    *stock.Ledger
	approvals ApprovalPort
	logger    *slog.Logger
}

// NewService constructs Service. approvals may be nil when no source warehouse
// uses the approval gate (tests).
func NewService(repo RepositoryPort, ledger *stock.Ledger, approvals ApprovalPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, approvals: approvals, logger: logger}
}

// CreateParams describes a new transfer.
type CreateParams struct {
	FromWarehouseID int64
	ToWarehouseID   int64
	TransferDate    time.Time
	Notes           string
	ActorID         int64
	Items           []Item
}

func (p CreateParams) validate() error {
	if p.FromWarehouseID <= 0 || p.ToWarehouseID <= 0 {
		return fmt.Errorf("%w: warehouse ids required", stock.ErrUnknownReference)
	}
	if p.FromWarehouseID == p.ToWarehouseID {
		return ErrSameWarehouse
	}
	if len(p.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range p.Items {
		if item.Quantity <= 0 || !item.Bucket.IsOnHand() {
			return fmt.Errorf("%w: wood type %d thickness %d", ErrInvalidItem, item.WoodTypeID, item.Thickness)
		}
	}
	return nil
}

// Create reserves every item into the source's in_transit_out bucket and
// persists the transfer as PENDING, atomically. Insufficient stock on any item
// rolls back the whole creation: no partial reservation.
func (s *Service) Create(ctx context.Context, params CreateParams) (Transfer, error) {
	if err := params.validate(); err != nil {
		return Transfer{}, err
	}

	var created Transfer
	var movements []stock.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		source, err := tx.Stock().WarehouseControl(ctx, params.FromWarehouseID)
		if err != nil {
			return err
		}
		if !source.Active() {
			return fmt.Errorf("%w: source warehouse %d", stock.ErrUnknownReference, params.FromWarehouseID)
		}
		dest, err := tx.Stock().WarehouseControl(ctx, params.ToWarehouseID)
		if err != nil {
			return err
		}
		if !dest.Active() {
			return fmt.Errorf("%w: destination warehouse %d", stock.ErrUnknownReference, params.ToWarehouseID)
		}

		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		transferDate := params.TransferDate
		if transferDate.IsZero() {
			transferDate = time.Now().UTC()
		}
		created = Transfer{
			Number:           number,
			RefID:            uuid.New(),
			FromWarehouseID:  params.FromWarehouseID,
			ToWarehouseID:    params.ToWarehouseID,
			Status:           StatusPending,
			RequiresApproval: source.RequiresApproval,
			TransferDate:     transferDate,
			Notes:            params.Notes,
			ActorID:          params.ActorID,
		}
		created.ID, err = tx.InsertTransfer(ctx, created)
		if err != nil {
			return err
		}
		for i := range params.Items {
			params.Items[i].TransferID = created.ID
		}
		if err := tx.InsertItems(ctx, created.ID, params.Items); err != nil {
			return err
		}
		created.Items = params.Items

		for _, item := range params.Items {
			out, in, err := s.ledger.TransitionTx(ctx, tx.Stock(), stock.TransitionParams{
				WarehouseID: params.FromWarehouseID,
				WoodTypeID:  item.WoodTypeID,
				Thickness:   item.Thickness,
				FromBucket:  item.Bucket,
				ToBucket:    stock.BucketInTransitOut,
				Quantity:    item.Quantity,
				Type:        stock.MovementTransferOut,
				Reference:   number,
				ActorID:     params.ActorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, out, in)
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.ledger.NotifyCommitted(ctx, movements...)
	s.logger.Info("transfer created", slog.String("number", created.Number),
		slog.Int64("from", created.FromWarehouseID), slog.Int64("to", created.ToWarehouseID))
	return created, nil
}

// Dispatch moves PENDING -> IN_TRANSIT. Pure status transition: stock was
// already reserved at creation. Sources flagged requires_approval need an
// APPROVE record first.
func (s *Service) Dispatch(ctx context.Context, id, actorID int64) (Transfer, error) {
	var result Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		tr, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tr.Status.CanDispatch() {
			return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, StatusInTransit, tr.Status)
		}
		if tr.RequiresApproval {
			if s.approvals == nil {
				return ErrApprovalRequired
			}
			approved, err := s.approvals.IsApproved(ctx, shared.ModuleTransfer, tr.RefID)
			if err != nil {
				return err
			}
			if !approved {
				return ErrApprovalRequired
			}
		}
		now := time.Now().UTC()
		if err := tx.UpdateStatus(ctx, id, StatusUpdate{Status: StatusInTransit, At: now}); err != nil {
			return err
		}
		tr.Status = StatusInTransit
		tr.DispatchedAt = &now
		result = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return result, nil
}

// Complete moves IN_TRANSIT -> COMPLETED: releases the source reservation and
// credits the destination bucket each item came from, in one transaction with
// the status change.
func (s *Service) Complete(ctx context.Context, id, actorID int64, conditionAfter string) (Transfer, error) {
	var result Transfer
	var movements []stock.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		tr, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tr.Status.CanComplete() {
			return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, StatusCompleted, tr.Status)
		}
		for _, item := range tr.Items {
			release, err := s.ledger.ApplyTx(ctx, tx.Stock(), stock.MovementParams{
				WarehouseID: tr.FromWarehouseID,
				WoodTypeID:  item.WoodTypeID,
				Thickness:   item.Thickness,
				Type:        stock.MovementTransferOut,
				Bucket:      stock.BucketInTransitOut,
				Delta:       -item.Quantity,
				Reference:   tr.Number,
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
			credit, err := s.ledger.ApplyTx(ctx, tx.Stock(), stock.MovementParams{
				WarehouseID: tr.ToWarehouseID,
				WoodTypeID:  item.WoodTypeID,
				Thickness:   item.Thickness,
				Type:        stock.MovementTransferIn,
				Bucket:      item.Bucket,
				Delta:       item.Quantity,
				Reference:   tr.Number,
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, release, credit)
		}
		now := time.Now().UTC()
		if err := tx.UpdateStatus(ctx, id, StatusUpdate{Status: StatusCompleted, ConditionAfter: conditionAfter, At: now}); err != nil {
			return err
		}
		tr.Status = StatusCompleted
		tr.ConditionAfter = conditionAfter
		tr.CompletedAt = &now
		result = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.ledger.NotifyCommitted(ctx, movements...)
	s.logger.Info("transfer completed", slog.String("number", result.Number))
	return result, nil
}

// Cancel reverses the reservation from PENDING or IN_TRANSIT: stock returns
// from in_transit_out to the bucket each item was taken from. Terminal.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (Transfer, error) {
	var result Transfer
	var movements []stock.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		tr, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tr.Status.CanCancel() {
			return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, StatusCancelled, tr.Status)
		}
		for _, item := range tr.Items {
			out, in, err := s.ledger.TransitionTx(ctx, tx.Stock(), stock.TransitionParams{
				WarehouseID: tr.FromWarehouseID,
				WoodTypeID:  item.WoodTypeID,
				Thickness:   item.Thickness,
				FromBucket:  stock.BucketInTransitOut,
				ToBucket:    item.Bucket,
				Quantity:    item.Quantity,
				Type:        stock.MovementTransferOut,
				Reference:   tr.Number,
				Note:        reason,
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, out, in)
		}
		now := time.Now().UTC()
		if err := tx.UpdateStatus(ctx, id, StatusUpdate{Status: StatusCancelled, Notes: reason, At: now}); err != nil {
			return err
		}
		tr.Status = StatusCancelled
		tr.CancelledAt = &now
		result = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.ledger.NotifyCommitted(ctx, movements...)
	s.logger.Info("transfer cancelled", slog.String("number", result.Number))
	return result, nil
}

// ChangeStatus dispatches a requested status to the matching transition.
func (s *Service) ChangeStatus(ctx context.Context, id int64, target Status, actorID int64, notes, conditionAfter string) (Transfer, error) {
	switch target {
	case StatusInTransit:
		return s.Dispatch(ctx, id, actorID)
	case StatusCompleted:
		return s.Complete(ctx, id, actorID, conditionAfter)
	case StatusCancelled:
		return s.Cancel(ctx, id, actorID, notes)
	default:
		return Transfer{}, fmt.Errorf("%w: target %q", ErrInvalidTransition, target)
	}
}

// Approve records an approval action for the transfer's ref id.
func (s *Service) Approve(ctx context.Context, id, actorID int64, action shared.ApprovalAction, note string) error {
	if s.approvals == nil {
		return ErrApprovalRequired
	}
	tr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tr.Status.IsTerminal() {
		return fmt.Errorf("%w: approvals closed on %s", ErrInvalidTransition, tr.Status)
	}
	return s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  shared.ModuleTransfer,
		RefID:   tr.RefID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

// Get returns one transfer with items.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, filter.Status)
	}
	return s.repo.List(ctx, filter)
}
