package transfer

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/timberline-erp/timberline/internal/stock"
)

// Status enumerates transfer lifecycle states.
type Status string

const (
	// StatusPending marks a created transfer with stock reserved at the source.
	StatusPending Status = "PENDING"
	// StatusInTransit marks physical dispatch. No ledger effect on entry.
	StatusInTransit Status = "IN_TRANSIT"
	// StatusCompleted marks arrival; stock credited at the destination. Terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled marks a reverted transfer. Terminal.
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanDispatch reports whether the transfer may move to IN_TRANSIT.
func (s Status) CanDispatch() bool {
	return s == StatusPending
}

// CanComplete reports whether the transfer may move to COMPLETED.
func (s Status) CanComplete() bool {
	return s == StatusInTransit
}

// CanCancel reports whether the transfer may move to CANCELLED.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusInTransit
}

// Transfer is a warehouse-to-warehouse stock relocation. Stock is reserved into
// the source's in_transit_out bucket at creation and released either to the
// destination (complete) or back to the origin bucket (cancel).
type Transfer struct {
	ID               int64      `json:"id"`
	Number           string     `json:"number"`
	RefID            uuid.UUID  `json:"ref_id"`
	FromWarehouseID  int64      `json:"from_warehouse_id"`
	ToWarehouseID    int64      `json:"to_warehouse_id"`
	Status           Status     `json:"status"`
	RequiresApproval bool       `json:"requires_approval"`
	TransferDate     time.Time  `json:"transfer_date"`
	Notes            string     `json:"notes,omitempty"`
	ConditionAfter   string     `json:"condition_after,omitempty"`
	DispatchedAt     *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	ActorID          int64      `json:"actor_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Items            []Item     `json:"items"`
}

// Item is one line of a transfer: a quantity of one (wood type, thickness)
// combination taken from a specific on-hand bucket.
type Item struct {
	ID         int64        `json:"id"`
	TransferID int64        `json:"transfer_id"`
	WoodTypeID int64        `json:"wood_type_id"`
	Thickness  int          `json:"thickness"`
	Quantity   int64        `json:"quantity"`
	Bucket     stock.Bucket `json:"bucket"`
}

var (
	// ErrNotFound indicates a missing transfer.
	ErrNotFound = errors.New("transfer: not found")
	// ErrInvalidTransition is returned when a status change is requested from a
	// state that does not permit it. No partial state change occurs.
	ErrInvalidTransition = errors.New("transfer: invalid status transition")
	// ErrSameWarehouse rejects transfers where source and destination match.
	ErrSameWarehouse = errors.New("transfer: source and destination must differ")
	// ErrEmptyItems rejects transfers without items.
	ErrEmptyItems = errors.New("transfer: at least one item required")
	// ErrInvalidItem rejects items with non-positive quantity or a bucket that
	// is not physically on hand.
	ErrInvalidItem = errors.New("transfer: item quantity must be positive and bucket on-hand")
	// ErrApprovalRequired blocks dispatch from a requires_approval source until
	// an approval record exists.
	ErrApprovalRequired = errors.New("transfer: approval required before dispatch")
)
