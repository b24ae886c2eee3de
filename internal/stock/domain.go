package stock

import (
	"errors"
	"time"
)

// Bucket enumerates the mutually exclusive quantity categories on a stock record.
type Bucket string

const (
	// BucketNotDried holds green lumber awaiting the kiln.
	BucketNotDried Bucket = "NOT_DRIED"
	// BucketUnderDrying holds lumber currently in a drying batch.
	BucketUnderDrying Bucket = "UNDER_DRYING"
	// BucketDried holds kiln-dried, sellable lumber.
	BucketDried Bucket = "DRIED"
	// BucketDamaged holds lumber written off from the sellable pool.
	BucketDamaged Bucket = "DAMAGED"
	// BucketInTransitOut reserves quantities leaving on an open transfer.
	BucketInTransitOut Bucket = "IN_TRANSIT_OUT"
	// BucketInTransitIn is a display aggregate derived from open inbound
	// transfers. The ledger never writes it; see Consolidate.
	BucketInTransitIn Bucket = "IN_TRANSIT_IN"
)

// IsValid checks if the bucket is a known category.
func (b Bucket) IsValid() bool {
	switch b {
	case BucketNotDried, BucketUnderDrying, BucketDried, BucketDamaged, BucketInTransitOut, BucketInTransitIn:
		return true
	default:
		return false
	}
}

// IsOnHand reports whether the bucket counts toward stock physically present
// in the warehouse.
func (b Bucket) IsOnHand() bool {
	switch b {
	case BucketNotDried, BucketUnderDrying, BucketDried, BucketDamaged:
		return true
	default:
		return false
	}
}

// MovementType enumerates supported ledger movements.
type MovementType string

const (
	// MovementReceiptSync records inflow from a confirmed goods receipt.
	MovementReceiptSync MovementType = "RECEIPT_SYNC"
	// MovementTransferOut records reservation and release of outbound transfer stock.
	MovementTransferOut MovementType = "TRANSFER_OUT"
	// MovementTransferIn records stock credited at the destination on completion.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementDryingStart records the notDried -> underDrying transition.
	MovementDryingStart MovementType = "DRYING_START"
	// MovementDryingEnd records the underDrying -> dried transition.
	MovementDryingEnd MovementType = "DRYING_END"
	// MovementManualAdjustment records a manual correction.
	MovementManualAdjustment MovementType = "MANUAL_ADJUSTMENT"
)

// IsValid checks if the movement type is known.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementReceiptSync, MovementTransferOut, MovementTransferIn, MovementDryingStart, MovementDryingEnd, MovementManualAdjustment:
		return true
	default:
		return false
	}
}

// StockRecord keeps the current bucket quantities for one
// (warehouse, wood type, thickness) combination. Created lazily on first
// movement and never deleted.
type StockRecord struct {
	ID                int64     `json:"id"`
	WarehouseID       int64     `json:"warehouse_id"`
	WoodTypeID        int64     `json:"wood_type_id"`
	Thickness         int       `json:"thickness"`
	NotDried          int64     `json:"not_dried"`
	UnderDrying       int64     `json:"under_drying"`
	Dried             int64     `json:"dried"`
	Damaged           int64     `json:"damaged"`
	InTransitOut      int64     `json:"in_transit_out"`
	InTransitIn       int64     `json:"in_transit_in"`
	MinimumStockLevel *int64    `json:"minimum_stock_level,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BucketQty returns the current quantity held in the given bucket.
func (r *StockRecord) BucketQty(b Bucket) int64 {
	switch b {
	case BucketNotDried:
		return r.NotDried
	case BucketUnderDrying:
		return r.UnderDrying
	case BucketDried:
		return r.Dried
	case BucketDamaged:
		return r.Damaged
	case BucketInTransitOut:
		return r.InTransitOut
	case BucketInTransitIn:
		return r.InTransitIn
	default:
		return 0
	}
}

// SetBucketQty writes the quantity for the given bucket.
func (r *StockRecord) SetBucketQty(b Bucket, qty int64) {
	switch b {
	case BucketNotDried:
		r.NotDried = qty
	case BucketUnderDrying:
		r.UnderDrying = qty
	case BucketDried:
		r.Dried = qty
	case BucketDamaged:
		r.Damaged = qty
	case BucketInTransitOut:
		r.InTransitOut = qty
	case BucketInTransitIn:
		r.InTransitIn = qty
	}
}

// Total is the on-hand quantity across state buckets. In-transit buckets are
// excluded: that stock is between warehouses, not on the floor.
func (r *StockRecord) Total() int64 {
	return r.NotDried + r.UnderDrying + r.Dried + r.Damaged
}

// Available is the immediately usable/sellable quantity.
func (r *StockRecord) Available() int64 {
	return r.NotDried + r.Dried
}

// Movement is an immutable audit-log entry for a single signed bucket change.
type Movement struct {
	ID          int64        `json:"id"`
	WarehouseID int64        `json:"warehouse_id"`
	WoodTypeID  int64        `json:"wood_type_id"`
	Thickness   int          `json:"thickness"`
	Type        MovementType `json:"type"`
	Bucket      Bucket       `json:"bucket"`
	Delta       int64        `json:"delta"`
	QtyBefore   int64        `json:"qty_before"`
	QtyAfter    int64        `json:"qty_after"`
	Reference   string       `json:"reference,omitempty"`
	Note        string       `json:"note,omitempty"`
	ActorID     int64        `json:"actor_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Adjustment is the manual-correction record paired with a
// MANUAL_ADJUSTMENT movement. Append-only.
type Adjustment struct {
	ID             int64     `json:"id"`
	WarehouseID    int64     `json:"warehouse_id"`
	WoodTypeID     int64     `json:"wood_type_id"`
	Thickness      int       `json:"thickness"`
	Bucket         Bucket    `json:"bucket"`
	QuantityBefore int64     `json:"quantity_before"`
	QuantityAfter  int64     `json:"quantity_after"`
	QuantityChange int64     `json:"quantity_change"`
	Reason         string    `json:"reason"`
	ActorID        int64     `json:"actor_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// LowStockAlert reports a record whose available stock fell under its
// configured minimum. Derived on evaluation, never persisted.
type LowStockAlert struct {
	WarehouseID       int64 `json:"warehouse_id"`
	WoodTypeID        int64 `json:"wood_type_id"`
	Thickness         int   `json:"thickness"`
	Available         int64 `json:"available"`
	MinimumStockLevel int64 `json:"minimum_stock_level"`
	Shortfall         int64 `json:"shortfall"`
}

// MovementFilter narrows a movement-history query.
type MovementFilter struct {
	WarehouseID int64
	WoodTypeID  int64
	Thickness   int
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// WarehouseControl carries the stock-control flags the ledger checks before
// touching a record.
type WarehouseControl struct {
	Status              string
	StockControlEnabled bool
	RequiresApproval    bool
}

// Active reports whether the warehouse participates in stock operations.
func (c WarehouseControl) Active() bool {
	return c.Status == "ACTIVE" && c.StockControlEnabled
}

var (
	// ErrInsufficientStock is returned when a decrement would drive a bucket
	// negative. Never clamped; the whole movement is rejected.
	ErrInsufficientStock = errors.New("stock: insufficient quantity in bucket")
	// ErrUnknownReference is returned when the warehouse or wood type does not
	// resolve to an active stock-controlled configuration.
	ErrUnknownReference = errors.New("stock: unknown warehouse/wood type reference")
	// ErrInvalidBucket indicates an unknown or non-writable bucket.
	ErrInvalidBucket = errors.New("stock: invalid bucket")
	// ErrInvalidQuantity indicates a zero or malformed quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be non zero")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("stock: invalid movement type")
	// ErrRecordNotFound indicates a missing stock record row.
	ErrRecordNotFound = errors.New("stock: record not found")
)
