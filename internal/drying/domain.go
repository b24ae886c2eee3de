package drying

import (
	"errors"
	"time"
)

// Status enumerates drying batch lifecycle states.
type Status string

const (
	// StatusPending marks a planned batch not yet loaded into the kiln.
	StatusPending Status = "PENDING"
	// StatusInProgress marks a batch currently drying.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted marks a finished batch. Terminal.
	StatusCompleted Status = "COMPLETED"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Process is one kiln drying batch. Starting a batch moves the quantity from
// not_dried to under_drying; completing it moves under_drying to dried.
type Process struct {
	ID                int64             `json:"id"`
	BatchNumber       string            `json:"batch_number"`
	SourceWarehouseID int64             `json:"source_warehouse_id"`
	WoodTypeID        int64             `json:"wood_type_id"`
	Thickness         int               `json:"thickness"`
	Quantity          int64             `json:"quantity"`
	Status            Status            `json:"status"`
	StartTime         time.Time         `json:"start_time"`
	StartingHumidity  float64           `json:"starting_humidity"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	ActorID           int64             `json:"actor_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Readings          []HumidityReading `json:"readings"`
}

// HumidityReading is one periodic kiln measurement, ordered by reading time.
type HumidityReading struct {
	ID          int64     `json:"id"`
	ProcessID   int64     `json:"process_id"`
	ReadingTime time.Time `json:"reading_time"`
	Humidity    float64   `json:"humidity"`
}

var (
	// ErrNotFound indicates a missing drying process.
	ErrNotFound = errors.New("drying: process not found")
	// ErrInvalidState is returned when an operation is requested in a state
	// that does not permit it.
	ErrInvalidState = errors.New("drying: operation not allowed in current state")
	// ErrInvalidReading rejects malformed humidity readings.
	ErrInvalidReading = errors.New("drying: invalid humidity reading")
)
