package warehouses

import (
	"errors"
	"time"
)

// Status represents the lifecycle of a warehouse.
type Status string

const (
	// StatusActive marks a warehouse participating in stock operations.
	StatusActive Status = "ACTIVE"
	// StatusArchived marks a warehouse excluded from stock operations but
	// retained for movement history.
	StatusArchived Status = "ARCHIVED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusArchived
}

// Warehouse represents a storage site for wood stock.
type Warehouse struct {
	ID                  int64     `json:"id"`
	Code                string    `json:"code"`
	Name                string    `json:"name"`
	Address             string    `json:"address"`
	StockControlEnabled bool      `json:"stock_control_enabled"`
	RequiresApproval    bool      `json:"requires_approval"`
	Status              Status    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ErrNotFound indicates the requested warehouse was not found.
var ErrNotFound = errors.New("warehouse not found")

// ErrDuplicateCode indicates the warehouse code is already taken.
var ErrDuplicateCode = errors.New("warehouse code already exists")

// ErrInvalidInput indicates a rejected create/update payload.
var ErrInvalidInput = errors.New("invalid warehouse input")
