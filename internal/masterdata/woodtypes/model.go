package woodtypes

import (
	"errors"
	"time"
)

// WoodType describes a species/grade combination handled by the mill.
// Reference data: identity fields are immutable after creation.
type WoodType struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Grade     string    `json:"grade"`
	Density   float64   `json:"density"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound indicates the requested wood type was not found.
var ErrNotFound = errors.New("wood type not found")

// ErrInvalidInput indicates a rejected create payload.
var ErrInvalidInput = errors.New("invalid wood type input")
