package products

import (
	"errors"
	"time"
)

var (
	ErrProductNotFound = errors.New("product not found")

	// ErrInsufficientStock is returned by DecrementStock when the conditional
	// update touched zero rows: at that instant stock was below the requested
	// quantity. The enclosing transaction must be aborted.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product price and stock are authoritative here; stock is only ever
// decremented through DecrementStock.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"` // smallest currency unit
	Stock     int       `json:"stock"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
