package cart

import (
	"errors"
	"fmt"
)

var ErrLineNotFound = errors.New("cart line not found")

// OutOfStockError reports the advisory stock check failing at cart mutation
// time. It carries the quantity actually available so the client can adjust
// the cart instead of blindly retrying.
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// CartLine is one (product, quantity) entry in the user's pending basket,
// denormalized with current product display data for rendering.
type CartLine struct {
	ID        int64  `json:"line_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	UnitPrice int64  `json:"unit_price"` // current catalog price, not frozen
	Quantity  int    `json:"quantity"`
}

type CartResponse struct {
	Lines []CartLine `json:"lines"`
}
