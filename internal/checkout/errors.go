package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrMissingShippingInfo = errors.New("shipping information is missing")

	// ErrConflict marks a lost race on the conditional stock decrement. It is
	// distinct from out-of-stock because the same request might succeed on
	// retry; the orchestrator retries these internally a bounded number of
	// times.
	ErrConflict = errors.New("conflicting concurrent checkout")
)

// Shortage names one product that could not be supplied and how much of it
// is actually available.
type Shortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// OutOfStockError is the terminal stock failure of a checkout attempt,
// carrying every offending product.
type OutOfStockError struct {
	Shortages []Shortage
}

func (e *OutOfStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// conflictError carries the shortage observed when a decrement lost its race,
// so an exhausted retry loop can still tell the caller what went short.
type conflictError struct {
	shortage Shortage
}

func (e *conflictError) Error() string {
	return fmt.Sprintf("%v: product %s", ErrConflict, e.shortage.ProductID)
}

func (e *conflictError) Unwrap() error { return ErrConflict }
