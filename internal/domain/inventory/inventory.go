package inventory

import (
	"errors"
)

var (
	ErrNotFound        = errors.New("inventory: product not found")
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
)

// Adjustment moves stock of one product by Quantity units.
type Adjustment struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	// Remaining is the expected stock after the adjustment, when known.
	Remaining int `json:"remaining,omitempty"`
}

// Decremented is the stock left after selling qty units. Stock never goes below zero:
// a shortfall is absorbed rather than rejected.
func Decremented(stock, qty int) int {
	if qty >= stock {
		return 0
	}
	return stock - qty
}

// Validate rejects non-positive adjustments.
func (a Adjustment) Validate() error {
	if a.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
