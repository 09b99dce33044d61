package cart

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart: line not found")
	ErrInvalidQuantity = errors.New("cart: quantity must be at least one")
	ErrExceedsStock    = errors.New("cart: quantity exceeds available stock")
	ErrOutOfStock      = errors.New("cart: product is out of stock")
)

// Line is one product in a user's cart. (UserID, ProductID) is unique.
type Line struct {
	UserID    int64
	ProductID int64
	Quantity  int
}

// Item is a cart line joined with the current product row.
type Item struct {
	ProductID int64
	Name      string
	Image     string
	Quantity  int
	Price     decimal.Decimal
	Stock     int
}

// Subtotal is quantity times the current price.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the subtotals of items, rounded to cents.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total.Round(2)
}

// CheckQuantity applies the stock rule every cart mutation shares: the resulting quantity
// must be between one and the product's current stock.
func CheckQuantity(qty, stock int) error {
	if stock <= 0 {
		return ErrOutOfStock
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if qty > stock {
		return ErrExceedsStock
	}
	return nil
}

type Repository interface {
	// Items returns the user's lines joined with products, in insertion order.
	Items(ctx context.Context, userID int64) ([]Item, error)
	FindLine(ctx context.Context, userID, productID int64) (*Line, error)
	// SaveLine inserts or replaces the quantity of a line.
	SaveLine(ctx context.Context, line Line) error
	DeleteLine(ctx context.Context, userID, productID int64) error
	DeleteAll(ctx context.Context, userID int64) error
}

// Consumer is the part of the cart a committing order reads and clears inside its transaction.
type Consumer interface {
	// SelectedItems returns the lines for productIDs that exist in the cart; missing ids are skipped.
	SelectedItems(ctx context.Context, userID int64, productIDs []int64) ([]Item, error)
	DeleteLines(ctx context.Context, userID int64, productIDs []int64) error
}
