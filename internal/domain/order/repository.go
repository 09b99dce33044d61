package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
)

// ListFilter narrows admin listings; zero values match everything.
type ListFilter struct {
	UserID       int64
	RefundStatus RefundStatus
	Limit        int
}

// Repository reads orders with their lines.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	// List returns matching orders newest first.
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}

// Writer persists orders inside a transaction.
type Writer interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	// Insert stores the order and its lines and assigns their ids. A duplicate invoice number
	// yields ErrConflict.
	Insert(ctx context.Context, o *Order) error
	// UpdateRefund writes o.Refund only if the stored refund status still equals from, and
	// returns ErrConflict otherwise.
	UpdateRefund(ctx context.Context, o *Order, from RefundStatus) error
}

// Tx is everything one commit or refund decision may touch. All calls share one database
// transaction; none of them is visible to others until it commits.
type Tx interface {
	Writer
	inventory.Ledger
	cart.Consumer
	payment.Linker
}

// UnitOfWork runs fn in a transaction, committing when fn returns nil and rolling back otherwise.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
