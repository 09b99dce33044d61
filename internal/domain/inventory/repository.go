package inventory

import (
	"context"
)

// Ledger applies relative stock updates. Implementations must express both operations as a
// single atomic update of the stored quantity, never read-modify-write.
type Ledger interface {
	// Decrement subtracts qty from stock, clamping at zero.
	Decrement(ctx context.Context, productID int64, qty int) error
	Increment(ctx context.Context, productID int64, qty int) error
}
