package order

import (
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("order: not found")
	ErrConflict = errors.New("order: conflict")
	// ErrSelectionEmpty and ErrSelectionInvalid send the client back to the cart.
	ErrSelectionEmpty   = errors.New("order: no cart lines selected")
	ErrSelectionInvalid = errors.New("order: selected cart lines are missing or unavailable")
	ErrAmountMismatch   = errors.New("order: paid amount does not match order total")
	// ErrFinalizationFailed is retriable: nothing from the attempt was persisted.
	ErrFinalizationFailed = errors.New("order: finalization failed")
	ErrRefundIneligible   = errors.New("order: refund not allowed in current state")
	ErrForbidden          = errors.New("order: not owned by user")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

type Order struct {
	ID            int64
	UserID        int64
	OrderDate     time.Time
	TotalAmount   decimal.Decimal
	Status        Status
	PaymentMethod payment.Method
	InvoiceNumber string
	PaidAt        *time.Time
	Refund        Refund
	Lines         []Line
}

// Line snapshots the unit price at commit time; later catalog changes never touch it.
type Line struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	ProductName  string
	Quantity     int
	PricePerUnit decimal.Decimal
	CreatedAt    time.Time
}

func (l Line) Total() decimal.Decimal {
	return l.PricePerUnit.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NewPaid builds an order for lines that were just paid. The total is always derived from the
// lines, never taken from a client or provider.
func NewPaid(userID int64, method payment.Method, invoiceNumber string, paidAt time.Time, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrSelectionEmpty
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrSelectionInvalid
		}
	}
	now := time.Now().UTC()
	paid := paidAt.UTC()
	o := &Order{
		UserID:        userID,
		OrderDate:     now,
		Status:        StatusPaid,
		PaymentMethod: method,
		InvoiceNumber: invoiceNumber,
		PaidAt:        &paid,
		Refund:        Refund{Status: RefundNone},
		Lines:         make([]Line, len(lines)),
	}
	for i, l := range lines {
		l.CreatedAt = now
		o.Lines[i] = l
	}
	o.TotalAmount = o.LinesTotal()
	return o, nil
}

// LinesTotal recomputes the total from the price snapshots, rounded to cents.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Total())
	}
	return total.Round(2)
}

// Adjustments lists the stock movement each line represents.
func (o *Order) Adjustments() []inventory.Adjustment {
	out := make([]inventory.Adjustment, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, inventory.Adjustment{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID int64) bool { return o.UserID == userID }

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.PaidAt != nil {
		at := *o.PaidAt
		c.PaidAt = &at
	}
	c.Refund = o.Refund.clone()
	c.Lines = append([]Line(nil), o.Lines...)
	return &c
}
