package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("payment: record not found")
	// ErrConflict reports a provider reference that is already recorded, or a record that was
	// linked to an order concurrently.
	ErrConflict = errors.New("payment: conflicting record")
	// ErrPaymentPending is retriable: the provider has not settled yet.
	ErrPaymentPending = errors.New("payment: still pending")
	// ErrPaymentFailed is terminal for this attempt.
	ErrPaymentFailed = errors.New("payment: not completed")
	// ErrTimedOut reports a QR session whose polling window elapsed.
	ErrTimedOut = errors.New("payment: session timed out")
	// ErrProviderUnavailable wraps transport and 5xx failures; never treated as paid.
	ErrProviderUnavailable = errors.New("payment: provider unavailable")
	// ErrAlreadyRefunded is returned by refund APIs that report a prior refund.
	ErrAlreadyRefunded = errors.New("payment: already refunded")
)

type Method string

const (
	MethodPayPal Method = "PayPal"
	MethodHitPay Method = "HitPay-PayNow"
	MethodNETSQR Method = "NETS-QR"
)

func (m Method) Valid() bool {
	switch m {
	case MethodPayPal, MethodHitPay, MethodNETSQR:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	// StatusExpired is sticky: an expired QR session never becomes paid.
	StatusExpired Status = "expired"
)

// Terminal reports whether no further provider outcome may change the record.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired
}

// Confirmation is the provider-neutral outcome every session adapter produces.
type Confirmation struct {
	Method     Method
	Status     Status
	Reference  string
	CaptureID  string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	PaidAt     time.Time
}

// Paid reports whether the confirmation may drive an order commit.
func (c Confirmation) Paid() bool { return c.Status == StatusPaid }

// Record is the persisted trace of a payment. OrderID is nil until an order consumes it.
type Record struct {
	ID         int64
	OrderID    *int64
	UserID     int64
	Method     Method
	Status     Status
	Amount     decimal.Decimal
	Currency   string
	Reference  string
	CaptureID  string
	PayerEmail string
	QRImage    string
	PaidAt     *time.Time
	CreatedAt  time.Time
}

// Linked reports whether an order already consumed this payment.
func (r *Record) Linked() bool { return r.OrderID != nil }

// PaidRecordFrom builds the record inserted when no pending record exists for a confirmation.
func PaidRecordFrom(userID, orderID int64, c Confirmation) *Record {
	paidAt := c.PaidAt
	return &Record{
		OrderID:    &orderID,
		UserID:     userID,
		Method:     c.Method,
		Status:     StatusPaid,
		Amount:     c.Amount,
		Currency:   c.Currency,
		Reference:  c.Reference,
		CaptureID:  c.CaptureID,
		PayerEmail: c.PayerEmail,
		PaidAt:     &paidAt,
	}
}

// Repository stores payment records outside of an order commit.
type Repository interface {
	InsertPending(ctx context.Context, rec *Record) error
	FindByReference(ctx context.Context, method Method, reference string) (*Record, error)
	FindPaidByOrder(ctx context.Context, orderID int64) (*Record, error)
	// MarkPendingAs moves an unlinked pending record to a terminal status. It reports false when
	// the record was no longer pending and unlinked.
	MarkPendingAs(ctx context.Context, id int64, status Status) (bool, error)
}

// Linker is the part of the payment store a committing order uses inside its transaction.
type Linker interface {
	FindByReference(ctx context.Context, method Method, reference string) (*Record, error)
	// Link attaches an unlinked record to orderID and marks it paid. It returns ErrConflict
	// when another order linked it first.
	Link(ctx context.Context, recordID, orderID int64, c Confirmation) error
	// InsertPaid returns ErrConflict when (method, reference) is already recorded.
	InsertPaid(ctx context.Context, rec *Record) error
}
