package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Outbound ports for the payment providers. They belong to the application layer; the
// concrete HTTP clients live under infrastructure/provider. Implementations wrap transport
// failures and 5xx answers in payment.ErrProviderUnavailable.

// CaptureStatusCompleted is the only capture-provider status that means money moved.
const CaptureStatusCompleted = "COMPLETED"

// ErrAlreadyCaptured is returned by CaptureGateway.CaptureOrder when the provider order was
// captured by an earlier call.
var ErrAlreadyCaptured = errors.New("payment: provider order already captured")

// CaptureGateway is a provider where the buyer approves an order in the provider's UI and
// the shop captures it afterwards.
type CaptureGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*CaptureOrder, error)
	CaptureOrder(ctx context.Context, id string) (*CaptureOrder, error)
	GetOrder(ctx context.Context, id string) (*CaptureOrder, error)
}

type CaptureOrder struct {
	ID         string
	Status     string
	ApproveURL string
	CaptureID  string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	CapturedAt time.Time
}

// QRGateway issues dynamic QR codes and reports whether they were paid.
type QRGateway interface {
	RequestQR(ctx context.Context, txnID string, amount decimal.Decimal) (*QRCode, error)
	QueryQR(ctx context.Context, retrievalRef string) (*QRState, error)
}

type QRCode struct {
	RetrievalRef string
	// ImagePNG may be empty when the provider only returned the payload.
	ImagePNG []byte
	Payload  string
}

type QRState struct {
	ResponseCode string
	TxnStatus    int
}

// HostedGateway is a provider with a hosted checkout page the buyer is redirected to.
type HostedGateway interface {
	CreatePaymentRequest(ctx context.Context, req HostedRequest) (*HostedPayment, error)
	GetPaymentRequest(ctx context.Context, id string) (*HostedPayment, error)
}

type HostedRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Email       string
	RedirectURL string
}

type HostedPayment struct {
	ID        string
	URL       string
	Status    string
	Reference string
	PaymentID string
	Amount    decimal.Decimal
	Currency  string
	Email     string
}
