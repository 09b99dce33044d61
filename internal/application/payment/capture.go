package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dompay "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService = "payment-service"

	useCaseCaptureCreate = "payment.capture.create"
	useCaseCapture       = "payment.capture"
)

type CaptureIntent struct {
	ID         string
	ApproveURL string
}

// CaptureAdapter drives an approve-then-capture provider. It never touches orders, carts or
// stock; its only product is a payment.Confirmation.
type CaptureAdapter struct {
	gateway  CaptureGateway
	currency string
	now      func() time.Time
	ins      application.Instrumentation
}

func NewCaptureAdapter(gateway CaptureGateway, currency string, tel observability.Observability) *CaptureAdapter {
	return &CaptureAdapter{
		gateway:  gateway,
		currency: strings.ToUpper(currency),
		now:      time.Now,
		ins:      application.NewInstrumentation(tel, paymentService),
	}
}

// CreateIntent opens a provider order for amount.
func (a *CaptureAdapter) CreateIntent(ctx context.Context, amount decimal.Decimal) (_ *CaptureIntent, err error) {
	ctx, run := a.ins.Begin(ctx, useCaseCaptureCreate, "CreateCaptureIntent",
		attribute.String("payment.method", string(dompay.MethodPayPal)),
		attribute.String("payment.amount", amount.StringFixed(2)),
	)
	defer func() { a.ins.End(run, err) }()

	if !amount.IsPositive() {
		run.Fail("AMOUNT_INVALID")
		return nil, application.NewValidation("amount must be greater than zero")
	}
	o, err := a.gateway.CreateOrder(ctx, amount.Round(2), a.currency)
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return nil, unavailable(err)
	}
	run.Annotate(observability.F("provider_reference", o.ID))
	return &CaptureIntent{ID: o.ID, ApproveURL: o.ApproveURL}, nil
}

// Capture captures an approved provider order. Capturing twice is harmless: the provider's
// "already captured" answer is resolved by reading the order back.
func (a *CaptureAdapter) Capture(ctx context.Context, intentID string) (_ dompay.Confirmation, err error) {
	ctx, run := a.ins.Begin(ctx, useCaseCapture, "Capture",
		attribute.String("payment.method", string(dompay.MethodPayPal)),
		attribute.String("payment.reference", intentID),
	)
	defer func() { a.ins.End(run, err) }()

	if intentID == "" {
		run.Fail("REFERENCE_REQUIRED")
		return dompay.Confirmation{}, application.NewValidation("provider order id is required")
	}

	o, err := a.gateway.CaptureOrder(ctx, intentID)
	if errors.Is(err, ErrAlreadyCaptured) {
		run.Event("payment.already_captured")
		o, err = a.gateway.GetOrder(ctx, intentID)
	}
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return dompay.Confirmation{}, unavailable(err)
	}

	c := dompay.Confirmation{
		Method:     dompay.MethodPayPal,
		Status:     dompay.StatusFailed,
		Reference:  o.ID,
		CaptureID:  o.CaptureID,
		Amount:     o.Amount,
		Currency:   o.Currency,
		PayerEmail: o.PayerEmail,
		PaidAt:     o.CapturedAt,
	}
	if c.PaidAt.IsZero() {
		c.PaidAt = a.now()
	}
	run.Annotate(observability.F("provider_status", o.Status))
	if o.Status != CaptureStatusCompleted {
		run.Fail("PAYMENT_NOT_COMPLETED")
		return c, fmt.Errorf("%w: provider status %s", dompay.ErrPaymentFailed, o.Status)
	}
	c.Status = dompay.StatusPaid
	return c, nil
}

func unavailable(err error) error {
	if errors.Is(err, dompay.ErrProviderUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", dompay.ErrProviderUnavailable, err)
}
