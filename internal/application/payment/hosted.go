package payment

import (
	"context"
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
	useCaseHostedCreate  = "payment.hosted.create"
	useCaseHostedStatus  = "payment.hosted.status"
	useCaseHostedConfirm = "payment.hosted.confirm"

	DefaultConfirmAttempts = 5
	DefaultConfirmDelay    = 1500 * time.Millisecond

	hostedCompleted = "completed"
	hostedPending   = "pending"
)

type HostedSession struct {
	RequestID   string
	CheckoutURL string
	Reference   string
}

// HostedAdapter drives a hosted-checkout provider. The buyer returns through a redirect
// whose query parameters are not trusted; Confirm always asks the provider.
type HostedAdapter struct {
	gateway     HostedGateway
	currency    string
	redirectURL string
	attempts    int
	delay       time.Duration
	now         func() time.Time
	ins         application.Instrumentation
}

type HostedOption func(*HostedAdapter)

// WithConfirmRetry bounds how long Confirm waits for a pending payment to complete.
func WithConfirmRetry(attempts int, delay time.Duration) HostedOption {
	return func(a *HostedAdapter) {
		if attempts > 0 {
			a.attempts = attempts
		}
		if delay >= 0 {
			a.delay = delay
		}
	}
}

func WithHostedClock(now func() time.Time) HostedOption {
	return func(a *HostedAdapter) { a.now = now }
}

func NewHostedAdapter(gateway HostedGateway, currency, redirectURL string, tel observability.Observability, opts ...HostedOption) *HostedAdapter {
	a := &HostedAdapter{
		gateway:     gateway,
		currency:    strings.ToUpper(currency),
		redirectURL: redirectURL,
		attempts:    DefaultConfirmAttempts,
		delay:       DefaultConfirmDelay,
		now:         time.Now,
		ins:         application.NewInstrumentation(tel, paymentService),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create opens a hosted payment request for userID.
func (a *HostedAdapter) Create(ctx context.Context, userID int64, amount decimal.Decimal, email string) (_ *HostedSession, err error) {
	reference := fmt.Sprintf("U%d-%d", userID, a.now().UnixMilli())
	ctx, run := a.ins.Begin(ctx, useCaseHostedCreate, "CreateHostedPayment",
		attribute.String("payment.method", string(dompay.MethodHitPay)),
		attribute.String("payment.reference_number", reference),
		attribute.String("payment.amount", amount.StringFixed(2)),
	)
	defer func() { a.ins.End(run, err) }()

	if !amount.IsPositive() {
		run.Fail("AMOUNT_INVALID")
		return nil, application.NewValidation("amount must be greater than zero")
	}
	p, err := a.gateway.CreatePaymentRequest(ctx, HostedRequest{
		Amount:      amount.Round(2),
		Currency:    a.currency,
		Reference:   reference,
		Email:       email,
		RedirectURL: a.redirectURL,
	})
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return nil, unavailable(err)
	}
	if p.ID == "" || p.URL == "" {
		run.Fail("PROVIDER_RESPONSE_INCOMPLETE")
		return nil, fmt.Errorf("%w: payment request without id or checkout url", dompay.ErrProviderUnavailable)
	}
	run.Annotate(observability.F("provider_reference", p.ID))
	return &HostedSession{RequestID: p.ID, CheckoutURL: p.URL, Reference: reference}, nil
}

// Status is a single lowercase provider status lookup, for clients that poll.
func (a *HostedAdapter) Status(ctx context.Context, requestID string) (_ string, err error) {
	ctx, run := a.ins.Begin(ctx, useCaseHostedStatus, "HostedPaymentStatus",
		attribute.String("payment.reference", requestID),
	)
	defer func() { a.ins.End(run, err) }()

	p, err := a.gateway.GetPaymentRequest(ctx, requestID)
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return "", unavailable(err)
	}
	return strings.ToLower(p.Status), nil
}

// Confirm asks the provider for the outcome of requestID, retrying while it is pending. The
// wait between attempts is cancellable and nothing is held across it.
func (a *HostedAdapter) Confirm(ctx context.Context, requestID string) (_ dompay.Confirmation, err error) {
	ctx, run := a.ins.Begin(ctx, useCaseHostedConfirm, "ConfirmHostedPayment",
		attribute.String("payment.method", string(dompay.MethodHitPay)),
		attribute.String("payment.reference", requestID),
	)
	defer func() { a.ins.End(run, err) }()

	if requestID == "" {
		run.Fail("REFERENCE_REQUIRED")
		return dompay.Confirmation{}, application.NewValidation("payment request id is required")
	}

	for attempt := 1; ; attempt++ {
		p, err := a.gateway.GetPaymentRequest(ctx, requestID)
		if err != nil {
			run.Fail("PROVIDER_UNAVAILABLE")
			return dompay.Confirmation{}, unavailable(err)
		}

		status := strings.ToLower(p.Status)
		switch status {
		case hostedCompleted:
			run.Annotate(observability.F("attempts", attempt))
			currency := strings.ToUpper(p.Currency)
			if currency == "" {
				currency = a.currency
			}
			return dompay.Confirmation{
				Method:     dompay.MethodHitPay,
				Status:     dompay.StatusPaid,
				Reference:  requestID,
				CaptureID:  p.PaymentID,
				Amount:     p.Amount,
				Currency:   currency,
				PayerEmail: p.Email,
				PaidAt:     a.now(),
			}, nil
		case hostedPending, "":
			if attempt >= a.attempts {
				run.Fail("PAYMENT_PENDING")
				return dompay.Confirmation{}, fmt.Errorf("%w: still %q after %d attempts", dompay.ErrPaymentPending, status, attempt)
			}
		default:
			run.Fail("PAYMENT_NOT_COMPLETED")
			return dompay.Confirmation{
				Method:    dompay.MethodHitPay,
				Status:    dompay.StatusFailed,
				Reference: requestID,
			}, fmt.Errorf("%w: provider status %s", dompay.ErrPaymentFailed, status)
		}

		run.Event("payment.confirm_retry", attribute.Int("attempt", attempt))
		timer := time.NewTimer(a.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			run.Fail("CONTEXT_CANCELED")
			return dompay.Confirmation{}, ctx.Err()
		case <-timer.C:
		}
	}
}
