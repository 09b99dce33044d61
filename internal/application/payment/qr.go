package payment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dompay "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseQRIssue = "payment.qr.issue"
	useCaseQRPoll  = "payment.qr.poll"

	// DefaultQRWindow is how long an issued QR code may be paid.
	DefaultQRWindow = 3 * time.Minute

	// QR provider response codes and transaction states.
	QRResponseOK      = "00"
	QRResponsePending = "09"
	QRTxnPending      = 0
	QRTxnPaid         = 1
)

type PollStatus string

const (
	PollPaid     PollStatus = "paid"
	PollPending  PollStatus = "pending"
	PollTimedOut PollStatus = "timed_out"
	PollFailed   PollStatus = "failed"
)

type QRSession struct {
	Reference string
	// QRImage is a base64 PNG.
	QRImage   string
	Amount    decimal.Decimal
	ExpiresAt time.Time
}

// PollResult reports the state of a QR session. Confirmation is set when the provider reports
// the payment but no order consumed it yet; OrderID once one did.
type PollResult struct {
	Status       PollStatus
	Confirmation *dompay.Confirmation
	OrderID      *int64
}

// QRAdapter issues scan-to-pay codes and polls them. Every issued code is persisted as a
// pending payment record; the record's status is what makes expiry sticky.
type QRAdapter struct {
	gateway  QRGateway
	payments dompay.Repository
	currency string
	window   time.Duration
	render   func(payload string) ([]byte, error)
	now      func() time.Time
	ins      application.Instrumentation
}

type QROption func(*QRAdapter)

func WithQRWindow(d time.Duration) QROption {
	return func(a *QRAdapter) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithQRRenderer renders a code locally when the provider only returns its payload.
func WithQRRenderer(render func(payload string) ([]byte, error)) QROption {
	return func(a *QRAdapter) { a.render = render }
}

func WithQRClock(now func() time.Time) QROption {
	return func(a *QRAdapter) { a.now = now }
}

func NewQRAdapter(gateway QRGateway, payments dompay.Repository, currency string, tel observability.Observability, opts ...QROption) *QRAdapter {
	a := &QRAdapter{
		gateway:  gateway,
		payments: payments,
		currency: strings.ToUpper(currency),
		window:   DefaultQRWindow,
		now:      time.Now,
		ins:      application.NewInstrumentation(tel, paymentService),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue requests a code for amount and records it as a pending, unlinked payment of userID.
func (a *QRAdapter) Issue(ctx context.Context, userID int64, amount decimal.Decimal) (_ *QRSession, err error) {
	ctx, run := a.ins.Begin(ctx, useCaseQRIssue, "IssueQR",
		attribute.String("payment.method", string(dompay.MethodNETSQR)),
		attribute.Int64("payment.user_id", userID),
		attribute.String("payment.amount", amount.StringFixed(2)),
	)
	defer func() { a.ins.End(run, err) }()

	if !amount.IsPositive() {
		run.Fail("AMOUNT_INVALID")
		return nil, application.NewValidation("amount must be greater than zero")
	}

	code, err := a.gateway.RequestQR(ctx, uuid.NewString(), amount.Round(2))
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return nil, unavailable(err)
	}
	if code.RetrievalRef == "" {
		run.Fail("PROVIDER_REFERENCE_MISSING")
		return nil, fmt.Errorf("%w: qr response without retrieval reference", dompay.ErrProviderUnavailable)
	}
	png := code.ImagePNG
	if len(png) == 0 && code.Payload != "" && a.render != nil {
		if png, err = a.render(code.Payload); err != nil {
			run.Fail("QR_RENDER_FAILED")
			return nil, fmt.Errorf("payment: render qr: %w", err)
		}
	}
	if len(png) == 0 {
		run.Fail("QR_IMAGE_MISSING")
		return nil, fmt.Errorf("%w: qr response without image", dompay.ErrProviderUnavailable)
	}

	rec := &dompay.Record{
		UserID:    userID,
		Method:    dompay.MethodNETSQR,
		Status:    dompay.StatusPending,
		Amount:    amount.Round(2),
		Currency:  a.currency,
		Reference: code.RetrievalRef,
		QRImage:   base64.StdEncoding.EncodeToString(png),
		CreatedAt: a.now().UTC(),
	}
	if err := a.payments.InsertPending(ctx, rec); err != nil {
		run.Fail("PAYMENT_RECORD_FAILED")
		return nil, err
	}
	run.Annotate(observability.F("provider_reference", rec.Reference))
	return &QRSession{
		Reference: rec.Reference,
		QRImage:   rec.QRImage,
		Amount:    rec.Amount,
		ExpiresAt: rec.CreatedAt.Add(a.window),
	}, nil
}

// Poll reports the state of the code issued under reference to userID. Once expired a session
// stays timed out even if the provider later reports it paid.
func (a *QRAdapter) Poll(ctx context.Context, userID int64, reference string) (_ *PollResult, err error) {
	ctx, run := a.ins.Begin(ctx, useCaseQRPoll, "PollQR",
		attribute.String("payment.method", string(dompay.MethodNETSQR)),
		attribute.String("payment.reference", reference),
	)
	defer func() { a.ins.End(run, err) }()

	rec, err := a.payments.FindByReference(ctx, dompay.MethodNETSQR, reference)
	if err != nil {
		if errors.Is(err, dompay.ErrNotFound) {
			run.Fail("SESSION_NOT_FOUND")
		}
		return nil, err
	}
	if rec.UserID != userID {
		run.Fail("SESSION_NOT_FOUND")
		return nil, dompay.ErrNotFound
	}

	res, decided := a.settled(rec)
	if !decided && a.now().Sub(rec.CreatedAt) > a.window {
		if res, err = a.mark(ctx, rec, dompay.StatusExpired); err != nil {
			return nil, err
		}
		if res.Status == PollTimedOut {
			run.Logger().Warn("qr_session_expired",
				observability.F("user_id", rec.UserID),
				observability.F("reference", rec.Reference),
				observability.F("amount", rec.Amount.StringFixed(2)),
				observability.F("issued_at", rec.CreatedAt),
			)
		}
		decided = true
	}
	if decided {
		run.Status(strings.ToUpper(string(res.Status)))
		return res, nil
	}

	state, err := a.gateway.QueryQR(ctx, reference)
	if err != nil {
		run.Fail("PROVIDER_UNAVAILABLE")
		return nil, unavailable(err)
	}
	run.Annotate(
		observability.F("response_code", state.ResponseCode),
		observability.F("txn_status", state.TxnStatus),
	)

	switch {
	case state.ResponseCode == QRResponseOK && state.TxnStatus == QRTxnPaid:
		return &PollResult{Status: PollPaid, Confirmation: &dompay.Confirmation{
			Method:    dompay.MethodNETSQR,
			Status:    dompay.StatusPaid,
			Reference: rec.Reference,
			Amount:    rec.Amount,
			Currency:  rec.Currency,
			PaidAt:    a.now(),
		}}, nil
	case state.ResponseCode == QRResponsePending, state.ResponseCode == QRResponseOK && state.TxnStatus == QRTxnPending:
		run.Status("PENDING")
		return &PollResult{Status: PollPending}, nil
	default:
		res, err := a.mark(ctx, rec, dompay.StatusFailed)
		if err != nil {
			return nil, err
		}
		run.Status(strings.ToUpper(string(res.Status)))
		return res, nil
	}
}

// settled maps a record that no longer needs the provider to its poll result.
func (a *QRAdapter) settled(rec *dompay.Record) (*PollResult, bool) {
	switch {
	case rec.Linked():
		id := *rec.OrderID
		return &PollResult{Status: PollPaid, OrderID: &id}, true
	case rec.Status == dompay.StatusExpired:
		return &PollResult{Status: PollTimedOut}, true
	case rec.Status == dompay.StatusFailed:
		return &PollResult{Status: PollFailed}, true
	}
	return nil, false
}

// mark moves rec to status unless a concurrent commit linked it first, in which case the
// fresh record decides.
func (a *QRAdapter) mark(ctx context.Context, rec *dompay.Record, status dompay.Status) (*PollResult, error) {
	ok, err := a.payments.MarkPendingAs(ctx, rec.ID, status)
	if err != nil {
		return nil, err
	}
	if ok {
		rec.Status = status
		res, _ := a.settled(rec)
		return res, nil
	}
	fresh, err := a.payments.FindByReference(ctx, rec.Method, rec.Reference)
	if err != nil {
		return nil, err
	}
	if res, decided := a.settled(fresh); decided {
		return res, nil
	}
	return &PollResult{Status: PollPending}, nil
}
