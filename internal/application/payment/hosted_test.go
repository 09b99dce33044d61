package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHosted struct {
	mu       sync.Mutex
	statuses []string
	err      error
	calls    int
	created  apppay.HostedRequest
}

func (f *fakeHosted) CreatePaymentRequest(_ context.Context, req apppay.HostedRequest) (*apppay.HostedPayment, error) {
	f.created = req
	return &apppay.HostedPayment{ID: "hp-req-1", URL: "https://hitpay.test/checkout/hp-req-1", Status: "pending"}, nil
}

func (f *fakeHosted) GetPaymentRequest(_ context.Context, id string) (*apppay.HostedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &apppay.HostedPayment{
		ID:        id,
		Status:    status,
		PaymentID: "hp-pay-9",
		Amount:    decimal.RequireFromString("25.50"),
		Currency:  "sgd",
		Email:     "buyer@example.com",
	}, nil
}

func TestHostedCreateUsesUserReference(t *testing.T) {
	gw := &fakeHosted{}
	at := time.UnixMilli(1709280000123)
	a := apppay.NewHostedAdapter(gw, "SGD", "https://shop.test/payments/hitpay/return", nil,
		apppay.WithHostedClock(func() time.Time { return at }))

	sess, err := a.Create(context.Background(), 42, decimal.RequireFromString("25.50"), "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hp-req-1", sess.RequestID)
	assert.Equal(t, "https://hitpay.test/checkout/hp-req-1", sess.CheckoutURL)
	assert.Equal(t, "U42-1709280000123", sess.Reference)
	assert.Equal(t, "U42-1709280000123", gw.created.Reference)
	assert.Equal(t, "https://shop.test/payments/hitpay/return", gw.created.RedirectURL)
}

func TestHostedConfirmRetriesWhilePending(t *testing.T) {
	gw := &fakeHosted{statuses: []string{"pending", "PENDING", "completed"}}
	a := apppay.NewHostedAdapter(gw, "SGD", "", nil, apppay.WithConfirmRetry(5, time.Millisecond))

	c, err := a.Confirm(context.Background(), "hp-req-1")
	require.NoError(t, err)
	assert.True(t, c.Paid())
	assert.Equal(t, payment.MethodHitPay, c.Method)
	assert.Equal(t, "hp-req-1", c.Reference)
	assert.Equal(t, "hp-pay-9", c.CaptureID)
	assert.Equal(t, "SGD", c.Currency)
	assert.Equal(t, 3, gw.calls)
}

func TestHostedConfirmGivesUpAfterAttempts(t *testing.T) {
	gw := &fakeHosted{statuses: []string{"pending"}}
	a := apppay.NewHostedAdapter(gw, "SGD", "", nil, apppay.WithConfirmRetry(3, time.Millisecond))

	_, err := a.Confirm(context.Background(), "hp-req-1")
	assert.ErrorIs(t, err, payment.ErrPaymentPending)
	assert.Equal(t, 3, gw.calls)
}

func TestHostedConfirmFailedStatus(t *testing.T) {
	gw := &fakeHosted{statuses: []string{"failed"}}
	a := apppay.NewHostedAdapter(gw, "SGD", "", nil, apppay.WithConfirmRetry(5, time.Millisecond))

	c, err := a.Confirm(context.Background(), "hp-req-1")
	assert.ErrorIs(t, err, payment.ErrPaymentFailed)
	assert.False(t, c.Paid())
	assert.Equal(t, 1, gw.calls)
}

func TestHostedConfirmProviderError(t *testing.T) {
	gw := &fakeHosted{err: errors.New("dial tcp: timeout")}
	a := apppay.NewHostedAdapter(gw, "SGD", "", nil)

	_, err := a.Confirm(context.Background(), "hp-req-1")
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
}

func TestHostedConfirmStopsOnCancel(t *testing.T) {
	gw := &fakeHosted{statuses: []string{"pending"}}
	a := apppay.NewHostedAdapter(gw, "SGD", "", nil, apppay.WithConfirmRetry(5, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := a.Confirm(ctx, "hp-req-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, gw.calls)
}

func TestHostedStatusIsLowercased(t *testing.T) {
	a := apppay.NewHostedAdapter(&fakeHosted{statuses: []string{"COMPLETED"}}, "SGD", "", nil)

	status, err := a.Status(context.Background(), "hp-req-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
}

// linkToNewOrder commits a minimal paid order for rec and returns its id.
func linkToNewOrder(t *testing.T, s *sqlstore.Store, rec *payment.Record, productID int64) int64 {
	t.Helper()
	var orderID int64
	err := s.WithTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		o, err := order.NewPaid(rec.UserID, rec.Method, "INV-TEST-"+rec.Reference, time.Now(), []order.Line{
			{ProductID: productID, ProductName: "Mug", Quantity: 1, PricePerUnit: rec.Amount},
		})
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, o); err != nil {
			return err
		}
		orderID = o.ID
		return tx.Link(ctx, rec.ID, o.ID, payment.Confirmation{
			Method: rec.Method, Status: payment.StatusPaid, Reference: rec.Reference, Amount: rec.Amount, PaidAt: time.Now(),
		})
	})
	require.NoError(t, err)
	return orderID
}
