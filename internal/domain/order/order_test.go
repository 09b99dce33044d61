package order

import (
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewPaid(7, payment.MethodPayPal, "INV-1", time.Now(), []Line{
		{ProductID: 1, ProductName: "Mug", Quantity: 2, PricePerUnit: decimal.RequireFromString("10.00")},
		{ProductID: 2, ProductName: "Tee", Quantity: 1, PricePerUnit: decimal.RequireFromString("5.50")},
	})
	require.NoError(t, err)
	o.ID = 100
	return o
}

func TestNewPaidDerivesTotalFromLines(t *testing.T) {
	o := paidOrder(t)

	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, RefundNone, o.Refund.Status)
	assert.Equal(t, "25.50", o.TotalAmount.StringFixed(2))
	require.NotNil(t, o.PaidAt)
	assert.Len(t, o.Adjustments(), 2)
}

func TestNewPaidRejectsEmptyOrInvalidLines(t *testing.T) {
	_, err := NewPaid(1, payment.MethodPayPal, "INV", time.Now(), nil)
	assert.ErrorIs(t, err, ErrSelectionEmpty)

	_, err = NewPaid(1, payment.MethodPayPal, "INV", time.Now(), []Line{{ProductID: 1, Quantity: 0}})
	assert.ErrorIs(t, err, ErrSelectionInvalid)
}

func TestRefundApprovePath(t *testing.T) {
	o := paidOrder(t)
	now := time.Now()

	require.NoError(t, o.RequestRefund(7, "  damaged  ", now))
	assert.Equal(t, RefundRequested, o.Refund.Status)
	assert.Equal(t, "damaged", o.Refund.Reason)

	require.NoError(t, o.ApproveRefund(1, now))
	assert.Equal(t, RefundRefunded, o.Refund.Status)
	require.NotNil(t, o.Refund.DecidedBy)
	assert.Equal(t, int64(1), *o.Refund.DecidedBy)
}

func TestRefundTerminalStatesRejectEveryTransition(t *testing.T) {
	now := time.Now()
	for _, terminal := range []RefundStatus{RefundRefunded, RefundRejected} {
		t.Run(string(terminal), func(t *testing.T) {
			o := paidOrder(t)
			o.Refund.Status = terminal

			assert.ErrorIs(t, o.RequestRefund(7, "again", now), ErrRefundIneligible)
			assert.ErrorIs(t, o.ApproveRefund(1, now), ErrRefundIneligible)
			assert.ErrorIs(t, o.RejectRefund(1, "no", now), ErrRefundIneligible)
			assert.Equal(t, terminal, o.Refund.Status)
		})
	}
}

func TestRequestRefundGuards(t *testing.T) {
	now := time.Now()

	o := paidOrder(t)
	assert.ErrorIs(t, o.RequestRefund(8, "not mine", now), ErrForbidden)

	o.Status = StatusPending
	assert.ErrorIs(t, o.RequestRefund(7, "unpaid", now), ErrRefundIneligible)

	o = paidOrder(t)
	require.NoError(t, o.RequestRefund(7, "first", now))
	assert.ErrorIs(t, o.RequestRefund(7, "second", now), ErrRefundIneligible)
	assert.Equal(t, "first", o.Refund.Reason)
}

func TestDecisionsRequireRequestedState(t *testing.T) {
	o := paidOrder(t)
	now := time.Now()

	assert.ErrorIs(t, o.ApproveRefund(1, now), ErrRefundIneligible)
	assert.ErrorIs(t, o.RejectRefund(1, "x", now), ErrRefundIneligible)

	require.NoError(t, o.RequestRefund(7, "r", now))
	require.NoError(t, o.RejectRefund(1, "outside window", now))
	assert.Equal(t, RefundRejected, o.Refund.Status)
	assert.Equal(t, "outside window", o.Refund.RejectReason)
}

func TestRefundEventNames(t *testing.T) {
	o := paidOrder(t)
	require.NoError(t, o.RequestRefund(7, "r", time.Now()))
	assert.Equal(t, "refund.requested", NewRefundEvent(o, 7).EventName())

	require.NoError(t, o.RejectRefund(1, "late", time.Now()))
	evt := NewRefundEvent(o, 1)
	assert.Equal(t, "refund.rejected", evt.EventName())
	assert.Equal(t, "late", evt.Reason)
}

func TestCloneDoesNotShareLines(t *testing.T) {
	o := paidOrder(t)
	c := o.Clone()
	c.Lines[0].Quantity = 99
	assert.Equal(t, 2, o.Lines[0].Quantity)
}
