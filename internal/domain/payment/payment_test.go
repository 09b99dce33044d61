package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestPaidRecordFromConfirmation(t *testing.T) {
	paidAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := PaidRecordFrom(7, 42, Confirmation{
		Method:     MethodPayPal,
		Status:     StatusPaid,
		Reference:  "PP-1",
		CaptureID:  "CAP-1",
		Amount:     decimal.RequireFromString("12.30"),
		Currency:   "SGD",
		PayerEmail: "a@example.com",
		PaidAt:     paidAt,
	})

	require.NotNil(t, rec.OrderID)
	assert.Equal(t, int64(42), *rec.OrderID)
	assert.Equal(t, StatusPaid, rec.Status)
	assert.Equal(t, "CAP-1", rec.CaptureID)
	assert.Equal(t, paidAt, *rec.PaidAt)
	assert.True(t, rec.Linked())
}
