package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	paid := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	o := &order.Order{
		ID:            12,
		UserID:        3,
		OrderDate:     paid,
		Status:        order.StatusPaid,
		PaymentMethod: payment.MethodPayPal,
		InvoiceNumber: "INV-20250402093000-A1B2C3",
		PaidAt:        &paid,
		Refund:        order.Refund{Status: order.RefundRequested},
		Lines: []order.Line{
			{ProductID: 1, ProductName: "Café mug", Quantity: 2, PricePerUnit: decimal.RequireFromString("10.00")},
			{ProductID: 2, Quantity: 1, PricePerUnit: decimal.RequireFromString("5.50")},
		},
	}
	o.TotalAmount = o.LinesTotal()

	out, err := NewInvoiceRenderer(WithShopName("Test Shop"), WithCurrency("SGD")).Render(o)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Greater(t, len(out), 1000)
}

func TestRenderWithoutInvoiceNumberSkipsQR(t *testing.T) {
	out, err := NewInvoiceRenderer().Render(&order.Order{ID: 1, Status: order.StatusPaid})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderNilOrder(t *testing.T) {
	_, err := NewInvoiceRenderer().Render(nil)
	assert.Error(t, err)
}
