package hitpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completedRequest = `{
  "id": "9741164c-06a2-4d75-8b8a-2e1b5a4c1f3e",
  "url": "https://securecheckout.sandbox.hit-pay.com/payment-request/@shop/9741164c",
  "status": "completed",
  "reference_number": "U7-1712050200000",
  "amount": "25.50",
  "currency": "sgd",
  "email": "buyer@example.com",
  "payments": [{"id": "9741164c-payment", "status": "succeeded"}]
}`

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "biz-key", r.Header.Get("X-BUSINESS-API-KEY"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "biz-key"}, srv.Client(), nil)
}

func TestCreatePaymentRequest(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment-requests", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "25.50", body["amount"])
		assert.Equal(t, "sgd", body["currency"])
		assert.Equal(t, []any{"paynow_online"}, body["payment_methods"])
		assert.Equal(t, "U7-1712050200000", body["reference_number"])
		assert.Equal(t, "https://shop.example/return", body["redirect_url"])
		_, _ = w.Write([]byte(`{"id":"9741164c-06a2-4d75-8b8a-2e1b5a4c1f3e","status":"pending",
			"url":"https://securecheckout.sandbox.hit-pay.com/payment-request/@shop/9741164c","amount":"25.50"}`))
	})

	p, err := c.CreatePaymentRequest(context.Background(), apppay.HostedRequest{
		Amount:      decimal.RequireFromString("25.5"),
		Currency:    "SGD",
		Reference:   "U7-1712050200000",
		RedirectURL: "https://shop.example/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "9741164c-06a2-4d75-8b8a-2e1b5a4c1f3e", p.ID)
	assert.NotEmpty(t, p.URL)
	assert.Equal(t, "pending", p.Status)
}

func TestGetPaymentRequest(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment-requests/9741164c-06a2-4d75-8b8a-2e1b5a4c1f3e", r.URL.Path)
		_, _ = w.Write([]byte(completedRequest))
	})

	p, err := c.GetPaymentRequest(context.Background(), "9741164c-06a2-4d75-8b8a-2e1b5a4c1f3e")
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Status)
	assert.Equal(t, "9741164c-payment", p.PaymentID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, "buyer@example.com", p.Email)
}

func TestGetPaymentRequestUnavailable(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.GetPaymentRequest(context.Background(), "x")
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
}

func TestRefund(t *testing.T) {
	rec := &payment.Record{CaptureID: "9741164c-payment", Amount: decimal.RequireFromString("25.50")}

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refund", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "9741164c-payment", body["payment_id"])
		assert.Equal(t, "25.50", body["amount"])
		_, _ = w.Write([]byte(`{"id":"refund-1","status":"succeeded"}`))
	})
	require.NoError(t, c.Refund(context.Background(), rec))

	c = newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The payment has already refunded."}`))
	})
	assert.ErrorIs(t, c.Refund(context.Background(), rec), payment.ErrAlreadyRefunded)
}
