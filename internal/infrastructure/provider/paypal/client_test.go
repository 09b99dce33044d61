package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completedOrder = `{
  "id": "5O190127TN364715T",
  "status": "COMPLETED",
  "payer": {"email_address": "buyer@example.com"},
  "purchase_units": [{
    "payments": {"captures": [{
      "id": "3C679366HH908993F",
      "status": "COMPLETED",
      "amount": {"currency_code": "SGD", "value": "25.50"},
      "create_time": "2025-04-02T09:30:00Z"
    }]}
  }]
}`

type paypalServer struct {
	*httptest.Server
	tokens  atomic.Int32
	capture http.HandlerFunc
	refund  http.HandlerFunc
}

func newPayPalServer(t *testing.T) *paypalServer {
	t.Helper()
	s := &paypalServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "secret", secret)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		s.tokens.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				Amount money `json:"amount"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		assert.Equal(t, money{CurrencyCode: "SGD", Value: "25.50"}, body.PurchaseUnits[0].Amount)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[
			{"href":"https://api.sandbox.paypal.com/v2/checkout/orders/5O190127TN364715T","rel":"self"},
			{"href":"https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve"}]}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		s.capture(w, r)
	})
	mux.HandleFunc("GET /v2/checkout/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completedOrder))
	})
	mux.HandleFunc("POST /v2/payments/captures/{id}/refund", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3C679366HH908993F", r.PathValue("id"))
		s.refund(w, r)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newClient(s *paypalServer) *Client {
	return New(Config{BaseURL: s.URL, ClientID: "client", ClientSecret: "secret"}, s.Client(), nil)
}

func TestCreateOrderReturnsApproveLink(t *testing.T) {
	s := newPayPalServer(t)
	c := newClient(s)

	o, err := c.CreateOrder(context.Background(), decimal.RequireFromString("25.5"), "sgd")
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", o.ID)
	assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T", o.ApproveURL)

	_, err = c.CreateOrder(context.Background(), decimal.RequireFromString("25.50"), "SGD")
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.tokens.Load(), "token is cached")
}

func TestCaptureOrderParsesCapture(t *testing.T) {
	s := newPayPalServer(t)
	s.capture = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(completedOrder))
	}

	o, err := newClient(s).CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, apppay.CaptureStatusCompleted, o.Status)
	assert.Equal(t, "3C679366HH908993F", o.CaptureID)
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, "SGD", o.Currency)
	assert.Equal(t, "buyer@example.com", o.PayerEmail)
	assert.Equal(t, 2025, o.CapturedAt.Year())
}

func TestCaptureTwiceIsAlreadyCaptured(t *testing.T) {
	s := newPayPalServer(t)
	s.capture = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`))
	}
	c := newClient(s)

	_, err := c.CaptureOrder(context.Background(), "5O190127TN364715T")
	assert.ErrorIs(t, err, apppay.ErrAlreadyCaptured)

	o, err := c.GetOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "3C679366HH908993F", o.CaptureID)
}

func TestCaptureServerErrorIsUnavailable(t *testing.T) {
	s := newPayPalServer(t)
	s.capture = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, err := newClient(s).CaptureOrder(context.Background(), "X")
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
}

func TestRefund(t *testing.T) {
	s := newPayPalServer(t)
	c := newClient(s)
	rec := &payment.Record{Method: payment.MethodPayPal, CaptureID: "3C679366HH908993F"}

	s.refund = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1JU08902781691411","status":"COMPLETED"}`))
	}
	require.NoError(t, c.Refund(context.Background(), rec))

	s.refund = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"CAPTURE_FULLY_REFUNDED"}]}`))
	}
	assert.ErrorIs(t, c.Refund(context.Background(), rec), payment.ErrAlreadyRefunded)

	assert.Error(t, c.Refund(context.Background(), &payment.Record{}))
}
