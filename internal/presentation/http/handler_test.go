package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	appinvoice "github.com/Zhima-Mochi/minishop-storefront/internal/application/invoice"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	apprefund "github.com/Zhima-Mochi/minishop-storefront/internal/application/refund"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore/sqlitetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shopperID = int64(7)
	adminID   = int64(1)
)

type paypalStub struct {
	mu     sync.Mutex
	amount decimal.Decimal
}

func (p *paypalStub) CreateOrder(_ context.Context, amount decimal.Decimal, currency string) (*apppay.CaptureOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amount = amount
	return &apppay.CaptureOrder{ID: "PP-1", Status: "CREATED", ApproveURL: "https://paypal.test/approve", Currency: currency}, nil
}

func (p *paypalStub) CaptureOrder(_ context.Context, id string) (*apppay.CaptureOrder, error) {
	return p.GetOrder(context.Background(), id)
}

func (p *paypalStub) GetOrder(_ context.Context, id string) (*apppay.CaptureOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &apppay.CaptureOrder{ID: id, Status: apppay.CaptureStatusCompleted, CaptureID: "CAP-" + id, Amount: p.amount, Currency: "SGD"}, nil
}

type netsStub struct{ state apppay.QRState }

func (n *netsStub) RequestQR(context.Context, string, decimal.Decimal) (*apppay.QRCode, error) {
	return &apppay.QRCode{RetrievalRef: "NETS-1", ImagePNG: []byte{0x89, 'P', 'N', 'G'}}, nil
}

func (n *netsStub) QueryQR(context.Context, string) (*apppay.QRState, error) {
	s := n.state
	return &s, nil
}

type hitpayStub struct{}

func (hitpayStub) CreatePaymentRequest(context.Context, apppay.HostedRequest) (*apppay.HostedPayment, error) {
	return &apppay.HostedPayment{ID: "HP-1", URL: "https://hitpay.test/c/HP-1", Status: "pending"}, nil
}

func (hitpayStub) GetPaymentRequest(_ context.Context, id string) (*apppay.HostedPayment, error) {
	return &apppay.HostedPayment{ID: id, Status: "pending"}, nil
}

type refunderStub struct{ calls int }

func (r *refunderStub) Refund(context.Context, *payment.Record) error {
	r.calls++
	return nil
}

type pdfStub struct{}

func (pdfStub) Render(o *order.Order) ([]byte, error) {
	return []byte("%PDF-1.3 " + o.InvoiceNumber), nil
}

type api struct {
	t        *testing.T
	store    *sqlstore.Store
	server   *httptest.Server
	auth     *Authenticator
	nets     *netsStub
	refunder *refunderStub
	mug, tee int64
}

// newAPI serves the full stack over sqlite with the shopper holding {mug x2, tee x1}.
func newAPI(t *testing.T, opts ...Option) *api {
	t.Helper()
	s, _ := sqlitetest.Open(t)
	a := &api{t: t, store: s, auth: NewAuthenticator("test-secret", ""), nets: &netsStub{}, refunder: &refunderStub{}}
	a.mug = sqlitetest.Product(t, s, "Mug", "10.00", 5).ID
	a.tee = sqlitetest.Product(t, s, "Tee", "5.50", 1).ID
	sqlitetest.AddToCart(t, s, shopperID, a.mug, 2)
	sqlitetest.AddToCart(t, s, shopperID, a.tee, 1)

	checkout := appcheckout.NewService(memory.NewSelectionStore(), s, time.Minute, nil)
	svc := Services{
		Cart:     appcart.NewService(s, s, nil),
		Checkout: checkout,
		Payments: appcheckout.NewPayments(checkout, apporder.NewCommitOrderUseCase(s, s, s, nil, nil),
			apppay.NewCaptureAdapter(&paypalStub{}, "SGD", nil),
			apppay.NewQRAdapter(a.nets, s, "SGD", nil),
			apppay.NewHostedAdapter(hitpayStub{}, "SGD", "https://shop.test/return", nil, apppay.WithConfirmRetry(1, time.Millisecond)),
			nil,
		),
		Refunds:  apprefund.NewService(s, s, s, map[payment.Method]apprefund.Refunder{payment.MethodPayPal: a.refunder}, nil, nil),
		Invoices: appinvoice.NewService(s, pdfStub{}, nil),
	}
	h := NewHandler(svc, a.auth, nil, opts...)
	a.server = httptest.NewServer(h.Router())
	t.Cleanup(a.server.Close)
	return a
}

func (a *api) token(userID int64, admin bool) string {
	tok, err := a.auth.Issue(userID, "buyer@example.com", admin, time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *api) do(method, path, token string, body any) (*http.Response, []byte) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	a := newAPI(t, WithHealthCheck(func(context.Context) error { return nil }))

	resp, body := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	resp, _ = a.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t)

	resp, _ := a.do(http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.do(http.MethodGet, "/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.do(http.MethodGet, "/admin/refunds", a.token(shopperID, false), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = a.do(http.MethodGet, "/admin/refunds", a.token(adminID, true), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCartEndpoints(t *testing.T) {
	a := newAPI(t)
	tok := a.token(shopperID, false)

	resp, body := a.do(http.MethodGet, "/cart", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[cartResponse](t, body)
	assert.Len(t, view.Items, 2)
	assert.Equal(t, "25.50", view.Total)

	resp, body = a.do(http.MethodPut, "/cart/items/"+itoa(a.mug), tok, map[string]int{"quantity": 6})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[errorResponse](t, body).Code)

	resp, body = a.do(http.MethodPost, "/cart/items/"+itoa(a.mug)+"/increase", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "35.50", decode[cartResponse](t, body).Total)

	resp, _ = a.do(http.MethodPost, "/cart/items/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(http.MethodDelete, "/cart/items/"+itoa(a.tee), tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[cartResponse](t, body).Items, 1)

	resp, _ = a.do(http.MethodDelete, "/cart", tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCheckoutCaptureAndRefund(t *testing.T) {
	a := newAPI(t)
	tok := a.token(shopperID, false)

	resp, body := a.do(http.MethodPost, "/checkout/selection", tok, selectionRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SELECTION_EMPTY", decode[errorResponse](t, body).Code)

	resp, body = a.do(http.MethodPost, "/checkout/selection", tok, selectionRequest{ProductIDs: []int64{a.mug, a.tee}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "25.50", decode[previewResponse](t, body).Total)

	resp, body = a.do(http.MethodPost, "/payments/paypal/orders", tok, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	intent := decode[captureIntentResponse](t, body)
	assert.Equal(t, "PP-1", intent.ID)

	resp, body = a.do(http.MethodPost, "/payments/paypal/orders/PP-1/capture", tok, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	committed := decode[orderCommittedResponse](t, body)
	assert.Equal(t, "25.50", committed.TotalAmount)
	assert.False(t, committed.Duplicate)
	assert.Equal(t, 3, sqlitetest.Stock(t, a.store, a.mug))

	resp, body = a.do(http.MethodPost, "/payments/paypal/orders/PP-1/capture", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[orderCommittedResponse](t, body)
	assert.True(t, again.Duplicate)
	assert.Equal(t, committed.OrderID, again.OrderID)

	orderPath := "/orders/" + itoa(committed.OrderID)
	resp, body = a.do(http.MethodGet, "/orders", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]orderResponse](t, body), 1)

	resp, _ = a.do(http.MethodGet, orderPath, a.token(99, false), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = a.do(http.MethodGet, orderPath+"/invoice.pdf", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "%PDF-"))

	resp, body = a.do(http.MethodPost, orderPath+"/refund", tok, reasonRequest{Reason: "broken"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	assert.Equal(t, order.RefundRequested, decode[orderResponse](t, body).Refund.Status)

	admin := a.token(adminID, true)
	resp, body = a.do(http.MethodGet, "/admin/refunds", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]orderResponse](t, body), 1)

	resp, body = a.do(http.MethodPost, "/admin/orders/"+itoa(committed.OrderID)+"/refund/approve", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, order.RefundRefunded, decode[orderResponse](t, body).Refund.Status)
	assert.Equal(t, 1, a.refunder.calls)
	assert.Equal(t, 5, sqlitetest.Stock(t, a.store, a.mug))

	resp, body = a.do(http.MethodPost, "/admin/orders/"+itoa(committed.OrderID)+"/refund/reject", admin, reasonRequest{Reason: "late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "REFUND_INELIGIBLE", decode[errorResponse](t, body).Code)
}

func TestQRPollStatuses(t *testing.T) {
	a := newAPI(t)
	tok := a.token(shopperID, false)

	resp, _ := a.do(http.MethodPost, "/checkout/selection", tok, selectionRequest{ProductIDs: []int64{a.mug}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := a.do(http.MethodPost, "/payments/nets/qr", tok, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	qr := decode[qrSessionResponse](t, body)
	assert.Equal(t, "20.00", qr.Amount)
	assert.NotEmpty(t, qr.QRImage)

	a.nets.state = apppay.QRState{ResponseCode: apppay.QRResponsePending}
	resp, body = a.do(http.MethodGet, "/payments/nets/qr/"+qr.Reference, tok, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, string(apppay.PollPending), decode[statusResponse](t, body).Status)

	a.nets.state = apppay.QRState{ResponseCode: apppay.QRResponseOK, TxnStatus: apppay.QRTxnPaid}
	resp, body = a.do(http.MethodGet, "/payments/nets/qr/"+qr.Reference, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	st := decode[statusResponse](t, body)
	require.NotNil(t, st.Order)
	assert.Equal(t, "20.00", st.Order.TotalAmount)
}

func TestHostedConfirmPending(t *testing.T) {
	a := newAPI(t)
	tok := a.token(shopperID, false)

	resp, _ := a.do(http.MethodPost, "/checkout/selection", tok, selectionRequest{ProductIDs: []int64{a.tee}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := a.do(http.MethodPost, "/payments/hitpay/requests", tok, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	hs := decode[hostedSessionResponse](t, body)
	assert.Equal(t, "HP-1", hs.RequestID)

	resp, body = a.do(http.MethodPost, "/payments/hitpay/confirm", tok, confirmRequest{RequestID: hs.RequestID})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "PAYMENT_PENDING", decode[errorResponse](t, body).Code)

	statusPath := "/payments/hitpay/requests/" + hs.RequestID + "/status"
	resp, body = a.do(http.MethodGet, statusPath, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "pending", decode[statusResponse](t, body).Status)

	resp, body = a.do(http.MethodGet, statusPath, a.token(shopperID+1, false), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decode[errorResponse](t, body).Code)
}

func TestRateLimitedRoutes(t *testing.T) {
	a := newAPI(t, WithRateLimiter(NewRateLimiter(0.001, 2)))
	tok := a.token(shopperID, false)

	for i := 0; i < 2; i++ {
		resp, _ := a.do(http.MethodGet, "/cart", tok, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := a.do(http.MethodGet, "/cart", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = a.do(http.MethodGet, "/cart", a.token(shopperID+1, false), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://shop.example"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/cart", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEqual(t, http.StatusTeapot, rec.Code)
}
