// Package hitpay calls the HitPay payment request and refund APIs.
package hitpay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	httptransport "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/http"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	peer = "hitpay"

	SandboxURL = "https://api.sandbox.hit-pay.com"

	methodPayNow = "paynow_online"
)

type Config struct {
	BaseURL string
	APIKey  string
}

type Client struct {
	cfg  Config
	http *httptransport.Client
}

func New(cfg Config, hc *http.Client, tel observability.Observability) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxURL
	}
	return &Client{cfg: cfg, http: httptransport.New(peer, cfg.BaseURL, hc, tel)}
}

func (c *Client) headers() http.Header {
	return http.Header{"X-BUSINESS-API-KEY": {c.cfg.APIKey}}
}

type paymentRequest struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	Status          string          `json:"status"`
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Email           string          `json:"email"`
	Payments        []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payments"`
}

func (p paymentRequest) hosted() *apppay.HostedPayment {
	out := &apppay.HostedPayment{
		ID:        p.ID,
		URL:       p.URL,
		Status:    p.Status,
		Reference: p.ReferenceNumber,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Email:     p.Email,
	}
	for _, pay := range p.Payments {
		if strings.EqualFold(pay.Status, "succeeded") || out.PaymentID == "" {
			out.PaymentID = pay.ID
		}
	}
	return out
}

// CreatePaymentRequest opens a PayNow payment request with a hosted checkout page.
func (c *Client) CreatePaymentRequest(ctx context.Context, req apppay.HostedRequest) (*apppay.HostedPayment, error) {
	body := map[string]any{
		"amount":           req.Amount.StringFixed(2),
		"currency":         strings.ToLower(req.Currency),
		"payment_methods":  []string{methodPayNow},
		"reference_number": req.Reference,
	}
	if req.RedirectURL != "" {
		body["redirect_url"] = req.RedirectURL
	}
	if req.Email != "" {
		body["email"] = req.Email
	}

	var out paymentRequest
	err := c.http.Do(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     "/v1/payment-requests",
		Endpoint: "payment_requests.create",
		Header:   c.headers(),
		Body:     body,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("hitpay: create payment request: %w", err)
	}
	return out.hosted(), nil
}

func (c *Client) GetPaymentRequest(ctx context.Context, id string) (*apppay.HostedPayment, error) {
	var out paymentRequest
	err := c.http.Do(ctx, httptransport.Request{
		Method:   http.MethodGet,
		Path:     "/v1/payment-requests/" + url.PathEscape(id),
		Endpoint: "payment_requests.get",
		Header:   c.headers(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("hitpay: get payment request %s: %w", id, err)
	}
	return out.hosted(), nil
}

// Refund returns the full amount of rec. HitPay refunds by payment id, which the commit
// stored as the record's capture id.
func (c *Client) Refund(ctx context.Context, rec *payment.Record) error {
	if rec == nil || rec.CaptureID == "" {
		return fmt.Errorf("hitpay: refund: payment has no payment id")
	}
	err := c.http.Do(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     "/v1/refund",
		Endpoint: "refund.create",
		Header:   c.headers(),
		Body: map[string]any{
			"payment_id": rec.CaptureID,
			"amount":     rec.Amount.StringFixed(2),
		},
	}, nil)
	if err != nil {
		if se, ok := httptransport.AsStatus(err); ok && strings.Contains(strings.ToLower(string(se.Body)), "already refunded") {
			return payment.ErrAlreadyRefunded
		}
		return fmt.Errorf("hitpay: refund payment %s: %w", rec.CaptureID, err)
	}
	return nil
}
