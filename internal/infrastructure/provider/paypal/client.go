// Package paypal talks to the PayPal Orders v2 and Payments v2 REST APIs.
package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	httptransport "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/http"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	peer = "paypal"

	SandboxURL = "https://api-m.sandbox.paypal.com"

	issueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
	issueFullyRefunded   = "CAPTURE_FULLY_REFUNDED"

	tokenSkew = time.Minute
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client implements the capture gateway and refunds captures. Access tokens are cached
// until shortly before they expire.
type Client struct {
	cfg  Config
	http *httptransport.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func New(cfg Config, hc *http.Client, tel observability.Observability) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxURL
	}
	return &Client{
		cfg:  cfg,
		http: httptransport.New(peer, cfg.BaseURL, hc, tel),
		now:  time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	req := httptransport.Request{
		Method:   http.MethodPost,
		Path:     "/v1/oauth2/token",
		Endpoint: "oauth2.token",
		Header: http.Header{
			"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID+":"+c.cfg.ClientSecret))},
		},
		Form: url.Values{"grant_type": {"client_credentials"}},
	}

	var out tokenResponse
	if err := c.http.Do(ctx, req, &out); err != nil {
		return "", fmt.Errorf("paypal: access token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("paypal: empty access token")
	}
	c.token = out.AccessToken
	c.expires = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSkew)
	return c.token, nil
}

func (c *Client) call(ctx context.Context, req httptransport.Request, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(ctx, req, out)
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	Payer *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Amount   *money `json:"amount"`
		Payments *struct {
			Captures []struct {
				ID         string    `json:"id"`
				Status     string    `json:"status"`
				Amount     money     `json:"amount"`
				CreateTime time.Time `json:"create_time"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*apppay.CaptureOrder, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": money{CurrencyCode: strings.ToUpper(currency), Value: amount.StringFixed(2)},
		}},
	}
	var out orderResponse
	err := c.call(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     "/v2/checkout/orders",
		Endpoint: "orders.create",
		Body:     body,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("paypal: create order: %w", err)
	}
	return toCaptureOrder(out)
}

// CaptureOrder returns apppay.ErrAlreadyCaptured when PayPal reports the order was captured.
func (c *Client) CaptureOrder(ctx context.Context, id string) (*apppay.CaptureOrder, error) {
	var out orderResponse
	err := c.call(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     "/v2/checkout/orders/" + url.PathEscape(id) + "/capture",
		Endpoint: "orders.capture",
		Body:     struct{}{},
	}, &out)
	if err != nil {
		if hasIssue(err, issueAlreadyCaptured) {
			return nil, apppay.ErrAlreadyCaptured
		}
		return nil, fmt.Errorf("paypal: capture order %s: %w", id, err)
	}
	return toCaptureOrder(out)
}

func (c *Client) GetOrder(ctx context.Context, id string) (*apppay.CaptureOrder, error) {
	var out orderResponse
	err := c.call(ctx, httptransport.Request{
		Method:   http.MethodGet,
		Path:     "/v2/checkout/orders/" + url.PathEscape(id),
		Endpoint: "orders.get",
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("paypal: get order %s: %w", id, err)
	}
	return toCaptureOrder(out)
}

// Refund refunds the full capture of rec.
func (c *Client) Refund(ctx context.Context, rec *payment.Record) error {
	if rec == nil || rec.CaptureID == "" {
		return fmt.Errorf("paypal: refund: payment has no capture id")
	}
	err := c.call(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     "/v2/payments/captures/" + url.PathEscape(rec.CaptureID) + "/refund",
		Endpoint: "captures.refund",
		Body:     struct{}{},
	}, nil)
	if err != nil {
		if hasIssue(err, issueFullyRefunded) {
			return payment.ErrAlreadyRefunded
		}
		return fmt.Errorf("paypal: refund capture %s: %w", rec.CaptureID, err)
	}
	return nil
}

func toCaptureOrder(r orderResponse) (*apppay.CaptureOrder, error) {
	o := &apppay.CaptureOrder{ID: r.ID, Status: r.Status}
	for _, l := range r.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			o.ApproveURL = l.Href
			break
		}
	}
	if r.Payer != nil {
		o.PayerEmail = r.Payer.EmailAddress
	}
	if len(r.PurchaseUnits) == 0 {
		return o, nil
	}
	unit := r.PurchaseUnits[0]
	amount := unit.Amount
	if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
		capture := unit.Payments.Captures[0]
		o.CaptureID = capture.ID
		o.CapturedAt = capture.CreateTime
		amount = &capture.Amount
	}
	if amount != nil && amount.Value != "" {
		v, err := decimal.NewFromString(amount.Value)
		if err != nil {
			return nil, fmt.Errorf("paypal: amount %q: %w", amount.Value, err)
		}
		o.Amount = v
		o.Currency = amount.CurrencyCode
	}
	return o, nil
}

func hasIssue(err error, issue string) bool {
	se, ok := httptransport.AsStatus(err)
	if !ok || se.Code != http.StatusUnprocessableEntity {
		return false
	}
	var body errorResponse
	if json.Unmarshal(se.Body, &body) != nil {
		return false
	}
	for _, d := range body.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}
