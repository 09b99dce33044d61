// Package nets calls the NETS QR open API.
package nets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	httptransport "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/http"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	peer = "nets"

	SandboxURL = "https://sandbox.nets.openapipaas.com"

	requestPath = "/api/v1/common/payments/nets-qr/request"
	queryPath   = "/api/v1/common/payments/nets-qr/query"
)

type Config struct {
	BaseURL      string
	APIKey       string
	ProjectID    string
	NotifyMobile string
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

// envelope is the {"result":{"data":{...}}} wrapper every NETS answer uses.
type envelope struct {
	Result struct {
		Data qrData `json:"data"`
	} `json:"result"`
}

type qrData struct {
	ResponseCode    string `json:"response_code"`
	TxnStatus       int    `json:"txn_status"`
	TxnRetrievalRef string `json:"txn_retrieval_ref"`
	QRCode          string `json:"qr_code"`
	NetworkStatus   int    `json:"network_status"`
}

func (c *Client) headers() http.Header {
	return http.Header{
		"api-key":    {c.cfg.APIKey},
		"project-id": {c.cfg.ProjectID},
	}
}

// RequestQR asks NETS for a dynamic QR of amount. The QR image comes back base64 encoded.
func (c *Client) RequestQR(ctx context.Context, txnID string, amount decimal.Decimal) (*apppay.QRCode, error) {
	body := map[string]any{
		"txn_id":         txnID,
		"amt_in_dollars": json.Number(amount.StringFixed(2)),
		"notify_mobile":  c.cfg.NotifyMobile,
	}
	var out envelope
	err := c.http.Do(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     requestPath,
		Endpoint: "nets_qr.request",
		Header:   c.headers(),
		Body:     body,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("nets: request qr: %w", err)
	}

	data := out.Result.Data
	if data.ResponseCode != apppay.QRResponseOK || data.TxnRetrievalRef == "" {
		return nil, fmt.Errorf("nets: request qr rejected with response code %q", data.ResponseCode)
	}
	qr := &apppay.QRCode{RetrievalRef: data.TxnRetrievalRef}
	if data.QRCode != "" {
		png, err := base64.StdEncoding.DecodeString(data.QRCode)
		if err != nil {
			return nil, fmt.Errorf("nets: decode qr image: %w", err)
		}
		qr.ImagePNG = png
	}
	return qr, nil
}

func (c *Client) QueryQR(ctx context.Context, retrievalRef string) (*apppay.QRState, error) {
	body := map[string]any{
		"txn_retrieval_ref":       retrievalRef,
		"frontend_timeout_status": 0,
	}
	var out envelope
	err := c.http.Do(ctx, httptransport.Request{
		Method:   http.MethodPost,
		Path:     queryPath,
		Endpoint: "nets_qr.query",
		Header:   c.headers(),
		Body:     body,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("nets: query qr %s: %w", retrievalRef, err)
	}
	return &apppay.QRState{
		ResponseCode: out.Result.Data.ResponseCode,
		TxnStatus:    out.Result.Data.TxnStatus,
	}, nil
}
