// Package httptransport is the outbound JSON client the payment provider integrations share.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
)

const (
	DefaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// StatusError is a 4xx answer. 5xx answers are reported as payment.ErrProviderUnavailable.
type StatusError struct {
	Peer     string
	Endpoint string
	Code     int
	Body     []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Peer, e.Endpoint, e.Code, strings.TrimSpace(string(e.Body)))
}

// AsStatus returns the StatusError in err's chain, if any.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

type Client struct {
	peer string
	base string
	hc   *http.Client
	ins  application.Instrumentation
}

// New returns a client for the provider peer at baseURL. hc may be nil.
func New(peer, baseURL string, hc *http.Client, tel observability.Observability) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		peer: peer,
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
		ins:  application.NewInstrumentation(tel, peer+"-client"),
	}
}

func (c *Client) Peer() string { return c.peer }

// Request describes one call. Endpoint is the low-cardinality metric label; Path may carry ids.
// Body is sent as JSON unless Form is set.
type Request struct {
	Method   string
	Path     string
	Endpoint string
	Header   http.Header
	Body     any
	Form     url.Values
}

// Do sends req and decodes a 2xx JSON answer into out, which may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) (err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil && outcome == "success" {
			outcome = "error"
		}
		c.ins.External(c.peer, req.Endpoint, outcome, start)
	}()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome = "canceled"
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", payment.ErrProviderUnavailable, c.peer, req.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %w", payment.ErrProviderUnavailable,
			&StatusError{Peer: c.peer, Endpoint: req.Endpoint, Code: resp.StatusCode, Body: body})
	}
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = "rejected"
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Peer: c.peer, Endpoint: req.Endpoint, Code: resp.StatusCode, Body: body}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.peer, req.Endpoint, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", c.peer, req.Endpoint, err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.base+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", c.peer, req.Endpoint, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}
