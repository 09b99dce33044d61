package httppresentation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	appinvoice "github.com/Zhima-Mochi/minishop-storefront/internal/application/invoice"
	apprefund "github.com/Zhima-Mochi/minishop-storefront/internal/application/refund"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

// Services are the use cases the API exposes.
type Services struct {
	Cart     *appcart.Service
	Checkout *appcheckout.Service
	Payments *appcheckout.Payments
	Refunds  *apprefund.Service
	Invoices *appinvoice.Service
}

type Handler struct {
	svc     Services
	auth    *Authenticator
	limiter *RateLimiter
	health  func(ctx context.Context) error
	metrics http.Handler
	log     observability.Logger
	tel     observability.Observability

	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

type Option func(*Handler)

// WithHealthCheck makes /health report 503 while check fails.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(h *Handler) { h.health = check }
}

// WithMetricsHandler serves h at /metrics, outside the middleware chain.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithRateLimiter limits every API route per client.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(h *Handler) { h.limiter = rl }
}

func NewHandler(svc Services, auth *Authenticator, tel observability.Observability, opts ...Option) *Handler {
	metrics := observability.MetricsOf(tel)
	h := &Handler{
		svc:          svc,
		auth:         auth,
		log:          observability.LoggerOf(tel).With(observability.F("component", componentHTTPHandler)),
		tel:          tel,
		httpRequests: metrics.Counter(observability.MHTTPRequests),
		httpDuration: metrics.Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var errRouteNotFound = errors.New("route not found")

type access int

const (
	public access = iota
	shopper
	admin
)

func (h *Handler) Router() http.Handler {
	rt := httprouter.New()
	rt.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errRouteNotFound)
	})

	h.handle(rt, http.MethodGet, "/health", public, h.handleHealth)
	if h.metrics != nil {
		rt.Handler(http.MethodGet, "/metrics", h.metrics)
	}

	h.handle(rt, http.MethodGet, "/cart", shopper, h.handleViewCart)
	h.handle(rt, http.MethodPost, "/cart/items/:productID", shopper, h.handleAddToCart)
	h.handle(rt, http.MethodPost, "/cart/items/:productID/increase", shopper, h.handleIncrease)
	h.handle(rt, http.MethodPost, "/cart/items/:productID/decrease", shopper, h.handleDecrease)
	h.handle(rt, http.MethodPut, "/cart/items/:productID", shopper, h.handleSetQuantity)
	h.handle(rt, http.MethodPut, "/cart/items", shopper, h.handleUpdateCart)
	h.handle(rt, http.MethodDelete, "/cart/items/:productID", shopper, h.handleRemoveFromCart)
	h.handle(rt, http.MethodDelete, "/cart", shopper, h.handleClearCart)

	h.handle(rt, http.MethodPost, "/checkout/selection", shopper, h.handleSelect)
	h.handle(rt, http.MethodGet, "/checkout", shopper, h.handlePreview)
	h.handle(rt, http.MethodDelete, "/checkout/selection", shopper, h.handleAbandon)

	h.handle(rt, http.MethodPost, "/payments/paypal/orders", shopper, h.handleStartCapture)
	h.handle(rt, http.MethodPost, "/payments/paypal/orders/:intentID/capture", shopper, h.handleCompleteCapture)
	h.handle(rt, http.MethodPost, "/payments/nets/qr", shopper, h.handleIssueQR)
	h.handle(rt, http.MethodGet, "/payments/nets/qr/:reference", shopper, h.handlePollQR)
	h.handle(rt, http.MethodPost, "/payments/hitpay/requests", shopper, h.handleStartHosted)
	h.handle(rt, http.MethodGet, "/payments/hitpay/requests/:requestID/status", shopper, h.handleHostedStatus)
	h.handle(rt, http.MethodGet, "/payments/hitpay/return", shopper, h.handleHostedReturn)
	h.handle(rt, http.MethodPost, "/payments/hitpay/confirm", shopper, h.handleConfirmHosted)

	h.handle(rt, http.MethodGet, "/orders", shopper, h.handleHistory)
	h.handle(rt, http.MethodGet, "/orders/:orderID", shopper, h.handleInvoice)
	h.handle(rt, http.MethodGet, "/orders/:orderID/invoice.pdf", shopper, h.handleInvoicePDF)
	h.handle(rt, http.MethodPost, "/orders/:orderID/refund", shopper, h.handleRequestRefund)

	h.handle(rt, http.MethodGet, "/admin/orders", admin, h.handleAdminOrders)
	h.handle(rt, http.MethodGet, "/admin/orders/:orderID", admin, h.handleAdminOrder)
	h.handle(rt, http.MethodGet, "/admin/orders/:orderID/invoice.pdf", admin, h.handleAdminInvoicePDF)
	h.handle(rt, http.MethodGet, "/admin/refunds", admin, h.handleRefundQueue)
	h.handle(rt, http.MethodPost, "/admin/orders/:orderID/refund/approve", admin, h.handleApproveRefund)
	h.handle(rt, http.MethodPost, "/admin/orders/:orderID/refund/reject", admin, h.handleRejectRefund)

	return rt
}

// handle registers fn behind the middleware chain:
// Route → Trace → Request Logger → Metrics → Access Log → Auth → Rate Limit → Handler
func (h *Handler) handle(rt *httprouter.Router, method, path string, acc access, fn httprouter.Handle) {
	inner := fn
	if h.limiter != nil {
		inner = h.limiter.Limit(inner)
	}
	if acc != public {
		inner = h.auth.Authenticate(acc == admin, inner)
	}
	route := method + " " + path

	chain := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
		)(
			h.withHTTPMetrics(
				h.withAccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					inner(w, r, httprouter.ParamsFromContext(r.Context()))
				})),
			),
		),
	)
	rt.Handler(method, path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	}))
}

// CORS wraps next with the cross-origin policy for the browser storefront.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", headerRequestID, "traceparent", "tracestate"},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: true,
	}).Handler(next)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		fields := []observability.Field{
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		}
		logctx.FromOr(r.Context(), h.log).Info("http_access", fields...)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("minishop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctxWithSpan))
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
	})
}

// withHTTPMetrics records RED HTTP metrics on the instruments resolved in NewHandler.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.httpRequests.Add(1, labels...)
		h.httpDuration.Observe(time.Since(start).Seconds(), labels...)
	})
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
