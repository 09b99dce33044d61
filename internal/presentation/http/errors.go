package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retriable bool   `json:"retriable,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return application.NewValidation("malformed request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: http.StatusText(status)})
}

// domainStatus maps a use case error to the HTTP status and stable code the client sees.
func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, order.ErrSelectionEmpty):
		return http.StatusConflict, "SELECTION_EMPTY"
	case errors.Is(err, order.ErrSelectionInvalid):
		return http.StatusConflict, "SELECTION_INVALID"
	case errors.Is(err, cart.ErrExceedsStock),
		errors.Is(err, cart.ErrOutOfStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, order.ErrRefundIneligible):
		return http.StatusConflict, "REFUND_INELIGIBLE"
	case errors.Is(err, payment.ErrPaymentPending):
		return http.StatusAccepted, "PAYMENT_PENDING"
	case errors.Is(err, payment.ErrPaymentFailed):
		return http.StatusPaymentRequired, "PAYMENT_FAILED"
	case errors.Is(err, order.ErrAmountMismatch):
		return http.StatusPaymentRequired, "AMOUNT_MISMATCH"
	case errors.Is(err, payment.ErrTimedOut):
		return http.StatusGone, "PAYMENT_TIMED_OUT"
	case errors.Is(err, payment.ErrProviderUnavailable):
		return http.StatusBadGateway, "PROVIDER_UNAVAILABLE"
	case errors.Is(err, order.ErrFinalizationFailed):
		return http.StatusServiceUnavailable, "FINALIZATION_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := domainStatus(err)
	body := errorResponse{Error: err.Error(), Code: code}
	switch status {
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		body.Retriable = true
	case http.StatusInternalServerError:
		logctx.FromOr(r.Context(), h.log).Error("http_unhandled_error", observability.F("error", err.Error()))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
