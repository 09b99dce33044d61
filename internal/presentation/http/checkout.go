package httppresentation

import (
	"fmt"
	"net/http"

	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/julienschmidt/httprouter"
)

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	preview, err := h.svc.Checkout.Select(r.Context(), caller(r).UserID, req.ProductIDs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreview(preview))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	preview, err := h.svc.Checkout.Preview(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreview(preview))
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.svc.Checkout.Abandon(r.Context(), caller(r).UserID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartCapture(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	intent, err := h.svc.Payments.StartCapture(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, captureIntentResponse{ID: intent.ID, ApproveURL: intent.ApproveURL})
}

func (h *Handler) handleCompleteCapture(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.svc.Payments.CompleteCapture(r.Context(), caller(r).UserID, ps.ByName("intentID"))
	h.respondCommitted(w, r, res, err)
}

func (h *Handler) handleIssueQR(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	qr, err := h.svc.Payments.IssueQR(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, qrSessionResponse{
		Reference: qr.Reference,
		QRImage:   qr.QRImage,
		Amount:    money(qr.Amount),
		ExpiresAt: qr.ExpiresAt,
	})
}

func (h *Handler) handlePollQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ref := ps.ByName("reference")
	st, err := h.svc.Payments.PollQR(r.Context(), caller(r).UserID, ref)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	switch st.Status {
	case apppay.PollPaid:
		committed := toCommitted(st.Order)
		writeJSON(w, http.StatusOK, statusResponse{Status: string(st.Status), Order: &committed})
	case apppay.PollPending:
		writeJSON(w, http.StatusAccepted, statusResponse{Status: string(st.Status)})
	case apppay.PollTimedOut:
		h.writeDomainError(w, r, fmt.Errorf("%w: qr %s", payment.ErrTimedOut, ref))
	default:
		h.writeDomainError(w, r, fmt.Errorf("%w: qr %s", payment.ErrPaymentFailed, ref))
	}
}

func (h *Handler) handleStartHosted(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req hostedRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	email := req.Email
	if email == "" {
		email = caller(r).Email
	}
	hs, err := h.svc.Payments.StartHosted(r.Context(), caller(r).UserID, email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hostedSessionResponse{
		RequestID:   hs.RequestID,
		CheckoutURL: hs.CheckoutURL,
		Reference:   hs.Reference,
	})
}

func (h *Handler) handleHostedStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := h.svc.Payments.HostedStatus(r.Context(), caller(r).UserID, ps.ByName("requestID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: status})
}

// handleHostedReturn is where the provider redirects the shopper after paying. The
// reference in the query is only a hint; the checkout's own request id is confirmed.
func (h *Handler) handleHostedReturn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	res, err := h.svc.Payments.ConfirmHosted(r.Context(), caller(r).UserID, r.URL.Query().Get("reference"))
	h.respondCommitted(w, r, res, err)
}

func (h *Handler) handleConfirmHosted(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req confirmRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	res, err := h.svc.Payments.ConfirmHosted(r.Context(), caller(r).UserID, req.RequestID)
	h.respondCommitted(w, r, res, err)
}

// respondCommitted answers 201 for a new order and 200 when the payment had already
// produced one.
func (h *Handler) respondCommitted(w http.ResponseWriter, r *http.Request, res *apporder.CommitOrderResult, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toCommitted(res))
}
