package httppresentation

import (
	"net/http"
	"strconv"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/julienschmidt/httprouter"
)

const adminListLimit = 100

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	orders, err := h.svc.Invoices.History(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	orderID, err := pathID(ps, "orderID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Invoices.Invoice(r.Context(), caller(r).UserID, orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) handleInvoicePDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.servePDF(w, r, ps, false)
}

func (h *Handler) handleAdminInvoicePDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.servePDF(w, r, ps, true)
}

func (h *Handler) servePDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params, admin bool) {
	orderID, err := pathID(ps, "orderID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	doc, err := h.svc.Invoices.PDF(r.Context(), caller(r).UserID, orderID, admin)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func (h *Handler) handleRequestRefund(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	orderID, err := pathID(ps, "orderID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Refunds.Request(r.Context(), orderID, caller(r).UserID, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toOrder(o))
}

func (h *Handler) handleAdminOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	filter := order.ListFilter{
		RefundStatus: order.RefundStatus(q.Get("refund_status")),
		Limit:        adminListLimit,
	}
	var err error
	if filter.UserID, err = queryInt(q.Get("user_id")); err != nil {
		h.writeDomainError(w, r, application.NewValidation("invalid user_id"))
		return
	}
	if limit, err := queryInt(q.Get("limit")); err != nil {
		h.writeDomainError(w, r, application.NewValidation("invalid limit"))
		return
	} else if limit > 0 {
		filter.Limit = int(limit)
	}
	orders, err := h.svc.Invoices.AdminList(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) handleAdminOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	orderID, err := pathID(ps, "orderID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Invoices.AdminGet(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) handleRefundQueue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	status := order.RefundStatus(q.Get("status"))
	if status == "" {
		status = order.RefundRequested
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		h.writeDomainError(w, r, application.NewValidation("invalid limit"))
		return
	}
	if limit <= 0 {
		limit = adminListLimit
	}
	orders, err := h.svc.Refunds.ListRequests(r.Context(), status, int(limit))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) handleApproveRefund(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	orderID, err := pathID(ps, "orderID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Refunds.Approve(r.Context(), orderID, caller(r).UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) handleRejectRefund(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	orderID, err := pathID(ps, "orderID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	o, err := h.svc.Refunds.Reject(r.Context(), orderID, caller(r).UserID, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func queryInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, application.NewValidation("invalid integer " + v)
	}
	return n, nil
}
