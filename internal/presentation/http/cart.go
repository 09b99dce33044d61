package httppresentation

import (
	"net/http"
	"strconv"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/julienschmidt/httprouter"
)

func pathID(ps httprouter.Params, name string) (int64, error) {
	id, err := strconv.ParseInt(ps.ByName(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, application.NewValidation("invalid " + name)
	}
	return id, nil
}

func caller(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// respondCart answers a cart mutation with the cart as it now stands.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	view, err := h.svc.Cart.View(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

func (h *Handler) handleViewCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.respondCart(w, r, nil)
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID, err := pathID(ps, "productID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	qty := 1
	if r.ContentLength != 0 {
		var req quantityRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		if req.Quantity != nil {
			qty = *req.Quantity
		}
	}
	h.respondCart(w, r, h.svc.Cart.Add(r.Context(), caller(r).UserID, productID, qty))
}

func (h *Handler) handleIncrease(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID, err := pathID(ps, "productID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, h.svc.Cart.Increase(r.Context(), caller(r).UserID, productID))
}

func (h *Handler) handleDecrease(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID, err := pathID(ps, "productID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, h.svc.Cart.Decrease(r.Context(), caller(r).UserID, productID))
}

func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID, err := pathID(ps, "productID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.Quantity == nil {
		h.writeDomainError(w, r, application.NewValidation("quantity is required"))
		return
	}
	h.respondCart(w, r, h.svc.Cart.SetQuantity(r.Context(), caller(r).UserID, productID, *req.Quantity))
}

func (h *Handler) handleUpdateCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req updateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	quantities := make(map[int64]int, len(req.Items))
	for _, it := range req.Items {
		quantities[it.ProductID] = it.Quantity
	}
	h.respondCart(w, r, h.svc.Cart.UpdateMany(r.Context(), caller(r).UserID, quantities))
}

func (h *Handler) handleRemoveFromCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID, err := pathID(ps, "productID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, h.svc.Cart.Remove(r.Context(), caller(r).UserID, productID))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.svc.Cart.Clear(r.Context(), caller(r).UserID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
