package httppresentation

import (
	"time"

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type cartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateCartRequest struct {
	Items []cartLineRequest `json:"items"`
}

type selectionRequest struct {
	ProductIDs []int64 `json:"product_ids"`
}

type hostedRequest struct {
	Email string `json:"email"`
}

type confirmRequest struct {
	RequestID string `json:"request_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type cartItemResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
	Stock     int    `json:"stock"`
}

type cartResponse struct {
	Items []cartItemResponse `json:"items"`
	Total string             `json:"total"`
}

func toCartItems(items []cart.Item) []cartItemResponse {
	out := make([]cartItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, cartItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Quantity:  it.Quantity,
			Price:     money(it.Price),
			Subtotal:  money(it.Subtotal()),
			Stock:     it.Stock,
		})
	}
	return out
}

func toCart(v *appcart.View) cartResponse {
	return cartResponse{Items: toCartItems(v.Items), Total: money(v.Total)}
}

type previewResponse struct {
	Items      []cartItemResponse `json:"items"`
	Total      string             `json:"total"`
	ProductIDs []int64            `json:"product_ids"`
	CreatedAt  time.Time          `json:"created_at"`
}

func toPreview(p *appcheckout.Preview) previewResponse {
	resp := previewResponse{Items: toCartItems(p.Items), Total: money(p.Total)}
	if p.Session != nil {
		resp.ProductIDs = p.Session.ProductIDs
		resp.CreatedAt = p.Session.CreatedAt
	}
	return resp
}

type captureIntentResponse struct {
	ID         string `json:"id"`
	ApproveURL string `json:"approve_url"`
}

type qrSessionResponse struct {
	Reference string    `json:"reference"`
	QRImage   string    `json:"qr_image"`
	Amount    string    `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

type hostedSessionResponse struct {
	RequestID   string `json:"request_id"`
	CheckoutURL string `json:"checkout_url"`
	Reference   string `json:"reference"`
}

type orderCommittedResponse struct {
	OrderID       int64  `json:"order_id"`
	InvoiceNumber string `json:"invoice_number"`
	TotalAmount   string `json:"total_amount"`
	Duplicate     bool   `json:"duplicate"`
}

func toCommitted(res *apporder.CommitOrderResult) orderCommittedResponse {
	return orderCommittedResponse{
		OrderID:       res.OrderID,
		InvoiceNumber: res.InvoiceNumber,
		TotalAmount:   money(res.TotalAmount),
		Duplicate:     res.Duplicate,
	}
}

type statusResponse struct {
	Status string                  `json:"status"`
	Order  *orderCommittedResponse `json:"order,omitempty"`
}

type orderLineResponse struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	PricePerUnit string `json:"price_per_unit"`
	Subtotal     string `json:"subtotal"`
}

type refundResponse struct {
	Status       order.RefundStatus `json:"status"`
	Reason       string             `json:"reason,omitempty"`
	RequestedAt  *time.Time         `json:"requested_at,omitempty"`
	DecidedAt    *time.Time         `json:"decided_at,omitempty"`
	DecidedBy    *int64             `json:"decided_by,omitempty"`
	RejectReason string             `json:"reject_reason,omitempty"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	UserID        int64               `json:"user_id"`
	OrderDate     time.Time           `json:"order_date"`
	TotalAmount   string              `json:"total_amount"`
	Status        order.Status        `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	InvoiceNumber string              `json:"invoice_number"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	Refund        refundResponse      `json:"refund"`
	Lines         []orderLineResponse `json:"lines"`
}

func toOrder(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			Quantity:     l.Quantity,
			PricePerUnit: money(l.PricePerUnit),
			Subtotal:     money(l.Total()),
		})
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		OrderDate:     o.OrderDate,
		TotalAmount:   money(o.TotalAmount),
		Status:        o.Status,
		PaymentMethod: string(o.PaymentMethod),
		InvoiceNumber: o.InvoiceNumber,
		PaidAt:        o.PaidAt,
		Refund: refundResponse{
			Status:       o.Refund.Status,
			Reason:       o.Refund.Reason,
			RequestedAt:  o.Refund.RequestedAt,
			DecidedAt:    o.Refund.DecidedAt,
			DecidedBy:    o.Refund.DecidedBy,
			RejectReason: o.Refund.RejectReason,
		},
		Lines: lines,
	}
}

func toOrders(orders []*order.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o))
	}
	return out
}
