package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	invoiceService = "invoice-service"

	useCaseHistory   = "invoice.history"
	useCaseInvoice   = "invoice.get"
	useCaseAdminList = "invoice.admin_list"
	useCasePDF       = "invoice.pdf"

	defaultHistoryLimit = 200
)

// Renderer turns a committed order into a printable document.
type Renderer interface {
	Render(o *order.Order) ([]byte, error)
}

// Document is a rendered invoice ready to be served.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

type Service struct {
	orders   order.Repository
	renderer Renderer
	ins      application.Instrumentation
}

func NewService(orders order.Repository, renderer Renderer, tel observability.Observability) *Service {
	return &Service{
		orders:   orders,
		renderer: renderer,
		ins:      application.NewInstrumentation(tel, invoiceService),
	}
}

// History lists the orders of userID, newest first.
func (s *Service) History(ctx context.Context, userID int64) (_ []*order.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseHistory, "OrderHistory", attribute.Int64("invoice.user_id", userID))
	defer func() { s.ins.End(run, err) }()

	orders, err := s.orders.List(ctx, order.ListFilter{UserID: userID, Limit: defaultHistoryLimit})
	if err != nil {
		run.Fail("ORDER_LIST_FAILED")
		return nil, err
	}
	run.Annotate(observability.F("orders", len(orders)))
	return orders, nil
}

// Invoice returns one order of userID. Orders of other users are reported as forbidden.
func (s *Service) Invoice(ctx context.Context, userID, orderID int64) (_ *order.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseInvoice, "GetInvoice",
		attribute.Int64("invoice.user_id", userID),
		attribute.Int64("order.id", orderID),
	)
	defer func() { s.ins.End(run, err) }()

	o, err := s.owned(ctx, userID, orderID)
	if err != nil {
		run.Fail(failStatus(err))
		return nil, err
	}
	return o, nil
}

// AdminList lists orders across users. A zero filter lists the most recent orders.
func (s *Service) AdminList(ctx context.Context, filter order.ListFilter) (_ []*order.Order, err error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	ctx, run := s.ins.Begin(ctx, useCaseAdminList, "AdminListOrders",
		attribute.Int64("invoice.filter_user_id", filter.UserID),
		attribute.String("refund.status", string(filter.RefundStatus)),
	)
	defer func() { s.ins.End(run, err) }()

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		run.Fail("ORDER_LIST_FAILED")
		return nil, err
	}
	return orders, nil
}

// AdminGet returns any order.
func (s *Service) AdminGet(ctx context.Context, orderID int64) (*order.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// PDF renders the invoice of an order. Admins may render any order; shoppers only their own.
func (s *Service) PDF(ctx context.Context, userID, orderID int64, admin bool) (_ *Document, err error) {
	ctx, run := s.ins.Begin(ctx, useCasePDF, "RenderInvoicePDF",
		attribute.Int64("invoice.user_id", userID),
		attribute.Int64("order.id", orderID),
		attribute.Bool("invoice.admin", admin),
	)
	defer func() { s.ins.End(run, err) }()

	var o *order.Order
	if admin {
		o, err = s.orders.FindByID(ctx, orderID)
	} else {
		o, err = s.owned(ctx, userID, orderID)
	}
	if err != nil {
		run.Fail(failStatus(err))
		return nil, err
	}

	body, err := s.renderer.Render(o)
	if err != nil {
		run.Fail("RENDER_FAILED")
		return nil, fmt.Errorf("render invoice %s: %w", o.InvoiceNumber, err)
	}
	run.Annotate(observability.F("pdf_bytes", len(body)))
	return &Document{
		Filename:    Filename(o),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

// Filename is the download name of an order's invoice.
func Filename(o *order.Order) string {
	if o.InvoiceNumber == "" {
		return fmt.Sprintf("invoice-%d.pdf", o.ID)
	}
	return o.InvoiceNumber + ".pdf"
}

func (s *Service) owned(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(userID) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

func failStatus(err error) string {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, order.ErrForbidden):
		return "NOT_ORDER_OWNER"
	}
	return "ORDER_LOOKUP_FAILED"
}
