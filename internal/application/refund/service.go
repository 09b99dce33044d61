package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	refundService = "refund-service"

	useCaseRequest = "refund.request"
	useCaseApprove = "refund.approve"
	useCaseReject  = "refund.reject"
	useCaseList    = "refund.list"

	defaultListLimit = 100
)

// Service runs the refund workflow on top of the order's refund state machine. Every decision
// is written with a conditional update on the previous refund status, so two admins deciding
// the same request cannot both win.
type Service struct {
	uow       order.UnitOfWork
	orders    order.Repository
	payments  payment.Repository
	refunders map[payment.Method]Refunder
	manual    Refunder
	publisher domoutbox.Publisher
	now       func() time.Time
	ins       application.Instrumentation
}

// NewService wires the workflow. Methods without an entry in refunders are refunded by hand.
func NewService(
	uow order.UnitOfWork,
	orders order.Repository,
	payments payment.Repository,
	refunders map[payment.Method]Refunder,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		uow:       uow,
		orders:    orders,
		payments:  payments,
		refunders: refunders,
		manual:    NewManualRefunder(tel),
		publisher: publisher,
		now:       time.Now,
		ins:       application.NewInstrumentation(tel, refundService),
	}
}

// Request files a refund request for a paid order of userID.
func (s *Service) Request(ctx context.Context, orderID, userID int64, reason string) (_ *order.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseRequest, "RequestRefund",
		attribute.Int64("order.id", orderID),
		attribute.Int64("refund.user_id", userID),
	)
	defer func() { s.ins.End(run, err) }()

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		run.Fail(lookupStatus(err))
		return nil, err
	}
	if err := o.RequestRefund(userID, reason, s.now()); err != nil {
		run.Fail(transitionStatus(err))
		return nil, err
	}
	if err := s.decide(ctx, o, order.RefundNone); err != nil {
		run.Fail(transitionStatus(err))
		return nil, err
	}
	s.ins.Publish(ctx, s.publisher, run, order.NewRefundEvent(o, userID))
	return o, nil
}

// Approve refunds the order's payment through its provider and then, in one transaction,
// marks the order refunded and returns every line to stock. A failed provider refund leaves
// the request pending.
func (s *Service) Approve(ctx context.Context, orderID, adminID int64) (_ *order.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseApprove, "ApproveRefund",
		attribute.Int64("order.id", orderID),
		attribute.Int64("refund.admin_id", adminID),
	)
	defer func() { s.ins.End(run, err) }()
	logger := run.Logger()

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		run.Fail(lookupStatus(err))
		return nil, err
	}
	if order.RefundStateOf(o).Status() != order.RefundRequested {
		run.Fail("REFUND_INELIGIBLE")
		return nil, fmt.Errorf("%w: refund is %s", order.ErrRefundIneligible, o.Refund.Status)
	}

	if err := s.refundPayment(ctx, run, o); err != nil {
		run.Fail("PROVIDER_REFUND_FAILED")
		logger.Error("provider_refund_failed",
			observability.F("order_id", o.ID),
			observability.F("payment_method", string(o.PaymentMethod)),
			observability.F("error", err.Error()),
		)
		return nil, err
	}

	var restocked []inventory.Adjustment
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx order.Tx) error {
		fresh, err := tx.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fresh.ApproveRefund(adminID, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateRefund(ctx, fresh, order.RefundRequested); err != nil {
			return err
		}
		restocked = fresh.Adjustments()
		for _, adj := range restocked {
			if err := tx.Increment(ctx, adj.ProductID, adj.Quantity); err != nil {
				return err
			}
		}
		o = fresh
		return nil
	})
	if err != nil {
		err = ineligibleOnConflict(err)
		run.Fail(transitionStatus(err))
		return nil, err
	}

	run.Annotate(observability.F("restocked_lines", len(restocked)))
	s.ins.Publish(ctx, s.publisher, run,
		order.NewRefundEvent(o, adminID),
		inventory.NewStockRestockedEvent(o.ID, restocked),
	)
	return o, nil
}

// Reject closes a refund request without touching money or stock.
func (s *Service) Reject(ctx context.Context, orderID, adminID int64, reason string) (_ *order.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseReject, "RejectRefund",
		attribute.Int64("order.id", orderID),
		attribute.Int64("refund.admin_id", adminID),
	)
	defer func() { s.ins.End(run, err) }()

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		run.Fail(lookupStatus(err))
		return nil, err
	}
	if err := o.RejectRefund(adminID, reason, s.now()); err != nil {
		run.Fail(transitionStatus(err))
		return nil, err
	}
	if err := s.decide(ctx, o, order.RefundRequested); err != nil {
		run.Fail(transitionStatus(err))
		return nil, err
	}
	s.ins.Publish(ctx, s.publisher, run, order.NewRefundEvent(o, adminID))
	return o, nil
}

// ListRequests returns orders whose refund is in status, newest first. An empty status lists
// pending requests.
func (s *Service) ListRequests(ctx context.Context, status order.RefundStatus, limit int) (_ []*order.Order, err error) {
	if status == "" {
		status = order.RefundRequested
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	ctx, run := s.ins.Begin(ctx, useCaseList, "ListRefundRequests", attribute.String("refund.status", string(status)))
	defer func() { s.ins.End(run, err) }()

	return s.orders.List(ctx, order.ListFilter{RefundStatus: status, Limit: limit})
}

// decide persists o.Refund if the stored status is still from.
func (s *Service) decide(ctx context.Context, o *order.Order, from order.RefundStatus) error {
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.UpdateRefund(ctx, o, from)
	})
	return ineligibleOnConflict(err)
}

func (s *Service) refundPayment(ctx context.Context, run *application.Run, o *order.Order) error {
	rec, err := s.payments.FindPaidByOrder(ctx, o.ID)
	if errors.Is(err, payment.ErrNotFound) {
		run.Event("refund.payment_record_missing")
		rec = &payment.Record{Method: o.PaymentMethod, UserID: o.UserID, Amount: o.TotalAmount}
	} else if err != nil {
		return err
	}

	// Provider refunds go by capture id; without one the money is returned by hand.
	refunder, ok := s.refunders[rec.Method]
	if !ok || refunder == nil || rec.CaptureID == "" {
		refunder = s.manual
		run.Status("MANUAL_REFUND")
	}
	err = refunder.Refund(ctx, rec)
	if errors.Is(err, payment.ErrAlreadyRefunded) {
		run.Event("refund.already_refunded_at_provider")
		return nil
	}
	return err
}

func ineligibleOnConflict(err error) error {
	if errors.Is(err, order.ErrConflict) {
		return fmt.Errorf("%w: %w", order.ErrRefundIneligible, err)
	}
	return err
}

func lookupStatus(err error) string {
	if errors.Is(err, order.ErrNotFound) {
		return "ORDER_NOT_FOUND"
	}
	return "ORDER_LOOKUP_FAILED"
}

func transitionStatus(err error) string {
	switch {
	case errors.Is(err, order.ErrForbidden):
		return "NOT_ORDER_OWNER"
	case errors.Is(err, order.ErrRefundIneligible):
		return "REFUND_INELIGIBLE"
	case errors.Is(err, order.ErrNotFound):
		return "ORDER_NOT_FOUND"
	}
	return "REFUND_WRITE_FAILED"
}
