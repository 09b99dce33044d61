package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService    = "order-service"
	useCaseCommit   = "order.commit"
	invoiceAttempts = 3
)

// AmountPolicy decides what happens when the provider's paid amount differs from the total
// recomputed from the cart.
type AmountPolicy string

const (
	AmountReject AmountPolicy = "reject"
	AmountLog    AmountPolicy = "log"
)

var (
	errInvoiceTaken     = errors.New("order: invoice number taken")
	errAlreadyCommitted = errors.New("order: payment consumed concurrently")
)

type CommitOrderInput struct {
	UserID     int64
	ProductIDs []int64
	Payment    payment.Confirmation
}

type CommitOrderResult struct {
	OrderID       int64
	InvoiceNumber string
	TotalAmount   decimal.Decimal
	// Duplicate is true when the payment had already produced this order.
	Duplicate bool
}

// CommitOrderUseCase turns a confirmed payment plus the selected cart lines into exactly one
// paid order. The order, its lines, the stock decrements, the cart deletions and the payment
// link are written in one transaction; a repeated call for the same provider reference returns
// the existing order without side effects.
type CommitOrderUseCase struct {
	uow       domain.UnitOfWork
	orders    domain.Repository
	payments  payment.Repository
	publisher domoutbox.Publisher
	invoices  InvoiceNumberer
	policy    AmountPolicy
	tolerance decimal.Decimal
	now       func() time.Time
	ins       application.Instrumentation
}

var _ application.UseCase[CommitOrderInput, *CommitOrderResult] = (*CommitOrderUseCase)(nil)

type Option func(*CommitOrderUseCase)

// WithAmountPolicy sets the mismatch policy and the largest difference still treated as equal.
func WithAmountPolicy(p AmountPolicy, tolerance decimal.Decimal) Option {
	return func(uc *CommitOrderUseCase) {
		uc.policy = p
		uc.tolerance = tolerance.Abs()
	}
}

func WithInvoiceNumberer(n InvoiceNumberer) Option {
	return func(uc *CommitOrderUseCase) { uc.invoices = n }
}

func WithClock(now func() time.Time) Option {
	return func(uc *CommitOrderUseCase) { uc.now = now }
}

func NewCommitOrderUseCase(
	uow domain.UnitOfWork,
	orders domain.Repository,
	payments payment.Repository,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts ...Option,
) *CommitOrderUseCase {
	uc := &CommitOrderUseCase{
		uow:       uow,
		orders:    orders,
		payments:  payments,
		publisher: publisher,
		invoices:  timestampInvoiceNumbers{},
		policy:    AmountReject,
		tolerance: decimal.New(1, -2),
		now:       time.Now,
		ins:       application.NewInstrumentation(tel, orderService),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute commits the order or returns the one the payment already produced.
func (uc *CommitOrderUseCase) Execute(ctx context.Context, cmd CommitOrderInput) (_ *CommitOrderResult, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseCommit, "CommitOrder",
		attribute.Int64("order.user_id", cmd.UserID),
		attribute.String("payment.method", string(cmd.Payment.Method)),
		attribute.String("payment.reference", cmd.Payment.Reference),
		attribute.Int("order.selected_lines", len(cmd.ProductIDs)),
	)
	defer func() { uc.ins.End(run, err) }()
	logger := run.Logger()

	productIDs := uniqueIDs(cmd.ProductIDs)
	switch {
	case cmd.UserID <= 0:
		run.Fail("USER_ID_REQUIRED")
		return nil, application.NewValidation("user id is required")
	case !cmd.Payment.Method.Valid():
		run.Fail("PAYMENT_METHOD_INVALID")
		return nil, application.NewValidation("payment method is not supported")
	case cmd.Payment.Reference == "":
		run.Fail("PAYMENT_REFERENCE_REQUIRED")
		return nil, application.NewValidation("provider reference is required")
	case !cmd.Payment.Paid():
		run.Fail("PAYMENT_NOT_CONFIRMED")
		return nil, fmt.Errorf("%w: confirmation status %s", payment.ErrPaymentFailed, cmd.Payment.Status)
	}
	if err := ctx.Err(); err != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	// A replay needs no selection: the cart lines were consumed by the first commit.
	existing, err := uc.existing(ctx, cmd.UserID, cmd.Payment)
	switch {
	case errors.Is(err, domain.ErrForbidden):
		run.Fail("PAYMENT_OWNER_MISMATCH")
		return nil, err
	case err != nil:
		run.Fail("IDEMPOTENCY_LOOKUP_FAILED")
		return nil, fmt.Errorf("%w: %w", domain.ErrFinalizationFailed, err)
	case existing != nil:
		return uc.replay(run, existing), nil
	}
	if len(productIDs) == 0 {
		run.Fail("SELECTION_EMPTY")
		return nil, domain.ErrSelectionEmpty
	}

	var out commitOutcome
	for attempt := 1; ; attempt++ {
		invoiceNo := uc.invoices.Next(uc.now())
		out, err = uc.commit(ctx, cmd, productIDs, invoiceNo, logger)
		if errors.Is(err, errInvoiceTaken) && attempt < invoiceAttempts {
			run.Event("order.invoice_collision", attribute.String("order.invoice_number", invoiceNo))
			continue
		}
		break
	}

	// A concurrent delivery of the same payment may have won: its commit consumed the cart
	// lines or made this transaction the deadlock victim. Report its order instead.
	if err != nil && mayHaveRaced(err) {
		if existing, lookupErr := uc.existing(ctx, cmd.UserID, cmd.Payment); lookupErr == nil && existing != nil {
			run.Event("order.concurrent_commit", attribute.String("commit.error", err.Error()))
			return uc.replay(run, existing), nil
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, errAlreadyCommitted):
		run.Fail("FINALIZATION_FAILED")
		return nil, uc.finalizationFailed(logger, cmd, err)
	case errors.Is(err, domain.ErrSelectionInvalid):
		run.Fail("SELECTION_INVALID")
		return nil, err
	case errors.Is(err, domain.ErrAmountMismatch):
		run.Fail("AMOUNT_MISMATCH")
		return nil, err
	case errors.Is(err, payment.ErrPaymentFailed):
		run.Fail("PAYMENT_NOT_USABLE")
		return nil, err
	case errors.Is(err, domain.ErrForbidden):
		run.Fail("PAYMENT_OWNER_MISMATCH")
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	default:
		run.Fail("FINALIZATION_FAILED")
		return nil, uc.finalizationFailed(logger, cmd, err)
	}

	result := out.result
	if result.Duplicate {
		return uc.replay(run, result), nil
	}

	run.Span().SetAttributes(
		attribute.Int64("order.id", result.OrderID),
		attribute.String("order.invoice_number", result.InvoiceNumber),
	)
	run.Event("order.committed", attribute.Int64("order.id", result.OrderID))
	run.Annotate(
		observability.F("order_id", result.OrderID),
		observability.F("invoice_number", result.InvoiceNumber),
		observability.F("total_amount", result.TotalAmount.StringFixed(2)),
	)

	uc.ins.Publish(ctx, uc.publisher, run,
		domain.NewOrderCommittedEvent(out.order, cmd.Payment.Reference),
		inventory.NewStockSoldEvent(out.order.ID, out.sold),
	)
	return result, nil
}

// commitOutcome is what one transaction attempt produced. order and sold are nil for a
// duplicate.
type commitOutcome struct {
	result *CommitOrderResult
	order  *domain.Order
	sold   []inventory.Adjustment
}

func (uc *CommitOrderUseCase) commit(
	ctx context.Context,
	cmd CommitOrderInput,
	productIDs []int64,
	invoiceNo string,
	logger observability.Logger,
) (commitOutcome, error) {
	var out commitOutcome
	err := uc.uow.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		rec, err := tx.FindByReference(ctx, cmd.Payment.Method, cmd.Payment.Reference)
		switch {
		case errors.Is(err, payment.ErrNotFound):
			rec = nil
		case err != nil:
			return err
		case rec.Linked():
			o, err := tx.FindByID(ctx, *rec.OrderID)
			if err != nil {
				return err
			}
			if !o.OwnedBy(cmd.UserID) {
				return domain.ErrForbidden
			}
			out = commitOutcome{result: resultOf(o, true)}
			return nil
		case rec.Status != payment.StatusPending:
			return fmt.Errorf("%w: payment record is %s", payment.ErrPaymentFailed, rec.Status)
		case rec.UserID != cmd.UserID:
			return domain.ErrForbidden
		}

		items, err := tx.SelectedItems(ctx, cmd.UserID, productIDs)
		if err != nil {
			return err
		}
		lines, err := snapshotLines(items, productIDs)
		if err != nil {
			return err
		}

		paidAt := cmd.Payment.PaidAt
		if paidAt.IsZero() {
			paidAt = uc.now()
		}
		o, err := domain.NewPaid(cmd.UserID, cmd.Payment.Method, invoiceNo, paidAt, lines)
		if err != nil {
			return err
		}
		if err := uc.checkAmount(o.TotalAmount, cmd.Payment, logger); err != nil {
			return err
		}

		if err := tx.Insert(ctx, o); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return errInvoiceTaken
			}
			return err
		}
		sold := make([]inventory.Adjustment, 0, len(items))
		for _, it := range items {
			if it.Quantity > it.Stock {
				logger.Warn("stock_shortfall",
					observability.F("product_id", it.ProductID),
					observability.F("requested", it.Quantity),
					observability.F("available", it.Stock),
				)
			}
			if err := tx.Decrement(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			sold = append(sold, inventory.Adjustment{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Remaining: inventory.Decremented(it.Stock, it.Quantity),
			})
		}
		if err := tx.DeleteLines(ctx, cmd.UserID, productIDs); err != nil {
			return err
		}

		confirmed := cmd.Payment
		confirmed.PaidAt = paidAt
		if rec != nil {
			err = tx.Link(ctx, rec.ID, o.ID, confirmed)
		} else {
			err = tx.InsertPaid(ctx, payment.PaidRecordFrom(cmd.UserID, o.ID, confirmed))
		}
		if errors.Is(err, payment.ErrConflict) {
			return errAlreadyCommitted
		}
		if err != nil {
			return err
		}

		out = commitOutcome{result: resultOf(o, false), order: o, sold: sold}
		return nil
	})
	if err != nil {
		return commitOutcome{}, err
	}
	return out, nil
}

// mayHaveRaced reports whether a failed commit could be explained by another commit of the
// same payment. Errors about the request itself cannot.
func mayHaveRaced(err error) bool {
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, payment.ErrPaymentFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// snapshotLines validates the selection against the cart and freezes each unit price. Every
// selected id must be in the cart with a positive quantity and in-stock product.
func snapshotLines(items []cart.Item, productIDs []int64) ([]domain.Line, error) {
	if len(items) != len(productIDs) {
		return nil, fmt.Errorf("%w: %d of %d selected lines found", domain.ErrSelectionInvalid, len(items), len(productIDs))
	}
	lines := make([]domain.Line, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 || it.Stock <= 0 {
			return nil, fmt.Errorf("%w: product %d unavailable", domain.ErrSelectionInvalid, it.ProductID)
		}
		lines = append(lines, domain.Line{
			ProductID:    it.ProductID,
			ProductName:  it.Name,
			Quantity:     it.Quantity,
			PricePerUnit: it.Price,
		})
	}
	return lines, nil
}

func (uc *CommitOrderUseCase) checkAmount(total decimal.Decimal, c payment.Confirmation, logger observability.Logger) error {
	if c.Amount.Sub(total).Abs().LessThanOrEqual(uc.tolerance) {
		return nil
	}
	if uc.policy == AmountLog {
		logger.Warn("payment_amount_mismatch",
			observability.F("order_total", total.StringFixed(2)),
			observability.F("paid_amount", c.Amount.StringFixed(2)),
			observability.F("provider_reference", c.Reference),
		)
		return nil
	}
	return fmt.Errorf("%w: order total %s, paid %s", domain.ErrAmountMismatch, total.StringFixed(2), c.Amount.StringFixed(2))
}

// Lookup returns the order the payment (method, reference) already produced for userID, or
// nil when it produced none yet.
func (uc *CommitOrderUseCase) Lookup(ctx context.Context, userID int64, method payment.Method, reference string) (*CommitOrderResult, error) {
	return uc.existing(ctx, userID, payment.Confirmation{Method: method, Reference: reference})
}

// existing returns the order a payment already produced for userID, or nil.
func (uc *CommitOrderUseCase) existing(ctx context.Context, userID int64, c payment.Confirmation) (*CommitOrderResult, error) {
	rec, err := uc.payments.FindByReference(ctx, c.Method, c.Reference)
	if errors.Is(err, payment.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !rec.Linked() {
		return nil, nil
	}
	o, err := uc.orders.FindByID(ctx, *rec.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	return resultOf(o, true), nil
}

func (uc *CommitOrderUseCase) replay(run *application.Run, res *CommitOrderResult) *CommitOrderResult {
	run.Status("IDEMPOTENT_REPLAY")
	run.Span().SetAttributes(attribute.Int64("order.id", res.OrderID))
	run.Event("order.idempotent_replay", attribute.Int64("order.id", res.OrderID))
	run.Annotate(observability.F("order_id", res.OrderID))
	return res
}

func (uc *CommitOrderUseCase) finalizationFailed(logger observability.Logger, cmd CommitOrderInput, cause error) error {
	logger.Error("order_finalization_failed",
		observability.F("user_id", cmd.UserID),
		observability.F("payment_method", string(cmd.Payment.Method)),
		observability.F("provider_reference", cmd.Payment.Reference),
		observability.F("paid_amount", cmd.Payment.Amount.StringFixed(2)),
		observability.F("error", cause.Error()),
	)
	return fmt.Errorf("%w: %w", domain.ErrFinalizationFailed, cause)
}

func resultOf(o *domain.Order, duplicate bool) *CommitOrderResult {
	return &CommitOrderResult{
		OrderID:       o.ID,
		InvoiceNumber: o.InvoiceNumber,
		TotalAmount:   o.TotalAmount,
		Duplicate:     duplicate,
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
