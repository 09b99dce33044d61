package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/domain/checkout"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	checkoutService = "checkout-service"

	DefaultSelectionTTL = 30 * time.Minute
)

// Preview is the selected part of a cart, priced server-side.
type Preview struct {
	Items   []cart.Item
	Total   decimal.Decimal
	Session *domcheckout.Session
}

// Service keeps the user's checkout selection between the cart page and the payment
// confirmation. The selection is a typed, expiring session; it is the only source of the
// product ids an order is committed for.
type Service struct {
	sessions domcheckout.Store
	carts    cart.Repository
	ttl      time.Duration
	now      func() time.Time
	ins      application.Instrumentation
}

func NewService(sessions domcheckout.Store, carts cart.Repository, ttl time.Duration, tel observability.Observability) *Service {
	if ttl <= 0 {
		ttl = DefaultSelectionTTL
	}
	return &Service{
		sessions: sessions,
		carts:    carts,
		ttl:      ttl,
		now:      time.Now,
		ins:      application.NewInstrumentation(tel, checkoutService),
	}
}

// Select replaces the user's selection. Every id must be a line of the cart.
func (s *Service) Select(ctx context.Context, userID int64, productIDs []int64) (_ *Preview, err error) {
	ctx, run := s.ins.Begin(ctx, "checkout.select", "SelectForCheckout",
		attribute.Int64("checkout.user_id", userID),
		attribute.Int("checkout.selected", len(productIDs)),
	)
	defer func() { s.ins.End(run, err) }()

	ids := uniqueIDs(productIDs)
	if len(ids) == 0 {
		run.Fail("SELECTION_EMPTY")
		return nil, order.ErrSelectionEmpty
	}
	items, err := s.selected(ctx, userID, ids)
	if err != nil {
		run.Fail("CART_LOOKUP_FAILED")
		return nil, err
	}
	if len(items) != len(ids) {
		run.Fail("SELECTION_INVALID")
		return nil, fmt.Errorf("%w: %d of %d products are not in the cart", order.ErrSelectionInvalid, len(ids)-len(items), len(ids))
	}

	sess := &domcheckout.Session{UserID: userID, ProductIDs: ids, CreatedAt: s.now().UTC()}
	if err := s.sessions.Put(ctx, sess, s.ttl); err != nil {
		run.Fail("SESSION_WRITE_FAILED")
		return nil, err
	}
	return &Preview{Items: items, Total: cart.Total(items), Session: sess}, nil
}

// Preview prices the current selection. Lines removed from the cart since Select drop out;
// a selection with nothing left is ErrSelectionEmpty.
func (s *Service) Preview(ctx context.Context, userID int64) (_ *Preview, err error) {
	ctx, run := s.ins.Begin(ctx, "checkout.preview", "PreviewCheckout", attribute.Int64("checkout.user_id", userID))
	defer func() { s.ins.End(run, err) }()

	sess, err := s.Session(ctx, userID)
	if err != nil {
		run.Fail(sessionFailStatus(err))
		return nil, err
	}
	items, err := s.selected(ctx, userID, sess.ProductIDs)
	if err != nil {
		run.Fail("CART_LOOKUP_FAILED")
		return nil, err
	}
	if len(items) == 0 {
		run.Fail("SELECTION_EMPTY")
		return nil, order.ErrSelectionEmpty
	}
	run.Annotate(observability.F("total", cart.Total(items).StringFixed(2)))
	return &Preview{Items: items, Total: cart.Total(items), Session: sess}, nil
}

// Session returns the stored selection, or order.ErrSelectionEmpty when there is none.
func (s *Service) Session(ctx context.Context, userID int64) (*domcheckout.Session, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if errors.Is(err, domcheckout.ErrNoSelection) {
		return nil, fmt.Errorf("%w: %w", order.ErrSelectionEmpty, err)
	}
	return sess, err
}

// Abandon forgets the selection; the cart is untouched.
func (s *Service) Abandon(ctx context.Context, userID int64) (err error) {
	ctx, run := s.ins.Begin(ctx, "checkout.abandon", "AbandonCheckout", attribute.Int64("checkout.user_id", userID))
	defer func() { s.ins.End(run, err) }()

	return s.sessions.Delete(ctx, userID)
}

// bind stores a provider handle on the selection, keeping the remaining time-to-live fresh.
func (s *Service) bind(ctx context.Context, sess *domcheckout.Session) error {
	return s.sessions.Put(ctx, sess, s.ttl)
}

func (s *Service) selected(ctx context.Context, userID int64, ids []int64) ([]cart.Item, error) {
	all, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	items := make([]cart.Item, 0, len(ids))
	for _, it := range all {
		if _, ok := want[it.ProductID]; ok {
			items = append(items, it)
		}
	}
	return items, nil
}

func sessionFailStatus(err error) string {
	if errors.Is(err, order.ErrSelectionEmpty) {
		return "NO_SELECTION"
	}
	return "SESSION_LOOKUP_FAILED"
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
