package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const cartService = "cart-service"

// View is a user's cart priced at current catalog prices.
type View struct {
	Items []domcart.Item
	Total decimal.Decimal
}

// Service owns cart mutations. Every mutation re-reads the product so the resulting quantity
// is checked against current stock.
type Service struct {
	carts    domcart.Repository
	products catalog.Repository
	ins      application.Instrumentation
}

func NewService(carts domcart.Repository, products catalog.Repository, tel observability.Observability) *Service {
	return &Service{
		carts:    carts,
		products: products,
		ins:      application.NewInstrumentation(tel, cartService),
	}
}

func (s *Service) View(ctx context.Context, userID int64) (_ *View, err error) {
	ctx, run := s.ins.Begin(ctx, "cart.view", "ViewCart", attribute.Int64("cart.user_id", userID))
	defer func() { s.ins.End(run, err) }()

	items, err := s.carts.Items(ctx, userID)
	if err != nil {
		run.Fail("CART_LOOKUP_FAILED")
		return nil, err
	}
	return &View{Items: items, Total: domcart.Total(items)}, nil
}

// Add puts qty more units of productID in the cart.
func (s *Service) Add(ctx context.Context, userID, productID int64, qty int) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.add", "AddToCart", lineAttrs(userID, productID)...)
	defer func() { s.ins.End(run, err) }()

	if qty < 1 {
		run.Fail("QUANTITY_INVALID")
		return domcart.ErrInvalidQuantity
	}
	current, err := s.quantity(ctx, userID, productID)
	if err != nil {
		run.Fail("CART_LOOKUP_FAILED")
		return err
	}
	return s.save(ctx, run, userID, productID, current+qty)
}

func (s *Service) Increase(ctx context.Context, userID, productID int64) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.increase", "IncreaseCartLine", lineAttrs(userID, productID)...)
	defer func() { s.ins.End(run, err) }()

	line, err := s.carts.FindLine(ctx, userID, productID)
	if err != nil {
		run.Fail("LINE_NOT_FOUND")
		return err
	}
	return s.save(ctx, run, userID, productID, line.Quantity+1)
}

// Decrease removes one unit; the last unit removes the line.
func (s *Service) Decrease(ctx context.Context, userID, productID int64) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.decrease", "DecreaseCartLine", lineAttrs(userID, productID)...)
	defer func() { s.ins.End(run, err) }()

	line, err := s.carts.FindLine(ctx, userID, productID)
	if err != nil {
		run.Fail("LINE_NOT_FOUND")
		return err
	}
	if line.Quantity <= 1 {
		run.Status("LINE_REMOVED")
		return s.carts.DeleteLine(ctx, userID, productID)
	}
	line.Quantity--
	return s.carts.SaveLine(ctx, *line)
}

// SetQuantity replaces a line's quantity. Values below one become one.
func (s *Service) SetQuantity(ctx context.Context, userID, productID int64, qty int) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.set_quantity", "SetCartQuantity", lineAttrs(userID, productID)...)
	defer func() { s.ins.End(run, err) }()

	if _, err := s.carts.FindLine(ctx, userID, productID); err != nil {
		run.Fail("LINE_NOT_FOUND")
		return err
	}
	return s.save(ctx, run, userID, productID, max(qty, 1))
}

// UpdateMany sets several quantities at once. Nothing is written unless every line passes
// the stock check.
func (s *Service) UpdateMany(ctx context.Context, userID int64, quantities map[int64]int) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.update_many", "UpdateCart",
		attribute.Int64("cart.user_id", userID),
		attribute.Int("cart.lines", len(quantities)),
	)
	defer func() { s.ins.End(run, err) }()

	lines := make([]domcart.Line, 0, len(quantities))
	for productID, qty := range quantities {
		if _, err := s.carts.FindLine(ctx, userID, productID); err != nil {
			run.Fail("LINE_NOT_FOUND")
			return err
		}
		qty = max(qty, 1)
		if err := s.checkStock(ctx, productID, qty); err != nil {
			run.Fail(failStatus(err))
			return err
		}
		lines = append(lines, domcart.Line{UserID: userID, ProductID: productID, Quantity: qty})
	}
	for _, l := range lines {
		if err := s.carts.SaveLine(ctx, l); err != nil {
			run.Fail("CART_WRITE_FAILED")
			return err
		}
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, userID, productID int64) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.remove", "RemoveCartLine", lineAttrs(userID, productID)...)
	defer func() { s.ins.End(run, err) }()

	if err := s.carts.DeleteLine(ctx, userID, productID); err != nil {
		run.Fail(failStatus(err))
		return err
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID int64) (err error) {
	ctx, run := s.ins.Begin(ctx, "cart.clear", "ClearCart", attribute.Int64("cart.user_id", userID))
	defer func() { s.ins.End(run, err) }()

	return s.carts.DeleteAll(ctx, userID)
}

func (s *Service) quantity(ctx context.Context, userID, productID int64) (int, error) {
	line, err := s.carts.FindLine(ctx, userID, productID)
	if errors.Is(err, domcart.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return line.Quantity, nil
}

func (s *Service) save(ctx context.Context, run *application.Run, userID, productID int64, qty int) error {
	if err := s.checkStock(ctx, productID, qty); err != nil {
		run.Fail(failStatus(err))
		return err
	}
	if err := s.carts.SaveLine(ctx, domcart.Line{UserID: userID, ProductID: productID, Quantity: qty}); err != nil {
		run.Fail("CART_WRITE_FAILED")
		return err
	}
	run.Annotate(observability.F("quantity", qty))
	return nil
}

func (s *Service) checkStock(ctx context.Context, productID int64, qty int) error {
	p, err := s.products.FindProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := domcart.CheckQuantity(qty, p.StockQuantity); err != nil {
		return fmt.Errorf("%w: %d requested, %d in stock", err, qty, p.StockQuantity)
	}
	return nil
}

func failStatus(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return "PRODUCT_NOT_FOUND"
	case errors.Is(err, domcart.ErrNotFound):
		return "LINE_NOT_FOUND"
	case errors.Is(err, domcart.ErrOutOfStock):
		return "OUT_OF_STOCK"
	case errors.Is(err, domcart.ErrExceedsStock):
		return "EXCEEDS_STOCK"
	case errors.Is(err, domcart.ErrInvalidQuantity):
		return "QUANTITY_INVALID"
	}
	return "INTERNAL"
}

func lineAttrs(userID, productID int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("cart.user_id", userID),
		attribute.Int64("cart.product_id", productID),
	}
}
