package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService  = "inventory-service"
	useCaseStockWatch = "inventory.watch"

	// DefaultLowStockThreshold is the stock level at or below which a sale raises an alert.
	DefaultLowStockThreshold = 3
)

// WatchReport lists the products a sale left at or below the threshold.
type WatchReport struct {
	Low []dominv.StockLowEvent
}

// WatchStockUseCase re-reads the stock of every product an order sold and raises
// StockLowEvent for products at or below the threshold. Adjustment.Remaining is not used:
// later sales may have moved stock before delivery.
type WatchStockUseCase struct {
	products  catalog.Repository
	publisher domoutbox.Publisher
	threshold int
	ins       application.Instrumentation
}

func NewWatchStockUseCase(products catalog.Repository, publisher domoutbox.Publisher, threshold int, tel observability.Observability) *WatchStockUseCase {
	if threshold < 0 {
		threshold = DefaultLowStockThreshold
	}
	return &WatchStockUseCase{
		products:  products,
		publisher: publisher,
		threshold: threshold,
		ins:       application.NewInstrumentation(tel, inventoryService),
	}
}

func (uc *WatchStockUseCase) Execute(ctx context.Context, e dominv.StockSoldEvent) (_ *WatchReport, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseStockWatch, "WatchStock",
		attribute.Int64("order.id", e.OrderID),
		attribute.Int("inventory.adjustments", len(e.Adjustments)),
	)
	defer func() { uc.ins.End(run, err) }()
	logger := run.Logger()

	report := &WatchReport{}
	events := make([]domoutbox.Event, 0, len(e.Adjustments))
	for _, adj := range e.Adjustments {
		p, err := uc.products.FindProduct(ctx, adj.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			logger.Warn("stock_watch_product_missing", observability.F("product_id", adj.ProductID))
			continue
		}
		if err != nil {
			run.Fail("PRODUCT_LOOKUP_FAILED")
			return report, err
		}
		if p.StockQuantity > uc.threshold {
			continue
		}

		low := dominv.StockLowEvent{
			ProductID:  p.ID,
			Remaining:  p.StockQuantity,
			Threshold:  uc.threshold,
			OrderID:    e.OrderID,
			OccurredAt: time.Now().UTC(),
		}
		msg := "stock_low"
		if low.SoldOut() {
			msg = "stock_depleted"
		}
		logger.Warn(msg,
			observability.F("product_id", p.ID),
			observability.F("product_name", p.Name),
			observability.F("remaining", p.StockQuantity),
		)
		report.Low = append(report.Low, low)
		events = append(events, low)
	}

	run.Annotate(observability.F("low_stock_products", len(report.Low)))
	uc.ins.Publish(ctx, uc.publisher, run, events...)
	return report, nil
}
