package inventory

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/worker"
)

const workerService = "inventory_worker"

// Worker feeds inventory.sold events from the bus into the stock watch.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[dominv.StockSoldEvent, *WatchReport]
	tel        observability.Observability

	log        observability.Logger
	reqCounter observability.Counter // usecase_requests_total{use_case,outcome}
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[dominv.StockSoldEvent, *WatchReport],
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber: subscriber,
		useCase:    useCase,
		tel:        tel,
		log:        observability.LoggerOf(tel).With(observability.F("service", workerService)),
		reqCounter: observability.MetricsOf(tel).Counter(observability.MUsecaseRequests),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(dominv.StockSoldEvent{}.EventName(), w.handleStockSold)
}

func (w *Worker) handleStockSold(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.stock_sold"
	evt, ok := e.(dominv.StockSoldEvent)
	if !ok {
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", "ignored"),
		)
		return nil
	}

	ctx = workerpresentation.WithEventContext(ctx, logctx.FromOr(ctx, w.log), w.tel, map[string]string{
		"event":     e.EventName(),
		"component": workerService,
	})
	if _, err := w.useCase.Execute(ctx, evt); err != nil {
		return fmt.Errorf("worker: stock watch for order %d: %w", evt.OrderID, err)
	}
	return nil
}
