package inventory

import "time"

// StockSoldEvent is emitted after an order commit decremented stock.
type StockSoldEvent struct {
	OrderID     int64        `json:"order_id"`
	Adjustments []Adjustment `json:"adjustments"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

func (StockSoldEvent) EventName() string { return "inventory.sold" }

func (e StockSoldEvent) EventKey() int64 { return e.OrderID }

func NewStockSoldEvent(orderID int64, adjustments []Adjustment) StockSoldEvent {
	return StockSoldEvent{
		OrderID:     orderID,
		Adjustments: adjustments,
		OccurredAt:  time.Now().UTC(),
	}
}

// StockRestockedEvent is emitted after an approved refund returned stock.
type StockRestockedEvent struct {
	OrderID     int64        `json:"order_id"`
	Adjustments []Adjustment `json:"adjustments"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

func (StockRestockedEvent) EventName() string { return "inventory.restocked" }

func (e StockRestockedEvent) EventKey() int64 { return e.OrderID }

func NewStockRestockedEvent(orderID int64, adjustments []Adjustment) StockRestockedEvent {
	return StockRestockedEvent{
		OrderID:     orderID,
		Adjustments: adjustments,
		OccurredAt:  time.Now().UTC(),
	}
}

// StockLowEvent is emitted when a sale leaves a product at or below the alert threshold.
type StockLowEvent struct {
	ProductID  int64     `json:"product_id"`
	Remaining  int       `json:"remaining"`
	Threshold  int       `json:"threshold"`
	OrderID    int64     `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockLowEvent) EventName() string { return "inventory.low" }

func (e StockLowEvent) EventKey() int64 { return e.ProductID }

// SoldOut reports whether the product can no longer be bought.
func (e StockLowEvent) SoldOut() bool { return e.Remaining <= 0 }
