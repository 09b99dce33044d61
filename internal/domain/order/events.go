package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCommittedEvent is emitted once per order, after the commit transaction succeeded.
type OrderCommittedEvent struct {
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"provider_reference"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (OrderCommittedEvent) EventName() string { return "order.committed" }

func (e OrderCommittedEvent) EventKey() int64 { return e.OrderID }

func NewOrderCommittedEvent(o *Order, reference string) OrderCommittedEvent {
	return OrderCommittedEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		InvoiceNumber: o.InvoiceNumber,
		PaymentMethod: string(o.PaymentMethod),
		Reference:     reference,
		TotalAmount:   o.TotalAmount,
		OccurredAt:    time.Now().UTC(),
	}
}

// RefundEvent reports a refund transition; Status is the state entered.
type RefundEvent struct {
	OrderID    int64        `json:"order_id"`
	UserID     int64        `json:"user_id"`
	Status     RefundStatus `json:"refund_status"`
	Reason     string       `json:"reason,omitempty"`
	ActorID    int64        `json:"actor_id"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func (e RefundEvent) EventName() string {
	switch e.Status {
	case RefundRequested:
		return "refund.requested"
	case RefundRefunded:
		return "refund.approved"
	case RefundRejected:
		return "refund.rejected"
	default:
		return "refund.unknown"
	}
}

func (e RefundEvent) EventKey() int64 { return e.OrderID }

// NewRefundEvent captures the order's refund state after a transition made by actorID.
func NewRefundEvent(o *Order, actorID int64) RefundEvent {
	reason := o.Refund.Reason
	if o.Refund.Status == RefundRejected {
		reason = o.Refund.RejectReason
	}
	return RefundEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Refund.Status,
		Reason:     reason,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// Event names the kafka sink forwards.
var EventNames = []string{
	OrderCommittedEvent{}.EventName(),
	RefundEvent{Status: RefundRequested}.EventName(),
	RefundEvent{Status: RefundRefunded}.EventName(),
	RefundEvent{Status: RefundRejected}.EventName(),
}
