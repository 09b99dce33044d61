package order

import (
	"strings"
	"time"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundRequested RefundStatus = "refund_requested"
	RefundRefunded  RefundStatus = "refunded"
	RefundRejected  RefundStatus = "refund_rejected"
)

// Refund holds the refund bookkeeping of an order.
type Refund struct {
	Status       RefundStatus
	Reason       string
	RequestedAt  *time.Time
	DecidedAt    *time.Time
	DecidedBy    *int64
	RejectReason string
}

func (r Refund) clone() Refund {
	c := r
	if r.RequestedAt != nil {
		at := *r.RequestedAt
		c.RequestedAt = &at
	}
	if r.DecidedAt != nil {
		at := *r.DecidedAt
		c.DecidedAt = &at
	}
	if r.DecidedBy != nil {
		by := *r.DecidedBy
		c.DecidedBy = &by
	}
	return c
}

// RefundState implements the state pattern for refund transitions. Refunded and Rejected are
// terminal: every transition out of them fails.
type RefundState interface {
	Status() RefundStatus
	Request(o *Order, reason string, at time.Time) (RefundState, error)
	Approve(o *Order, adminID int64, at time.Time) (RefundState, error)
	Reject(o *Order, adminID int64, reason string, at time.Time) (RefundState, error)
}

// RefundStateOf returns the state object for the order's current refund status.
func RefundStateOf(o *Order) RefundState {
	switch o.Refund.Status {
	case RefundRequested:
		return requestedState{}
	case RefundRefunded:
		return refundedState{}
	case RefundRejected:
		return rejectedState{}
	default:
		return noRefundState{}
	}
}

type noRefundState struct{}

func (noRefundState) Status() RefundStatus { return RefundNone }

func (noRefundState) Request(o *Order, reason string, at time.Time) (RefundState, error) {
	o.Refund.Reason = reason
	o.Refund.RequestedAt = &at
	return requestedState{}, nil
}

func (noRefundState) Approve(*Order, int64, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

func (noRefundState) Reject(*Order, int64, string, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

type requestedState struct{}

func (requestedState) Status() RefundStatus { return RefundRequested }

func (requestedState) Request(*Order, string, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

func (requestedState) Approve(o *Order, adminID int64, at time.Time) (RefundState, error) {
	o.Refund.DecidedAt = &at
	o.Refund.DecidedBy = &adminID
	return refundedState{}, nil
}

func (requestedState) Reject(o *Order, adminID int64, reason string, at time.Time) (RefundState, error) {
	o.Refund.DecidedAt = &at
	o.Refund.DecidedBy = &adminID
	o.Refund.RejectReason = reason
	return rejectedState{}, nil
}

type refundedState struct{}

func (refundedState) Status() RefundStatus { return RefundRefunded }

func (refundedState) Request(*Order, string, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

func (refundedState) Approve(*Order, int64, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

func (refundedState) Reject(*Order, int64, string, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

type rejectedState struct{}

func (rejectedState) Status() RefundStatus { return RefundRejected }

func (rejectedState) Request(*Order, string, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

func (rejectedState) Approve(*Order, int64, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

func (rejectedState) Reject(*Order, int64, string, time.Time) (RefundState, error) {
	return nil, ErrRefundIneligible
}

// RequestRefund moves a paid order owned by userID into RefundRequested.
func (o *Order) RequestRefund(userID int64, reason string, at time.Time) error {
	if !o.OwnedBy(userID) {
		return ErrForbidden
	}
	if o.Status != StatusPaid {
		return ErrRefundIneligible
	}
	return o.transition(func(s RefundState) (RefundState, error) {
		return s.Request(o, strings.TrimSpace(reason), at.UTC())
	})
}

func (o *Order) ApproveRefund(adminID int64, at time.Time) error {
	return o.transition(func(s RefundState) (RefundState, error) {
		return s.Approve(o, adminID, at.UTC())
	})
}

func (o *Order) RejectRefund(adminID int64, reason string, at time.Time) error {
	return o.transition(func(s RefundState) (RefundState, error) {
		return s.Reject(o, adminID, strings.TrimSpace(reason), at.UTC())
	})
}

func (o *Order) transition(step func(RefundState) (RefundState, error)) error {
	next, err := step(RefundStateOf(o))
	if err != nil {
		return err
	}
	o.Refund.Status = next.Status()
	return nil
}
