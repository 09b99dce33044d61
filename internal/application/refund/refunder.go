package refund

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

// Refunder returns the money of a paid record through its provider. A provider reporting a
// prior refund answers payment.ErrAlreadyRefunded.
type Refunder interface {
	Refund(ctx context.Context, rec *payment.Record) error
}

// ManualRefunder stands in for providers without a refund API. It records that the money has
// to be returned by hand.
type ManualRefunder struct {
	log observability.Logger
}

func NewManualRefunder(tel observability.Observability) *ManualRefunder {
	return &ManualRefunder{log: observability.LoggerOf(tel)}
}

func (m *ManualRefunder) Refund(ctx context.Context, rec *payment.Record) error {
	logctx.FromOr(ctx, m.log).Warn("manual_refund_required",
		observability.F("payment_method", string(rec.Method)),
		observability.F("provider_reference", rec.Reference),
		observability.F("amount", rec.Amount.StringFixed(2)),
		observability.F("currency", rec.Currency),
		observability.F("user_id", rec.UserID),
	)
	return nil
}
