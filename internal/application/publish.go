package application

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
)

const (
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

// Publish hands events to the bus after a committed write. Failures are recorded on the run
// and never undo the write.
func (in Instrumentation) Publish(ctx context.Context, pub domoutbox.Publisher, r *Run, events ...domoutbox.Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		start := time.Now()
		outcome := "success"

		err := pub.Publish(pubCtx, e)
		if err == nil && pubCtx.Err() != nil {
			err = pubCtx.Err()
			outcome = "canceled"
		} else if err != nil {
			outcome = "error"
		}
		cancel()

		in.External(publishPeer, e.EventName(), outcome, start)
		if err != nil {
			r.Annotate(
				observability.F("event_publish_error", err.Error()),
				observability.F("event", e.EventName()),
			)
		}
	}
}
