package workerpresentation

import (
	"context"
	"sort"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext stores a logger for one event delivery on ctx. The logger carries
// event_id (generated when attrs has none), the trace ids of the span on ctx and the
// remaining attrs. Keep attrs low-cardinality: event name, component, topic.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	tel observability.Observability,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = logctx.FromOr(ctx, observability.LoggerOf(tel))
	}

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := []observability.Field{observability.F("event_id", evtID)}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if k != "event_id" && v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, attrs[k]))
	}

	return logctx.With(ctx, base.With(fields...))
}
