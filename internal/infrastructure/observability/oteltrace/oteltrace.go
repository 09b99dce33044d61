package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "minishop-storefront"

type tracer struct{ t trace.Tracer }

// New returns a tracer backed by the global OpenTelemetry provider.
// Until an SDK TracerProvider is installed with otel.SetTracerProvider the spans are
// non-recording, but W3C context still propagates.
func New(name string) observability.Tracer {
	if name == "" {
		name = defaultTracerName
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
