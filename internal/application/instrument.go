package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instrumentation carries the logger, tracer and RED instruments a service resolves once at
// construction. Methods never create metrics.
type Instrumentation struct {
	log    observability.Logger
	tracer observability.Tracer

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

// NewInstrumentation binds tel for a service. tel may be nil.
func NewInstrumentation(tel observability.Observability, service string) Instrumentation {
	metrics := observability.MetricsOf(tel)
	return Instrumentation{
		log:          observability.LoggerOf(tel).With(observability.F("service", service)),
		tracer:       observability.TracerOf(tel),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Logger is the service's base logger.
func (in Instrumentation) Logger() observability.Logger { return in.log }

// Run tracks a single use case execution from Begin to End.
type Run struct {
	ctx     context.Context
	span    trace.Span
	log     observability.Logger
	useCase string
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Begin starts the span and returns the derived context. Callers defer End with their named
// error return.
func (in Instrumentation) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	return ctx, &Run{
		ctx:     ctx,
		span:    span,
		log:     logger,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

// Logger returns the request-scoped logger tagged with the use case.
func (r *Run) Logger() observability.Logger { return r.log }

func (r *Run) Span() trace.Span { return r.span }

// Fail marks the run as an error with a stable status code such as "SELECTION_INVALID".
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// Status replaces the status text without changing the outcome, e.g. "IDEMPOTENT_REPLAY".
func (r *Run) Status(status string) {
	r.status = status
}

// Annotate adds fields to the final use_case_done line.
func (r *Run) Annotate(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// Event records a span event with string attributes.
func (r *Run) Event(name string, attrs ...attribute.KeyValue) {
	if r.span != nil {
		r.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// End closes the span, records RED metrics and writes one use_case_done line.
func (in Instrumentation) End(r *Run, err error) {
	if err != nil && r.outcome == "success" {
		r.outcome = "error"
		if r.status == "OK" {
			r.status = "INTERNAL"
		}
	}
	lat := time.Since(r.start).Seconds()

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	r.log.Info("use_case_done", fields...)
}

// External records one call to a peer such as a payment provider or the event bus.
func (in Instrumentation) External(peer, endpoint, outcome string, start time.Time) {
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}
