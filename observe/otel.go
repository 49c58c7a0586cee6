package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/regone/policy"
)

const tracerName = "github.com/aponysus/regone"

// Compile-time interface checks.
var (
	_ Observer       = (*TracingObserver)(nil)
	_ ContextDeriver = (*TracingObserver)(nil)
)

// TracingObserver opens one span per logical request and records each failed attempt as
// a span event. Spans are tracked by activity id, which the invoker places on the context.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracingObserver uses tp, or the global tracer provider when tp is nil.
func NewTracingObserver(tp trace.TracerProvider) *TracingObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingObserver{
		tracer: tp.Tracer(tracerName),
		spans:  make(map[string]trace.Span),
	}
}

func (o *TracingObserver) OnStart(ctx context.Context, key policy.PolicyKey, pol policy.RetryPolicy) {
	id, ok := ActivityIDFromContext(ctx)
	if !ok {
		return
	}
	_, span := o.tracer.Start(ctx, "regone "+key.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("regone.key", key.String()),
			attribute.String("regone.activity_id", id),
			attribute.Int64("regone.total_budget_ms", pol.TotalBudget.Milliseconds()),
		),
	)

	o.mu.Lock()
	o.spans[id] = span
	o.mu.Unlock()
}

// DeriveContext returns ctx carrying the request span, making it the parent of spans
// started by the operation.
func (o *TracingObserver) DeriveContext(ctx context.Context) context.Context {
	id, ok := ActivityIDFromContext(ctx)
	if !ok {
		return ctx
	}
	span, ok := o.span(id, false)
	if !ok {
		return ctx
	}
	return trace.ContextWithSpan(ctx, span)
}

func (o *TracingObserver) OnAttempt(_ context.Context, _ policy.PolicyKey, rec AttemptRecord) {
	if rec.Err == nil {
		return
	}
	span, ok := o.span(rec.ActivityID, false)
	if !ok {
		return
	}
	span.AddEvent("attempt_failed", trace.WithAttributes(
		attribute.Int("regone.attempt", rec.Attempt),
		attribute.String("regone.category", rec.Category.String()),
		attribute.Bool("regone.retry", rec.Retry),
		attribute.Int64("regone.backoff_ms", rec.Backoff.Milliseconds()),
		attribute.String("regone.refresh", rec.Intents.String()),
		attribute.String("error", rec.Err.Error()),
	))
}

func (o *TracingObserver) OnSuccess(_ context.Context, _ policy.PolicyKey, tl Timeline) {
	span, ok := o.span(tl.ActivityID, true)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("regone.attempts", len(tl.Attempts)))
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (o *TracingObserver) OnFailure(_ context.Context, _ policy.PolicyKey, tl Timeline) {
	span, ok := o.span(tl.ActivityID, true)
	if !ok {
		return
	}
	span.SetAttributes(
		attribute.Int("regone.attempts", len(tl.Attempts)),
		attribute.String("regone.final_state", tl.Attributes[AttrFinalState]),
	)
	if tl.FinalErr != nil {
		span.RecordError(tl.FinalErr)
		span.SetStatus(codes.Error, tl.FinalErr.Error())
	}
	span.End()
}

func (o *TracingObserver) span(id string, remove bool) (trace.Span, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	span, ok := o.spans[id]
	if ok && remove {
		delete(o.spans, id)
	}
	return span, ok
}
