package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/classify"
)

// TraceNotifier attaches guard notifications as events to the span already
// present in the caller's context. It creates no spans of its own.
type TraceNotifier struct{}

func (TraceNotifier) OnErrorClassified(ctx context.Context, key string, ce classify.CategorizedError) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("guard.error_classified", trace.WithAttributes(
		attribute.String("operation", key),
		attribute.String("category", ce.Category.String()),
		attribute.String("severity", ce.Severity.String()),
		attribute.Bool("retryable", ce.Retryable),
	))
}

func (TraceNotifier) OnCircuitStateChange(ctx context.Context, key string, from, to breaker.State) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("guard.circuit_state_change", trace.WithAttributes(
		attribute.String("operation", key),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (TraceNotifier) OnOperationFailed(ctx context.Context, f Failure) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("guard.operation_failed", trace.WithAttributes(
		attribute.String("operation", f.Key),
		attribute.Int("attempts", f.Attempts),
		attribute.String("error", f.Err.Error()),
	))
}
