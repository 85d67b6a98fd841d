package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/apiguard/breaker"
	"github.com/jonwraymond/apiguard/classify"
)

// MetricsNotifier records guard notifications as OpenTelemetry metrics.
type MetricsNotifier struct {
	errorsTotal  metric.Int64Counter
	transitions  metric.Int64Counter
	failedOps    metric.Int64Counter
	attemptsHist metric.Int64Histogram
}

// NewMetricsNotifier creates a notifier recording against meter.
func NewMetricsNotifier(meter metric.Meter) (*MetricsNotifier, error) {
	errorsTotal, err := meter.Int64Counter(
		"guard.errors.total",
		metric.WithDescription("Total number of classified upstream errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"guard.circuit.transitions",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	failedOps, err := meter.Int64Counter(
		"guard.operations.failed",
		metric.WithDescription("Operations that exhausted their attempt budget"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	attemptsHist, err := meter.Int64Histogram(
		"guard.operation.attempts",
		metric.WithDescription("Attempts used by operations that ultimately failed"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsNotifier{
		errorsTotal:  errorsTotal,
		transitions:  transitions,
		failedOps:    failedOps,
		attemptsHist: attemptsHist,
	}, nil
}

func (n *MetricsNotifier) OnErrorClassified(ctx context.Context, key string, ce classify.CategorizedError) {
	n.errorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", key),
		attribute.String("category", ce.Category.String()),
		attribute.String("severity", ce.Severity.String()),
		attribute.Bool("retryable", ce.Retryable),
	))
}

func (n *MetricsNotifier) OnCircuitStateChange(ctx context.Context, key string, from, to breaker.State) {
	n.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", key),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (n *MetricsNotifier) OnOperationFailed(ctx context.Context, f Failure) {
	opt := metric.WithAttributes(attribute.String("operation", f.Key))
	n.failedOps.Add(ctx, 1, opt)
	n.attemptsHist.Record(ctx, int64(f.Attempts), opt)
}
