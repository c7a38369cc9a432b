package tracing

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/jobsignal/pkg/observability/metrics"
	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
)

// ScopeName is the instrumentation scope of job transaction spans.
const ScopeName = "github.com/nimburion/jobsignal"

// TransactionReporter turns each completed transaction into a consumer span
// that starts and ends at the transaction's own timestamps.
type TransactionReporter struct {
	tracer trace.Tracer
}

// NewTransactionReporter creates a reporter emitting spans on provider.
func NewTransactionReporter(provider trace.TracerProvider) *TransactionReporter {
	return &TransactionReporter{tracer: provider.Tracer(ScopeName)}
}

// Report implements transaction.Reporter.
func (r *TransactionReporter) Report(ctx context.Context, rec *transaction.Record) error {
	name := rec.Action()
	if name == "" {
		name = string(rec.Kind())
	}

	attrs := []attribute.KeyValue{
		AttrTransactionID.String(rec.ID()),
		AttrTransactionKind.String(string(rec.Kind())),
		AttrCorrelationKey.String(rec.CorrelationKey()),
	}
	for _, kv := range metrics.Attributes(rec.Tags()) {
		attrs = append(attrs, attribute.KeyValue{Key: attribute.Key(AttrTagPrefix + string(kv.Key)), Value: kv.Value})
	}
	if queueStart, ok := rec.QueueStart(); ok {
		attrs = append(attrs, AttrQueueStart.Int64(queueStart))
		if wait := rec.StartedAt().UnixMilli() - queueStart; wait >= 0 {
			attrs = append(attrs, AttrQueueTime.Int64(wait))
		}
	}
	if params := rec.Params(); params != nil {
		if encoded, err := json.Marshal(params); err == nil {
			attrs = append(attrs, AttrArguments.String(string(encoded)))
		}
	}

	_, span := r.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithTimestamp(rec.StartedAt()),
		trace.WithAttributes(attrs...),
	)
	if txErr := rec.Err(); txErr != nil {
		RecordException(span, txErr.Kind, txErr.Message, txErr.Stack, trace.WithTimestamp(rec.CompletedAt()))
	} else {
		RecordSuccess(span)
	}
	span.End(trace.WithTimestamp(rec.CompletedAt()))
	return nil
}
