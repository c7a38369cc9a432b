package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on job transaction spans.
const (
	AttrTransactionID   = attribute.Key("transaction.id")
	AttrTransactionKind = attribute.Key("transaction.kind")
	AttrCorrelationKey  = attribute.Key("transaction.correlation_key")
	AttrQueueStart      = attribute.Key("job.queue_start_ms")
	AttrQueueTime       = attribute.Key("job.queue_time_ms")
	AttrArguments       = attribute.Key("job.arguments")
	AttrTagPrefix       = "job."
)

// RecordException adds an exception event and sets the span status to error.
// Use it when only the recorded description of a failure is available.
func RecordException(span trace.Span, kind, message, stack string, opts ...trace.EventOption) {
	attrs := []attribute.KeyValue{
		semconv.ExceptionTypeKey.String(kind),
		semconv.ExceptionMessageKey.String(message),
	}
	if stack != "" {
		attrs = append(attrs, semconv.ExceptionStacktraceKey.String(stack))
	}
	span.AddEvent(semconv.ExceptionEventName, append(opts, trace.WithAttributes(attrs...))...)
	span.SetStatus(codes.Error, message)
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
