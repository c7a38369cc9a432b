package tracing_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/jobsignal/pkg/observability/tracing"
	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
)

func setupRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, tp
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func report(t *testing.T, tp *sdktrace.TracerProvider, configure func(transaction.Transaction)) string {
	t.Helper()
	slot := transaction.NewContext(tracing.NewTransactionReporter(tp), nil)
	tx := slot.Create("provider-9", transaction.KindBackgroundJob, transaction.Request{})
	configure(tx)
	if err := slot.CompleteCurrent(context.Background()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return tx.ID()
}

func TestTransactionReporter_SuccessSpan(t *testing.T) {
	recorder, tp := setupRecorder()
	id := report(t, tp, func(tx transaction.Transaction) {
		tx.SetActionIfNil("ReportJob#perform")
		tx.SetTags(transaction.Tags{"queue": "default", "priority": 2, "active_job_id": "job-1"})
		tx.SetParams([]any{"a", map[string]any{"password": "[FILTERED]"}})
		tx.SetQueueStart(1704067200000)
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "ReportJob#perform" {
		t.Errorf("unexpected span name %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("expected consumer span, got %v", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("expected OK status, got %v", span.Status())
	}
	if v, ok := attr(span, "transaction.id"); !ok || v.AsString() != id {
		t.Errorf("missing transaction id")
	}
	if v, ok := attr(span, "transaction.correlation_key"); !ok || v.AsString() != "provider-9" {
		t.Errorf("missing correlation key")
	}
	if v, ok := attr(span, "job.queue"); !ok || v.AsString() != "default" {
		t.Errorf("missing queue tag")
	}
	if v, ok := attr(span, "job.priority"); !ok || v.AsInt64() != 2 {
		t.Errorf("missing priority tag")
	}
	if v, ok := attr(span, "job.queue_start_ms"); !ok || v.AsInt64() != 1704067200000 {
		t.Errorf("missing queue start")
	}
	if v, ok := attr(span, "job.arguments"); !ok || !strings.Contains(v.AsString(), "[FILTERED]") {
		t.Errorf("missing sanitized arguments")
	}
	if span.EndTime().Before(span.StartTime()) {
		t.Errorf("end before start")
	}
}

func TestTransactionReporter_ErrorSpan(t *testing.T) {
	recorder, tp := setupRecorder()
	report(t, tp, func(tx transaction.Transaction) {
		tx.SetError(errors.New("smtp unavailable"))
	})

	span := recorder.Ended()[0]
	if span.Name() != string(transaction.KindBackgroundJob) {
		t.Errorf("expected kind as fallback name, got %q", span.Name())
	}
	if span.Status().Code != codes.Error || span.Status().Description != "smtp unavailable" {
		t.Errorf("unexpected status %v", span.Status())
	}
	events := span.Events()
	if len(events) != 1 || events[0].Name != "exception" {
		t.Fatalf("expected one exception event, got %v", events)
	}
	found := false
	for _, kv := range events[0].Attributes {
		if kv.Key == "exception.type" && kv.Value.AsString() == "errors.errorString" {
			found = true
		}
	}
	if !found {
		t.Errorf("exception.type not recorded: %v", events[0].Attributes)
	}
}

func TestTransactionReporter_PanicStack(t *testing.T) {
	recorder, tp := setupRecorder()
	report(t, tp, func(tx transaction.Transaction) {
		tx.SetError(&transaction.PanicError{Value: "nil map", Stack: []byte("goroutine 1 [running]")})
	})

	event := recorder.Ended()[0].Events()[0]
	var stack string
	for _, kv := range event.Attributes {
		if kv.Key == "exception.stacktrace" {
			stack = kv.Value.AsString()
		}
	}
	if !strings.Contains(stack, "goroutine 1") {
		t.Fatalf("expected stack trace attribute, got %q", stack)
	}
}
