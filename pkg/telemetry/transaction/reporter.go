package transaction

import (
	"context"
	"errors"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
	"github.com/nimburion/jobsignal/pkg/resilience"
)

// Reporter receives completed transactions.
type Reporter interface {
	Report(ctx context.Context, rec *Record) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, rec *Record) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// NopReporter discards every transaction.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(context.Context, *Record) error { return nil }

// LogReporter writes one structured log entry per completed transaction.
type LogReporter struct {
	log logger.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(log logger.Logger) *LogReporter {
	if log == nil {
		log = logger.Nop()
	}
	return &LogReporter{log: log}
}

// Report implements Reporter.
func (r *LogReporter) Report(ctx context.Context, rec *Record) error {
	fields := []any{
		"transaction_id", rec.ID(),
		"correlation_key", rec.CorrelationKey(),
		"kind", string(rec.Kind()),
		"action", rec.Action(),
		"duration_ms", rec.Duration().Milliseconds(),
		"tags", map[string]any(rec.Tags()),
	}
	if queueStart, ok := rec.QueueStart(); ok {
		fields = append(fields, "queue_start", queueStart)
	}
	log := r.log.WithContext(ctx)
	if txErr := rec.Err(); txErr != nil {
		fields = append(fields, "error_kind", txErr.Kind, "error", txErr.Message)
		log.Warn("transaction completed with error", fields...)
		return nil
	}
	log.Info("transaction completed", fields...)
	return nil
}

// GuardedReporter stops calling next while its circuit breaker is open, so a
// failing exporter does not slow down every job.
type GuardedReporter struct {
	next    Reporter
	breaker *resilience.CircuitBreaker
}

// NewGuardedReporter wraps next with breaker.
func NewGuardedReporter(next Reporter, breaker *resilience.CircuitBreaker) *GuardedReporter {
	return &GuardedReporter{next: next, breaker: breaker}
}

// Report implements Reporter. It returns resilience.ErrCircuitBreakerOpen
// while the breaker rejects calls.
func (r *GuardedReporter) Report(ctx context.Context, rec *Record) error {
	return r.breaker.Execute(func() error {
		return r.next.Report(ctx, rec)
	})
}

// MultiReporter hands each transaction to every reporter in order.
type MultiReporter []Reporter

// Report implements Reporter. All reporters are called; their errors are joined.
func (m MultiReporter) Report(ctx context.Context, rec *Record) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
