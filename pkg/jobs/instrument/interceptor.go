package instrument

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/observability/logger"
	"github.com/nimburion/jobsignal/pkg/observability/metrics"
	"github.com/nimburion/jobsignal/pkg/resilience"
	"github.com/nimburion/jobsignal/pkg/sanitize"
	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
)

// CounterQueueJobCount is incremented once per finished job with
// status=processed, and once more with status=failed for failed jobs.
const CounterQueueJobCount = "queue_job_count"

// Interceptor instruments job executions. It is safe for concurrent use;
// per-invocation state lives on the stack and on the transaction slot.
type Interceptor struct {
	reporter      transaction.Reporter
	recorder      metrics.Recorder
	sanitizer     sanitize.Sanitizer
	filter        []string
	mailerClasses []string
	timeout       time.Duration
	log           logger.Logger
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithReporter sets the reporter used by slots the interceptor creates itself.
// A slot already carried on the context keeps its own reporter.
func WithReporter(reporter transaction.Reporter) Option {
	return func(i *Interceptor) {
		if reporter != nil {
			i.reporter = reporter
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(i *Interceptor) {
		if recorder != nil {
			i.recorder = recorder
		}
	}
}

// WithSanitizer replaces the argument sanitizer.
func WithSanitizer(sanitizer sanitize.Sanitizer) Option {
	return func(i *Interceptor) {
		if sanitizer != nil {
			i.sanitizer = sanitizer
		}
	}
}

// WithFilterParameters sets the argument keys whose values are redacted.
func WithFilterParameters(keys ...string) Option {
	return func(i *Interceptor) {
		i.filter = append([]string(nil), keys...)
	}
}

// WithMailerJobClasses adds job classes treated like the built-in mailer jobs.
func WithMailerJobClasses(classes ...string) Option {
	return func(i *Interceptor) {
		i.mailerClasses = append(i.mailerClasses, classes...)
	}
}

// WithExecutionTimeout runs the job under a watchdog. When the job has not
// returned after timeout the invocation fails with resilience.ErrTimeout and
// is finalized; the job keeps running with a cancelled context.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(i *Interceptor) {
		i.timeout = timeout
	}
}

// WithLogger sets the logger used for instrumentation failures.
func WithLogger(log logger.Logger) Option {
	return func(i *Interceptor) {
		if log != nil {
			i.log = log
		}
	}
}

// New creates an Interceptor. Without options transactions are discarded,
// counters are dropped and arguments are recorded unfiltered.
func New(opts ...Option) *Interceptor {
	i := &Interceptor{
		reporter:      transaction.NopReporter{},
		recorder:      metrics.NopRecorder{},
		sanitizer:     sanitize.Default,
		mailerClasses: append([]string(nil), DefaultMailerJobClasses...),
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Middleware adapts the interceptor to the dispatcher middleware chain.
func (i *Interceptor) Middleware() jobs.Middleware {
	return i.Execute
}

// Execute runs next for rec inside a transaction.
//
// When ctx carries no active transaction, Execute creates one keyed by the
// record's correlation key and completes it after next returns; otherwise it
// annotates the active transaction and leaves completion to its owner. The
// error returned by next is recorded and returned unchanged. A panic in next
// is recorded, the invocation is finalized, and the panic is re-raised with
// its original value.
//
// Records are validated at the decode and dispatch boundary. An incomplete
// record reaching Execute directly is logged and instrumented with the fields
// it has; it never changes the job's outcome.
func (i *Interceptor) Execute(ctx context.Context, rec *jobs.Record, next jobs.Handler) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec == nil || next == nil {
		return fmt.Errorf("%w: job record and next handler are required", jobs.ErrInvalidArgument)
	}
	if err := rec.Validate(); err != nil {
		i.log.WithContext(ctx).Warn("instrumenting incomplete job record",
			"job_class", rec.JobClass,
			"error", err,
		)
	}

	slot, ok := transaction.FromContext(ctx)
	if !ok {
		slot = transaction.NewContext(i.reporter, i.log)
		ctx = transaction.With(ctx, slot)
	}

	tx := slot.Current()
	owner := tx.IsNull()
	if owner {
		tx = slot.Create(rec.CorrelationKey(), transaction.KindBackgroundJob, transaction.Request{})
	}
	ctx = logger.ContextWithFields(ctx,
		"transaction_id", tx.ID(),
		"correlation_key", tx.CorrelationKey(),
	)

	failed := false
	defer func() {
		r := recover()
		if r != nil {
			failed = true
			tx.SetError(&transaction.PanicError{Value: r, Stack: debug.Stack()})
		}
		i.finalize(ctx, slot, tx, rec, owner, failed)
		if r != nil {
			panic(r)
		}
	}()

	if err = i.run(ctx, rec, next); err != nil {
		failed = true
		tx.SetError(err)
	}
	return err
}

func (i *Interceptor) run(ctx context.Context, rec *jobs.Record, next jobs.Handler) error {
	if i.timeout <= 0 {
		return next(ctx, rec)
	}
	return resilience.WithTimeout(ctx, i.timeout, func(ctx context.Context) error {
		return next(ctx, rec)
	})
}

// finalize runs once per invocation. Each step is isolated so a failure in
// one cannot skip completion or counting.
func (i *Interceptor) finalize(ctx context.Context, slot *transaction.Context, tx transaction.Transaction, rec *jobs.Record, owner, failed bool) {
	log := i.log.WithContext(ctx)
	tags := TagsForJob(rec)

	i.guard(log, "annotate", func() {
		i.annotate(log, tx, rec, tags)
	})

	if owner {
		i.guard(log, "complete", func() {
			if err := slot.CompleteCurrent(ctx); err != nil {
				log.Error("failed to complete job transaction", "job_class", rec.JobClass, "error", err)
			}
		})
	}

	i.guard(log, "count", func() {
		if failed {
			i.recorder.IncrementCounter(ctx, CounterQueueJobCount, 1, tags.With(TagStatus, StatusFailed))
		}
		i.recorder.IncrementCounter(ctx, CounterQueueJobCount, 1, tags.With(TagStatus, StatusProcessed))
	})
}

func (i *Interceptor) annotate(log logger.Logger, tx transaction.Transaction, rec *jobs.Record, tags transaction.Tags) {
	tx.SetParams(i.sanitizer.Sanitize(rec.Arguments, i.filter))

	txTags := tags.With(TagActiveJobID, rec.JobID)
	if rec.ProviderJobID != nil {
		txTags[TagProviderJobID] = *rec.ProviderJobID
	}
	tx.SetTags(txTags)

	tx.SetActionIfNil(ActionName(rec, i.mailerClasses))

	if rec.EnqueuedAt != "" {
		queueStart, err := ParseEnqueuedAt(rec.EnqueuedAt)
		if err != nil {
			log.Warn("ignoring enqueued_at", "job_class", rec.JobClass, "error", err)
			return
		}
		tx.SetQueueStart(queueStart)
	}
}

func (i *Interceptor) guard(log logger.Logger, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job instrumentation step panicked",
				"step", step,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
