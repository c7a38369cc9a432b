package cli

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nimburion/jobsignal/pkg/config"
	"github.com/nimburion/jobsignal/pkg/health"
	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/jobs/instrument"
	"github.com/nimburion/jobsignal/pkg/observability/logger"
	"github.com/nimburion/jobsignal/pkg/observability/metrics"
	"github.com/nimburion/jobsignal/pkg/observability/tracing"
	"github.com/nimburion/jobsignal/pkg/resilience"
	"github.com/nimburion/jobsignal/pkg/sanitize"
	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
	"github.com/nimburion/jobsignal/pkg/version"
)

// Runtime is the assembled instrumentation stack for one process.
type Runtime struct {
	Dispatcher  *jobs.Dispatcher
	Interceptor *instrument.Interceptor
	Health      *health.Registry
	// Metrics is set only for the prometheus backend.
	Metrics *metrics.Registry
	Breaker *resilience.CircuitBreaker

	shutdown []func(context.Context) error
}

// Shutdown flushes and stops the tracer and meter providers, in reverse
// construction order.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(r.shutdown) - 1; i >= 0; i-- {
		if err := r.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.shutdown = nil
	return errors.Join(errs...)
}

// RuntimeOption customizes BuildRuntime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	traceExporter sdktrace.SpanExporter
}

// WithTraceExporter exports transaction spans to exporter instead of the
// configured OTLP endpoint. The tracer provider is not installed globally.
func WithTraceExporter(exporter sdktrace.SpanExporter) RuntimeOption {
	return func(o *runtimeOptions) {
		o.traceExporter = exporter
	}
}

// BuildRuntime wires reporter, recorder, interceptor, dispatcher and health
// checks from cfg. Callers own Runtime.Shutdown.
func BuildRuntime(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	var options runtimeOptions
	for _, opt := range opts {
		opt(&options)
	}

	rt := &Runtime{
		Health:  health.NewRegistry(),
		Breaker: resilience.NewCircuitBreaker(cfg.Instrumentation.BreakerMaxFailures, cfg.Instrumentation.BreakerCooldown),
	}
	info := version.Current(cfg.Service.Name)

	var tracingOpts []tracing.Option
	if options.traceExporter != nil {
		tracingOpts = append(tracingOpts, tracing.WithExporter(options.traceExporter), tracing.WithoutGlobal())
	}
	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		Insecure:       cfg.Observability.TracingInsecure,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	}, tracingOpts...)
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}
	rt.shutdown = append(rt.shutdown, tp.Shutdown)

	reporter, err := buildReporter(cfg, log, tp)
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}

	recorder, err := rt.buildRecorder(ctx, cfg, log, info)
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}

	rt.Interceptor = instrument.New(
		instrument.WithReporter(transaction.NewGuardedReporter(reporter, rt.Breaker)),
		instrument.WithRecorder(recorder),
		instrument.WithSanitizer(sanitize.Filter{CaseInsensitive: cfg.Instrumentation.FilterIgnoreCase}),
		instrument.WithFilterParameters(cfg.Instrumentation.FilterParameters...),
		instrument.WithMailerJobClasses(cfg.Instrumentation.MailerJobClasses...),
		instrument.WithExecutionTimeout(cfg.Instrumentation.ExecutionTimeout),
		instrument.WithLogger(log),
	)

	rt.Dispatcher = jobs.NewDispatcher(log)
	rt.Dispatcher.Use(rt.Interceptor.Middleware())

	rt.Health.Register(health.NewPingChecker("alive"))
	rt.Health.Register(health.NewTelemetryChecker("transaction_reporter", rt.Breaker))

	log.Info("instrumentation runtime ready",
		"reporter", cfg.Instrumentation.Reporter,
		"metrics_backend", cfg.Metrics.Backend,
		"tracing_enabled", tp.Enabled(),
		"execution_timeout", cfg.Instrumentation.ExecutionTimeout.String(),
	)
	return rt, nil
}

func buildReporter(cfg *config.Config, log logger.Logger, tp *tracing.TracerProvider) (transaction.Reporter, error) {
	var reporters transaction.MultiReporter
	for _, name := range cfg.Instrumentation.Reporters() {
		switch name {
		case config.ReporterLog:
			reporters = append(reporters, transaction.NewLogReporter(log))
		case config.ReporterOTel:
			if !tp.Enabled() {
				return nil, errors.New("otel reporter requires tracing to be enabled")
			}
			reporters = append(reporters, tracing.NewTransactionReporter(tp.Provider()))
		case config.ReporterNone:
		default:
			return nil, fmt.Errorf("unknown transaction reporter %q", name)
		}
	}
	switch len(reporters) {
	case 0:
		return transaction.NopReporter{}, nil
	case 1:
		return reporters[0], nil
	default:
		return reporters, nil
	}
}

func (rt *Runtime) buildRecorder(ctx context.Context, cfg *config.Config, log logger.Logger, info version.Info) (metrics.Recorder, error) {
	var recorders metrics.MultiRecorder
	for _, backend := range cfg.Metrics.Backends() {
		switch backend {
		case config.MetricsBackendPrometheus:
			rt.Metrics = metrics.NewRegistry()
			recorders = append(recorders, metrics.NewPrometheusRecorder(metrics.PrometheusOptions{
				Prefix:     cfg.Metrics.CounterPrefix,
				Labels:     cfg.Metrics.Labels,
				Registerer: rt.Metrics.Registerer(),
				Logger:     log,
			}))
		case config.MetricsBackendOTel:
			mp, err := metrics.NewMeterProvider(ctx, metrics.MeterProviderConfig{
				ServiceName:    cfg.Service.Name,
				ServiceVersion: info.Version,
				Environment:    cfg.Service.Environment,
				Endpoint:       cfg.Metrics.OTLPEndpoint,
				ExportInterval: cfg.Metrics.ExportInterval,
				Insecure:       cfg.Metrics.OTLPInsecure,
			})
			if err != nil {
				return nil, fmt.Errorf("create meter provider: %w", err)
			}
			rt.shutdown = append(rt.shutdown, mp.Shutdown)
			recorders = append(recorders, metrics.NewOTelRecorder(mp.Meter(tracing.ScopeName), cfg.Metrics.CounterPrefix, log))
		case config.MetricsBackendNone:
		default:
			return nil, fmt.Errorf("unknown metrics backend %q", backend)
		}
	}
	switch len(recorders) {
	case 0:
		return metrics.NopRecorder{}, nil
	case 1:
		return recorders[0], nil
	default:
		return recorders, nil
	}
}
