package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nimburion/jobsignal/pkg/config"
	"github.com/nimburion/jobsignal/pkg/health"
	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/resilience"
	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
	"github.com/nimburion/jobsignal/pkg/testutil"
)

func registerTestHandlers(t *testing.T, d *jobs.Dispatcher) {
	t.Helper()
	require.NoError(t, d.Register("ReportJob", func(context.Context, *jobs.Record) error { return nil }))
	require.NoError(t, d.Register("FailingJob", func(context.Context, *jobs.Record) error { return errors.New("boom") }))
}

func TestBuildRuntime_PrometheusCounters(t *testing.T) {
	cfg := config.DefaultConfig()
	log := testutil.NewMockLogger()

	rt, err := BuildRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	require.NotNil(t, rt.Metrics)
	registerTestHandlers(t, rt.Dispatcher)

	ctx := context.Background()
	require.NoError(t, rt.Dispatcher.Dispatch(ctx, &jobs.Record{JobClass: "ReportJob", JobID: "j1", QueueName: jobs.StringPtr("default")}))
	require.Error(t, rt.Dispatcher.Dispatch(ctx, &jobs.Record{JobClass: "FailingJob", JobID: "j2", QueueName: jobs.StringPtr("default")}))

	count, err := promtest.GatherAndCount(rt.Metrics.Gatherer(), "active_job_queue_job_count")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one processed and one failed series")

	assert.Len(t, log.Find("info", "transaction completed"), 1)
	assert.Len(t, log.Find("warn", "transaction completed with error"), 1)
}

func TestBuildRuntime_OTelReporterExportsSpans(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Observability.TracingEnabled = true
	cfg.Instrumentation.Reporter = config.ReporterOTel
	cfg.Metrics.Backend = config.MetricsBackendNone
	exporter := tracetest.NewInMemoryExporter()

	rt, err := BuildRuntime(context.Background(), cfg, nil, WithTraceExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	assert.Nil(t, rt.Metrics)
	registerTestHandlers(t, rt.Dispatcher)

	require.Error(t, rt.Dispatcher.Dispatch(context.Background(), &jobs.Record{JobClass: "FailingJob", JobID: "j1"}))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "FailingJob#perform", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestBuildRuntime_LogAndOTelReporters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Observability.TracingEnabled = true
	cfg.Instrumentation.Reporter = "log,otel"
	cfg.Metrics.Backend = config.MetricsBackendNone
	exporter := tracetest.NewInMemoryExporter()
	log := testutil.NewMockLogger()

	rt, err := BuildRuntime(context.Background(), cfg, log, WithTraceExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	registerTestHandlers(t, rt.Dispatcher)

	require.NoError(t, rt.Dispatcher.Dispatch(context.Background(), &jobs.Record{JobClass: "ReportJob", JobID: "j1"}))

	assert.Len(t, exporter.GetSpans(), 1)
	assert.Len(t, log.Find("info", "transaction completed"), 1)
}

func TestBuildRuntime_OTelReporterRequiresTracing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Instrumentation.Reporter = config.ReporterOTel

	_, err := BuildRuntime(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires tracing")
}

func TestBuildRuntime_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Backend = "statsd"

	_, err := BuildRuntime(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBuildRuntime_HealthTracksReporterBreaker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Backend = config.MetricsBackendNone
	cfg.Instrumentation.BreakerMaxFailures = 1
	cfg.Instrumentation.BreakerCooldown = time.Hour

	rt, err := BuildRuntime(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	result := rt.Health.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, result.Status)
	assert.Equal(t, []string{"alive", "transaction_reporter"}, rt.Health.List())

	_ = rt.Breaker.Execute(func() error { return errors.New("exporter down") })
	require.Equal(t, resilience.StateOpen, rt.Breaker.State())

	result = rt.Health.Check(context.Background())
	assert.Equal(t, health.StatusDegraded, result.Status)
	assert.True(t, result.IsHealthy())
}

func TestBuildRuntime_FilterParametersFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Backend = config.MetricsBackendNone
	cfg.Instrumentation.Reporter = config.ReporterNone
	cfg.Instrumentation.FilterParameters = []string{"card"}
	cfg.Instrumentation.FilterIgnoreCase = true

	rt, err := BuildRuntime(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	reporter := &testutil.CollectingReporter{}
	require.NoError(t, rt.Dispatcher.Register("ChargeJob", func(context.Context, *jobs.Record) error { return nil }))

	// A slot carried on the context keeps its own reporter.
	slot := transaction.NewContext(reporter, nil)
	ctx := transaction.With(context.Background(), slot)
	tx := slot.Create("outer", transaction.KindBackgroundJob, transaction.Request{})
	require.NoError(t, rt.Dispatcher.Dispatch(ctx, &jobs.Record{
		JobClass:  "ChargeJob",
		JobID:     "j1",
		Arguments: []any{map[string]any{"CARD": "4111", "amount": 10}},
	}))
	require.NoError(t, slot.CompleteCurrent(ctx))

	rec := reporter.Last()
	require.NotNil(t, rec)
	assert.Equal(t, tx.ID(), rec.ID())
	assert.Equal(t, []any{map[string]any{"CARD": "[FILTERED]", "amount": 10}}, rec.Params())
}
