package metrics

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc/credentials"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// OTelRecorder records counters as OpenTelemetry Float64Counters created on
// first use. Tags become attributes.
type OTelRecorder struct {
	meter    metric.Meter
	prefix   string
	failures *failureLog

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// NewOTelRecorder creates an OTelRecorder on meter. An empty prefix uses DefaultPrefix.
func NewOTelRecorder(meter metric.Meter, prefix string, log logger.Logger) *OTelRecorder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &OTelRecorder{
		meter:    meter,
		prefix:   prefix,
		failures: newFailureLog(log),
		counters: make(map[string]metric.Float64Counter),
	}
}

// IncrementCounter implements Recorder.
func (r *OTelRecorder) IncrementCounter(ctx context.Context, name string, amount float64, tags map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failures.warn("otel counter increment panicked", "metric", name, "panic", fmt.Sprint(rec))
		}
	}()

	counter, err := r.counter(name)
	if err != nil {
		r.failures.warn("otel counter creation failed", "metric", name, "error", err)
		return
	}
	counter.Add(ctx, amount, metric.WithAttributes(Attributes(tags)...))
}

func (r *OTelRecorder) counter(name string) (metric.Float64Counter, error) {
	full := r.prefix + name

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[full]; ok {
		return c, nil
	}
	c, err := r.meter.Float64Counter(full, metric.WithDescription(fmt.Sprintf("Background job counter %s", name)))
	if err != nil {
		return nil, err
	}
	r.counters[full] = c
	return c, nil
}

// Attributes converts tags to OpenTelemetry attributes in key order.
// Values without a native attribute type are formatted as strings.
func Attributes(tags map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := tags[k].(type) {
		case nil:
			continue
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int32:
			attrs = append(attrs, attribute.Int64(k, int64(v)))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float32:
			attrs = append(attrs, attribute.Float64(k, float64(v)))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return attrs
}

// MeterProviderConfig configures the OTLP meter provider.
type MeterProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP gRPC collector endpoint (e.g., "localhost:4317").
	Endpoint       string
	ExportInterval time.Duration
	Insecure       bool
}

// NewMeterProvider creates a MeterProvider exporting to an OTLP gRPC
// collector with cumulative temporality. Callers own Shutdown.
func NewMeterProvider(ctx context.Context, cfg MeterProviderConfig) (*sdkmetric.MeterProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP metrics endpoint is required")
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	// Cumulative temporality keeps counters compatible with Prometheus-style backends.
	cumulative := func(sdkmetric.InstrumentKind) metricdata.Temporality {
		return metricdata.CumulativeTemporality
	}
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}
