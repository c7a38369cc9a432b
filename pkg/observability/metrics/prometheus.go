package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// PrometheusOptions configures a PrometheusRecorder.
type PrometheusOptions struct {
	// Prefix is prepended to every counter name. Defaults to DefaultPrefix.
	Prefix string
	// Labels is the fixed label schema. Defaults to DefaultLabels.
	Labels []string
	// Registerer receives lazily created counters. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Logger     logger.Logger
}

// PrometheusRecorder records counters as Prometheus CounterVecs. Each name is
// registered on first use with the fixed label schema; tags outside the schema
// are dropped.
//
// queue_job_count tags carry queue and priority only when the job has them.
// A CounterVec cannot omit a label, so a missing tag is exported as an empty
// label value (queue=""), which a present empty queue name also produces.
// OTelRecorder omits missing tags instead.
type PrometheusRecorder struct {
	prefix     string
	labels     []string
	known      map[string]struct{}
	registerer prometheus.Registerer
	failures   *failureLog

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
}

// NewPrometheusRecorder creates a PrometheusRecorder.
func NewPrometheusRecorder(opts PrometheusOptions) *PrometheusRecorder {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	known := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		known[l] = struct{}{}
	}
	return &PrometheusRecorder{
		prefix:     prefix,
		labels:     append([]string(nil), labels...),
		known:      known,
		registerer: registerer,
		failures:   newFailureLog(opts.Logger),
		counters:   make(map[string]*prometheus.CounterVec),
	}
}

// IncrementCounter implements Recorder.
func (r *PrometheusRecorder) IncrementCounter(_ context.Context, name string, amount float64, tags map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failures.warn("prometheus counter increment panicked", "metric", name, "panic", fmt.Sprint(rec))
		}
	}()

	counter, err := r.counter(name)
	if err != nil {
		r.failures.warn("prometheus counter registration failed", "metric", name, "error", err)
		return
	}

	values := make([]string, len(r.labels))
	for i, label := range r.labels {
		if v, ok := tags[label]; ok && v != nil {
			values[i] = fmt.Sprint(v)
		}
	}
	for key := range tags {
		if _, ok := r.known[key]; !ok {
			r.failures.debug("dropping tag outside label schema", "metric", name, "tag", key)
		}
	}

	counter.WithLabelValues(values...).Add(amount)
}

func (r *PrometheusRecorder) counter(name string) (*prometheus.CounterVec, error) {
	full := metricName(r.prefix, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[full]; ok {
		return c, nil
	}

	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: full,
			Help: fmt.Sprintf("Background job counter %s", name),
		},
		r.labels,
	)
	if err := r.registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("metric %s already registered with a different type", full)
		}
		c = existing
	}
	r.counters[full] = c
	return c, nil
}
