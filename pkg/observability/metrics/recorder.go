package metrics

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// DefaultPrefix scopes counters recorded for background jobs. Existing
// dashboards query metrics under this name.
const DefaultPrefix = "active_job_"

// DefaultLabels is the label schema used by PrometheusRecorder.
var DefaultLabels = []string{"queue", "priority", "status"}

// Recorder increments named counters. Implementations are fire-and-forget:
// they never return errors and never panic into the caller.
type Recorder interface {
	IncrementCounter(ctx context.Context, name string, amount float64, tags map[string]any)
}

// NopRecorder discards every increment.
type NopRecorder struct{}

// IncrementCounter implements Recorder.
func (NopRecorder) IncrementCounter(context.Context, string, float64, map[string]any) {}

// MultiRecorder forwards each increment to every recorder in order.
type MultiRecorder []Recorder

// IncrementCounter implements Recorder. Each recorder receives its own copy of tags.
func (m MultiRecorder) IncrementCounter(ctx context.Context, name string, amount float64, tags map[string]any) {
	for _, r := range m {
		if r == nil {
			continue
		}
		r.IncrementCounter(ctx, name, amount, copyTags(tags))
	}
}

func copyTags(tags map[string]any) map[string]any {
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// failureLog throttles log output for telemetry failures so a broken backend
// cannot flood the job logs.
type failureLog struct {
	log      logger.Logger
	warnings rate.Sometimes
	dropped  rate.Sometimes
}

func newFailureLog(log logger.Logger) *failureLog {
	if log == nil {
		log = logger.Nop()
	}
	return &failureLog{
		log:      log,
		warnings: rate.Sometimes{First: 1, Interval: time.Minute},
		dropped:  rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

func (f *failureLog) warn(msg string, args ...any) {
	f.warnings.Do(func() { f.log.Warn(msg, args...) })
}

func (f *failureLog) debug(msg string, args ...any) {
	f.dropped.Do(func() { f.log.Debug(msg, args...) })
}

// metricName joins prefix and name and replaces characters Prometheus does
// not accept with underscores.
func metricName(prefix, name string) string {
	full := prefix + name
	var b strings.Builder
	b.Grow(len(full))
	for i, r := range full {
		switch {
		case r == '_' || r == ':' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
