package config

import (
	"errors"
	"fmt"
	"regexp"
)

var labelNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks if the configuration is valid and joins every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: %v)", c.Observability.LogLevel, validLogLevels))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: %v)", c.Observability.LogFormat, validLogFormats))
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", c.Observability.TracingSampleRate))
	}

	if c.Management.Enabled && (c.Management.Port <= 0 || c.Management.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid management.port: %d (must be between 1 and 65535)", c.Management.Port))
	}

	validBackends := []string{MetricsBackendPrometheus, MetricsBackendOTel, MetricsBackendNone}
	backends := c.Metrics.Backends()
	errs = append(errs, validateSelection("metrics.backend", backends, validBackends, MetricsBackendNone)...)
	if contains(backends, MetricsBackendOTel) {
		if c.Metrics.OTLPEndpoint == "" {
			errs = append(errs, errors.New("metrics.otlp_endpoint is required when metrics.backend includes otel"))
		}
		if c.Metrics.ExportInterval <= 0 {
			errs = append(errs, errors.New("metrics.export_interval must be greater than 0 when metrics.backend includes otel"))
		}
	}
	if contains(backends, MetricsBackendPrometheus) {
		if !c.Management.Enabled {
			errs = append(errs, errors.New("metrics.backend prometheus requires management.enabled to serve /metrics"))
		}
		if c.Metrics.CounterPrefix != "" && !labelNamePattern.MatchString(c.Metrics.CounterPrefix) {
			errs = append(errs, fmt.Errorf("invalid metrics.counter_prefix: %q", c.Metrics.CounterPrefix))
		}
		if !contains(c.Metrics.Labels, "status") {
			errs = append(errs, errors.New("metrics.labels must include status"))
		}
		for _, label := range c.Metrics.Labels {
			if !labelNamePattern.MatchString(label) {
				errs = append(errs, fmt.Errorf("invalid metrics.labels entry: %q", label))
			}
		}
	}

	validReporters := []string{ReporterLog, ReporterOTel, ReporterNone}
	reporters := c.Instrumentation.Reporters()
	errs = append(errs, validateSelection("instrumentation.reporter", reporters, validReporters, ReporterNone)...)
	if contains(reporters, ReporterOTel) && !c.Observability.TracingEnabled {
		errs = append(errs, errors.New("instrumentation.reporter otel requires observability.tracing_enabled"))
	}
	if c.Instrumentation.ExecutionTimeout < 0 {
		errs = append(errs, errors.New("instrumentation.execution_timeout cannot be negative"))
	}
	if c.Instrumentation.BreakerMaxFailures <= 0 {
		errs = append(errs, errors.New("instrumentation.breaker_max_failures must be greater than 0"))
	}
	if c.Instrumentation.BreakerCooldown <= 0 {
		errs = append(errs, errors.New("instrumentation.breaker_cooldown must be greater than 0"))
	}

	return errors.Join(errs...)
}

// validateSelection checks a comma-list setting: at least one known value,
// and the "none" value only on its own.
func validateSelection(key string, values, valid []string, none string) []error {
	if len(values) == 0 {
		return []error{fmt.Errorf("%s is required (must be one of: %v)", key, valid)}
	}
	var errs []error
	for _, value := range values {
		if !contains(valid, value) {
			errs = append(errs, fmt.Errorf("invalid %s: %s (must be one of: %v)", key, value, valid))
		}
	}
	if len(values) > 1 && contains(values, none) {
		errs = append(errs, fmt.Errorf("invalid %s: %s cannot be combined with other values", key, none))
	}
	return errs
}
