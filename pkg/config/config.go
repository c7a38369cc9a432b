// Package config loads jobsignal configuration from defaults, an optional
// file and APP_-prefixed environment variables.
package config

import (
	"strings"
	"time"
)

// Metrics backend constants
const (
	// MetricsBackendPrometheus exposes counters on the management /metrics endpoint
	MetricsBackendPrometheus = "prometheus"
	// MetricsBackendOTel pushes counters to an OTLP collector
	MetricsBackendOTel = "otel"
	// MetricsBackendNone drops counters
	MetricsBackendNone = "none"
)

// Transaction reporter constants
const (
	// ReporterLog writes one log entry per completed transaction
	ReporterLog = "log"
	// ReporterOTel exports each completed transaction as a span
	ReporterOTel = "otel"
	// ReporterNone discards completed transactions
	ReporterNone = "none"
)

// Config is the root configuration structure
type Config struct {
	Service         ServiceConfig         `mapstructure:"service" yaml:"service"`
	Management      ManagementConfig      `mapstructure:"management" yaml:"management"`
	Observability   ObservabilityConfig   `mapstructure:"observability" yaml:"observability"`
	Metrics         MetricsConfig         `mapstructure:"metrics" yaml:"metrics"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// ManagementConfig configures the management server (/metrics, /health)
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ObservabilityConfig configures logging and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingInsecure   bool    `mapstructure:"tracing_insecure" yaml:"tracing_insecure"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// MetricsConfig configures the job counters
type MetricsConfig struct {
	// Backend is one backend or a comma list, e.g. "prometheus,otel".
	Backend        string        `mapstructure:"backend" yaml:"backend"`
	CounterPrefix  string        `mapstructure:"counter_prefix" yaml:"counter_prefix"`
	Labels         []string      `mapstructure:"labels" yaml:"labels"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure   bool          `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	ExportInterval time.Duration `mapstructure:"export_interval" yaml:"export_interval"`
}

// InstrumentationConfig configures the job execution interceptor
type InstrumentationConfig struct {
	// Reporter is one reporter or a comma list, e.g. "log,otel".
	Reporter           string        `mapstructure:"reporter" yaml:"reporter"`
	FilterParameters   []string      `mapstructure:"filter_parameters" yaml:"filter_parameters"`
	// FilterIgnoreCase matches filter_parameters case-insensitively.
	FilterIgnoreCase   bool          `mapstructure:"filter_ignore_case" yaml:"filter_ignore_case"`
	MailerJobClasses   []string      `mapstructure:"mailer_job_classes" yaml:"mailer_job_classes"`
	ExecutionTimeout   time.Duration `mapstructure:"execution_timeout" yaml:"execution_timeout"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures" yaml:"breaker_max_failures"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// Backends returns the selected metrics backends, lowercased and deduplicated.
func (c MetricsConfig) Backends() []string {
	return splitSelection(c.Backend)
}

// Reporters returns the selected transaction reporters, lowercased and deduplicated.
func (c InstrumentationConfig) Reporters() []string {
	return splitSelection(c.Reporter)
}

func splitSelection(value string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "jobsignal",
			Environment: "production",
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEnabled:    false,
			TracingSampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Backend:        MetricsBackendPrometheus,
			CounterPrefix:  "active_job_",
			Labels:         []string{"queue", "priority", "status"},
			ExportInterval: 30 * time.Second,
		},
		Instrumentation: InstrumentationConfig{
			Reporter:           ReporterLog,
			FilterParameters:   []string{"password", "password_confirmation", "token", "secret"},
			BreakerMaxFailures: 5,
			BreakerCooldown:    30 * time.Second,
		},
	}
}
