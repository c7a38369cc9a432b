package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagBindings maps command-line flag names to the config keys they override.
var FlagBindings = map[string]string{
	"log-level":       "observability.log_level",
	"log-format":      "observability.log_format",
	"management-port": "management.port",
}

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile         string
	envPrefix          string
	serviceNameDefault string
	flags              *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "APP")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithServiceNameDefault sets the default service.name used when no config/env override is provided.
func (l *ViperLoader) WithServiceNameDefault(serviceName string) *ViperLoader {
	if l == nil {
		return l
	}
	l.serviceNameDefault = strings.TrimSpace(serviceName)
	return l
}

// WithFlags binds the FlagBindings flags present in flags. A flag set on the
// command line overrides env, file and defaults.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	if l == nil {
		return l
	}
	l.flags = flags
	return l
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.LoadWithSettings()
	return cfg, err
}

// LoadWithSettings loads and validates configuration like Load and also
// returns the merged settings map, keyed the way the config file is.
func (l *ViperLoader) LoadWithSettings() (*Config, map[string]any, error) {
	v := viper.New()

	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified but couldn't be read
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	// Environment variables override file config through explicit bindings.
	v.SetEnvPrefix(l.envPrefix)

	// Map legacy env names to standard abbreviated keys when needed.
	l.bindLegacyEnvVars()

	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, v.AllSettings(), nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_insecure", l.prefixedEnv("TRACING_INSECURE"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))

	// Metrics
	v.BindEnv("metrics.backend", l.prefixedEnv("METRICS_BACKEND"))
	v.BindEnv("metrics.counter_prefix", l.prefixedEnv("METRICS_COUNTER_PREFIX"))
	v.BindEnv("metrics.labels", l.prefixedEnv("METRICS_LABELS"))
	v.BindEnv("metrics.otlp_endpoint", l.prefixedEnv("METRICS_OTLP_ENDPOINT"))
	v.BindEnv("metrics.otlp_insecure", l.prefixedEnv("METRICS_OTLP_INSECURE"))
	v.BindEnv("metrics.export_interval", l.prefixedEnv("METRICS_EXPORT_INTERVAL"))

	// Instrumentation
	v.BindEnv("instrumentation.reporter", l.prefixedEnv("INSTRUMENTATION_REPORTER"))
	v.BindEnv("instrumentation.filter_parameters", l.prefixedEnv("INSTRUMENTATION_FILTER_PARAMETERS"))
	v.BindEnv("instrumentation.filter_ignore_case", l.prefixedEnv("INSTRUMENTATION_FILTER_IGNORE_CASE"))
	v.BindEnv("instrumentation.mailer_job_classes", l.prefixedEnv("INSTRUMENTATION_MAILER_JOB_CLASSES"))
	v.BindEnv("instrumentation.execution_timeout", l.prefixedEnv("INSTRUMENTATION_EXECUTION_TIMEOUT"))
	v.BindEnv("instrumentation.breaker_max_failures", l.prefixedEnv("INSTRUMENTATION_BREAKER_MAX_FAILURES"))
	v.BindEnv("instrumentation.breaker_cooldown", l.prefixedEnv("INSTRUMENTATION_BREAKER_COOLDOWN"))
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range FlagBindings {
		flag := l.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// bindLegacyEnvVars maps legacy env vars to current abbreviated names when abbreviated vars are absent.
func (l *ViperLoader) bindLegacyEnvVars() {
	aliases := []struct {
		abbrevSuffix string
		legacySuffix string
	}{
		{"MGMT_ENABLED", "MANAGEMENT_ENABLED"},
		{"MGMT_PORT", "MANAGEMENT_PORT"},
		{"MGMT_READ_TIMEOUT", "MANAGEMENT_READ_TIMEOUT"},
		{"MGMT_WRITE_TIMEOUT", "MANAGEMENT_WRITE_TIMEOUT"},
		{"TRACING_ENDPOINT", "OTEL_ENDPOINT"},
	}

	for _, alias := range aliases {
		abbrevEnv := l.prefixedEnv(alias.abbrevSuffix)
		if _, hasAbbrev := os.LookupEnv(abbrevEnv); hasAbbrev {
			continue
		}
		if legacyValue, hasLegacy := os.LookupEnv(l.prefixedEnv(alias.legacySuffix)); hasLegacy {
			_ = os.Setenv(abbrevEnv, legacyValue)
		}
	}
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "APP"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

func (l *ViperLoader) defaultServiceName(fallback string) string {
	if l != nil {
		if configured := strings.TrimSpace(l.serviceNameDefault); configured != "" {
			return configured
		}
	}
	return strings.TrimSpace(fallback)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	// Service defaults
	v.SetDefault("service.name", l.defaultServiceName(cfg.Service.Name))
	v.SetDefault("service.environment", cfg.Service.Environment)

	// Management defaults
	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	// Observability defaults
	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)

	// Metrics defaults
	v.SetDefault("metrics.backend", cfg.Metrics.Backend)
	v.SetDefault("metrics.counter_prefix", cfg.Metrics.CounterPrefix)
	v.SetDefault("metrics.labels", cfg.Metrics.Labels)
	v.SetDefault("metrics.otlp_endpoint", cfg.Metrics.OTLPEndpoint)
	v.SetDefault("metrics.otlp_insecure", cfg.Metrics.OTLPInsecure)
	v.SetDefault("metrics.export_interval", cfg.Metrics.ExportInterval)

	// Instrumentation defaults
	v.SetDefault("instrumentation.reporter", cfg.Instrumentation.Reporter)
	v.SetDefault("instrumentation.filter_parameters", cfg.Instrumentation.FilterParameters)
	v.SetDefault("instrumentation.filter_ignore_case", cfg.Instrumentation.FilterIgnoreCase)
	v.SetDefault("instrumentation.mailer_job_classes", cfg.Instrumentation.MailerJobClasses)
	v.SetDefault("instrumentation.execution_timeout", cfg.Instrumentation.ExecutionTimeout)
	v.SetDefault("instrumentation.breaker_max_failures", cfg.Instrumentation.BreakerMaxFailures)
	v.SetDefault("instrumentation.breaker_cooldown", cfg.Instrumentation.BreakerCooldown)
}

// Validate normalizes list values and validates the configuration, returning
// every problem found.
func (l *ViperLoader) Validate(cfg *Config) error {
	cfg.Metrics.Labels = normalizeStringSlice(splitListValues(cfg.Metrics.Labels))
	cfg.Instrumentation.FilterParameters = normalizeStringSlice(splitListValues(cfg.Instrumentation.FilterParameters))
	cfg.Instrumentation.MailerJobClasses = normalizeStringSlice(splitListValues(cfg.Instrumentation.MailerJobClasses))
	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	cfg.Observability.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Observability.LogFormat))
	cfg.Metrics.Backend = strings.ToLower(strings.TrimSpace(cfg.Metrics.Backend))
	cfg.Instrumentation.Reporter = strings.ToLower(strings.TrimSpace(cfg.Instrumentation.Reporter))

	return cfg.Validate()
}

// splitListValues expands comma-separated entries, which is how list values
// arrive from environment variables.
func splitListValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, strings.Split(value, ",")...)
	}
	return out
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// normalizeStringSlice removes empty strings and trims whitespace
func normalizeStringSlice(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
