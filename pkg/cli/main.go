// Package cli provides the cobra host for running instrumented jobs.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/jobsignal/pkg/config"
	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/observability/logger"
	"github.com/nimburion/jobsignal/pkg/server"
	"github.com/nimburion/jobsignal/pkg/version"
)

// ServiceCommandOptions defines callbacks for service-specific logic.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Required for "run": registers job handlers on the instrumented dispatcher.
	ConfigureHandlers func(cfg *config.Config, log logger.Logger, dispatcher *jobs.Dispatcher) error

	// Optional: custom config validation, run after the built-in validation.
	ValidateConfig func(cfg *config.Config) error

	// Optional: additional custom commands
	CustomCommands []*cobra.Command
}

// NewServiceCommand creates the root command with version, config and run subcommands.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	opts.EnvPrefix = resolveEnvPrefix(opts.EnvPrefix)

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var serviceNameOverride string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&serviceNameOverride, "service-name", "", "service name override")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format override (json, text)")
	rootCmd.PersistentFlags().Int("management-port", 0, "management server port override")

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, opts.ValidateConfig, flags, opts.Name, serviceNameOverride)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	})

	rootCmd.AddCommand(newConfigCommand(opts, &cfgPath, &serviceNameOverride))

	if opts.ConfigureHandlers != nil {
		rootCmd.AddCommand(newRunCommand(opts, loadConfig))
	}

	for _, customCmd := range opts.CustomCommands {
		if customCmd != nil {
			rootCmd.AddCommand(customCmd)
		}
	}

	return rootCmd
}

func newConfigCommand(opts ServiceCommandOptions, cfgPath, serviceNameOverride *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewViperLoader(*cfgPath, opts.EnvPrefix).
				WithServiceNameDefault(opts.Name).
				WithFlags(cmd.Flags()).
				Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyResolvedServiceName(cfg, opts.Name, *serviceNameOverride)
			if opts.ValidateConfig != nil {
				if err := opts.ValidateConfig(cfg); err != nil {
					return fmt.Errorf("custom validation failed: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := config.NewViperLoader(*cfgPath, opts.EnvPrefix).
				WithServiceNameDefault(opts.Name).
				WithFlags(cmd.Flags()).
				LoadWithSettings()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyResolvedServiceName(cfg, opts.Name, *serviceNameOverride)
			settings = setServiceNameSetting(settings, cfg.Service.Name)

			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	})

	return configCmd
}

func newRunCommand(opts ServiceCommandOptions, loadConfig func(*pflag.FlagSet) (*config.Config, logger.Logger, error)) *cobra.Command {
	var inputPath string
	var failFast bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run JSON-lines job records through the instrumented dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if zl, ok := log.(interface{ Sync() error }); ok {
				defer func() { _ = zl.Sync() }()
			}

			input := cmd.InOrStdin()
			if inputPath != "" && inputPath != "-" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				input = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runService(ctx, cfg, log, opts.ConfigureHandlers, input, failFast)
		},
	}
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "job records file, one JSON object per line (default stdin)")
	runCmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failed job and exit non-zero")
	return runCmd
}

func runService(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
	configure func(*config.Config, logger.Logger, *jobs.Dispatcher) error,
	input io.Reader,
	failFast bool,
) (err error) {
	log.Info("starting job runner", version.Current(cfg.Service.Name).Fields()...)

	rt, err := BuildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := rt.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("telemetry shutdown failed", "error", shutdownErr)
		}
	}()

	if err := configure(cfg, log, rt.Dispatcher); err != nil {
		return fmt.Errorf("configure handlers: %w", err)
	}

	if cfg.Management.Enabled {
		mgmt := server.NewManagementServer(cfg.Management, log, rt.Health, rt.Metrics)
		mgmtCtx, stopMgmt := context.WithCancel(ctx)
		mgmtDone := make(chan error, 1)
		go func() { mgmtDone <- mgmt.Start(mgmtCtx) }()
		defer func() {
			stopMgmt()
			if mgmtErr := <-mgmtDone; mgmtErr != nil {
				log.Error("management server stopped with error", "error", mgmtErr)
			}
		}()
	}

	stats, err := RunJobs(ctx, rt.Dispatcher, input, log, failFast)
	log.Info("job runner finished",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// LoadConfigAndLogger loads and validates configuration, then builds the zap logger it describes.
func LoadConfigAndLogger(
	cfgPath,
	envPrefix string,
	customValidator func(*config.Config) error,
	flags *pflag.FlagSet,
	defaultServiceName string,
	serviceNameOverride string,
) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, resolveEnvPrefix(envPrefix)).
		WithServiceNameDefault(defaultServiceName).
		WithFlags(flags).
		Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyResolvedServiceName(cfg, defaultServiceName, serviceNameOverride)

	if customValidator != nil {
		if err := customValidator(cfg); err != nil {
			return nil, nil, fmt.Errorf("custom validation failed: %w", err)
		}
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

func formatSettings(settings map[string]interface{}) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(stringifyDurations(settings))
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// stringifyDurations renders time.Duration values as "30s" instead of nanoseconds.
func stringifyDurations(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = stringifyDurations(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = stringifyDurations(item)
		}
		return out
	default:
		return value
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}

	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}

	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", cfg))
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return "APP"
	}
	return strings.ToUpper(trimmed)
}

func applyResolvedServiceName(cfg *config.Config, defaultServiceName, serviceNameOverride string) {
	if cfg == nil {
		return
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, defaultServiceName, serviceNameOverride)
}

func resolveServiceNameValue(currentConfigName, defaultServiceName, serviceNameOverride string) string {
	if override := strings.TrimSpace(serviceNameOverride); override != "" {
		return override
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return "app"
}

func setServiceNameSetting(settings map[string]interface{}, serviceName string) map[string]interface{} {
	if settings == nil {
		settings = map[string]interface{}{}
	}
	service, ok := settings["service"].(map[string]interface{})
	if !ok || service == nil {
		service = map[string]interface{}{}
	}
	service["name"] = serviceName
	settings["service"] = service
	return settings
}
