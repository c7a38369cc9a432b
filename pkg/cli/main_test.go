package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimburion/jobsignal/pkg/config"
	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/observability/logger"
	"github.com/nimburion/jobsignal/pkg/testutil"
)

func TestResolveServiceNameValue(t *testing.T) {
	tests := []struct {
		name              string
		currentConfigName string
		defaultService    string
		override          string
		want              string
	}{
		{"override wins", "from-config", "from-cli", "from-flag", "from-flag"},
		{"configured value wins over default", "from-config", "from-cli", "", "from-config"},
		{"default used when config missing", "", "from-cli", "", "from-cli"},
		{"app fallback", "", "", "", "app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveServiceNameValue(tt.currentConfigName, tt.defaultService, tt.override)
			if got != tt.want {
				t.Fatalf("resolveServiceNameValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func executeCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewServiceCommand_Subcommands(t *testing.T) {
	cmd := NewServiceCommand(ServiceCommandOptions{Name: "testsvc"})

	for _, path := range [][]string{{"version"}, {"config", "show"}, {"config", "validate"}} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], found.Name())
	}

	found, _, _ := cmd.Find([]string{"run"})
	assert.NotEqual(t, "run", found.Name(), "run requires ConfigureHandlers")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, NewServiceCommand(ServiceCommandOptions{Name: "testsvc"}), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Service:    testsvc")
	assert.Contains(t, out, "Go:")
}

func TestConfigShow_RendersDurations(t *testing.T) {
	t.Setenv("APP_INSTRUMENTATION_EXECUTION_TIMEOUT", "90s")

	out, err := executeCommand(t, NewServiceCommand(ServiceCommandOptions{Name: "testsvc"}), "", "config", "show", "--service-name", "billing")
	require.NoError(t, err)
	assert.Contains(t, out, "execution_timeout: 90s")
	assert.Contains(t, out, "breaker_cooldown: 30s")
	assert.Contains(t, out, "name: billing")
}

func TestConfigValidate(t *testing.T) {
	out, err := executeCommand(t, NewServiceCommand(ServiceCommandOptions{Name: "testsvc"}), "", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	t.Setenv("APP_METRICS_BACKEND", "statsd")
	_, err = executeCommand(t, NewServiceCommand(ServiceCommandOptions{Name: "testsvc"}), "", "config", "validate")
	require.Error(t, err)
}

func TestConfigValidate_CustomValidator(t *testing.T) {
	cmd := NewServiceCommand(ServiceCommandOptions{
		Name: "testsvc",
		ValidateConfig: func(cfg *config.Config) error {
			if cfg.Service.Environment == "production" {
				return errors.New("production is not allowed here")
			}
			return nil
		},
	})
	_, err := executeCommand(t, cmd, "", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom validation failed")
}

// withoutManagement keeps run tests off the network.
func withoutManagement(t *testing.T) {
	t.Setenv("APP_MGMT_ENABLED", "false")
	t.Setenv("APP_METRICS_BACKEND", "none")
	t.Setenv("APP_LOG_LEVEL", "error")
}

func TestRunCommand_DispatchesInputFile(t *testing.T) {
	withoutManagement(t)

	path := filepath.Join(t.TempDir(), "jobs.jsonl")
	input := `{"job_class":"ReportJob","job_id":"a1","queue_name":"default","arguments":[1]}
{"job_class":"ReportJob","job_id":"a2","arguments":[]}
`
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))

	var handled []string
	cmd := NewServiceCommand(ServiceCommandOptions{
		Name: "testsvc",
		ConfigureHandlers: func(_ *config.Config, _ logger.Logger, d *jobs.Dispatcher) error {
			return d.Register("ReportJob", func(_ context.Context, rec *jobs.Record) error {
				handled = append(handled, rec.JobID)
				return nil
			})
		},
	})

	_, err := executeCommand(t, cmd, "", "run", "--input", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, handled)
}

func TestRunCommand_FailFast(t *testing.T) {
	withoutManagement(t)

	cmd := NewServiceCommand(ServiceCommandOptions{
		Name: "testsvc",
		ConfigureHandlers: func(_ *config.Config, _ logger.Logger, d *jobs.Dispatcher) error {
			return d.Register("FailingJob", func(context.Context, *jobs.Record) error { return errors.New("boom") })
		},
	})

	stdin := `{"job_class":"FailingJob","job_id":"f1"}` + "\n"
	_, err := executeCommand(t, cmd, stdin, "run", "--fail-fast")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobFailed)
}

func TestRunCommand_ConfigureError(t *testing.T) {
	withoutManagement(t)

	cmd := NewServiceCommand(ServiceCommandOptions{
		Name: "testsvc",
		ConfigureHandlers: func(*config.Config, logger.Logger, *jobs.Dispatcher) error {
			return errors.New("no handlers")
		},
	})
	_, err := executeCommand(t, cmd, "", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure handlers")
}

func TestRunJobs(t *testing.T) {
	d := jobs.NewDispatcher(nil)
	require.NoError(t, d.Register("OkJob", func(context.Context, *jobs.Record) error { return nil }))
	require.NoError(t, d.Register("BadJob", func(context.Context, *jobs.Record) error { return errors.New("bad") }))
	log := testutil.NewMockLogger()

	input := strings.Join([]string{
		`{"job_class":"OkJob","job_id":"1"}`,
		``,
		`not json`,
		`{"job_class":"","job_id":"2"}`,
		`{"job_class":"BadJob","job_id":"3"}`,
		`{"job_class":"OkJob","job_id":"4"}`,
	}, "\n")

	stats, err := RunJobs(context.Background(), d, strings.NewReader(input), log, false)
	require.NoError(t, err)
	assert.Equal(t, RunStats{Processed: 3, Failed: 1, Skipped: 2}, stats)
	assert.Len(t, log.Find("warn", "skipping invalid job record"), 2)
	assert.Len(t, log.Find("error", "job failed"), 1)
}

func TestRunJobs_FailFastStopsAtFirstFailure(t *testing.T) {
	d := jobs.NewDispatcher(nil)
	calls := 0
	require.NoError(t, d.Register("BadJob", func(context.Context, *jobs.Record) error {
		calls++
		return errors.New("bad")
	}))

	input := `{"job_class":"BadJob","job_id":"1"}` + "\n" + `{"job_class":"BadJob","job_id":"2"}`
	stats, err := RunJobs(context.Background(), d, strings.NewReader(input), nil, true)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stats.Failed)
}

func TestRunJobs_CancelledContext(t *testing.T) {
	d := jobs.NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunJobs(ctx, d, strings.NewReader(`{"job_class":"X","job_id":"1"}`), nil, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatSettings(t *testing.T) {
	out, err := formatSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", out)

	out, err = formatSettings(map[string]interface{}{
		"management": map[string]interface{}{"read_timeout": 10 * time.Second},
		"list":       []interface{}{2 * time.Minute},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "read_timeout: 10s")
	assert.Contains(t, out, "- 2m0s")
}
