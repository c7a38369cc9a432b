package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// maxRecordSize bounds one JSON line of job input.
const maxRecordSize = 4 << 20

// ErrJobFailed is returned by RunJobs in fail-fast mode.
var ErrJobFailed = errors.New("job failed")

// RunStats summarizes one RunJobs pass.
type RunStats struct {
	Processed int
	Failed    int
	Skipped   int
}

// RunJobs dispatches every JSON line read from r. Lines that do not decode
// into a valid record are logged and skipped. Job errors are logged; with
// failFast the first one stops the run and is returned wrapped in ErrJobFailed.
func RunJobs(ctx context.Context, dispatcher *jobs.Dispatcher, r io.Reader, log logger.Logger, failFast bool) (RunStats, error) {
	if log == nil {
		log = logger.Nop()
	}
	var stats RunStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		rec, err := jobs.DecodeRecord(raw)
		if err != nil {
			stats.Skipped++
			log.Warn("skipping invalid job record", "line", line, "error", err)
			continue
		}

		stats.Processed++
		if err := dispatcher.Dispatch(ctx, rec); err != nil {
			stats.Failed++
			log.Error("job failed",
				"job_class", rec.JobClass,
				"job_id", rec.JobID,
				"error", err,
			)
			if failFast {
				return stats, fmt.Errorf("%w: %s %s: %w", ErrJobFailed, rec.JobClass, rec.JobID, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read job records: %w", err)
	}
	return stats, nil
}
