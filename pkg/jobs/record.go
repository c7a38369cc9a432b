package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Record describes one job invocation as handed over by the host job framework.
// ProviderJobID, QueueName and Priority are absent when nil; a present empty
// queue name is still tagged. EnqueuedAt is absent when empty.
type Record struct {
	JobClass      string `json:"job_class"`
	JobID         string `json:"job_id"`
	ProviderJobID *string `json:"provider_job_id,omitempty"`
	QueueName     *string `json:"queue_name,omitempty"`
	Priority      *int    `json:"priority,omitempty"`
	EnqueuedAt    string  `json:"enqueued_at,omitempty"`
	Arguments     []any   `json:"arguments"`
	Executions    int     `json:"executions,omitempty"`
	Locale        string  `json:"locale,omitempty"`
	TimeZone      string  `json:"timezone,omitempty"`
}

// Validate checks the fields every instrumented invocation relies on.
func (r *Record) Validate() error {
	if r == nil {
		return jobsError(ErrValidation, "job record is nil")
	}
	if strings.TrimSpace(r.JobClass) == "" {
		return jobsError(ErrValidation, "job_class is required")
	}
	if strings.TrimSpace(r.JobID) == "" {
		return jobsError(ErrValidation, "job_id is required")
	}
	if r.Executions < 0 {
		return jobsError(ErrValidation, "executions must be >= 0")
	}
	return nil
}

// CorrelationKey prefers the identifier assigned by the transport over the
// framework-internal job id. A blank provider id falls back to the job id.
func (r *Record) CorrelationKey() string {
	if r == nil {
		return ""
	}
	provider := ""
	if r.ProviderJobID != nil {
		provider = strings.TrimSpace(*r.ProviderJobID)
	}
	return firstNonEmpty(provider, strings.TrimSpace(r.JobID))
}

// HasPriority reports whether a priority was supplied.
func (r *Record) HasPriority() bool {
	return r != nil && r.Priority != nil
}

// DecodeRecord decodes a JSON job record and validates it. Numbers inside
// arguments are kept as json.Number so large identifiers survive decoding.
func DecodeRecord(data []byte) (*Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, jobsError(ErrValidation, "job record is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var rec Record
	if err := decoder.Decode(&rec); err != nil {
		return nil, errors.Join(jobsError(ErrValidation, "decode job record failed"), err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IntPtr is a convenience for building records with a priority.
func IntPtr(v int) *int {
	return &v
}

// StringPtr is a convenience for building records with optional strings.
func StringPtr(v string) *string {
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
