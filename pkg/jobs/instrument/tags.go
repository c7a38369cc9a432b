package instrument

import (
	"fmt"
	"strings"

	"github.com/nimburion/jobsignal/pkg/jobs"
	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
)

// Tag keys emitted for job executions.
const (
	TagQueue         = "queue"
	TagPriority      = "priority"
	TagStatus        = "status"
	TagActiveJobID   = "active_job_id"
	TagProviderJobID = "provider_job_id"
)

// Counter status values.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// DefaultMailerJobClasses are the job classes whose action is derived from
// the mailer and method names carried in the first two arguments.
var DefaultMailerJobClasses = []string{
	"ActionMailer::DeliveryJob",
	"ActionMailer::Parameterized::DeliveryJob",
	"ActionMailer::MailDeliveryJob",
}

// TagsForJob returns the tags shared by the transaction and the metrics:
// queue when a queue name is present and priority when a priority is present.
// The result is a fresh map on every call.
func TagsForJob(rec *jobs.Record) transaction.Tags {
	tags := transaction.Tags{}
	if rec == nil {
		return tags
	}
	if rec.QueueName != nil {
		tags[TagQueue] = *rec.QueueName
	}
	if rec.Priority != nil {
		tags[TagPriority] = *rec.Priority
	}
	return tags
}

// ActionName derives the transaction action for rec. Mailer job classes
// yield "<mailer>#<method>" from the first two arguments (fewer are
// tolerated); every other class yields "<job_class>#perform".
func ActionName(rec *jobs.Record, mailerClasses []string) string {
	if isMailer(rec.JobClass, mailerClasses) {
		n := len(rec.Arguments)
		if n > 2 {
			n = 2
		}
		parts := make([]string, 0, n)
		for _, arg := range rec.Arguments[:n] {
			parts = append(parts, argString(arg))
		}
		return strings.Join(parts, "#")
	}
	return rec.JobClass + "#perform"
}

func isMailer(jobClass string, mailerClasses []string) bool {
	for _, class := range mailerClasses {
		if class == jobClass {
			return true
		}
	}
	return false
}

func argString(arg any) string {
	if arg == nil {
		return ""
	}
	if s, ok := arg.(string); ok {
		return s
	}
	return fmt.Sprint(arg)
}
