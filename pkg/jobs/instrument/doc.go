// Package instrument wraps job execution in a telemetry transaction.
//
// An Interceptor attaches to the transaction already active on the execution
// unit, or creates and owns one when none is active. Every invocation is
// finalized exactly once: arguments, tags, action name and queue start are
// recorded on the transaction, an owned transaction is completed, and the
// queue_job_count counter is incremented with status=processed, plus
// status=failed when the job returned an error or panicked.
//
// The interceptor is normally installed as the first dispatcher middleware:
//
//	interceptor := instrument.New(
//		instrument.WithReporter(reporter),
//		instrument.WithRecorder(recorder),
//		instrument.WithFilterParameters("password"),
//	)
//	dispatcher.Use(interceptor.Middleware())
package instrument
