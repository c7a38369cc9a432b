package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/jobsignal/pkg/telemetry/transaction"
)

// CollectingReporter keeps every reported transaction in memory.
type CollectingReporter struct {
	mu      sync.Mutex
	records []*transaction.Record
	// Err, when set, is returned from every Report call.
	Err error
}

// Report implements transaction.Reporter.
func (c *CollectingReporter) Report(_ context.Context, rec *transaction.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return c.Err
}

// Records returns the reported transactions in completion order.
func (c *CollectingReporter) Records() []*transaction.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*transaction.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Last returns the most recently reported transaction, or nil.
func (c *CollectingReporter) Last() *transaction.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		return nil
	}
	return c.records[len(c.records)-1]
}

// CounterCall is one IncrementCounter invocation seen by CountingRecorder.
type CounterCall struct {
	Name   string
	Amount float64
	Tags   map[string]any
}

// CountingRecorder captures counter increments for assertions.
type CountingRecorder struct {
	mu    sync.Mutex
	calls []CounterCall
}

// IncrementCounter records the call. Tags are copied.
func (c *CountingRecorder) IncrementCounter(_ context.Context, name string, amount float64, tags map[string]any) {
	copied := make(map[string]any, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CounterCall{Name: name, Amount: amount, Tags: copied})
}

// Calls returns every captured increment in order.
func (c *CountingRecorder) Calls() []CounterCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CounterCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// WithStatus returns the captured increments whose status tag equals status.
func (c *CountingRecorder) WithStatus(status string) []CounterCall {
	var out []CounterCall
	for _, call := range c.Calls() {
		if call.Tags["status"] == status {
			out = append(out, call)
		}
	}
	return out
}
