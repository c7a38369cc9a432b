package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// Context is the single-slot register of the active transaction for one
// execution unit. The zero value is not usable; create it with NewContext.
type Context struct {
	reporter Reporter
	log      logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	current *Record
}

// NewContext creates an empty slot. Completed transactions are handed to
// reporter; a nil reporter discards them.
func NewContext(reporter Reporter, log logger.Logger) *Context {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Context{
		reporter: reporter,
		log:      log,
		now:      time.Now,
	}
}

// Current returns the active transaction or Null. It never returns nil.
func (c *Context) Current() Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Null
	}
	return c.current
}

// Create installs a new transaction as current and returns it. Any previously
// active transaction is replaced without being completed; callers that need
// single ownership check Current().IsNull() first.
func (c *Context) Create(correlationKey string, kind Kind, request Request) Transaction {
	rec := newRecord(correlationKey, kind, request, c.now())

	c.mu.Lock()
	replaced := c.current
	c.current = rec
	c.mu.Unlock()

	if replaced != nil {
		c.log.Debug("active transaction replaced",
			"transaction_id", replaced.ID(),
			"replacement_id", rec.ID(),
		)
	}
	return rec
}

// CompleteCurrent completes the active transaction, clears the slot and
// hands the record to the reporter. It returns ErrNoActiveTransaction when
// the slot is empty and the reporter's error (or panic) otherwise; the slot
// is cleared either way.
func (c *Context) CompleteCurrent(ctx context.Context) (err error) {
	c.mu.Lock()
	rec := c.current
	c.current = nil
	c.mu.Unlock()

	if rec == nil {
		return ErrNoActiveTransaction
	}
	if !rec.complete(c.now()) {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("report transaction %s: reporter panicked: %v", rec.ID(), r)
		}
	}()
	if reportErr := c.reporter.Report(ctx, rec); reportErr != nil {
		return fmt.Errorf("report transaction %s: %w", rec.ID(), reportErr)
	}
	return nil
}

type slotKey struct{}

// With returns a copy of ctx carrying slot.
func With(ctx context.Context, slot *Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, slotKey{}, slot)
}

// FromContext returns the slot carried by ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	slot, ok := ctx.Value(slotKey{}).(*Context)
	return slot, ok && slot != nil
}

// CurrentFrom returns the active transaction on ctx's slot, or Null when ctx
// carries no slot. Job code uses it to annotate the running transaction.
func CurrentFrom(ctx context.Context) Transaction {
	slot, ok := FromContext(ctx)
	if !ok {
		return Null
	}
	return slot.Current()
}
