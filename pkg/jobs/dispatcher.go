package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// Dispatcher is the host-side execution hook: it maps job classes to
// handlers and runs every dispatch through the registered middleware chain.
// It is safe for concurrent use; each Dispatch call runs synchronously on the
// caller's goroutine.
type Dispatcher struct {
	log logger.Logger

	mu         sync.RWMutex
	handlers   map[string]Handler
	middleware []Middleware
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		log:      log,
		handlers: map[string]Handler{},
	}
}

// Register binds a handler to a job class.
func (d *Dispatcher) Register(jobClass string, handler Handler) error {
	if d == nil {
		return errors.New("dispatcher is not initialized")
	}
	jobClass = strings.TrimSpace(jobClass)
	if jobClass == "" {
		return jobsError(ErrInvalidArgument, "job class is required")
	}
	if handler == nil {
		return jobsError(ErrInvalidArgument, "handler is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobClass] = handler
	return nil
}

// Use appends middleware. Middleware added first wraps everything added later.
func (d *Dispatcher) Use(mws ...Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, mw := range mws {
		if mw != nil {
			d.middleware = append(d.middleware, mw)
		}
	}
}

// JobClasses returns the registered job classes.
func (d *Dispatcher) JobClasses() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for class := range d.handlers {
		out = append(out, class)
	}
	return out
}

// Dispatch validates the record and executes it through the middleware chain.
// Errors returned by the handler are passed back unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *Record) error {
	if d == nil {
		return errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	d.mu.RLock()
	chain := Chain(append([]Middleware(nil), d.middleware...)...)
	d.mu.RUnlock()

	return chain(ctx, rec, d.execute)
}

// execute is the terminal handler. A missing handler or a panic is a
// framework-internal fault surfaced as an error so outer middleware see it.
func (d *Dispatcher) execute(ctx context.Context, rec *Record) (err error) {
	handler, found := d.lookupHandler(rec.JobClass)
	if !found {
		return jobsError(ErrHandlerNotFound, fmt.Sprintf("no handler registered for %q", rec.JobClass))
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.WithContext(ctx).Error("job handler panicked",
				"job_class", rec.JobClass,
				"job_id", rec.JobID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w in %s: %v", ErrPanic, rec.JobClass, r)
		}
	}()

	return handler(ctx, rec)
}

func (d *Dispatcher) lookupHandler(jobClass string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	handler, ok := d.handlers[strings.TrimSpace(jobClass)]
	return handler, ok
}
