package jobs

import "context"

// Handler executes the job logic for one record.
type Handler func(ctx context.Context, rec *Record) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the record being executed, and the next handler in the
// chain. Middleware must call next unless it intentionally short-circuits.
type Middleware func(ctx context.Context, rec *Record, next Handler) error

// Chain composes middleware into a single Middleware. The first middleware
// in the list is the outermost wrapper:
//
//	Chain(instrumentation, logging) executes as instrumentation → logging → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, rec *Record, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			if mw == nil {
				continue
			}
			inner := h
			h = func(ctx context.Context, rec *Record) error {
				return mw(ctx, rec, inner)
			}
		}
		return h(ctx, rec)
	}
}
