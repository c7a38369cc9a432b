// Package transaction models the observability record of one instrumented
// execution and the per-execution slot that holds the active record.
//
// A Context is the single slot for one execution unit (a goroutine running
// one job). It is carried on a context.Context with With and retrieved with
// FromContext. Whoever observes the null transaction in the slot and calls
// Create owns the new record and is the only party that may call
// CompleteCurrent; layers that find a record already active attach to it.
//
//	slot := transaction.NewContext(reporter, log)
//	ctx = transaction.With(ctx, slot)
//	if slot.Current().IsNull() {
//	    txn := slot.Create(key, transaction.KindBackgroundJob, transaction.Request{})
//	    defer slot.CompleteCurrent(ctx)
//	    txn.SetActionIfNil("OrderJob#perform")
//	}
//
// The null transaction accepts every mutation as a no-op, so callers never
// branch on nullity before mutating.
package transaction
