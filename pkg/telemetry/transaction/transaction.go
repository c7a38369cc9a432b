package transaction

import (
	"errors"
	"fmt"
	"strings"
)

// Kind separates background-job transactions from request transactions.
type Kind string

const (
	// KindBackgroundJob marks a transaction started for a job execution.
	KindBackgroundJob Kind = "background_job"
	// KindHTTPRequest marks a transaction started for an inbound request.
	KindHTTPRequest Kind = "http_request"
)

// ErrNoActiveTransaction is returned by CompleteCurrent on an empty slot.
var ErrNoActiveTransaction = errors.New("no active transaction")

// Request is the generic request descriptor attached at creation. Background
// jobs pass an empty descriptor.
type Request struct {
	Params map[string]any
	Env    map[string]string
}

// Tags maps a symbolic key to a scalar value (string, bool or number).
type Tags map[string]any

// Clone returns an independent copy.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// With returns a copy of t with key set to value.
func (t Tags) With(key string, value any) Tags {
	out := t.Clone()
	out[key] = value
	return out
}

// Error is the recorded failure of a transaction.
type Error struct {
	Kind    string
	Message string
	Stack   string
}

// PanicError wraps a recovered panic value together with the stack of the
// goroutine that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewError captures err for recording. Recovered panics keep their stack
// and are reported with kind "panic"; other errors use the dynamic type name.
func NewError(err error) *Error {
	if err == nil {
		return nil
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return &Error{
			Kind:    "panic",
			Message: fmt.Sprint(panicErr.Value),
			Stack:   string(panicErr.Stack),
		}
	}
	return &Error{
		Kind:    strings.TrimPrefix(fmt.Sprintf("%T", err), "*"),
		Message: err.Error(),
	}
}

// Transaction is the mutable observability record of one execution.
type Transaction interface {
	// ID is unique per transaction; empty for the null transaction.
	ID() string
	// CorrelationKey links the transaction to the job or request it covers.
	CorrelationKey() string
	Kind() Kind
	// IsNull reports whether this is the null transaction.
	IsNull() bool

	SetError(err error)
	// SetTags merges tags into the recorded set; same-key writes overwrite.
	SetTags(tags Tags)
	SetParams(params any)
	// SetActionIfNil sets the action only when none is set yet.
	SetActionIfNil(action string)
	// SetQueueStart records when the work was enqueued, in milliseconds since epoch.
	SetQueueStart(unixMillis int64)
}

// Null is the placeholder returned when no transaction is active.
var Null Transaction = nullTransaction{}

type nullTransaction struct{}

func (nullTransaction) ID() string { return "" }
func (nullTransaction) CorrelationKey() string { return "" }
func (nullTransaction) Kind() Kind { return "" }
func (nullTransaction) IsNull() bool { return true }
func (nullTransaction) SetError(error) {}
func (nullTransaction) SetTags(Tags) {}
func (nullTransaction) SetParams(any) {}
func (nullTransaction) SetActionIfNil(string) {}
func (nullTransaction) SetQueueStart(int64) {}
