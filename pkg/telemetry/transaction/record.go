package transaction

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the concrete transaction installed by Context.Create.
//
// Mutations after completion are ignored so a reporter always sees a stable
// record, even if a timed-out job keeps running.
type Record struct {
	id             string
	correlationKey string
	kind           Kind
	request        Request
	startedAt      time.Time

	mu          sync.Mutex
	tags        Tags
	params      any
	err         *Error
	action      string
	queueStart  int64
	hasQueue    bool
	completedAt time.Time
}

func newRecord(correlationKey string, kind Kind, request Request, startedAt time.Time) *Record {
	rec := &Record{
		id:             uuid.NewString(),
		correlationKey: correlationKey,
		kind:           kind,
		request:        request,
		startedAt:      startedAt,
		tags:           Tags{},
	}
	if request.Params != nil {
		rec.params = request.Params
	}
	return rec
}

func (r *Record) ID() string { return r.id }
func (r *Record) CorrelationKey() string { return r.correlationKey }
func (r *Record) Kind() Kind { return r.kind }
func (r *Record) IsNull() bool { return false }

// Request returns the descriptor passed at creation.
func (r *Record) Request() Request { return r.request }

// StartedAt is the creation time.
func (r *Record) StartedAt() time.Time { return r.startedAt }

// SetError records err, replacing any previously recorded error. A nil err is ignored.
func (r *Record) SetError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed() {
		return
	}
	r.err = NewError(err)
}

func (r *Record) SetTags(tags Tags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed() {
		return
	}
	for k, v := range tags {
		r.tags[k] = v
	}
}

func (r *Record) SetParams(params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed() {
		return
	}
	r.params = params
}

func (r *Record) SetActionIfNil(action string) {
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed() || r.action != "" {
		return
	}
	r.action = action
}

func (r *Record) SetQueueStart(unixMillis int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed() {
		return
	}
	r.queueStart = unixMillis
	r.hasQueue = true
}

// Tags returns a copy of the recorded tags.
func (r *Record) Tags() Tags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags.Clone()
}

// Params returns the recorded (sanitized) parameters.
func (r *Record) Params() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// Err returns the recorded error or nil.
func (r *Record) Err() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		return nil
	}
	copied := *r.err
	return &copied
}

// Action returns the action name, empty until set.
func (r *Record) Action() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.action
}

// QueueStart returns the queue-start timestamp in milliseconds since epoch.
func (r *Record) QueueStart() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queueStart, r.hasQueue
}

// Completed reports whether the record has been completed.
func (r *Record) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed()
}

// CompletedAt returns the completion time, zero while active.
func (r *Record) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// Duration is the time between creation and completion.
func (r *Record) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.completed() {
		return 0
	}
	return r.completedAt.Sub(r.startedAt)
}

func (r *Record) complete(at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed() {
		return false
	}
	if at.Before(r.startedAt) {
		at = r.startedAt
	}
	r.completedAt = at
	return true
}

func (r *Record) completed() bool {
	return !r.completedAt.IsZero()
}
