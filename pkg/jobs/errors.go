package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies malformed job records.
	ErrValidation = errors.New("jobs validation error")
	// ErrHandlerNotFound classifies dispatches for a job class with no registered handler.
	ErrHandlerNotFound = errors.New("jobs handler not found")
	// ErrInvalidArgument classifies invalid caller arguments.
	ErrInvalidArgument = errors.New("jobs invalid argument")
	// ErrPanic classifies handler panics converted into errors by the dispatcher.
	ErrPanic = errors.New("jobs handler panic")
)

func jobsError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
