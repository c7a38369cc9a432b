package jobs

import (
	"errors"
	"testing"
)

func TestJobsErrorWrapsKind(t *testing.T) {
	err := jobsError(ErrValidation, "job_id is required")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err.Error() != "jobs validation error: job_id is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if jobsError(ErrHandlerNotFound, "") != ErrHandlerNotFound {
		t.Fatal("empty message should return the bare kind")
	}
}
