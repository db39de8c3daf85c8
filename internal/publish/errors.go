package publish

import "errors"

var (
	// ErrValidation rejects a malformed publish request before any job is
	// created. Always wrapped with the offending detail.
	ErrValidation = errors.New("invalid publish request")

	// ErrForbidden is returned when the caller does not own the job.
	ErrForbidden = errors.New("caller does not own this job")

	// ErrNothingToRetry is returned when a retry finds no failed task with
	// attempts remaining.
	ErrNothingToRetry = errors.New("no retryable platform task")

	// ErrSchedulerBusy is returned when a platform's dispatch queue is full.
	// The task stays pending and is re-dispatched by the sweep or an
	// explicit retry.
	ErrSchedulerBusy = errors.New("scheduler at capacity")
)
