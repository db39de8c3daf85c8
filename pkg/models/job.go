package models

import (
	"time"

	"github.com/google/uuid"
)

// Task statuses. A task is terminal when it has succeeded, failed permanently,
// or failed transiently with no attempts left.
const (
	TaskStatusPending   = "pending"
	TaskStatusInFlight  = "in_flight"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
)

// Error kinds recorded on a failed task.
const (
	ErrorKindTransient = "transient"
	ErrorKindPermanent = "permanent"
)

// Aggregate job statuses, always derived from task statuses.
const (
	JobStatusPending        = "pending"
	JobStatusInFlight       = "in_flight"
	JobStatusSucceeded      = "succeeded"
	JobStatusPartialSuccess = "partial_success"
	JobStatusFailed         = "failed"
)

// Job is one user-initiated request to publish a piece of content to one or
// more platforms. The aggregate status is never stored; it is computed from
// the job's platform tasks.
type Job struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	UserID      uuid.UUID `db:"user_id"     json:"user_id"`
	Title       string    `db:"title"       json:"title"`
	Description string    `db:"description" json:"description"`
	MediaRef    string    `db:"media_ref"   json:"media_ref"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`

	Tasks []*PlatformTask `db:"-" json:"tasks,omitempty"`
}

// PlatformTask is the unit of work for publishing a job to a single platform.
// Keyed by (job_id, platform); Position preserves request order.
type PlatformTask struct {
	JobID           uuid.UUID  `db:"job_id"            json:"job_id"`
	Platform        Platform   `db:"platform"          json:"platform"`
	Status          string     `db:"status"            json:"status"`
	AttemptCount    int        `db:"attempt_count"     json:"attempt_count"`
	MaxAttempts     int        `db:"max_attempts"      json:"max_attempts"`
	ExternalPostID  *string    `db:"external_post_id"  json:"external_post_id,omitempty"`
	LastError       *string    `db:"last_error"        json:"last_error,omitempty"`
	ErrorKind       *string    `db:"error_kind"        json:"error_kind,omitempty"`
	LastAttemptedAt *time.Time `db:"last_attempted_at" json:"last_attempted_at,omitempty"`
	Position        int        `db:"position"          json:"position"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
}

// Terminal reports whether no further automatic transition can occur for this
// task without an explicit retry.
func (t *PlatformTask) Terminal() bool {
	switch t.Status {
	case TaskStatusSucceeded:
		return true
	case TaskStatusFailed:
		if t.ErrorKind != nil && *t.ErrorKind == ErrorKindPermanent {
			return true
		}
		return t.AttemptCount >= t.MaxAttempts
	default:
		return false
	}
}

// Retryable reports whether an explicit retry may reset this task to pending.
// Succeeded tasks are never retried and permanent failures are not eligible.
// Exhausted transient failures are: an explicit retry grants a fresh attempt
// budget, which the automatic backoff path never does.
func (t *PlatformTask) Retryable() bool {
	if t.Status != TaskStatusFailed {
		return false
	}
	return t.ErrorKind == nil || *t.ErrorKind != ErrorKindPermanent
}
