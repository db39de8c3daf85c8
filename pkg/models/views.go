package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatusView is the read model returned to pollers and listed per user.
// Both the HTTP status endpoint and the push channel are built from this view
// so the two paths can never drift apart.
type JobStatusView struct {
	JobID       uuid.UUID  `json:"job_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Tasks       []TaskView `json:"tasks"`
}

// TaskView is the per-platform slice of a JobStatusView.
type TaskView struct {
	Platform       Platform `json:"platform"`
	Status         string   `json:"status"`
	AttemptCount   int      `json:"attempt_count"`
	MaxAttempts    int      `json:"max_attempts"`
	ExternalPostID *string  `json:"external_post_id,omitempty"`
	LastError      *string  `json:"last_error,omitempty"`
	ErrorKind      *string  `json:"error_kind,omitempty"`
}

// TaskEvent is pushed to subscribers whenever a platform task changes state.
type TaskEvent struct {
	Type            string    `json:"type"`
	JobID           uuid.UUID `json:"job_id"`
	UserID          uuid.UUID `json:"user_id"`
	Platform        Platform  `json:"platform"`
	NewStatus       string    `json:"new_status"`
	AggregateStatus string    `json:"aggregate_status"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// RetryOutcome reports which tasks an explicit retry re-queued.
type RetryOutcome struct {
	JobID     uuid.UUID  `json:"job_id"`
	Requeued  []Platform `json:"requeued"`
	Skipped   []Platform `json:"skipped"`
	RetriedAt time.Time  `json:"retried_at"`
}
