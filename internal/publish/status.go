package publish

import (
	"time"

	"github.com/crosscast-io/crosscast/pkg/models"
)

// Aggregate derives the job-level status from its tasks. It is a pure
// function of the latest persisted task states and is never stored, so the
// polling and push paths can never disagree.
//
// A task failed transiently with attempts remaining is counted as still in
// flight: the scheduler holds a backoff timer for it.
func Aggregate(tasks []*models.PlatformTask) string {
	if len(tasks) == 0 {
		return models.JobStatusPending
	}

	var anyInFlight, anyPending, anySucceeded, anyFailed bool
	allTerminal := true
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusInFlight:
			anyInFlight = true
		case models.TaskStatusPending:
			anyPending = true
		case models.TaskStatusSucceeded:
			anySucceeded = true
		case models.TaskStatusFailed:
			anyFailed = true
		}
		if !t.Terminal() {
			allTerminal = false
		}
	}

	switch {
	case anyInFlight:
		return models.JobStatusInFlight
	case anyPending:
		return models.JobStatusPending
	case !allTerminal:
		return models.JobStatusInFlight
	case anySucceeded && anyFailed:
		return models.JobStatusPartialSuccess
	case anySucceeded:
		return models.JobStatusSucceeded
	default:
		return models.JobStatusFailed
	}
}

// terminalAggregate reports whether an aggregate status admits no further
// automatic transitions.
func terminalAggregate(status string) bool {
	switch status {
	case models.JobStatusSucceeded, models.JobStatusPartialSuccess, models.JobStatusFailed:
		return true
	}
	return false
}

// StatusView builds the read model for a job, including the derived
// aggregate status and a per-task breakdown in request order.
func StatusView(job *models.Job) *models.JobStatusView {
	agg := Aggregate(job.Tasks)

	view := &models.JobStatusView{
		JobID:     job.ID,
		UserID:    job.UserID,
		Title:     job.Title,
		Status:    agg,
		CreatedAt: job.CreatedAt,
		Tasks:     make([]models.TaskView, 0, len(job.Tasks)),
	}

	var lastUpdate time.Time
	for _, t := range job.Tasks {
		view.Tasks = append(view.Tasks, models.TaskView{
			Platform:       t.Platform,
			Status:         t.Status,
			AttemptCount:   t.AttemptCount,
			MaxAttempts:    t.MaxAttempts,
			ExternalPostID: t.ExternalPostID,
			LastError:      t.LastError,
			ErrorKind:      t.ErrorKind,
		})
		if t.UpdatedAt.After(lastUpdate) {
			lastUpdate = t.UpdatedAt
		}
	}

	if terminalAggregate(agg) && !lastUpdate.IsZero() {
		view.CompletedAt = &lastUpdate
	}
	return view
}
